// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/rabbit-cli/internal/browser"
)

// ErrorCode is a string type used for structured error reporting from the dispatcher.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"

	// -- Browser/DOM Errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// ErrValidation marks malformed task input.
var ErrValidation = errors.New("validation error")

// ParseBrowserError classifies an error returned by the browser capability.
func ParseBrowserError(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, browser.ErrElementNotFound):
		return ErrCodeElementNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no element found"), strings.Contains(errStr, "could not find node"):
		return ErrCodeElementNotFound
	case strings.Contains(errStr, "timeout"):
		return ErrCodeTimeoutError
	case strings.Contains(errStr, "net::ERR"):
		return ErrCodeNavigationError
	}
	return ErrCodeExecutionFailure
}
