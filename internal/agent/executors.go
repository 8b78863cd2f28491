// internal/agent/executors.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/internal/browser"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

// Dispatcher runs typed actions against a Capability and converts every
// failure, panics included, into an Outcome.
type Dispatcher struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		metrics: metrics,
	}
}

// Execute dispatches one action.
func (d *Dispatcher) Execute(ctx context.Context, capability Capability, action Action) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic during action execution.",
				zap.String("action", string(action.Kind)),
				zap.Any("panic_value", r),
				zap.Stack("stack"),
			)
			outcome = Outcome{
				Status:    OutcomeFailure,
				Error:     fmt.Sprintf("executor panic: %v", r),
				ErrorCode: ErrCodeExecutorPanic,
			}
		}
		d.metrics.ActionDispatched(string(action.Kind), string(outcome.Status))
	}()

	switch action.Kind {
	case ActionNavigate:
		if action.URL == "" {
			return invalid(action, "navigate requires a url")
		}
		if !capability.Navigate(ctx, action.URL) {
			return Outcome{
				Status:    OutcomeFailure,
				Error:     fmt.Sprintf("navigation to %s failed", action.URL),
				ErrorCode: ErrCodeNavigationError,
			}
		}
		return Outcome{Status: OutcomeSuccess}

	case ActionClick:
		if action.Selector == "" {
			return invalid(action, "click requires a selector")
		}
		return d.fromError(action, capability.Click(ctx, action.Selector))

	case ActionFillFields:
		if len(action.Fields) == 0 {
			return invalid(action, "fill_form requires form_data")
		}
		return d.fromError(action, capability.FillFields(ctx, action.Fields, action.SubmitSelector))

	case ActionExtract:
		content := capability.ExtractContent(ctx, action.Selector)
		switch content.Status {
		case browser.ContentFound:
			return Outcome{Status: OutcomeSuccess, Data: content.Text}
		case browser.ContentEmpty:
			return Outcome{Status: OutcomeSuccess}
		default:
			err := content.Err
			if err == nil {
				err = errors.New("content extraction failed")
			}
			return d.fromError(action, err)
		}

	case ActionNoAction:
		return Outcome{Status: OutcomeSuccess}

	case ActionUnrecognized:
		return Outcome{
			Status:    OutcomeUnrecognized,
			Error:     fmt.Sprintf("unknown action type %q", action.RawType),
			ErrorCode: ErrCodeUnknownAction,
		}
	}

	return Outcome{
		Status:    OutcomeUnrecognized,
		Error:     fmt.Sprintf("unhandled action kind %q", action.Kind),
		ErrorCode: ErrCodeUnknownAction,
	}
}

func invalid(action Action, msg string) Outcome {
	return Outcome{
		Status:    OutcomeUnrecognized,
		Error:     fmt.Sprintf("%s (type %q)", msg, action.RawType),
		ErrorCode: ErrCodeInvalidParameters,
	}
}

func (d *Dispatcher) fromError(action Action, err error) Outcome {
	if err == nil {
		return Outcome{Status: OutcomeSuccess}
	}
	code := ParseBrowserError(err)
	d.logger.Warn("Action execution failed.",
		zap.String("action", string(action.Kind)),
		zap.String("selector", action.Selector),
		zap.String("error_code", string(code)),
		zap.Error(err),
	)
	return Outcome{Status: OutcomeFailure, Error: err.Error(), ErrorCode: code}
}
