package browser

import (
	"context"
	"errors"
)

// ErrElementNotFound is returned when a selector matches nothing on the page.
var ErrElementNotFound = errors.New("element not found")

// ErrNotStarted is returned when a driver is used before Start.
var ErrNotStarted = errors.New("browser not started")

// Driver is the low-level page automation surface. One Driver drives a single tab.
type Driver interface {
	// Start launches the browser. Calling Start on a started driver is a no-op.
	Start(ctx context.Context) error
	// Goto navigates and returns the HTTP status of the main document, or 0 when none was observed.
	Goto(ctx context.Context, url string) (int64, error)
	// Text returns the visible text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the outer HTML of the whole document.
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	// SetValue replaces the value of an input element.
	SetValue(ctx context.Context, selector, value string) error
	Close() error
}
