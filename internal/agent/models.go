// internal/agent/models.go
package agent

import (
	"strings"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// ActionKind is the closed set of actions the dispatcher understands.
type ActionKind string

const (
	ActionNavigate     ActionKind = "navigate"     // Loads Action.URL.
	ActionClick        ActionKind = "click"        // Clicks Action.Selector.
	ActionFillFields   ActionKind = "fill_fields"  // Sets Action.Fields, then clicks Action.SubmitSelector if set.
	ActionExtract      ActionKind = "extract"      // Reads Action.Selector, or the whole document.
	ActionNoAction     ActionKind = "no_action"    // Ends the step loop for the current resource.
	ActionUnrecognized ActionKind = "unrecognized" // Any wire type not listed above.
)

// wireKinds maps the oracle's action vocabulary onto ActionKind.
var wireKinds = map[string]ActionKind{
	"navigate":  ActionNavigate,
	"click":     ActionClick,
	"fill_form": ActionFillFields,
	"extract":   ActionExtract,
	"no_action": ActionNoAction,
}

// Action is a single decision of the oracle, in typed form.
type Action struct {
	Kind ActionKind
	// RawType is the type string exactly as it arrived on the wire.
	RawType        string
	Selector       string
	URL            string
	Fields         map[string]string
	SubmitSelector string
	Reason         string
}

// ParseAction converts the wire form into an Action. Unknown types become
// ActionUnrecognized with the raw type retained.
func ParseAction(spec schemas.ActionSpec) Action {
	kind, ok := wireKinds[strings.ToLower(strings.TrimSpace(spec.Type))]
	if !ok {
		kind = ActionUnrecognized
	}
	return Action{
		Kind:           kind,
		RawType:        spec.Type,
		Selector:       spec.Selector,
		URL:            spec.URL,
		Fields:         spec.FormData,
		SubmitSelector: spec.SubmitSelector,
		Reason:         spec.Reason,
	}
}

// Spec returns the wire form of the action for logs and results.
func (a Action) Spec() schemas.ActionSpec {
	return schemas.ActionSpec{
		Type:           a.RawType,
		Selector:       a.Selector,
		FormData:       a.Fields,
		SubmitSelector: a.SubmitSelector,
		URL:            a.URL,
		Reason:         a.Reason,
	}
}

// OutcomeStatus is the result class of a dispatched action.
type OutcomeStatus string

const (
	OutcomeSuccess      OutcomeStatus = "success"
	OutcomeFailure      OutcomeStatus = "failure"
	OutcomeUnrecognized OutcomeStatus = "unrecognized"
)

// Outcome reports what happened when an action was dispatched. It is always a
// value; the dispatcher never returns an error.
type Outcome struct {
	Status OutcomeStatus
	// Data is new content produced by the action. Empty means none.
	Data      string
	Error     string
	ErrorCode ErrorCode
}

// Succeeded reports whether the action completed.
func (o Outcome) Succeeded() bool { return o.Status == OutcomeSuccess }
