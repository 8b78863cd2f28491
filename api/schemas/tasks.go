package schemas

import (
	"encoding/json"
	"time"
)

// -- Task Schemas --

// TaskStatus is the top-level outcome of a task run.
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusError   TaskStatus = "error"
)

// ResultSource records where a per-resource result came from.
type ResultSource string

const (
	SourceCache   ResultSource = "cache"
	SourceBrowser ResultSource = "browser"
)

// TaskInput is the caller-facing description of a task. Parameters.URLs is
// kept raw so that malformed input can be reported instead of rejected by the decoder.
// YAML task files are converted to JSON before decoding.
type TaskInput struct {
	Name         string         `json:"name,omitempty"`
	Instructions string         `json:"instructions"`
	Parameters   TaskParameters `json:"parameters"`
	SessionID    string         `json:"session_id,omitempty"`
	MaxSteps     *int           `json:"max_steps,omitempty"`
}

// TaskParameters carries the resource list of a task.
type TaskParameters struct {
	URLs json.RawMessage `json:"urls"`
}

// Description returns the text used to key cache entries and prompt the oracle.
// Instructions take precedence; the name is used when no instructions were given.
func (t TaskInput) Description() string {
	if t.Instructions != "" {
		return t.Instructions
	}
	return t.Name
}

// TaskResult is the aggregate outcome of a task. It is always produced, even
// when every resource failed. Analysis is an empty object when none was requested.
type TaskResult struct {
	Status           TaskStatus       `json:"status"`
	Summary          string           `json:"summary,omitempty"`
	Data             []ResourceResult `json:"data"`
	Analysis         map[string]any   `json:"analysis"`
	ActionsPerformed []ActionRecord   `json:"actions_performed"`
	Message          string           `json:"message,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	Plan             *Plan            `json:"plan,omitempty"`
}

// ResourceResult is the per-resource entry of a TaskResult.
type ResourceResult struct {
	URL     string         `json:"url"`
	Data    string         `json:"data"`
	Source  ResultSource   `json:"source"`
	Actions []ActionRecord `json:"actions,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// -- Plan and Action Wire Schemas --

// ActionSpec is the wire form of an action as produced by the oracle.
type ActionSpec struct {
	Type           string            `json:"type"`
	Selector       string            `json:"selector,omitempty"`
	FormData       map[string]string `json:"form_data,omitempty"`
	SubmitSelector string            `json:"submit_selector,omitempty"`
	URL            string            `json:"url,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// PlanStep is the advisory action list for one resource.
type PlanStep struct {
	URL     string       `json:"url"`
	Actions []ActionSpec `json:"actions"`
}

// Plan is produced once per task and is advisory only.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// ActionRecord is one entry of the executed-action log.
type ActionRecord struct {
	URL       string     `json:"url"`
	Step      int        `json:"step"`
	Action    ActionSpec `json:"action"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// StepContext is the snapshot of session state handed to the oracle when it
// chooses the next action.
type StepContext struct {
	Step          int            `json:"step"`
	MaxSteps      int            `json:"max_steps"`
	VisitedURLs   []string       `json:"visited_urls"`
	ActionHistory []ActionRecord `json:"action_history"`
}

// TaskSnapshot is the end-of-task state handed to the oracle for summarization.
type TaskSnapshot struct {
	VisitedURLs      []string         `json:"visited_urls"`
	ActionsPerformed int              `json:"actions_performed"`
	Results          []ResourceResult `json:"results"`
}

// TaskRecord is one entry of a session's task history.
type TaskRecord struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Task      string          `json:"task"`
	URLs      []string        `json:"urls"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
