// internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/browser"
)

// Capability is the resource surface the agent drives. *browser.Controller satisfies it.
type Capability interface {
	Init(ctx context.Context) error
	Close() error
	// Navigate reports false once its bounded retries are exhausted.
	Navigate(ctx context.Context, url string) bool
	ExtractContent(ctx context.Context, selector string) browser.Content
	Click(ctx context.Context, selector string) error
	FillFields(ctx context.Context, fields map[string]string, submitSelector string) error
}

// Oracle supplies plans and decisions. Every method resolves failures to a
// fallback value. *oracle.Oracle satisfies it.
type Oracle interface {
	InitialPlan(ctx context.Context, task string, resources []string) schemas.Plan
	ShouldReuse(ctx context.Context, task, resource string, cached any) bool
	NextAction(ctx context.Context, task, resource, content string, sc schemas.StepContext) schemas.ActionSpec
	Analyze(ctx context.Context, task string, results []schemas.ResourceResult) map[string]any
	Summarize(ctx context.Context, task string, snapshot schemas.TaskSnapshot) string
}

// Memory is the session key-value store. *store.Store satisfies it.
type Memory interface {
	Put(ctx context.Context, sessionID, key string, value any) error
	Get(ctx context.Context, sessionID, key string) (any, bool, error)
	SaveTaskResult(ctx context.Context, sessionID, task string, urls []string, result schemas.TaskResult) error
}

var _ Capability = (*browser.Controller)(nil)
