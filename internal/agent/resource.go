// internal/agent/resource.go
package agent

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/browser"
	"github.com/xkilldash9x/rabbit-cli/internal/llmutil"
)

// LastActionKey holds the most recently dispatched action of a session.
const LastActionKey = "last_action"

// historyWindow is how many recent actions are shown to the oracle.
const historyWindow = 10

// CacheKey is the store key of a resource's result for a task.
func CacheKey(task, url string) string {
	return "task:" + task + ":" + url
}

// SummaryKey is the store key of a resource's visit summary.
func SummaryKey(url string) string {
	return "summary:" + url
}

// resourceRun carries the state of one resource through
// CacheCheck -> {CacheHit | Fetch} -> StepLoop -> Save.
type resourceRun struct {
	o         *Orchestrator
	sc        *SessionContext
	sessionID string
	task      string
	url       string
	maxSteps  int
	logger    *zap.Logger

	content string
	result  schemas.ResourceResult
}

func (o *Orchestrator) processResource(ctx context.Context, sc *SessionContext, sessionID, task, url string, maxSteps int) schemas.ResourceResult {
	r := &resourceRun{
		o:         o,
		sc:        sc,
		sessionID: sessionID,
		task:      task,
		url:       url,
		maxSteps:  maxSteps,
		logger:    o.logger.With(zap.String("url", url)),
		result:    schemas.ResourceResult{URL: url},
	}

	if r.cacheCheck(ctx) {
		o.metrics.ResourceProcessed(string(schemas.SourceCache))
		return r.result
	}
	r.fetch(ctx)
	r.stepLoop(ctx)
	r.save(ctx)
	o.metrics.ResourceProcessed(string(schemas.SourceBrowser))
	return r.result
}

// cacheCheck reports whether a cached result was reused.
func (r *resourceRun) cacheCheck(ctx context.Context) bool {
	cached, found, err := r.o.memory.Get(ctx, r.sessionID, CacheKey(r.task, r.url))
	if err != nil {
		r.logger.Warn("Cache lookup failed, fetching resource.", zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if !r.o.oracle.ShouldReuse(ctx, r.task, r.url, cached) {
		r.logger.Debug("Cached result not reused.")
		return false
	}

	text, err := renderValue(cached)
	if err != nil {
		r.logger.Warn("Cached value could not be rendered, fetching resource.", zap.Error(err))
		return false
	}
	r.result.Data = text
	r.result.Source = schemas.SourceCache
	r.logger.Info("Reusing cached result.")
	return true
}

func (r *resourceRun) fetch(ctx context.Context) {
	r.result.Source = schemas.SourceBrowser
	if !r.o.capability.Navigate(ctx, r.url) {
		r.result.Error = fmt.Sprintf("navigation to %s failed", r.url)
		r.logger.Warn("Navigation failed, continuing with whatever content is available.")
	}
	r.extract(ctx)
}

// extract replaces the current content with a whole-document read when one is available.
func (r *resourceRun) extract(ctx context.Context) {
	content := r.o.capability.ExtractContent(ctx, "")
	switch content.Status {
	case browser.ContentFound:
		r.content = content.Text
		r.sc.SetContent(r.url, r.content)
	case browser.ContentError:
		r.logger.Warn("Content extraction failed.", zap.Error(content.Err))
	default:
		r.logger.Debug("No content extracted.")
	}
}

func (r *resourceRun) stepLoop(ctx context.Context) {
	for step := 0; step < r.maxSteps; step++ {
		if ctx.Err() != nil {
			r.logger.Info("Step loop interrupted.", zap.Int("step", step), zap.Error(ctx.Err()))
			return
		}

		spec := r.o.oracle.NextAction(ctx, r.task, r.url, r.content, schemas.StepContext{
			Step:          step,
			MaxSteps:      r.maxSteps,
			VisitedURLs:   r.sc.Visited(),
			ActionHistory: r.sc.RecentActions(historyWindow),
		})
		action := ParseAction(spec)
		if action.Kind == ActionNoAction {
			r.logger.Debug("Oracle chose no action, ending step loop.", zap.Int("step", step), zap.String("reason", action.Reason))
			return
		}

		outcome := r.o.dispatcher.Execute(ctx, r.o.capability, action)
		r.record(ctx, step, action, outcome)

		switch {
		case outcome.Succeeded() && outcome.Data != "":
			r.content = outcome.Data
			r.sc.SetContent(r.url, r.content)
		case outcome.Succeeded():
			r.extract(ctx)
		default:
			r.logger.Info("Action did not succeed, continuing.",
				zap.Int("step", step),
				zap.String("action", string(action.Kind)),
				zap.String("status", string(outcome.Status)),
				zap.String("error", outcome.Error),
			)
		}
	}
}

func (r *resourceRun) record(ctx context.Context, step int, action Action, outcome Outcome) {
	rec := schemas.ActionRecord{
		URL:       r.url,
		Step:      step,
		Action:    action.Spec(),
		Status:    string(outcome.Status),
		Error:     outcome.Error,
		ErrorCode: string(outcome.ErrorCode),
		Timestamp: time.Now().UTC(),
	}
	r.sc.RecordAction(rec)
	r.result.Actions = append(r.result.Actions, rec)

	if err := r.o.memory.Put(ctx, r.sessionID, LastActionKey, rec); err != nil {
		r.logger.Warn("Failed to save last action.", zap.Error(err))
	}
}

func (r *resourceRun) save(ctx context.Context) {
	display := r.content
	if limit := r.o.cfg.DisplayLimit; limit > 0 {
		display = llmutil.Truncate(r.content, limit)
	}
	r.result.Data = display

	summary := fmt.Sprintf("Visited %s, found content of length %d.", r.url, utf8.RuneCountInString(r.content))
	if err := r.o.memory.Put(ctx, r.sessionID, SummaryKey(r.url), summary); err != nil {
		r.logger.Warn("Failed to save visit summary.", zap.Error(err))
	}
	if err := r.o.memory.Put(ctx, r.sessionID, CacheKey(r.task, r.url), display); err != nil {
		r.logger.Warn("Failed to save resource result.", zap.Error(err))
	}
	r.sc.Visit(r.url)
}

// renderValue turns a cached value into result text.
func renderValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to render cached value: %w", err)
	}
	return string(b), nil
}
