// Package oracle asks a language model for plans, next actions, reuse
// decisions, analyses and summaries. Every operation has a deterministic
// fallback and never returns an error to its caller.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/llmutil"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnavailable is reported in logs when no LLM client is configured.
var ErrUnavailable = errors.New("oracle unavailable")

const (
	// Content sent to the model is capped so a single page cannot exhaust the context window.
	maxPromptContent   = 8000
	maxAnalysisContent = 4000
	maxFallbackSummary = 500
)

// Config tunes the oracle calls.
type Config struct {
	// CallTimeout bounds each individual model call. Zero means no extra bound.
	CallTimeout time.Duration
	Temperature float64
}

// Oracle wraps an LLM client with the request/response contracts of the task loop.
type Oracle struct {
	client  schemas.LLMClient
	cfg     Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New returns an Oracle. A nil client yields an oracle that always falls back.
func New(client schemas.LLMClient, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Oracle {
	return &Oracle{
		client:  client,
		cfg:     cfg,
		logger:  logger.Named("oracle"),
		metrics: metrics,
	}
}

// Available reports whether a model client is configured.
func (o *Oracle) Available() bool {
	return o.client != nil
}

// ask sends one request and returns the raw response text.
func (o *Oracle) ask(ctx context.Context, tier schemas.ModelTier, system, user string, forceJSON bool) (string, error) {
	if o.client == nil {
		return "", ErrUnavailable
	}
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
	}
	req := schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         tier,
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.Temperature,
			ForceJSONFormat: forceJSON,
		},
	}
	return o.client.Generate(ctx, req)
}

func (o *Oracle) fallback(operation string, err error, fields ...zap.Field) {
	o.metrics.OracleFallback(operation)
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	if errors.Is(err, ErrUnavailable) {
		o.logger.Debug("Oracle unavailable, using fallback.", fields...)
		return
	}
	o.logger.Warn("Oracle call failed, using fallback.", fields...)
}

// -- Initial Plan --

const planSystemPrompt = `You plan browser work for an autonomous agent.
Respond with a single JSON object and nothing else:
{"steps": [{"url": "<resource url>", "actions": [{"type": "navigate|click|fill_form|extract|no_action", "selector": "...", "form_data": {"<selector>": "<value>"}, "submit_selector": "...", "url": "...", "reason": "..."}]}]}
Include exactly one step per resource, in the order given.`

// DefaultPlan is one step per resource, each a single extract action.
func DefaultPlan(resources []string) schemas.Plan {
	plan := schemas.Plan{Steps: make([]schemas.PlanStep, 0, len(resources))}
	for _, url := range resources {
		plan.Steps = append(plan.Steps, schemas.PlanStep{
			URL:     url,
			Actions: []schemas.ActionSpec{{Type: "extract", Reason: "default plan"}},
		})
	}
	return plan
}

// InitialPlan asks for an advisory plan. It makes at most one model call and
// falls back to DefaultPlan on any failure, including a plan whose step count
// does not match the resources.
func (o *Oracle) InitialPlan(ctx context.Context, task string, resources []string) schemas.Plan {
	user := fmt.Sprintf("Task: %s\nResources:\n- %s", task, strings.Join(resources, "\n- "))
	raw, err := o.ask(ctx, schemas.TierPowerful, planSystemPrompt, user, true)
	if err != nil {
		o.fallback("initial_plan", err)
		return DefaultPlan(resources)
	}

	plan, err := llmutil.ParseJSONResponse[schemas.Plan](raw)
	if err != nil {
		o.fallback("initial_plan", err)
		return DefaultPlan(resources)
	}
	if len(plan.Steps) != len(resources) {
		o.fallback("initial_plan", fmt.Errorf("plan has %d steps for %d resources", len(plan.Steps), len(resources)))
		return DefaultPlan(resources)
	}
	return *plan
}

// -- Reuse Decision --

const reuseSystemPrompt = `You decide whether a cached result can answer a task without revisiting the resource.
Respond with a single JSON object: {"reuse": true|false, "reason": "..."}`

type reuseDecision struct {
	Reuse  *bool  `json:"reuse"`
	Reason string `json:"reason"`
}

// ShouldReuse reports whether cached data for a resource is still adequate for
// the task. Any failure answers false so the resource is fetched again.
func (o *Oracle) ShouldReuse(ctx context.Context, task, resource string, cached any) bool {
	cachedText, err := renderValue(cached)
	if err != nil {
		o.fallback("should_reuse", err, zap.String("url", resource))
		return false
	}

	user := fmt.Sprintf("Task: %s\nResource: %s\nCached result:\n%s", task, resource, llmutil.Truncate(cachedText, maxPromptContent))
	raw, err := o.ask(ctx, schemas.TierFast, reuseSystemPrompt, user, true)
	if err != nil {
		o.fallback("should_reuse", err, zap.String("url", resource))
		return false
	}

	decision, err := llmutil.ParseJSONResponse[reuseDecision](raw)
	if err != nil {
		o.fallback("should_reuse", err, zap.String("url", resource))
		return false
	}
	if decision.Reuse == nil {
		o.fallback("should_reuse", errors.New("response has no reuse field"), zap.String("url", resource))
		return false
	}
	o.logger.Debug("Reuse decision.", zap.String("url", resource), zap.Bool("reuse", *decision.Reuse), zap.String("reason", decision.Reason))
	return *decision.Reuse
}

// -- Next Action --

const nextActionSystemPrompt = `You control a browser for an autonomous agent, one action at a time.
Respond with a single JSON object describing the next action:
{"type": "navigate|click|fill_form|extract|no_action", "selector": "...", "form_data": {"<selector>": "<value>"}, "submit_selector": "...", "url": "...", "reason": "..."}
Use "no_action" when the current content already satisfies the task.`

// NextAction asks for the next step on a resource. Failures yield a no_action
// whose reason carries the failure.
func (o *Oracle) NextAction(ctx context.Context, task, resource, content string, sc schemas.StepContext) schemas.ActionSpec {
	scJSON, err := json.Marshal(sc)
	if err != nil {
		o.fallback("next_action", err, zap.String("url", resource))
		return noAction(err)
	}

	user := fmt.Sprintf("Task: %s\nResource: %s\nStep %d of %d\nContext: %s\nCurrent content:\n%s",
		task, resource, sc.Step+1, sc.MaxSteps, scJSON, llmutil.Truncate(content, maxPromptContent))
	raw, err := o.ask(ctx, schemas.TierFast, nextActionSystemPrompt, user, true)
	if err != nil {
		o.fallback("next_action", err, zap.String("url", resource))
		return noAction(err)
	}

	action, err := llmutil.ParseJSONResponse[schemas.ActionSpec](raw)
	if err != nil {
		o.fallback("next_action", err, zap.String("url", resource))
		return noAction(err)
	}
	return *action
}

func noAction(cause error) schemas.ActionSpec {
	return schemas.ActionSpec{Type: "no_action", Reason: fmt.Sprintf("oracle failure: %v", cause)}
}

// -- Cross-Resource Analysis --

const analysisSystemPrompt = `You analyse data collected from several web resources for a task.
Respond with a single JSON object:
{"source_analyses": [{"source": "...", "summary": "...", "key_points": ["..."], "stance": "..."}],
 "cross_source_analysis": {"common_themes": ["..."], "differences": ["..."], "overall_assessment": "..."},
 "executive_summary": "..."}`

// Analyze requests a cross-resource analysis. A missing client or failed call
// yields {"status": "error", "error": ...}; an unparsable answer is wrapped in
// a structured fallback that keeps the raw text as the executive summary.
func (o *Oracle) Analyze(ctx context.Context, task string, results []schemas.ResourceResult) map[string]any {
	var b strings.Builder
	for i, r := range results {
		source := r.URL
		if source == "" {
			source = fmt.Sprintf("Source %d", i+1)
		}
		fmt.Fprintf(&b, "Source: %s\nContent: %s\n\n", source, llmutil.Truncate(r.Data, maxAnalysisContent))
	}

	raw, err := o.ask(ctx, schemas.TierPowerful, analysisSystemPrompt, fmt.Sprintf("Task: %s\n\n%s", task, b.String()), true)
	if err != nil {
		o.fallback("analyze", err)
		return map[string]any{"status": "error", "error": err.Error()}
	}

	parsed, err := llmutil.ParseJSONResponse[map[string]any](raw)
	if err != nil {
		o.fallback("analyze", err)
		return map[string]any{
			"status": "success",
			"analysis": map[string]any{
				"source_analyses":       []any{},
				"cross_source_analysis": map[string]any{"overall_assessment": "Unable to determine"},
				"executive_summary":     llmutil.Truncate(strings.TrimSpace(raw), maxFallbackSummary),
			},
		}
	}
	return map[string]any{"status": "success", "analysis": *parsed}
}

// -- Summary --

const summarySystemPrompt = `You write a concise summary (at most three sentences) of what an autonomous browsing task accomplished.`

// FallbackSummary is the summary used when the model cannot provide one.
func FallbackSummary(visited int) string {
	return fmt.Sprintf("Task completed. Visited %d URLs.", visited)
}

// Summarize requests a short human-readable summary of the finished task.
func (o *Oracle) Summarize(ctx context.Context, task string, snapshot schemas.TaskSnapshot) string {
	shown := snapshot.VisitedURLs
	if len(shown) > 5 {
		shown = shown[:5]
	}
	user := fmt.Sprintf("Task: %s\nURLs visited: %s\nNumber of actions performed: %d",
		task, strings.Join(shown, ", "), snapshot.ActionsPerformed)

	raw, err := o.ask(ctx, schemas.TierPowerful, summarySystemPrompt, user, false)
	if err != nil {
		o.fallback("summarize", err)
		return FallbackSummary(len(snapshot.VisitedURLs))
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		o.fallback("summarize", errors.New("empty summary"))
		return FallbackSummary(len(snapshot.VisitedURLs))
	}
	return summary
}

// renderValue turns a cached value into prompt text.
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
