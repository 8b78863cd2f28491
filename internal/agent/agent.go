// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/config"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Orchestrator runs tasks: for every resource it recalls, fetches, acts and
// saves, then aggregates the results. Tasks on one Orchestrator run one at a
// time because they share a single browser tab.
type Orchestrator struct {
	capability Capability
	oracle     Oracle
	memory     Memory
	dispatcher *Dispatcher
	contexts   *ContextStore
	cfg        config.AgentConfig
	logger     *zap.Logger
	metrics    *observability.Metrics

	runMu sync.Mutex

	initMu      sync.Mutex
	initialized bool
}

// NewOrchestrator wires an Orchestrator. metrics may be nil.
func NewOrchestrator(capability Capability, oracle Oracle, memory Memory, cfg config.AgentConfig, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	logger = logger.Named("agent")
	return &Orchestrator{
		capability: capability,
		oracle:     oracle,
		memory:     memory,
		dispatcher: NewDispatcher(logger, metrics),
		contexts:   NewContextStore(),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Contexts exposes the session contexts owned by this Orchestrator.
func (o *Orchestrator) Contexts() *ContextStore {
	return o.contexts
}

// ParseResources decodes the resource list of a task input. Anything other
// than a JSON array of strings is a validation error.
func ParseResources(raw []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("%w: parameters.urls is required", ErrValidation)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: parameters.urls must be a list of URLs", ErrValidation)
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, fmt.Errorf("%w: parameters.urls must be a list of URLs: %v", ErrValidation, err)
	}
	if urls == nil {
		urls = []string{}
	}
	for i, u := range urls {
		if strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("%w: parameters.urls[%d] is empty", ErrValidation, i)
		}
	}
	return urls, nil
}

// Run validates a task input and runs it. Invalid input yields an
// error-status result without touching the store.
func (o *Orchestrator) Run(ctx context.Context, in schemas.TaskInput) schemas.TaskResult {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	task := in.Description()
	if strings.TrimSpace(task) == "" {
		return o.reject(sessionID, fmt.Errorf("%w: instructions are required", ErrValidation))
	}
	resources, err := ParseResources(in.Parameters.URLs)
	if err != nil {
		return o.reject(sessionID, err)
	}

	maxSteps := o.cfg.MaxSteps
	if in.MaxSteps != nil {
		if *in.MaxSteps < 0 {
			return o.reject(sessionID, fmt.Errorf("%w: max_steps must not be negative", ErrValidation))
		}
		maxSteps = *in.MaxSteps
	}

	return o.RunTask(ctx, task, sessionID, resources, maxSteps)
}

func (o *Orchestrator) reject(sessionID string, err error) schemas.TaskResult {
	o.logger.Warn("Rejected task input.", zap.String("session_id", sessionID), zap.Error(err))
	o.metrics.TaskCompleted(string(schemas.TaskStatusError))
	return errorResult(sessionID, err.Error())
}

func errorResult(sessionID, message string) schemas.TaskResult {
	return schemas.TaskResult{
		Status:           schemas.TaskStatusError,
		Data:             []schemas.ResourceResult{},
		Analysis:         map[string]any{},
		ActionsPerformed: []schemas.ActionRecord{},
		Message:          message,
		SessionID:        sessionID,
	}
}

// RunTask processes resources in order and returns the aggregate result. It
// never panics; anything unexpected becomes an error-status result.
func (o *Orchestrator) RunTask(ctx context.Context, task, sessionID string, resources []string, maxSteps int) (result schemas.TaskResult) {
	logger := o.logger.With(zap.String("session_id", sessionID))

	o.runMu.Lock()
	defer o.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic during task execution.", zap.Any("panic_value", r), zap.Stack("stack"))
			result = errorResult(sessionID, fmt.Sprintf("unexpected error: %v", r))
		}
		o.metrics.TaskCompleted(string(result.Status))
	}()

	if resources == nil {
		return errorResult(sessionID, fmt.Errorf("%w: resources must be a list", ErrValidation).Error())
	}

	if err := o.ensureInit(ctx); err != nil {
		logger.Error("Capability initialization failed.", zap.Error(err))
		return errorResult(sessionID, err.Error())
	}

	logger.Info("Starting task.", zap.String("task", task), zap.Int("resources", len(resources)), zap.Int("max_steps", maxSteps))

	sc := o.contexts.Get(sessionID)
	sc.SetTask(task)

	plan := o.oracle.InitialPlan(ctx, task, resources)

	result = schemas.TaskResult{
		Status:           schemas.TaskStatusSuccess,
		Data:             make([]schemas.ResourceResult, 0, len(resources)),
		Analysis:         map[string]any{},
		ActionsPerformed: []schemas.ActionRecord{},
		SessionID:        sessionID,
		Plan:             &plan,
	}

	for _, url := range resources {
		if err := ctx.Err(); err != nil {
			logger.Warn("Task interrupted.", zap.Error(err))
			result.Status = schemas.TaskStatusError
			result.Message = fmt.Sprintf("task interrupted: %v", err)
			break
		}
		res := o.processResource(ctx, sc, sessionID, task, url, maxSteps)
		result.Data = append(result.Data, res)
		result.ActionsPerformed = append(result.ActionsPerformed, res.Actions...)
	}

	if o.wantsAnalysis(task) {
		if analysis := o.oracle.Analyze(ctx, task, result.Data); analysis != nil {
			result.Analysis = analysis
		}
	}

	result.Summary = o.oracle.Summarize(ctx, task, schemas.TaskSnapshot{
		VisitedURLs:      sc.Visited(),
		ActionsPerformed: len(result.ActionsPerformed),
		Results:          result.Data,
	})

	if err := o.memory.SaveTaskResult(ctx, sessionID, task, resources, result); err != nil {
		logger.Warn("Failed to save task history.", zap.Error(err))
	}

	logger.Info("Task finished.", zap.String("status", string(result.Status)), zap.Int("actions", len(result.ActionsPerformed)))
	return result
}

// ensureInit initializes the capability once. A failed attempt is retried on the next task.
func (o *Orchestrator) ensureInit(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()
	if o.initialized {
		return nil
	}
	if err := o.capability.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	o.initialized = true
	return nil
}

func (o *Orchestrator) wantsAnalysis(task string) bool {
	lower := strings.ToLower(task)
	for _, kw := range o.cfg.AnalysisKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Close releases the capability if it was initialized.
func (o *Orchestrator) Close() error {
	o.initMu.Lock()
	defer o.initMu.Unlock()
	if !o.initialized {
		return nil
	}
	o.initialized = false
	if err := o.capability.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
