package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/agent"
	"github.com/xkilldash9x/rabbit-cli/internal/browser"
	"github.com/xkilldash9x/rabbit-cli/internal/config"
	"github.com/xkilldash9x/rabbit-cli/internal/llmclient"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
	"github.com/xkilldash9x/rabbit-cli/internal/oracle"
	"github.com/xkilldash9x/rabbit-cli/internal/store"
)

// Function variables for dependency injection in tests.
var (
	openStore = func(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (*store.Store, error) {
		return store.Open(ctx, cfg, logger)
	}
	newLLMClient = func(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
		return llmclient.NewClient(ctx, cfg, logger)
	}
	newCapability = func(cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics) agent.Capability {
		return browser.NewController(browser.NewChromeDriver(cfg, logger), cfg, logger, metrics)
	}
)

// components holds what the task commands share: one store, one oracle and
// one metrics registry. Each orchestrator gets its own browser.
type components struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	memory  *store.Store
	llm     schemas.LLMClient
	oracle  *oracle.Oracle
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	memory, err := openStore(ctx, cfg.Memory(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session memory: %w", err)
	}
	c.memory = memory

	llm, err := newLLMClient(ctx, cfg.Agent(), logger)
	switch {
	case errors.Is(err, llmclient.ErrNoCredential):
		logger.Warn("No LLM credential configured; running with oracle fallbacks.")
	case err != nil:
		_ = memory.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	default:
		c.llm = llm
	}

	c.oracle = oracle.New(c.llm, oracle.Config{CallTimeout: cfg.Agent().OracleTimeout}, logger, c.metrics)
	return c, nil
}

func (c *components) newOrchestrator() *agent.Orchestrator {
	capability := newCapability(c.cfg.Browser(), c.logger, c.metrics)
	return agent.NewOrchestrator(capability, c.oracle, c.memory, c.cfg.Agent(), c.logger, c.metrics)
}

// serveMetrics exposes the metrics endpoint for the lifetime of ctx when enabled.
func (c *components) serveMetrics(ctx context.Context) {
	mc := c.cfg.Metrics()
	if !mc.Enabled {
		return
	}
	go func() {
		if err := c.metrics.Serve(ctx, mc.Addr, c.logger); err != nil {
			c.logger.Error("Metrics endpoint failed.", zap.Error(err))
		}
	}()
}

// Shutdown releases the shared components.
func (c *components) Shutdown() {
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			c.logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}
	if err := c.memory.Close(); err != nil {
		c.logger.Warn("Error closing session memory.", zap.Error(err))
	}
}
