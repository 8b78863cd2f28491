package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/config"
)

// ErrNoCredential is returned when no API key is configured. Callers run
// without an oracle in that case.
var ErrNoCredential = errors.New("no LLM credential configured")

// modelFactory builds a client for one resolved model configuration.
type modelFactory func(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error)

func geminiFactory(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	return NewGeminiClient(ctx, cfg, logger)
}

// NewClient creates the tier-routed, rate-limited client described by cfg.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	return newClient(ctx, cfg, logger, map[config.LLMProvider]modelFactory{
		config.ProviderGemini: geminiFactory,
	})
}

func newClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger, factories map[config.LLMProvider]modelFactory) (schemas.LLMClient, error) {
	router := cfg.LLM
	fastCfg := router.ModelConfig(router.DefaultFastModel)
	powerfulCfg := router.ModelConfig(router.DefaultPowerfulModel)

	if fastCfg.APIKey == "" || powerfulCfg.APIKey == "" {
		return nil, ErrNoCredential
	}

	build := func(mc config.LLMModelConfig) (schemas.LLMClient, error) {
		factory, ok := factories[mc.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", mc.Provider, config.ProviderGemini)
		}
		return factory(ctx, mc, logger)
	}

	fast, err := build(fastCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build fast tier client: %w", err)
	}
	powerful, err := build(powerfulCfg)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("failed to build powerful tier client: %w", err)
	}

	routed, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedClient(routed, router.RequestsPerMinute), nil
}
