package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/config"
)

func agentConfigWithKey(key string) config.AgentConfig {
	cfg := config.NewDefaultConfig().Agent()
	cfg.LLM.APIKey = key
	return cfg
}

func TestNewClient_NoCredential(t *testing.T) {
	_, err := NewClient(context.Background(), agentConfigWithKey(""), setupTestLogger(t))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestNewClient_BuildsBothTiers(t *testing.T) {
	fast := new(MockLLMClient)
	powerful := new(MockLLMClient)
	var built []string

	factories := map[config.LLMProvider]modelFactory{
		config.ProviderGemini: func(_ context.Context, mc config.LLMModelConfig, _ *zap.Logger) (schemas.LLMClient, error) {
			built = append(built, mc.Model)
			assert.Equal(t, "k", mc.APIKey)
			if mc.Model == "gemini-2.0-flash" {
				return fast, nil
			}
			return powerful, nil
		},
	}

	cfg := agentConfigWithKey("k")
	cfg.LLM.RequestsPerMinute = 0
	client, err := newClient(context.Background(), cfg, setupTestLogger(t), factories)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-2.5-pro"}, built)

	req := schemas.GenerationRequest{Tier: schemas.TierFast, UserPrompt: "p"}
	fast.On("Generate", mock.Anything, req).Return("ok", nil).Once()
	out, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	cfg := agentConfigWithKey("k")
	cfg.LLM.Provider = "openai"
	_, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}

func TestNewClient_PowerfulFailureClosesFast(t *testing.T) {
	fast := new(MockLLMClient)
	fast.On("Close").Return(nil).Once()

	factories := map[config.LLMProvider]modelFactory{
		config.ProviderGemini: func(_ context.Context, mc config.LLMModelConfig, _ *zap.Logger) (schemas.LLMClient, error) {
			if mc.Model == "gemini-2.0-flash" {
				return fast, nil
			}
			return nil, errors.New("bad model")
		},
	}

	_, err := newClient(context.Background(), agentConfigWithKey("k"), setupTestLogger(t), factories)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "powerful tier")
	fast.AssertExpectations(t)
}

func TestRateLimitedClient(t *testing.T) {
	t.Run("passes through when unlimited", func(t *testing.T) {
		inner := new(MockLLMClient)
		inner.On("Generate", mock.Anything, mock.Anything).Return("ok", nil).Twice()
		inner.On("Close").Return(nil).Once()

		c := NewRateLimitedClient(inner, 0)
		for i := 0; i < 2; i++ {
			out, err := c.Generate(context.Background(), schemas.GenerationRequest{})
			require.NoError(t, err)
			assert.Equal(t, "ok", out)
		}
		require.NoError(t, c.Close())
		inner.AssertExpectations(t)
	})

	t.Run("wait honours context", func(t *testing.T) {
		inner := new(MockLLMClient)
		inner.On("Generate", mock.Anything, mock.Anything).Return("ok", nil).Once()

		c := NewRateLimitedClient(inner, 1)
		_, err := c.Generate(context.Background(), schemas.GenerationRequest{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = c.Generate(ctx, schemas.GenerationRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter wait")
		inner.AssertNumberOfCalls(t, "Generate", 1)
	})
}
