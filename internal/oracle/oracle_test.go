package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) Close() error { return nil }

func tierIs(tier schemas.ModelTier) any {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Tier == tier })
}

func newTestOracle(t *testing.T, client schemas.LLMClient) *Oracle {
	t.Helper()
	return New(client, Config{CallTimeout: time.Second}, zaptest.NewLogger(t), observability.NewMetrics())
}

func TestInitialPlan(t *testing.T) {
	resources := []string{"https://a", "https://b"}

	t.Run("unavailable oracle falls back without calls", func(t *testing.T) {
		o := newTestOracle(t, nil)
		plan := o.InitialPlan(context.Background(), "task", resources)

		require.Len(t, plan.Steps, 2)
		for i, step := range plan.Steps {
			assert.Equal(t, resources[i], step.URL)
			require.Len(t, step.Actions, 1)
			assert.Equal(t, "extract", step.Actions[0].Type)
		}
		assert.False(t, o.Available())
	})

	t.Run("parses model plan", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, tierIs(schemas.TierPowerful)).
			Return("```json\n{\"steps\":[{\"url\":\"https://a\",\"actions\":[{\"type\":\"click\",\"selector\":\"#go\"}]}]}\n```", nil).Once()

		plan := newTestOracle(t, client).InitialPlan(context.Background(), "task", []string{"https://a"})
		require.Len(t, plan.Steps, 1)
		assert.Equal(t, "click", plan.Steps[0].Actions[0].Type)
		client.AssertExpectations(t)
	})

	t.Run("json that is not a matching plan falls back", func(t *testing.T) {
		responses := map[string]string{
			"unrelated object": `{"answer":"sure"}`,
			"no steps":         `{"steps":[]}`,
			"too few steps":    `{"steps":[{"url":"https://a","actions":[{"type":"click","selector":"#go"}]}]}`,
		}
		for name, response := range responses {
			t.Run(name, func(t *testing.T) {
				client := new(mockLLMClient)
				client.On("Generate", mock.Anything, mock.Anything).Return(response, nil).Once()

				plan := newTestOracle(t, client).InitialPlan(context.Background(), "task", resources)
				assert.Equal(t, DefaultPlan(resources), plan)
				client.AssertNumberOfCalls(t, "Generate", 1)
			})
		}
	})

	t.Run("malformed response falls back after one call", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("no plan today", nil).Once()

		o := newTestOracle(t, client)
		plan := o.InitialPlan(context.Background(), "task", resources)
		assert.Equal(t, DefaultPlan(resources), plan)
		client.AssertNumberOfCalls(t, "Generate", 1)

		series, err := testutil.GatherAndCount(o.metrics.Registry(), "rabbit_oracle_fallbacks_total")
		require.NoError(t, err)
		assert.Equal(t, 1, series)
	})
}

func TestShouldReuse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		expected bool
	}{
		{"explicit true", `{"reuse": true, "reason": "fresh"}`, nil, true},
		{"explicit false", `{"reuse": false}`, nil, false},
		{"wrapped in prose", `I think {"reuse": true} is right`, nil, true},
		{"malformed", `{"reuse": tru`, nil, false},
		{"missing field", `{"reason": "dunno"}`, nil, false},
		{"call error", "", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockLLMClient)
			client.On("Generate", mock.Anything, tierIs(schemas.TierFast)).Return(tt.response, tt.err).Once()

			got := newTestOracle(t, client).ShouldReuse(context.Background(), "task", "https://a", map[string]any{"k": "v"})
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unavailable oracle never reuses", func(t *testing.T) {
		assert.False(t, newTestOracle(t, nil).ShouldReuse(context.Background(), "task", "https://a", "cached"))
	})
}

func TestNextAction(t *testing.T) {
	sc := schemas.StepContext{Step: 0, MaxSteps: 3, VisitedURLs: []string{"https://a"}}

	t.Run("parses action", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
			return req.Tier == schemas.TierFast && req.Options.ForceJSONFormat
		})).Return(`{"type":"fill_form","form_data":{"#q":"go"},"submit_selector":"#s","reason":"search"}`, nil).Once()

		action := newTestOracle(t, client).NextAction(context.Background(), "task", "https://a", "content", sc)
		assert.Equal(t, "fill_form", action.Type)
		assert.Equal(t, map[string]string{"#q": "go"}, action.FormData)
		assert.Equal(t, "#s", action.SubmitSelector)
	})

	t.Run("failure yields no_action with reason", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()

		action := newTestOracle(t, client).NextAction(context.Background(), "task", "https://a", "content", sc)
		assert.Equal(t, "no_action", action.Type)
		assert.Contains(t, action.Reason, "quota exceeded")
	})

	t.Run("unavailable yields no_action", func(t *testing.T) {
		action := newTestOracle(t, nil).NextAction(context.Background(), "task", "https://a", "content", sc)
		assert.Equal(t, "no_action", action.Type)
		assert.Contains(t, action.Reason, "oracle unavailable")
	})
}

func TestAnalyze(t *testing.T) {
	results := []schemas.ResourceResult{{URL: "https://a", Data: "good"}, {URL: "https://b", Data: "bad"}}

	t.Run("success", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, tierIs(schemas.TierPowerful)).Return(`{"executive_summary":"mixed"}`, nil).Once()

		out := newTestOracle(t, client).Analyze(context.Background(), "sentiment", results)
		assert.Equal(t, "success", out["status"])
		analysis, ok := out["analysis"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "mixed", analysis["executive_summary"])
	})

	t.Run("unparsable response keeps raw text", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("Overall the tone is positive.", nil).Once()

		out := newTestOracle(t, client).Analyze(context.Background(), "sentiment", results)
		analysis := out["analysis"].(map[string]any)
		assert.Equal(t, "Overall the tone is positive.", analysis["executive_summary"])
	})

	t.Run("unavailable yields error object", func(t *testing.T) {
		out := newTestOracle(t, nil).Analyze(context.Background(), "sentiment", results)
		assert.Equal(t, "error", out["status"])
		assert.Contains(t, out["error"], "oracle unavailable")
	})
}

func TestSummarize(t *testing.T) {
	snapshot := schemas.TaskSnapshot{VisitedURLs: []string{"https://a", "https://b"}, ActionsPerformed: 4}

	t.Run("model summary is trimmed", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
			return !req.Options.ForceJSONFormat
		})).Return("  Visited two pages.\n", nil).Once()

		assert.Equal(t, "Visited two pages.", newTestOracle(t, client).Summarize(context.Background(), "task", snapshot))
	})

	t.Run("fallback text", func(t *testing.T) {
		assert.Equal(t, "Task completed. Visited 2 URLs.", newTestOracle(t, nil).Summarize(context.Background(), "task", snapshot))
	})

	t.Run("empty response falls back", func(t *testing.T) {
		client := new(mockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("   ", nil).Once()
		assert.Equal(t, FallbackSummary(2), newTestOracle(t, client).Summarize(context.Background(), "task", snapshot))
	})
}

func TestFallbackLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	client := new(mockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom")).Once()

	o := New(client, Config{}, zap.New(core), nil)
	o.ShouldReuse(context.Background(), "task", "https://a", "cached")

	entries := logs.FilterMessage("Oracle call failed, using fallback.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "should_reuse", entries[0].ContextMap()["operation"])
}
