package schemas

import (
	"context"
)

// ModelTier picks between the quick model used inside the step loop and the
// stronger one used for planning, analysis and summaries.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tune one model call. Zero values defer to the model's
// configured defaults.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	// ForceJSONFormat asks the provider for an application/json response.
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is a single oracle prompt.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is what the oracle needs from a model provider.
type LLMClient interface {
	// Generate returns the text of the model's answer.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
