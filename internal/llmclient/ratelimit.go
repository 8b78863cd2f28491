package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// RateLimitedClient throttles calls to an underlying client.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

var _ schemas.LLMClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient allows requestsPerMinute calls per minute with a burst of one.
// A non-positive rate disables throttling.
func NewRateLimitedClient(next schemas.LLMClient, requestsPerMinute int) *RateLimitedClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return c.next.Generate(ctx, req)
}

func (c *RateLimitedClient) Close() error {
	return c.next.Close()
}
