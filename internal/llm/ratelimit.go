package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedCompleter caps the request rate to the underlying Completer.
type RateLimitedCompleter struct {
	next    Completer
	limiter *rate.Limiter
}

// NewRateLimitedCompleter allows perSecond requests on average with bursts of
// up to burst. A non-positive perSecond disables limiting and returns next.
func NewRateLimitedCompleter(next Completer, perSecond float64, burst int) Completer {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedCompleter{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Complete waits for a token, then delegates. Waiting counts against ctx.
func (c *RateLimitedCompleter) Complete(ctx context.Context, prompt string, maxTokens int32, temperature float32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("Complete: waiting for rate limiter: %w", err)
	}
	return c.next.Complete(ctx, prompt, maxTokens, temperature)
}
