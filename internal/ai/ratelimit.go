package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// RateLimited paces calls to a provider with a token bucket.
type RateLimited struct {
	models.AIProvider
	limiter *rate.Limiter
}

// NewRateLimited wraps p so that at most rps calls per second start, with the
// given burst. A non-positive rps returns p unchanged.
func NewRateLimited(p models.AIProvider, rps float64, burst int) models.AIProvider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{AIProvider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Complete waits for a token, then calls the provider. Context errors pass
// through unchanged. A wait that would outlast the deadline is transient.
func (r *RateLimited) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &TransientProviderError{Provider: r.Name(), Err: fmt.Errorf("rate limit wait: %w", err)}
	}
	return r.AIProvider.Complete(ctx, prompt)
}
