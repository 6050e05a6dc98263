package market

import (
	"context"

	"golang.org/x/time/rate"

	"index-signal-engine/internal/models"
)

// RateLimitedSource throttles fetches against an upstream request budget.
// Waiting respects the caller's context, so a fetch timeout also bounds the
// time spent queued behind the limiter.
type RateLimitedSource struct {
	inner   CandleSource
	limiter *rate.Limiter
}

// NewRateLimitedSource allows requestsPerSecond sustained with the given
// burst. Non-positive inputs fall back to 5 rps / burst 10.
func NewRateLimitedSource(inner CandleSource, requestsPerSecond float64, burst int) *RateLimitedSource {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimitedSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (s *RateLimitedSource) Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, Classify(ctx, err)
	}
	return s.inner.Fetch(ctx, symbol, timeframe, limit)
}
