// Package market defines the candle supply side: the CandleSource contract,
// window normalization, and decorators for caching and rate limiting.
package market

import (
	"context"
	"fmt"
	"sort"

	"index-signal-engine/internal/models"
)

// CandleSource supplies OHLCV windows. Implementations must return candles in
// ascending timestamp order; Normalize tolerates unsorted and duplicated
// input from less disciplined upstreams.
type CandleSource interface {
	// Fetch returns up to limit most recent candles for (symbol, timeframe).
	Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error)
}

// FetchError wraps an upstream failure with its classification. Timeouts and
// plain failures drive different cooldown accounting in the generator.
type FetchError struct {
	Kind models.ErrorKind // FETCH_FAILED or FETCH_TIMEOUT
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("candle fetch: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the wrapped failure was a deadline expiry.
func (e *FetchError) Timeout() bool { return e.Kind == models.ErrFetchTimeout }

// Classify wraps err as a FetchError, mapping context deadline expiry to
// FETCH_TIMEOUT.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	kind := models.ErrFetchFailed
	if ctx.Err() == context.DeadlineExceeded {
		kind = models.ErrFetchTimeout
	}
	return &FetchError{Kind: kind, Err: err}
}

// Normalize sorts candles ascending, drops malformed entries, and collapses
// duplicate timestamps keeping the last occurrence.
func Normalize(candles []models.Candle) []models.Candle {
	if len(candles) == 0 {
		return nil
	}
	cleaned := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.IsValid() {
			cleaned = append(cleaned, c)
		}
	}
	// Stable sort keeps arrival order among equal timestamps so the last
	// occurrence survives deduplication.
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Timestamp.Before(cleaned[j].Timestamp)
	})

	deduped := cleaned[:0]
	for _, c := range cleaned {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(c.Timestamp) {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}
