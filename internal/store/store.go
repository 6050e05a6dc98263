// Package store persists signals and their lifecycle transitions. Two
// implementations exist: a PostgreSQL store for production and an in-memory
// store for development and tests. Both enforce the same contract:
// idempotent upsert on (symbol, timeframe, timestamp) and linearizable,
// terminal-only status transitions.
package store

import (
	"context"
	"errors"

	"index-signal-engine/internal/models"
)

// ErrNotActive is returned by UpdateStatus when the signal is missing or has
// already reached a terminal state. Transitions never overwrite one another.
var ErrNotActive = errors.New("signal is not active")

// ErrNotTerminal rejects an UpdateStatus call whose target state is ACTIVE.
var ErrNotTerminal = errors.New("target status is not terminal")

// SignalStore is the persistence contract consumed by the generator and the
// tracker.
type SignalStore interface {
	// UpsertSignal stores the signal. A second call with the same
	// (symbol, timeframe, timestamp) is a no-op and reports inserted=false.
	UpsertSignal(ctx context.Context, signal models.Signal) (inserted bool, err error)

	// FindActive returns every ACTIVE signal.
	FindActive(ctx context.Context) ([]models.Signal, error)

	// FindActiveBySlot returns the ACTIVE signal for one (symbol, timeframe),
	// or nil when none exists.
	FindActiveBySlot(ctx context.Context, symbol string, timeframe models.Timeframe) (*models.Signal, error)

	// UpdateStatus moves an ACTIVE signal to a terminal state, attaching its
	// realized performance. Only the first transition for a signal succeeds.
	UpdateStatus(ctx context.Context, id string, status models.SignalStatus, performance models.SignalPerformance) error

	Close()
}
