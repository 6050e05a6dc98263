package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"index-signal-engine/internal/models"
)

// MemoryStore keeps signals in process memory. It backs development runs
// without PostgreSQL and the test suites.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]models.Signal
	byDedup map[string]string // (symbol, timeframe, timestamp) -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]models.Signal),
		byDedup: make(map[string]string),
	}
}

func dedupKey(s models.Signal) string {
	return fmt.Sprintf("%s|%s|%d", s.Symbol, s.Timeframe, s.Timestamp.UnixNano())
}

func (m *MemoryStore) UpsertSignal(ctx context.Context, signal models.Signal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupKey(signal)
	if _, exists := m.byDedup[key]; exists {
		return false, nil
	}
	m.byDedup[key] = signal.ID
	m.byID[signal.ID] = signal
	return true, nil
}

func (m *MemoryStore) FindActive(ctx context.Context) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []models.Signal
	for _, s := range m.byID {
		if s.Status == models.StatusActive {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (m *MemoryStore) FindActiveBySlot(ctx context.Context, symbol string, timeframe models.Timeframe) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *models.Signal
	for id := range m.byID {
		s := m.byID[id]
		if s.Status != models.StatusActive || s.Symbol != symbol || s.Timeframe != timeframe {
			continue
		}
		if newest == nil || s.Timestamp.After(newest.Timestamp) {
			copied := s
			newest = &copied
		}
	}
	return newest, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.SignalStatus, performance models.SignalPerformance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.IsTerminal() {
		return ErrNotTerminal
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	signal, ok := m.byID[id]
	if !ok || signal.Status != models.StatusActive {
		return ErrNotActive
	}
	signal.Status = status
	signal.Performance = &performance
	m.byID[id] = signal
	return nil
}

func (m *MemoryStore) Close() {}
