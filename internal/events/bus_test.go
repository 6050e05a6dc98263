package events

import (
	"sync"
	"testing"
	"time"

	"index-signal-engine/internal/models"
)

func TestSubscribeReceivesMatchingKind(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	wg.Add(1)

	var got models.SignalEvent
	bus.Subscribe(models.EventCreated, func(e models.SignalEvent) {
		got = e
		wg.Done()
	})

	bus.PublishCreated(models.Signal{ID: "sig-1", Symbol: "NIFTY50"})
	waitOrFail(t, &wg)

	if got.Kind != models.EventCreated || got.Signal.ID != "sig-1" {
		t.Errorf("got %+v, want CREATED for sig-1", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("publish must stamp the event time")
	}
}

func TestSubscriberKindFiltering(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var kinds []models.EventKind
	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(models.EventExpired, func(e models.SignalEvent) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
		wg.Done()
	})

	bus.PublishCreated(models.Signal{ID: "a"})
	bus.PublishTerminated(models.Signal{ID: "b", Status: models.StatusExpired})
	waitOrFail(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != models.EventExpired {
		t.Errorf("expired subscriber saw %v, want [EXPIRED]", kinds)
	}
}

func TestPublishTerminatedKindMapping(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	got := map[string]models.EventKind{}
	bus.SubscribeAll(func(e models.SignalEvent) {
		mu.Lock()
		got[e.Signal.ID] = e.Kind
		mu.Unlock()
		wg.Done()
	})

	bus.PublishTerminated(models.Signal{ID: "hit", Status: models.StatusHitTarget})
	bus.PublishTerminated(models.Signal{ID: "old", Status: models.StatusExpired})
	waitOrFail(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if got["hit"] != models.EventTerminated {
		t.Errorf("HIT_TARGET published as %s, want TERMINATED", got["hit"])
	}
	if got["old"] != models.EventExpired {
		t.Errorf("EXPIRED published as %s, want EXPIRED", got["old"])
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribers")
	}
}
