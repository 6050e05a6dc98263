package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	signals := store.NewMemoryStore()
	registry := prometheus.NewRegistry()
	monitoring.New(registry)

	server := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0},
		signals,
		events.NewBus(),
		registry,
		zerolog.Nop(),
	)
	return server, signals
}

func seedSignal(t *testing.T, signals *store.MemoryStore, id, symbol string) {
	t.Helper()
	now := time.Now()
	_, err := signals.UpsertSignal(context.Background(), models.Signal{
		ID:        id,
		Symbol:    symbol,
		Timeframe: models.Timeframe5m,
		Timestamp: now,
		Action:    models.ActionBuy,
		Status:    models.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(4 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	server.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestActiveSignalsEndpoint(t *testing.T) {
	server, signals := newTestServer(t)
	seedSignal(t, signals, "a", "NIFTY50")
	seedSignal(t, signals, "b", "DOWJONES")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/active", nil)
	server.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Count   int             `json:"count"`
			Signals []models.Signal `json:"signals"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !body.Success || body.Data.Count != 2 {
		t.Errorf("count = %d, want 2", body.Data.Count)
	}
}

func TestActiveSignalsBySymbol(t *testing.T) {
	server, signals := newTestServer(t)
	seedSignal(t, signals, "a", "NIFTY50")
	seedSignal(t, signals, "b", "DOWJONES")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/active/nifty50", nil)
	server.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Count   int             `json:"count"`
			Signals []models.Signal `json:"signals"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Data.Count != 1 || body.Data.Signals[0].Symbol != "NIFTY50" {
		t.Errorf("got %d signals for NIFTY50, want exactly 1", body.Data.Count)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("/api/test") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("/api/test") {
		t.Error("fourth request inside the window should be rejected")
	}
	if !limiter.Allow("/api/other") {
		t.Error("a different key must have its own budget")
	}
}
