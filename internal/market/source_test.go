package market

import (
	"context"
	"testing"
	"time"

	"index-signal-engine/internal/models"
)

func candleAt(ts time.Time, close float64) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      close, High: close + 1, Low: close - 1, Close: close,
		Volume: 100,
		Symbol: "NIFTY50", Timeframe: models.Timeframe5m,
	}
}

func TestNormalizeSortsAscending(t *testing.T) {
	base := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	in := []models.Candle{
		candleAt(base.Add(10*time.Minute), 102),
		candleAt(base, 100),
		candleAt(base.Add(5*time.Minute), 101),
	}
	out := Normalize(in)
	if len(out) != 3 {
		t.Fatalf("got %d candles, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i].Timestamp.After(out[i-1].Timestamp) {
			t.Errorf("candle %d not strictly after %d", i, i-1)
		}
	}
}

func TestNormalizeDuplicateLastWins(t *testing.T) {
	base := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	in := []models.Candle{
		candleAt(base, 100),
		candleAt(base.Add(5*time.Minute), 101),
		candleAt(base.Add(5*time.Minute), 999), // revision of the same bar
	}
	out := Normalize(in)
	if len(out) != 2 {
		t.Fatalf("got %d candles, want 2", len(out))
	}
	if out[1].Close != 999 {
		t.Errorf("duplicate resolution kept close %v, want 999 (last occurrence)", out[1].Close)
	}
}

func TestNormalizeDropsMalformed(t *testing.T) {
	base := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	bad := models.Candle{Timestamp: base, Open: 100, High: 90, Low: 110, Close: 100}
	in := []models.Candle{bad, candleAt(base.Add(5*time.Minute), 101)}
	out := Normalize(in)
	if len(out) != 1 {
		t.Fatalf("got %d candles, want 1 (malformed dropped)", len(out))
	}
}

func TestMockSourceDeterministicAndOrdered(t *testing.T) {
	now := time.Date(2024, 6, 5, 11, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a, err := NewMockSourceAt(clock).Fetch(context.Background(), "NIFTY50", models.Timeframe5m, 100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewMockSourceAt(clock).Fetch(context.Background(), "NIFTY50", models.Timeframe5m, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 100 {
		t.Fatalf("got %d candles, want 100", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fresh sources diverge at candle %d", i)
		}
		if !a[i].IsValid() {
			t.Errorf("candle %d is malformed: %+v", i, a[i])
		}
		if i > 0 && !a[i].Timestamp.After(a[i-1].Timestamp) {
			t.Errorf("candle %d not ascending", i)
		}
	}
}

func TestMockSourceSymbolsDiverge(t *testing.T) {
	now := time.Date(2024, 6, 5, 11, 0, 0, 0, time.UTC)
	src := NewMockSourceAt(func() time.Time { return now })

	nifty, _ := src.Fetch(context.Background(), "NIFTY50", models.Timeframe5m, 50)
	dow, _ := src.Fetch(context.Background(), "DOWJONES", models.Timeframe5m, 50)
	if nifty[49].Close == dow[49].Close {
		t.Error("distinct symbols should walk distinct paths")
	}
}

func TestClassifyTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	err := Classify(ctx, ctx.Err())
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("got %T, want *FetchError", err)
	}
	if !fe.Timeout() || fe.Kind != models.ErrFetchTimeout {
		t.Errorf("deadline expiry classified as %s, want FETCH_TIMEOUT", fe.Kind)
	}
}
