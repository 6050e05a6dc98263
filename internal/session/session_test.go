package session

import (
	"errors"
	"testing"
	"time"
)

func newTestCalendar(t *testing.T, at time.Time) *Calendar {
	t.Helper()
	cal, err := NewCalendar(FixedClock{Time: at}, map[string]string{
		"NIFTY50":   "NSE",
		"BANKNIFTY": "NSE",
		"DOWJONES":  "US",
	})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return cal
}

func istTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("loading IST: %v", err)
	}
	// 2024-06-05 is a Wednesday.
	return time.Date(2024, 6, 5, hour, min, 0, 0, ist)
}

func TestNSESessionHours(t *testing.T) {
	cases := []struct {
		hour, min int
		open      bool
	}{
		{9, 14, false},
		{9, 15, true},
		{12, 0, true},
		{15, 29, true},
		{15, 30, false},
		{17, 0, false},
	}
	for _, tc := range cases {
		at := istTime(t, tc.hour, tc.min)
		cal := newTestCalendar(t, at)
		open, err := cal.IsOpen("NIFTY50")
		if err != nil {
			t.Fatalf("%02d:%02d: %v", tc.hour, tc.min, err)
		}
		if open != tc.open {
			t.Errorf("NSE at %02d:%02d IST: open=%v, want %v", tc.hour, tc.min, open, tc.open)
		}
	}
}

func TestWeekendClosed(t *testing.T) {
	ist, _ := time.LoadLocation("Asia/Kolkata")
	// 2024-06-08 is a Saturday.
	saturday := time.Date(2024, 6, 8, 11, 0, 0, 0, ist)
	cal := newTestCalendar(t, saturday)
	open, err := cal.IsOpen("NIFTY50")
	if err != nil {
		t.Fatal(err)
	}
	if open {
		t.Error("NSE should be closed on Saturday")
	}
}

func TestUSSessionSeparateSchedule(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// Wednesday 10:00 ET: US open, NSE long closed.
	at := time.Date(2024, 6, 5, 10, 0, 0, 0, et)
	cal := newTestCalendar(t, at)

	usOpen, err := cal.IsOpen("DOWJONES")
	if err != nil {
		t.Fatal(err)
	}
	if !usOpen {
		t.Error("US session should be open at 10:00 ET Wednesday")
	}
	nseOpen, err := cal.IsOpen("NIFTY50")
	if err != nil {
		t.Fatal(err)
	}
	if nseOpen {
		t.Error("NSE should be closed at 10:00 ET (19:30 IST)")
	}
}

func TestUnknownSymbolYieldsError(t *testing.T) {
	cal := newTestCalendar(t, istTime(t, 12, 0))
	_, err := cal.IsOpen("FTSE100")
	var unknown ErrUnknownVenue
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want ErrUnknownVenue", err)
	}
	if unknown.Symbol != "FTSE100" {
		t.Errorf("error carries symbol %q, want FTSE100", unknown.Symbol)
	}
}

func TestUnknownVenueRejectedAtConstruction(t *testing.T) {
	_, err := NewCalendar(SystemClock{}, map[string]string{"NIFTY50": "LSE"})
	if err == nil {
		t.Error("mapping to an undefined venue should fail at construction")
	}
}
