// Package session answers whether a venue's trading session is open. Market
// close detection in the tracker depends on it exclusively.
package session

import (
	"fmt"
	"time"
)

// Clock supplies the current time. The production clock is the wall clock;
// tests inject fixed or stepped clocks.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct{ Time time.Time }

func (c FixedClock) Now() time.Time { return c.Time }

// Schedule is one venue's weekday trading window in its local timezone.
type Schedule struct {
	Venue     string
	Location  *time.Location
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// Open reports whether the session is open at t. Weekends are closed; holiday
// calendars are out of scope.
func (s Schedule) Open(t time.Time) bool {
	local := t.In(s.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), s.OpenHour, s.OpenMin, 0, 0, s.Location)
	close := time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, s.CloseMin, 0, 0, s.Location)
	return !local.Before(open) && local.Before(close)
}

// ErrUnknownVenue marks a symbol with no session schedule. Callers must treat
// it as CLOCK_UNKNOWN and defer close/expire decisions.
type ErrUnknownVenue struct{ Symbol string }

func (e ErrUnknownVenue) Error() string {
	return fmt.Sprintf("no session schedule for symbol %s", e.Symbol)
}

// Calendar maps symbols to venue schedules.
type Calendar struct {
	schedules map[string]Schedule // keyed by venue
	venues    map[string]string   // symbol -> venue
	clock     Clock
}

// NewCalendar builds a calendar from a symbol-to-venue map. Unknown venue
// names in the map are rejected at construction so misconfiguration fails at
// startup rather than at close time.
func NewCalendar(clock Clock, symbolVenues map[string]string) (*Calendar, error) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("loading IST timezone: %w", err)
	}
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}

	schedules := map[string]Schedule{
		"NSE": {Venue: "NSE", Location: ist, OpenHour: 9, OpenMin: 15, CloseHour: 15, CloseMin: 30},
		"US":  {Venue: "US", Location: et, OpenHour: 9, OpenMin: 30, CloseHour: 16, CloseMin: 0},
	}
	venues := make(map[string]string, len(symbolVenues))
	for symbol, venue := range symbolVenues {
		if _, ok := schedules[venue]; !ok {
			return nil, fmt.Errorf("symbol %s mapped to unknown venue %q", symbol, venue)
		}
		venues[symbol] = venue
	}
	return &Calendar{schedules: schedules, venues: venues, clock: clock}, nil
}

// IsOpen reports whether the symbol's venue is currently in session.
// ErrUnknownVenue is returned for unmapped symbols.
func (c *Calendar) IsOpen(symbol string) (bool, error) {
	return c.IsOpenAt(symbol, c.clock.Now())
}

// IsOpenAt is IsOpen against an explicit instant.
func (c *Calendar) IsOpenAt(symbol string, t time.Time) (bool, error) {
	venue, ok := c.venues[symbol]
	if !ok {
		return false, ErrUnknownVenue{Symbol: symbol}
	}
	return c.schedules[venue].Open(t), nil
}

// Now exposes the calendar's clock.
func (c *Calendar) Now() time.Time { return c.clock.Now() }
