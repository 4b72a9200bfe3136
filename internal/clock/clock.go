// Package clock owns the engine's simulated time: the current instant,
// the speed multiplier that maps wall-clock advances onto simulated-time
// advances, market-hours gating, and halt-schedule lookups.
package clock

import (
	"sync"
	"time"
)

// Multiplier is the number of simulated seconds that elapse per
// wall-clock second. Zero means paused.
type Multiplier int64

// Supported multipliers; SetMultiplier clamps to the nearest of these.
const (
	Paused   Multiplier = 0
	Realtime Multiplier = 1
	Minute   Multiplier = 60
	Hour     Multiplier = 3600
	Day      Multiplier = 86400
	Week     Multiplier = 604800
)

var supportedMultipliers = []Multiplier{Paused, Realtime, Minute, Hour, Day, Week}

// ClampMultiplier snaps an arbitrary requested multiplier to the nearest
// supported value. Per spec §4.1, no operation fails: unsupported values
// are clamped rather than rejected.
func ClampMultiplier(requested Multiplier) Multiplier {
	if requested <= 0 {
		return Paused
	}
	best := supportedMultipliers[0]
	bestDiff := int64(1) << 62
	for _, m := range supportedMultipliers {
		diff := int64(requested) - int64(m)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = m
		}
	}
	return best
}

// Halt describes a trading halt window, full (all symbols) or partial
// (only listed symbols).
type Halt struct {
	ID       string
	Start    time.Time
	End      time.Time
	Full     bool
	Symbols  map[string]bool // only consulted when !Full
	Reason   string
}

// Covers reports whether the halt gates trading of the given symbol.
func (h Halt) Covers(symbol string) bool {
	if h.Full {
		return true
	}
	return h.Symbols[symbol]
}

// HaltSchedule is a read-only, start-sorted list of halt windows. It is
// satisfied by internal/refdata's halt catalog; keeping it as an interface
// here avoids a dependency from clock -> refdata.
type HaltSchedule interface {
	// ActiveAt returns the halt in effect at t, if any.
	ActiveAt(t time.Time) (Halt, bool)
}

// Location is the single fixed reference timezone for the whole
// simulation (spec §9: implementers must fix one timezone). NYSE-like
// hours are evaluated in America/New_York, which observes DST; only the
// fallback used when zoneinfo is missing is a fixed, DST-naive -5h zone.
var Location = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// time/tzdata is not vendored in every minimal build environment;
		// fall back to a fixed -5h offset so the engine never fails to
		// start over a missing zoneinfo database.
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Clock owns current_instant and speed_multiplier and advances them on a
// tick loop driven by an external scheduler (internal/scheduler).
// Concurrency: all mutation goes through the single engine mutation lock
// (internal/engine); Clock itself additionally holds its own mutex so
// read-only queries (now(), IsMarketOpen) never block on that lock.
type Clock struct {
	mu         sync.RWMutex
	current    time.Time
	multiplier Multiplier
	paused     bool
	halts      HaltSchedule
	holidays   HolidayCalendar
}

// New creates a Clock starting at `start`, ticking at `multiplier`.
func New(start time.Time, multiplier Multiplier, halts HaltSchedule, holidays HolidayCalendar) *Clock {
	return &Clock{
		current:    start.In(Location),
		multiplier: ClampMultiplier(multiplier),
		halts:      halts,
		holidays:   holidays,
	}
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Multiplier returns the current speed multiplier.
func (c *Clock) Multiplier() Multiplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.multiplier
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// SetMultiplier changes the tick rate, clamped to the nearest supported
// value. Never fails.
func (c *Clock) SetMultiplier(requested Multiplier) Multiplier {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multiplier = ClampMultiplier(requested)
	return c.multiplier
}

// Pause halts advancement without losing the multiplier setting.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume un-pauses.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// AdvanceBy advances current_instant by multiplier*dtWall, unless paused.
// Returns the new instant. Monotonic: never moves current_instant
// backwards.
func (c *Clock) AdvanceBy(dtWall time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.multiplier == Paused || dtWall <= 0 {
		return c.current
	}
	simDelta := time.Duration(int64(dtWall) * int64(c.multiplier))
	c.current = c.current.Add(simDelta)
	return c.current
}

// SetInstant forces the simulated instant to t. Used by save/restore and
// by tests; never moves time backwards past a previously persisted
// instant in production use (callers are responsible for that
// invariant — the clock itself only enforces monotonicity against its own
// in-memory state).
func (c *Clock) SetInstant(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t = t.In(Location)
	if t.After(c.current) {
		c.current = t
	}
}

// IsMarketOpen reports whether the market is open at instant t: a weekday,
// not a holiday, and within [09:30, 16:00) local reference time — the
// close boundary is exclusive, so a query at exactly 16:00:00 reports
// closed.
func (c *Clock) IsMarketOpen(t time.Time) bool {
	t = t.In(Location)
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if c.holidays != nil && c.holidays.IsHoliday(t) {
		return false
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, Location)
	closeT := time.Date(t.Year(), t.Month(), t.Day(), 16, 0, 0, 0, Location)
	return !t.Before(open) && t.Before(closeT)
}

// ActiveHalt returns the halt in effect at t, if any.
func (c *Clock) ActiveHalt(t time.Time) (Halt, bool) {
	if c.halts == nil {
		return Halt{}, false
	}
	return c.halts.ActiveAt(t)
}

// CalendarDaysSince returns the number of whole calendar days between from
// and to in the fixed reference timezone (spec §9: calendar days, not
// 86,400-second slabs, to dodge DST/leap-second ambiguity).
func CalendarDaysSince(from, to time.Time) int {
	f := from.In(Location)
	t := to.In(Location)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, Location)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
	return int(td.Sub(fd).Hours() / 24)
}
