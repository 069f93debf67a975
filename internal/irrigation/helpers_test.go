package irrigation

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// ─── Fake Clock ─────────────────────────────────────────────────────────────

// fakeClock moves wall and monotonic time together.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	mono  time.Duration
	valid bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now.UTC(), valid: true}
}

func (c *fakeClock) NowUTC() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, c.valid
}

func (c *fakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.mono += d
}

// Set jumps the wall clock to t; the monotonic clock advances by the same
// amount when t is later.
func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := t.Sub(c.now); d > 0 {
		c.mono += d
	}
	c.now = t.UTC()
}

func (c *fakeClock) SetValid(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = valid
}

// ─── Recording Sink ─────────────────────────────────────────────────────────

type recordingSink struct {
	mu          sync.Mutex
	transitions []Transition
}

func (s *recordingSink) OnZoneTransition(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
}

func (s *recordingSink) all() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]Transition, len(s.transitions))
	copy(cpy, s.transitions)
	return cpy
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = nil
}

// ─── Recording Logger ───────────────────────────────────────────────────────

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.warns {
		if w == msg {
			n++
		}
	}
	return n
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// monday0600 is Monday 2 June 2025, 06:00 UTC.
var monday0600 = time.Date(2025, time.June, 2, 6, 0, 0, 0, time.UTC)

func testIrrigationConfig() config.IrrigationConfig {
	return config.IrrigationConfig{
		ZoneCount:               16,
		MaxActiveZones:          2,
		MaxEnabledZones:         8,
		MaxZoneRunTime:          240,
		PumpSafety:              true,
		SchedulingEnabled:       true,
		TimezoneOffsetHalfHours: 0,
		DaylightSaving:          false,
	}
}

func setupEngine(t *testing.T, start time.Time) (*Engine, *fakeClock, *recordingSink) {
	t.Helper()
	clock := newFakeClock(start)
	sink := &recordingSink{}
	engine := NewEngine(NewSettings(testIrrigationConfig()), clock, sink, Options{
		ZoneCount:      16,
		MaxActiveZones: 2,
	})
	return engine, clock, sink
}

func activeZoneSet(t *testing.T, e *Engine) map[int]ActiveRun {
	t.Helper()
	out := make(map[int]ActiveRun)
	for _, run := range e.ActiveZones() {
		if _, dup := out[run.Zone]; dup {
			t.Fatalf("zone %d occupies two active slots", run.Zone)
		}
		out[run.Zone] = run
	}
	return out
}
