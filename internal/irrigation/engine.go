package irrigation

import (
	"fmt"
	"sync"
	"time"
)

// DefaultZoneCount is the number of valve outputs assumed when Options
// leaves ZoneCount unset.
const DefaultZoneCount = 16

// Options tune an Engine at construction.
type Options struct {
	// ZoneCount is the number of physical zones (1..ZoneCount are valid).
	ZoneCount int

	// MaxActiveZones is the hardware concurrency limit.
	MaxActiveZones int

	Logger Logger
}

// scheduleSlot is one slot of the fixed schedule table.
type scheduleSlot struct {
	used  bool
	entry Schedule

	// fired/firedMinute record the local minute (Unix/60) of the last fire,
	// so repeated polls inside one minute fire the entry at most once.
	fired       bool
	firedMinute int64
}

// activeSlot is one slot of the active-zone tracker.
type activeSlot struct {
	used        bool
	zone        int
	state       ZoneState
	origin      Origin
	kind        ScheduleKind
	scheduleID  uint32
	startedAt   time.Duration // monotonic
	duration    time.Duration
	durationMin int
}

// Engine owns the schedule table and the active-zone tracker and runs the
// scheduling passes over them.
//
// Every entry point takes the engine mutex, so the poll loop, MQTT handlers
// and HTTP handlers may call in from their own goroutines. Transitions are
// delivered to the sink while the mutex is held.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg       Configuration
	clock     Clock
	sink      TransitionSink
	logger    Logger
	zoneCount int

	schedules [MaxSchedules]scheduleSlot
	nextID    uint32

	active []activeSlot

	// rainDelayEnd is a Unix time; zero means no rain delay.
	rainDelayEnd int64

	// notes holds the terminal annotation of the last run per zone.
	notes map[int]ZoneState

	// revision increments on every change that should be persisted.
	revision uint64
}

// NewEngine creates an engine with an empty schedule table.
//
// Parameters:
//   - cfg: live limits and time-zone settings
//   - clock: wall-clock and monotonic time source
//   - sink: receives every zone transition (may be nil)
//   - opts: zone count, concurrency limit and logger
func NewEngine(cfg Configuration, clock Clock, sink TransitionSink, opts Options) *Engine {
	if opts.ZoneCount <= 0 {
		opts.ZoneCount = DefaultZoneCount
	}
	if opts.MaxActiveZones <= 0 {
		opts.MaxActiveZones = DefaultMaxActiveZones
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if sink == nil {
		sink = TransitionSinkFunc(func(Transition) {})
	}
	return &Engine{
		cfg:       cfg,
		clock:     clock,
		sink:      sink,
		logger:    opts.Logger,
		zoneCount: opts.ZoneCount,
		nextID:    1,
		active:    make([]activeSlot, opts.MaxActiveZones),
		notes:     make(map[int]ZoneState),
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	e.mu.Lock()
	e.logger = l
	e.mu.Unlock()
}

// ZoneCount returns the number of physical zones.
func (e *Engine) ZoneCount() int {
	return e.zoneCount
}

// MaxActiveZones returns the concurrency limit.
func (e *Engine) MaxActiveZones() int {
	return len(e.active)
}

// Configuration returns the settings the engine reads its limits from.
func (e *Engine) Configuration() Configuration {
	return e.cfg
}

// Revision returns a counter that changes whenever schedules, the rain
// delay, or settings change. Hosts compare it to decide when to persist.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// ─── Validation ─────────────────────────────────────────────────────

func (e *Engine) checkZone(zone int) error {
	if zone < 1 || zone > e.zoneCount {
		return zoneErr(zone, ErrInvalidZone)
	}
	if !e.cfg.IsZoneEnabled(zone) {
		return zoneErr(zone, ErrZoneDisabled)
	}
	return nil
}

func (e *Engine) checkDuration(minutes int) error {
	limit := e.cfg.MaxRunMinutes()
	if minutes < 1 || minutes > limit {
		return fmt.Errorf("%w: %d minutes, allowed 1..%d", ErrInvalidDuration, minutes, limit)
	}
	return nil
}

// ─── Transitions ────────────────────────────────────────────────────

func (e *Engine) wallNow() time.Time {
	now, ok := e.clock.NowUTC()
	if !ok {
		return time.Time{}
	}
	return now
}

func (e *Engine) emit(t Transition) {
	t.ActiveCount = e.activeCountLocked()
	t.At = e.wallNow()
	e.sink.OnZoneTransition(t)
}

// ─── Scheduling pass ────────────────────────────────────────────────

// FireResult is the outcome of one schedule fire event.
type FireResult struct {
	ScheduleID uint32
	Zone       int
	Start      StartResult
	Err        error
}

// PassReport summarises one CheckAndExecuteSchedules call.
type PassReport struct {
	// Skipped is set when the pass did nothing because the clock is untrusted.
	Skipped    bool
	SkipReason string

	LocalTime time.Time
	Expired   []uint32
	Fired     []FireResult

	// Suppressed counts matches held back by rain delay or disabled scheduling.
	Suppressed     int
	SuppressReason string
}

// CheckAndExecuteSchedules runs one scheduling pass: AI expiry, gating, then
// exact-minute matching in slot order. Each match is admitted through the
// conflict resolver as a scheduled run.
func (e *Engine) CheckAndExecuteSchedules() PassReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkSchedulesLocked()
}

func (e *Engine) checkSchedulesLocked() PassReport {
	var report PassReport

	now, ok := e.clock.NowUTC()
	if !ok {
		report.Skipped = true
		report.SkipReason = "clock unavailable"
		e.logger.Debug("scheduling pass skipped", "reason", report.SkipReason)
		return report
	}
	local := LocalTime(now, e.cfg.TimezoneOffsetHalfHours(), e.cfg.DaylightSavingActive())
	report.LocalTime = local
	nowUnix := now.Unix()

	for i := range e.schedules {
		s := &e.schedules[i]
		if s.used && s.entry.Kind == KindAI && s.entry.Expired(nowUnix) {
			report.Expired = append(report.Expired, s.entry.ID)
			e.logger.Info("AI schedule expired", "schedule_id", s.entry.ID, "zone", s.entry.Zone)
			*s = scheduleSlot{}
			e.revision++
		}
	}

	switch {
	case e.rainDelayEnd > 0 && nowUnix < e.rainDelayEnd:
		report.SuppressReason = "rain delay"
	case !e.cfg.SchedulingEnabled():
		report.SuppressReason = "scheduling disabled"
	}
	if e.rainDelayEnd > 0 && nowUnix >= e.rainDelayEnd {
		e.logger.Info("rain delay elapsed")
		e.rainDelayEnd = 0
		e.revision++
	}

	minute := local.Unix() / 60
	for i := range e.schedules {
		s := &e.schedules[i]
		if !s.used || !s.entry.Enabled || !matchesMinute(s.entry, local) {
			continue
		}
		if s.fired && s.firedMinute == minute {
			continue
		}
		if report.SuppressReason != "" {
			report.Suppressed++
			continue
		}

		s.fired = true
		s.firedMinute = minute
		entry := s.entry
		res, err := e.startLocked(entry.Zone, entry.DurationMin, OriginScheduled, entry.ID, entry.Kind)
		if err != nil {
			e.logger.Warn("scheduled start rejected",
				"schedule_id", entry.ID, "zone", entry.Zone, "error", err)
		} else {
			e.logger.Info("schedule fired",
				"schedule_id", entry.ID, "zone", entry.Zone, "kind", entry.Kind.String(),
				"duration_min", entry.DurationMin, "outcome", res.Outcome.String())
		}
		report.Fired = append(report.Fired, FireResult{
			ScheduleID: entry.ID,
			Zone:       entry.Zone,
			Start:      res,
			Err:        err,
		})
	}

	if report.Suppressed > 0 {
		e.logger.Debug("schedule fires suppressed", "count", report.Suppressed, "reason", report.SuppressReason)
	}
	return report
}

func matchesMinute(s Schedule, local time.Time) bool {
	return s.FiresOn(local.Weekday()) && s.StartHour == local.Hour() && s.StartMinute == local.Minute()
}

// TickReport is the combined result of one Tick.
type TickReport struct {
	Completed []int
	Pass      PassReport
}

// Tick advances active-zone timers and then runs a scheduling pass. Hosts
// call it from their poll loop.
func (e *Engine) Tick() TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	completed := e.processActiveLocked()
	return TickReport{Completed: completed, Pass: e.checkSchedulesLocked()}
}

// ─── Settings ───────────────────────────────────────────────────────

// UpdateSettings applies a settings change and stops any running zone that
// the new limits no longer enable.
func (e *Engine) UpdateSettings(u SettingsUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateSettingsLocked(u)
}

// SetSchedulingEnabled turns automatic schedule firing on or off.
func (e *Engine) SetSchedulingEnabled(enabled bool) error {
	return e.UpdateSettings(SettingsUpdate{SchedulingEnabled: &enabled})
}

func (e *Engine) updateSettingsLocked(u SettingsUpdate) error {
	updater, ok := e.cfg.(SettingsUpdater)
	if !ok {
		return ErrSettingsReadOnly
	}
	if err := updater.Apply(u); err != nil {
		return err
	}
	e.revision++

	for i := range e.active {
		a := e.active[i]
		if a.used && !e.cfg.IsZoneEnabled(a.zone) {
			e.logger.Warn("stopping zone no longer enabled", "zone", a.zone)
			e.stopLocked(i, ReasonDisabled, StateIdle)
		}
	}
	return nil
}
