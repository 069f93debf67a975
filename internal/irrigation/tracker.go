package irrigation

import (
	"fmt"
	"time"
)

// StartOutcome says how a start request was satisfied.
type StartOutcome uint8

const (
	// OutcomeStarted means the zone took a free slot.
	OutcomeStarted StartOutcome = iota + 1
	// OutcomeExtended means the zone was already running and got a new timer.
	OutcomeExtended
	// OutcomePreempted means another zone was stopped to make room.
	OutcomePreempted
)

func (o StartOutcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeExtended:
		return "extended"
	case OutcomePreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o StartOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// StartResult describes an admitted start.
type StartResult struct {
	Zone    int          `json:"zone"`
	Outcome StartOutcome `json:"outcome"`

	// PreemptedZone is the zone stopped to make room, or 0.
	PreemptedZone int    `json:"preempted_zone,omitempty"`
	Message       string `json:"message"`
}

// StartManual runs a zone for the given minutes. Rain delay does not apply
// to manual starts. A zone that is already running is extended instead.
func (e *Engine) StartManual(zone, minutes int) (StartResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked(zone, minutes, OriginManual, 0, KindNone)
}

// ExtendRun gives a running zone a new duration and restarts its timer.
func (e *Engine) ExtendRun(zone, minutes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkZone(zone); err != nil {
		return err
	}
	if err := e.checkDuration(minutes); err != nil {
		return err
	}
	i := e.findActiveLocked(zone)
	if i < 0 {
		return zoneErr(zone, ErrZoneNotActive)
	}
	a := e.active[i]
	e.extendLocked(i, minutes, a.origin, a.scheduleID, a.kind)
	return nil
}

func (e *Engine) startLocked(zone, minutes int, origin Origin, scheduleID uint32, kind ScheduleKind) (StartResult, error) {
	if err := e.checkZone(zone); err != nil {
		return StartResult{}, err
	}
	if err := e.checkDuration(minutes); err != nil {
		return StartResult{}, err
	}

	if i := e.findActiveLocked(zone); i >= 0 {
		e.extendLocked(i, minutes, origin, scheduleID, kind)
		return StartResult{
			Zone:    zone,
			Outcome: OutcomeExtended,
			Message: fmt.Sprintf("Zone %d extended to %d minutes", zone, minutes),
		}, nil
	}

	result := StartResult{
		Zone:    zone,
		Outcome: OutcomeStarted,
		Message: fmt.Sprintf("Zone %d started for %d minutes", zone, minutes),
	}
	slot := e.freeActiveLocked()
	if slot < 0 {
		c, freed, err := e.resolveConflictLocked(zone)
		if err != nil {
			e.logger.Error("conflict unresolved", "zone", zone, "error", err)
			return StartResult{}, err
		}
		slot = freed
		result.Outcome = OutcomePreempted
		result.PreemptedZone = c.PreemptedZone
		result.Message = c.Message
	}

	e.active[slot] = activeSlot{
		used:        true,
		zone:        zone,
		state:       StateRunning,
		origin:      origin,
		kind:        kind,
		scheduleID:  scheduleID,
		startedAt:   e.clock.Monotonic(),
		duration:    time.Duration(minutes) * time.Minute,
		durationMin: minutes,
	}
	delete(e.notes, zone)
	e.emit(Transition{
		Zone:        zone,
		On:          true,
		DurationMin: minutes,
		Kind:        kind,
		ScheduleID:  scheduleID,
		Origin:      origin,
		Reason:      ReasonStarted,
	})
	return result, nil
}

// extendLocked restarts the timer of slot i with a new duration. The run
// takes the provenance of the request that extended it.
func (e *Engine) extendLocked(i, minutes int, origin Origin, scheduleID uint32, kind ScheduleKind) {
	a := &e.active[i]
	a.startedAt = e.clock.Monotonic()
	a.duration = time.Duration(minutes) * time.Minute
	a.durationMin = minutes
	a.origin = origin
	a.scheduleID = scheduleID
	a.kind = kind
	e.emit(Transition{
		Zone:        a.zone,
		On:          true,
		DurationMin: minutes,
		Kind:        kind,
		ScheduleID:  scheduleID,
		Origin:      origin,
		Reason:      ReasonExtended,
	})
}

// StopZone stops a running zone.
func (e *Engine) StopZone(zone int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopZoneLocked(zone, ReasonStopped, StateIdle)
}

func (e *Engine) stopZoneLocked(zone int, reason Reason, note ZoneState) error {
	i := e.findActiveLocked(zone)
	if i < 0 {
		return zoneErr(zone, ErrZoneNotActive)
	}
	e.stopLocked(i, reason, note)
	return nil
}

// stopLocked frees slot i and emits the stop transition. note is the
// status annotation left for the zone after the run.
func (e *Engine) stopLocked(i int, reason Reason, note ZoneState) {
	a := e.active[i]
	elapsed := e.clock.Monotonic() - a.startedAt
	e.active[i] = activeSlot{}

	if note == StateIdle {
		delete(e.notes, a.zone)
	} else {
		e.notes[a.zone] = note
	}
	e.emit(Transition{
		Zone:        a.zone,
		On:          false,
		DurationMin: a.durationMin,
		Kind:        a.kind,
		ScheduleID:  a.scheduleID,
		Origin:      a.origin,
		Reason:      reason,
		Elapsed:     elapsed,
	})
}

// StopAll stops every running zone with the given reason and returns the
// zones stopped.
func (e *Engine) StopAll(reason Reason) []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stopped []int
	for i := range e.active {
		if e.active[i].used {
			stopped = append(stopped, e.active[i].zone)
			e.stopLocked(i, reason, StateIdle)
		}
	}
	return stopped
}

// ProcessActiveZones stops every zone whose planned duration has elapsed on
// the monotonic clock and returns the zones it stopped.
func (e *Engine) ProcessActiveZones() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processActiveLocked()
}

func (e *Engine) processActiveLocked() []int {
	now := e.clock.Monotonic()
	var done []int
	for i := range e.active {
		a := e.active[i]
		if a.used && now-a.startedAt >= a.duration {
			done = append(done, a.zone)
			e.logger.Info("zone run completed", "zone", a.zone, "duration_min", a.durationMin)
			e.stopLocked(i, ReasonCompleted, StateCompleted)
		}
	}
	return done
}

// ActiveZones returns the occupied slots with their remaining time.
func (e *Engine) ActiveZones() []ActiveRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeRunsLocked()
}

func (e *Engine) activeRunsLocked() []ActiveRun {
	now := e.clock.Monotonic()
	runs := make([]ActiveRun, 0, len(e.active))
	for i := range e.active {
		a := e.active[i]
		if !a.used {
			continue
		}
		runs = append(runs, ActiveRun{
			Zone:             a.zone,
			State:            a.state,
			Origin:           a.origin,
			IsScheduled:      a.origin == OriginScheduled,
			ScheduleID:       a.scheduleID,
			Kind:             a.kind,
			DurationMin:      a.durationMin,
			RemainingSeconds: int(remaining(a, now) / time.Second),
		})
	}
	return runs
}

// IsZoneActive reports whether zone is running.
func (e *Engine) IsZoneActive(zone int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findActiveLocked(zone) >= 0
}

func (e *Engine) findActiveLocked(zone int) int {
	for i := range e.active {
		if e.active[i].used && e.active[i].zone == zone {
			return i
		}
	}
	return -1
}

func (e *Engine) freeActiveLocked() int {
	for i := range e.active {
		if !e.active[i].used {
			return i
		}
	}
	return -1
}

func (e *Engine) activeCountLocked() int {
	n := 0
	for i := range e.active {
		if e.active[i].used {
			n++
		}
	}
	return n
}
