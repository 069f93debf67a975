package irrigation

import "time"

// ZoneStatus is the reported state of one zone.
type ZoneStatus struct {
	ID               int       `json:"id"`
	State            ZoneState `json:"status"`
	RemainingSeconds int       `json:"timeRemaining"`
}

// NextEvent is the next schedule due to fire later today.
type NextEvent struct {
	ScheduleID  uint32       `json:"schedule_id"`
	Zone        int          `json:"zone"`
	StartHour   int          `json:"start_hour"`
	StartMinute int          `json:"start_minute"`
	DurationMin int          `json:"duration"`
	Kind        ScheduleKind `json:"type"`

	// At is the UTC instant the entry is due.
	At time.Time `json:"at"`
}

// DeviceStatus is the full state reported to the outside.
type DeviceStatus struct {
	Timestamp         int64          `json:"timestamp"`
	ClockValid        bool           `json:"clock_valid"`
	SchedulingEnabled bool           `json:"scheduleEnabled"`
	RainDelayActive   bool           `json:"rainDelayActive"`
	RainDelayEnd      int64          `json:"rainDelayEnd"`
	Zones             []ZoneStatus   `json:"zones"`
	ActiveZones       []ActiveRun    `json:"active_zones"`
	Schedules         []Schedule     `json:"schedules"`
	Counts            ScheduleCounts `json:"schedule_counts"`
	NextEvent         *NextEvent     `json:"next_event,omitempty"`
}

// Status returns a consistent snapshot of the whole engine.
//
// Zones 1..MaxEnabledZones are listed. An idle zone reports rain_delayed
// while a rain delay holds, then the note of its last run if that run was
// rain-cancelled, then scheduled if an entry fires for it later today, then
// completed, else idle.
func (e *Engine) Status() DeviceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	now, ok := e.clock.NowUTC()
	st := DeviceStatus{
		ClockValid:        ok,
		SchedulingEnabled: e.cfg.SchedulingEnabled(),
		ActiveZones:       e.activeRunsLocked(),
		Schedules:         e.schedulesLocked(),
		Counts:            e.countsLocked(),
	}
	if ok {
		st.Timestamp = now.Unix()
	}
	rainActive, _ := e.rainDelayLocked()
	st.RainDelayActive = rainActive
	st.RainDelayEnd = e.rainDelayEnd

	var pending map[int]bool
	if next, upcoming := e.upcomingLocked(); len(upcoming) > 0 {
		st.NextEvent = &next
		pending = make(map[int]bool, len(upcoming))
		for _, z := range upcoming {
			pending[z] = true
		}
	}

	running := make(map[int]int, len(st.ActiveZones))
	for _, a := range st.ActiveZones {
		running[a.Zone] = a.RemainingSeconds
	}

	n := min(e.cfg.MaxEnabledZones(), e.zoneCount)
	st.Zones = make([]ZoneStatus, 0, n)
	for z := 1; z <= n; z++ {
		zs := ZoneStatus{ID: z, State: StateIdle}
		note, hasNote := e.notes[z]
		switch left, isRunning := running[z]; {
		case isRunning:
			zs.State = StateRunning
			zs.RemainingSeconds = left
		case rainActive:
			zs.State = StateRainDelayed
		case hasNote && note == StateRainCancelled:
			zs.State = StateRainCancelled
		case pending[z]:
			zs.State = StateScheduled
		case hasNote:
			zs.State = note
		}
		st.Zones = append(st.Zones, zs)
	}
	return st
}

// NextEvent returns the next enabled entry due later today in local time.
func (e *Engine) NextEvent() (NextEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, zones := e.upcomingLocked()
	return next, len(zones) > 0
}

// upcomingLocked finds the earliest enabled entry due after the current
// local minute today, and every zone that has such an entry.
func (e *Engine) upcomingLocked() (NextEvent, []int) {
	now, ok := e.clock.NowUTC()
	if !ok {
		return NextEvent{}, nil
	}
	halfHours, dst := e.cfg.TimezoneOffsetHalfHours(), e.cfg.DaylightSavingActive()
	local := LocalTime(now, halfHours, dst)
	current := local.Hour()*60 + local.Minute()

	var (
		next  NextEvent
		best  = -1
		zones []int
	)
	for i := range e.schedules {
		s := e.schedules[i]
		if !s.used || !s.entry.Enabled || !s.entry.FiresOn(local.Weekday()) {
			continue
		}
		at := s.entry.StartHour*60 + s.entry.StartMinute
		if at <= current {
			continue
		}
		zones = append(zones, s.entry.Zone)
		if best >= 0 && at >= best {
			continue
		}
		best = at
		dueLocal := time.Date(local.Year(), local.Month(), local.Day(), s.entry.StartHour, s.entry.StartMinute, 0, 0, time.UTC)
		next = NextEvent{
			ScheduleID:  s.entry.ID,
			Zone:        s.entry.Zone,
			StartHour:   s.entry.StartHour,
			StartMinute: s.entry.StartMinute,
			DurationMin: s.entry.DurationMin,
			Kind:        s.entry.Kind,
			At:          dueLocal.Add(-UTCOffset(halfHours, dst)),
		}
	}
	return next, zones
}
