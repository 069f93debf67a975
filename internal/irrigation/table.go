package irrigation

import "fmt"

// AddBasic adds a recurring local schedule. It fails with no side effect if
// the zone is not enabled, a parameter is out of range, or the table is full.
func (e *Engine) AddBasic(zone int, dayMask uint8, hour, minute, durationMin int) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addScheduleLocked(KindBasic, zone, dayMask, hour, minute, durationMin, 0)
}

// AddAI adds a server-pushed schedule. expiresAt is a Unix time after which
// the entry is removed by the next scheduling pass; zero means never.
func (e *Engine) AddAI(zone int, dayMask uint8, hour, minute, durationMin int, expiresAt int64) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addScheduleLocked(KindAI, zone, dayMask, hour, minute, durationMin, expiresAt)
}

func (e *Engine) addScheduleLocked(kind ScheduleKind, zone int, dayMask uint8, hour, minute, durationMin int, expiresAt int64) (uint32, error) {
	if err := e.checkZone(zone); err != nil {
		return 0, err
	}
	if dayMask == 0 || dayMask > AllDays {
		return 0, fmt.Errorf("%w: day mask %#x", ErrInvalidSchedule, dayMask)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: time %02d:%02d", ErrInvalidSchedule, hour, minute)
	}
	if err := e.checkDuration(durationMin); err != nil {
		return 0, err
	}
	if expiresAt < 0 {
		return 0, fmt.Errorf("%w: negative expiry", ErrInvalidSchedule)
	}

	slot := -1
	for i := range e.schedules {
		if !e.schedules[i].used {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, ErrTableFull
	}

	var created int64
	if now, ok := e.clock.NowUTC(); ok {
		created = now.Unix()
	}
	id := e.allocIDLocked()
	e.schedules[slot] = scheduleSlot{
		used: true,
		entry: Schedule{
			ID:          id,
			Zone:        zone,
			DayMask:     dayMask,
			StartHour:   hour,
			StartMinute: minute,
			DurationMin: durationMin,
			Enabled:     true,
			Kind:        kind,
			CreatedAt:   created,
			ExpiresAt:   expiresAt,
		},
	}
	e.revision++
	e.logger.Debug("schedule added", "schedule_id", id, "zone", zone, "kind", kind.String(),
		"time", fmt.Sprintf("%02d:%02d", hour, minute), "duration_min", durationMin)
	return id, nil
}

// allocIDLocked hands out the next id. After the counter wraps it skips
// zero and any id still held by a live entry.
func (e *Engine) allocIDLocked() uint32 {
	for {
		id := e.nextID
		e.nextID++
		if e.nextID == 0 {
			e.nextID = 1
		}
		if id != 0 && e.findScheduleLocked(id) < 0 {
			return id
		}
	}
}

func (e *Engine) findScheduleLocked(id uint32) int {
	if id == 0 {
		return -1
	}
	for i := range e.schedules {
		if e.schedules[i].used && e.schedules[i].entry.ID == id {
			return i
		}
	}
	return -1
}

// RemoveSchedule deletes an entry. A run it already started keeps going.
func (e *Engine) RemoveSchedule(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeScheduleLocked(id)
}

func (e *Engine) removeScheduleLocked(id uint32) error {
	i := e.findScheduleLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: id %d", ErrScheduleNotFound, id)
	}
	e.schedules[i] = scheduleSlot{}
	e.revision++
	return nil
}

// EnableSchedule sets the enabled flag of an entry.
func (e *Engine) EnableSchedule(id uint32, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enableScheduleLocked(id, enabled)
}

func (e *Engine) enableScheduleLocked(id uint32, enabled bool) error {
	i := e.findScheduleLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: id %d", ErrScheduleNotFound, id)
	}
	if e.schedules[i].entry.Enabled != enabled {
		e.schedules[i].entry.Enabled = enabled
		e.revision++
	}
	return nil
}

// ClearAI removes every AI entry and returns how many were removed. Basic
// entries are untouched.
func (e *Engine) ClearAI() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearKindLocked(KindAI)
}

// ClearAll empties the schedule table. The id allocator is not reset.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearKindLocked(KindBasic)
	e.clearKindLocked(KindAI)
}

func (e *Engine) clearKindLocked(kind ScheduleKind) int {
	n := 0
	for i := range e.schedules {
		if e.schedules[i].used && e.schedules[i].entry.Kind == kind {
			e.schedules[i] = scheduleSlot{}
			n++
		}
	}
	if n > 0 {
		e.revision++
	}
	return n
}

// Schedules returns a copy of every live entry in slot order.
func (e *Engine) Schedules() []Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedulesLocked()
}

func (e *Engine) schedulesLocked() []Schedule {
	out := make([]Schedule, 0, MaxSchedules)
	for i := range e.schedules {
		if e.schedules[i].used {
			out = append(out, e.schedules[i].entry)
		}
	}
	return out
}

// Schedule returns one entry by id.
func (e *Engine) Schedule(id uint32) (Schedule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.findScheduleLocked(id)
	if i < 0 {
		return Schedule{}, false
	}
	return e.schedules[i].entry, true
}

// ScheduleCounts returns the number of live entries per kind.
func (e *Engine) ScheduleCounts() ScheduleCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countsLocked()
}

func (e *Engine) countsLocked() ScheduleCounts {
	var c ScheduleCounts
	for i := range e.schedules {
		if !e.schedules[i].used {
			continue
		}
		switch e.schedules[i].entry.Kind {
		case KindBasic:
			c.Basic++
		case KindAI:
			c.AI++
		}
		c.Total++
	}
	return c
}
