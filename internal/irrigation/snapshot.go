package irrigation

import "fmt"

// Snapshot is the persistent part of the engine state. Active runs are not
// included; a restarted controller starts with every valve closed.
type Snapshot struct {
	Schedules         []Schedule `json:"schedules"`
	NextID            uint32     `json:"next_id"`
	RainDelayEnd      int64      `json:"rain_delay_end"`
	SchedulingEnabled bool       `json:"scheduling_enabled"`
}

// Snapshot copies the schedule table, id allocator and rain delay.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Schedules:         e.schedulesLocked(),
		NextID:            e.nextID,
		RainDelayEnd:      e.rainDelayEnd,
		SchedulingEnabled: e.cfg.SchedulingEnabled(),
	}
}

// Restore replaces the schedule table with a saved snapshot. AI entries
// already expired are dropped when the clock is trusted. Ids are kept, and
// the allocator resumes past the highest restored id.
func (e *Engine) Restore(s Snapshot) error {
	if len(s.Schedules) > MaxSchedules {
		return fmt.Errorf("%w: snapshot holds %d entries, capacity %d", ErrTableFull, len(s.Schedules), MaxSchedules)
	}
	seen := make(map[uint32]bool, len(s.Schedules))
	for _, entry := range s.Schedules {
		if entry.ID == 0 || seen[entry.ID] {
			return fmt.Errorf("%w: duplicate or zero id %d in snapshot", ErrInvalidSchedule, entry.ID)
		}
		seen[entry.ID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now, clockOK := e.clock.NowUTC()
	e.schedules = [MaxSchedules]scheduleSlot{}
	slot := 0
	var maxID uint32
	for _, entry := range s.Schedules {
		if clockOK && entry.Kind == KindAI && entry.Expired(now.Unix()) {
			e.logger.Info("dropping expired AI schedule on restore", "schedule_id", entry.ID)
			continue
		}
		if !e.cfg.IsZoneEnabled(entry.Zone) {
			e.logger.Warn("restored schedule targets a disabled zone", "schedule_id", entry.ID, "zone", entry.Zone)
		}
		e.schedules[slot] = scheduleSlot{used: true, entry: entry}
		slot++
		maxID = max(maxID, entry.ID)
	}

	e.nextID = max(s.NextID, maxID+1)
	if e.nextID == 0 {
		e.nextID = 1
	}
	e.rainDelayEnd = s.RainDelayEnd
	if updater, ok := e.cfg.(SettingsUpdater); ok {
		enabled := s.SchedulingEnabled
		if err := updater.Apply(SettingsUpdate{SchedulingEnabled: &enabled}); err != nil {
			return err
		}
	}
	e.revision++
	e.logger.Info("schedule table restored", "schedules", slot, "next_id", e.nextID)
	return nil
}
