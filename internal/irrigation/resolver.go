package irrigation

import (
	"fmt"
	"time"
)

// Conflict describes a run stopped to admit another.
type Conflict struct {
	PreemptedZone int
	NewZone       int
	Message       string
}

// remaining is the unexpired part of a run, clamped at zero.
func remaining(a activeSlot, now time.Duration) time.Duration {
	left := a.duration - (now - a.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// leastRemaining returns the occupied slot with the smallest remaining time,
// the first one found on ties, or -1 when no slot is occupied.
func leastRemaining(slots []activeSlot, now time.Duration) int {
	victim := -1
	var best time.Duration
	for i := range slots {
		if !slots[i].used {
			continue
		}
		left := remaining(slots[i], now)
		if victim < 0 || left < best {
			victim = i
			best = left
		}
	}
	return victim
}

// resolveConflictLocked stops the run closest to completion so newZone can
// take its slot. It returns the freed slot index.
func (e *Engine) resolveConflictLocked(newZone int) (Conflict, int, error) {
	victim := leastRemaining(e.active, e.clock.Monotonic())
	if victim < 0 {
		return Conflict{}, -1, zoneErr(newZone, ErrConflictUnresolved)
	}

	stopped := e.active[victim].zone
	c := Conflict{
		PreemptedZone: stopped,
		NewZone:       newZone,
		Message:       fmt.Sprintf("Stopped zone %d (least remaining time) to start zone %d", stopped, newZone),
	}
	e.logger.Info("zone preempted", "stopped_zone", stopped, "new_zone", newZone)
	e.stopLocked(victim, ReasonPreempted, StateIdle)
	return c, victim, nil
}
