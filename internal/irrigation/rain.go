package irrigation

import (
	"fmt"
	"time"
)

// SetRainDelay suppresses schedule firing for the given number of minutes
// from now and returns the end of the delay. Running zones and manual starts
// are not affected.
func (e *Engine) SetRainDelay(minutes int) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setRainDelayLocked(minutes)
}

func (e *Engine) setRainDelayLocked(minutes int) (time.Time, error) {
	if minutes <= 0 || minutes > MaxRainDelayMinutes {
		return time.Time{}, fmt.Errorf("%w: %d minutes", ErrInvalidRainDelay, minutes)
	}
	now, ok := e.clock.NowUTC()
	if !ok {
		return time.Time{}, ErrClockUnavailable
	}
	end := now.Add(time.Duration(minutes) * time.Minute)
	e.rainDelayEnd = end.Unix()
	e.revision++
	e.logger.Info("rain delay set", "minutes", minutes, "until", end)
	return time.Unix(e.rainDelayEnd, 0).UTC(), nil
}

// SetRainDelayUntil suppresses schedule firing until end.
func (e *Engine) SetRainDelayUntil(end time.Time) error {
	if end.IsZero() || end.Unix() <= 0 {
		return fmt.Errorf("%w: zero end time", ErrInvalidRainDelay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rainDelayEnd = end.Unix()
	e.revision++
	return nil
}

// ClearRainDelay removes any rain delay. It reports whether one was set.
func (e *Engine) ClearRainDelay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearRainDelayLocked()
}

func (e *Engine) clearRainDelayLocked() bool {
	if e.rainDelayEnd == 0 {
		return false
	}
	e.rainDelayEnd = 0
	e.revision++
	e.logger.Info("rain delay cleared")
	return true
}

// RainDelay reports whether a rain delay is in force and when it ends.
func (e *Engine) RainDelay() (bool, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rainDelayLocked()
}

func (e *Engine) rainDelayLocked() (bool, time.Time) {
	if e.rainDelayEnd == 0 {
		return false, time.Time{}
	}
	end := time.Unix(e.rainDelayEnd, 0).UTC()
	now, ok := e.clock.NowUTC()
	if !ok {
		// Without a trusted clock the delay is assumed to still hold.
		return true, end
	}
	return now.Before(end), end
}

// CancelZoneForRain stops a running zone and marks it rain-cancelled.
func (e *Engine) CancelZoneForRain(zone int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelForRainLocked(zone)
}

func (e *Engine) cancelForRainLocked(zone int) error {
	if err := e.stopZoneLocked(zone, ReasonRainCancelled, StateRainCancelled); err != nil {
		return err
	}
	e.logger.Info("zone cancelled for rain", "zone", zone)
	return nil
}
