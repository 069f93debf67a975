package irrigation

import (
	"errors"
	"fmt"
)

// Domain errors for the irrigation engine.
//
// Every rejection is returned synchronously; nothing is retried by the engine.
//
//	if errors.Is(err, irrigation.ErrZoneDisabled) {
//	    // configuration fix needed
//	}
var (
	// ErrInvalidZone is returned for zone numbers outside 1..zone count.
	ErrInvalidZone = errors.New("irrigation: invalid zone")

	// ErrZoneDisabled is returned when a zone is beyond the enabled-zone limit.
	ErrZoneDisabled = errors.New("irrigation: zone not enabled")

	// ErrInvalidDuration is returned for run lengths outside 1..max run time.
	ErrInvalidDuration = errors.New("irrigation: invalid duration")

	// ErrInvalidSchedule is returned for bad day masks or times of day.
	ErrInvalidSchedule = errors.New("irrigation: invalid schedule")

	// ErrTableFull is returned when no schedule slot is free.
	ErrTableFull = errors.New("irrigation: schedule table full")

	// ErrScheduleNotFound is returned for unknown schedule ids.
	ErrScheduleNotFound = errors.New("irrigation: schedule not found")

	// ErrZoneNotActive is returned when stopping a zone that is not running.
	ErrZoneNotActive = errors.New("irrigation: zone not active")

	// ErrConflictUnresolved is returned when every active slot is taken and
	// none can be preempted. The engine state is left unchanged.
	ErrConflictUnresolved = errors.New("irrigation: conflict unresolved")

	// ErrClockUnavailable is returned when an operation needs wall-clock time
	// and the time source is not trusted.
	ErrClockUnavailable = errors.New("irrigation: clock unavailable")

	// ErrInvalidRainDelay is returned for non-positive rain delays.
	ErrInvalidRainDelay = errors.New("irrigation: invalid rain delay")

	// ErrInvalidSetting is returned when a settings update is out of range.
	ErrInvalidSetting = errors.New("irrigation: invalid setting")

	// ErrSettingsReadOnly is returned when the engine configuration cannot be updated.
	ErrSettingsReadOnly = errors.New("irrigation: settings are read-only")

	// ErrUnknownCommand is returned by Execute for unrecognised command types.
	ErrUnknownCommand = errors.New("irrigation: unknown command")
)

// ZoneError ties a rejection to the zone it concerns.
type ZoneError struct {
	Zone int
	Err  error
}

// Error returns the caller-facing message for the rejection.
func (e *ZoneError) Error() string {
	switch {
	case errors.Is(e.Err, ErrZoneDisabled):
		return fmt.Sprintf("Zone %d is not enabled", e.Zone)
	case errors.Is(e.Err, ErrInvalidZone):
		return fmt.Sprintf("Zone %d does not exist", e.Zone)
	case errors.Is(e.Err, ErrZoneNotActive):
		return fmt.Sprintf("Zone %d is not running", e.Zone)
	default:
		return fmt.Sprintf("zone %d: %v", e.Zone, e.Err)
	}
}

// Unwrap returns the underlying sentinel.
func (e *ZoneError) Unwrap() error {
	return e.Err
}

func zoneErr(zone int, err error) error {
	return &ZoneError{Zone: zone, Err: err}
}
