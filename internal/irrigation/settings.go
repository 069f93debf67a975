package irrigation

import (
	"fmt"
	"sync"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// SettingsUpdate changes selected settings; nil fields are left alone.
type SettingsUpdate struct {
	MaxEnabledZones         *int  `json:"max_enabled_zones,omitempty"`
	MaxRunMinutes           *int  `json:"max_zone_run_time,omitempty"`
	PumpSafety              *bool `json:"pump_safety,omitempty"`
	TimezoneOffsetHalfHours *int  `json:"timezone_offset_half_hours,omitempty"`
	DaylightSaving          *bool `json:"daylight_saving,omitempty"`
	SchedulingEnabled       *bool `json:"scheduling_enabled,omitempty"`
}

// SettingsValues is a point-in-time copy of the runtime settings.
type SettingsValues struct {
	ZoneCount               int  `json:"zone_count"`
	MaxEnabledZones         int  `json:"max_enabled_zones"`
	MaxRunMinutes           int  `json:"max_zone_run_time"`
	PumpSafety              bool `json:"pump_safety"`
	TimezoneOffsetHalfHours int  `json:"timezone_offset_half_hours"`
	DaylightSaving          bool `json:"daylight_saving"`
	SchedulingEnabled       bool `json:"scheduling_enabled"`
}

// Settings holds the runtime irrigation settings. It is seeded from the
// config file and may be changed over MQTT or the HTTP API.
//
// Thread Safety: all methods are safe for concurrent use.
type Settings struct {
	mu sync.RWMutex
	v  SettingsValues
}

// NewSettings creates settings from the irrigation config section.
func NewSettings(cfg config.IrrigationConfig) *Settings {
	return &Settings{v: SettingsValues{
		ZoneCount:               cfg.ZoneCount,
		MaxEnabledZones:         cfg.MaxEnabledZones,
		MaxRunMinutes:           cfg.MaxZoneRunTime,
		PumpSafety:              cfg.PumpSafety,
		TimezoneOffsetHalfHours: cfg.TimezoneOffsetHalfHours,
		DaylightSaving:          cfg.DaylightSaving,
		SchedulingEnabled:       cfg.SchedulingEnabled,
	}}
}

// IsZoneEnabled reports whether zone is within 1..MaxEnabledZones.
func (s *Settings) IsZoneEnabled(zone int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return zone >= 1 && zone <= s.v.MaxEnabledZones
}

func (s *Settings) MaxEnabledZones() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.MaxEnabledZones
}

func (s *Settings) MaxRunMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.MaxRunMinutes
}

func (s *Settings) PumpSafety() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.PumpSafety
}

func (s *Settings) TimezoneOffsetHalfHours() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.TimezoneOffsetHalfHours
}

func (s *Settings) DaylightSavingActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.DaylightSaving
}

func (s *Settings) SchedulingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.SchedulingEnabled
}

// Values returns a copy of all settings.
func (s *Settings) Values() SettingsValues {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Apply validates and applies an update. Either every field is applied or
// none is.
func (s *Settings) Apply(u SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.v
	if u.MaxEnabledZones != nil {
		n := *u.MaxEnabledZones
		if n < config.MinEnabledZones || n > config.MaxEnabledZones || n > next.ZoneCount {
			return fmt.Errorf("%w: max_enabled_zones %d out of range 1..%d", ErrInvalidSetting, n, min(config.MaxEnabledZones, next.ZoneCount))
		}
		next.MaxEnabledZones = n
	}
	if u.MaxRunMinutes != nil {
		n := *u.MaxRunMinutes
		if n < config.MinZoneRunTime || n > config.MaxZoneRunTime {
			return fmt.Errorf("%w: max_zone_run_time %d out of range %d..%d", ErrInvalidSetting, n, config.MinZoneRunTime, config.MaxZoneRunTime)
		}
		next.MaxRunMinutes = n
	}
	if u.TimezoneOffsetHalfHours != nil {
		n := *u.TimezoneOffsetHalfHours
		if n < config.MinTimezoneHalfHours || n > config.MaxTimezoneHalfHours {
			return fmt.Errorf("%w: timezone offset %d half-hours out of range", ErrInvalidSetting, n)
		}
		next.TimezoneOffsetHalfHours = n
	}
	if u.PumpSafety != nil {
		next.PumpSafety = *u.PumpSafety
	}
	if u.DaylightSaving != nil {
		next.DaylightSaving = *u.DaylightSaving
	}
	if u.SchedulingEnabled != nil {
		next.SchedulingEnabled = *u.SchedulingEnabled
	}

	s.v = next
	return nil
}
