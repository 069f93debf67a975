package irrigation

import (
	"errors"
	"testing"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestSettings_FromConfig(t *testing.T) {
	s := NewSettings(testIrrigationConfig())

	if !s.IsZoneEnabled(1) || !s.IsZoneEnabled(8) {
		t.Error("zones 1..8 should be enabled")
	}
	if s.IsZoneEnabled(0) || s.IsZoneEnabled(9) {
		t.Error("zones outside 1..8 should be disabled")
	}
	if s.MaxRunMinutes() != 240 || !s.PumpSafety() || !s.SchedulingEnabled() {
		t.Errorf("Values() = %+v", s.Values())
	}
}

func TestSettings_Apply(t *testing.T) {
	tests := []struct {
		name    string
		update  SettingsUpdate
		wantErr bool
		check   func(v SettingsValues) bool
	}{
		{
			name:   "max enabled zones",
			update: SettingsUpdate{MaxEnabledZones: intPtr(4)},
			check:  func(v SettingsValues) bool { return v.MaxEnabledZones == 4 },
		},
		{
			name:    "max enabled zones above limit",
			update:  SettingsUpdate{MaxEnabledZones: intPtr(17)},
			wantErr: true,
		},
		{
			name:    "max run time zero",
			update:  SettingsUpdate{MaxRunMinutes: intPtr(0)},
			wantErr: true,
		},
		{
			name:   "timezone and dst",
			update: SettingsUpdate{TimezoneOffsetHalfHours: intPtr(-10), DaylightSaving: boolPtr(true)},
			check: func(v SettingsValues) bool {
				return v.TimezoneOffsetHalfHours == -10 && v.DaylightSaving
			},
		},
		{
			name:    "timezone out of range",
			update:  SettingsUpdate{TimezoneOffsetHalfHours: intPtr(29)},
			wantErr: true,
		},
		{
			name:   "pump and scheduling",
			update: SettingsUpdate{PumpSafety: boolPtr(false), SchedulingEnabled: boolPtr(false)},
			check:  func(v SettingsValues) bool { return !v.PumpSafety && !v.SchedulingEnabled },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings(testIrrigationConfig())
			before := s.Values()

			err := s.Apply(tt.update)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSetting) {
					t.Fatalf("Apply() error = %v, want ErrInvalidSetting", err)
				}
				if s.Values() != before {
					t.Error("rejected update changed settings")
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !tt.check(s.Values()) {
				t.Errorf("Values() = %+v", s.Values())
			}
		})
	}
}

func TestSettings_ApplyIsAllOrNothing(t *testing.T) {
	s := NewSettings(testIrrigationConfig())

	err := s.Apply(SettingsUpdate{PumpSafety: boolPtr(false), MaxRunMinutes: intPtr(5000)})
	if err == nil {
		t.Fatal("Apply() should reject out-of-range run time")
	}
	if !s.PumpSafety() {
		t.Error("valid field applied although the update was rejected")
	}
}
