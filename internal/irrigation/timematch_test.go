package irrigation

import (
	"errors"
	"testing"
	"time"
)

func TestLocalTime(t *testing.T) {
	utc := time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		halfHours int
		dst       bool
		want      time.Time
	}{
		{"utc", 0, false, utc},
		{"plus one hour dst", 0, true, time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC)},
		{"india", 11, false, time.Date(2025, 6, 3, 5, 0, 0, 0, time.UTC)},
		{"newfoundland", -7, false, time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocalTime(utc, tt.halfHours, tt.dst)
			if !got.Equal(tt.want) {
				t.Errorf("LocalTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndOfLocalDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if got, want := EndOfLocalDay(now, 0, false), time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC).Unix(); got != want {
		t.Errorf("EndOfLocalDay(utc) = %d, want %d", got, want)
	}
	// UTC+1: local midnight is 23:00 UTC.
	if got, want := EndOfLocalDay(now, 2, false), time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC).Unix(); got != want {
		t.Errorf("EndOfLocalDay(+1h) = %d, want %d", got, want)
	}
}

func TestDayBit(t *testing.T) {
	if DayBit(time.Sunday) != 0x01 || DayBit(time.Saturday) != 0x40 {
		t.Errorf("DayBit() Sunday=%#x Saturday=%#x", DayBit(time.Sunday), DayBit(time.Saturday))
	}

	s := Schedule{DayMask: DayBit(time.Monday) | DayBit(time.Friday)}
	if !s.FiresOn(time.Friday) || s.FiresOn(time.Tuesday) {
		t.Error("FiresOn() does not follow the day mask")
	}
}

func TestDayMaskFromNames(t *testing.T) {
	tests := []struct {
		in      []string
		want    uint8
		wantErr bool
	}{
		{[]string{"mon", "Wed", "FRIDAY"}, 0x2A, false},
		{[]string{"sun"}, 0x01, false},
		{[]string{"daily"}, AllDays, false},
		{[]string{"funday"}, 0, true},
		{nil, 0, true},
	}

	for _, tt := range tests {
		got, err := DayMaskFromNames(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("DayMaskFromNames(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("DayMaskFromNames(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("06:15")
	if err != nil || h != 6 || m != 15 {
		t.Errorf("ParseTimeOfDay(06:15) = %d, %d, %v", h, m, err)
	}

	for _, bad := range []string{"", "6", "24:00", "12:60", "ab:cd"} {
		if _, _, err := ParseTimeOfDay(bad); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("ParseTimeOfDay(%q) error = %v, want ErrInvalidSchedule", bad, err)
		}
	}
}

func TestSystemClock(t *testing.T) {
	c := NewSystemClock()
	now, ok := c.NowUTC()
	if !ok {
		t.Skipf("host clock reads %v, not trusted", now)
	}
	if now.Location() != time.UTC {
		t.Error("NowUTC() not in UTC")
	}
	first := c.Monotonic()
	if c.Monotonic() < first {
		t.Error("Monotonic() went backwards")
	}
}
