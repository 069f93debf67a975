package irrigation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// minTrustedYear is the earliest year accepted from the wall clock. An
// unsynchronised RTC or NTP client reports dates near the epoch.
const minTrustedYear = 2024

// SystemClock reads the host clock.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock returns a clock whose monotonic origin is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

// NowUTC implements Clock. The time is untrusted until the host clock has
// been set to a plausible date.
func (c *SystemClock) NowUTC() (time.Time, bool) {
	now := time.Now().UTC()
	return now, now.Year() >= minTrustedYear
}

// Monotonic implements Clock using the runtime's monotonic reading.
func (c *SystemClock) Monotonic() time.Duration {
	return time.Since(c.origin)
}

// UTCOffset returns the offset from UTC to local wall-clock time.
func UTCOffset(halfHours int, dst bool) time.Duration {
	offset := time.Duration(halfHours) * 30 * time.Minute
	if dst {
		offset += time.Hour
	}
	return offset
}

// LocalTime converts a UTC instant to the controller's local wall-clock time.
// The result is expressed in the UTC location so Hour, Minute and Weekday
// read the local values directly.
func LocalTime(now time.Time, halfHours int, dst bool) time.Time {
	return now.UTC().Add(UTCOffset(halfHours, dst))
}

// EndOfLocalDay returns the Unix time of the first second after the local
// calendar day that contains now.
func EndOfLocalDay(now time.Time, halfHours int, dst bool) int64 {
	local := LocalTime(now, halfHours, dst)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Add(-UTCOffset(halfHours, dst)).Unix()
}

// DayBit returns the day-mask bit for a weekday (Sunday = bit 0).
func DayBit(day time.Weekday) uint8 {
	return 1 << uint(day)
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// DayMaskFromNames builds a day mask from names like "mon" or "Tuesday".
// "daily" and "all" select every day.
func DayMaskFromNames(days []string) (uint8, error) {
	var mask uint8
	for _, d := range days {
		name := strings.ToLower(strings.TrimSpace(d))
		if name == "daily" || name == "all" {
			return AllDays, nil
		}
		day, ok := dayNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, d)
		}
		mask |= DayBit(day)
	}
	if mask == 0 {
		return 0, fmt.Errorf("%w: no days selected", ErrInvalidSchedule)
	}
	return mask, nil
}

// ParseTimeOfDay parses "HH:MM" in 24 hour form.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSchedule, s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour in %q", ErrInvalidSchedule, s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute in %q", ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}
