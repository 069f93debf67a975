package scheduleserver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

const dateLayout = "2006-01-02"

// Engine is the part of irrigation.Engine a sync needs.
type Engine interface {
	Execute(cmd irrigation.Command) (irrigation.Result, error)
	Configuration() irrigation.Configuration
}

// SyncReport summarises one Sync.
type SyncReport struct {
	Days     int      `json:"days"`
	Received int      `json:"received"`
	Loaded   int      `json:"loaded"`
	Skipped  int      `json:"skipped"`
	Removed  int      `json:"removed"`
	IDs      []uint32 `json:"schedule_ids"`
	Errors   []string `json:"errors,omitempty"`
}

// Sync fetches the daily schedule and replaces the engine's AI entries
// with it. Each event becomes one AI entry per repeat, firing only on its
// date's weekday and expiring at the end of that local date. Dates already
// over are ignored.
//
// Entries the engine rejects are reported in SyncReport.Errors; the
// remaining entries are still loaded.
func (c *Client) Sync(ctx context.Context, engine Engine, now time.Time) (SyncReport, error) {
	data, err := c.FetchDaily(ctx, 0, 0)
	if err != nil {
		return SyncReport{}, err
	}

	cfg := engine.Configuration()
	entries, report := BuildEntries(data, now, cfg.TimezoneOffsetHalfHours(), cfg.DaylightSavingActive())

	res, err := engine.Execute(irrigation.CmdReplaceAISchedules{Entries: entries})
	report.Removed = res.Removed
	report.IDs = res.ScheduleIDs
	report.Loaded = len(res.ScheduleIDs)
	if err != nil {
		for _, e := range unjoin(err) {
			report.Errors = append(report.Errors, e.Error())
		}
	}
	return report, nil
}

// BuildEntries converts a daily schedule response into AI schedule
// commands. Dates are processed in order so table capacity is spent on the
// nearest days first.
func BuildEntries(data map[string][]DailyEvent, now time.Time, halfHours int, dst bool) ([]irrigation.CmdAddSchedule, SyncReport) {
	var report SyncReport
	offset := irrigation.UTCOffset(halfHours, dst)

	dates := make([]string, 0, len(data))
	for d := range data {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var entries []irrigation.CmdAddSchedule
	for _, date := range dates {
		events := data[date]
		report.Received += len(events)

		day, err := time.Parse(dateLayout, date)
		if err != nil {
			report.Skipped += len(events)
			report.Errors = append(report.Errors, fmt.Sprintf("date %q: %v", date, err))
			continue
		}
		expires := day.AddDate(0, 0, 1).Add(-offset)
		if !now.IsZero() && !now.Before(expires) {
			report.Skipped += len(events)
			continue
		}
		report.Days++

		for _, ev := range events {
			starts, err := expandStarts(ev)
			if err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Sprintf("event %d on %s: %v", ev.ID, date, err))
				continue
			}
			for _, minuteOfDay := range starts {
				entries = append(entries, irrigation.CmdAddSchedule{
					Kind:        irrigation.KindAI,
					Zone:        ev.ZoneID,
					DayMask:     irrigation.DayBit(day.Weekday()),
					Hour:        minuteOfDay / 60,
					Minute:      minuteOfDay % 60,
					DurationMin: ev.DurationMin,
					ExpiresAt:   expires.Unix(),
				})
			}
		}
	}
	return entries, report
}

const minutesPerDay = 24 * 60

// expandStarts returns the local minute-of-day of each repeat of ev.
// Repeats that would start after midnight are dropped.
func expandStarts(ev DailyEvent) ([]int, error) {
	if ev.ZoneID <= 0 {
		return nil, fmt.Errorf("invalid zone %d", ev.ZoneID)
	}
	if ev.DurationMin <= 0 || ev.DurationMin > minutesPerDay {
		return nil, fmt.Errorf("invalid duration %d", ev.DurationMin)
	}
	hour, minute, err := irrigation.ParseTimeOfDay(ev.StartTime)
	if err != nil {
		return nil, err
	}

	step := ev.DurationMin + min(max(ev.RestTimeMin, 0), minutesPerDay)
	first := hour*60 + minute
	repeats := min(max(ev.RepeatCount, 1), (minutesPerDay-1-first)/step+1)

	starts := make([]int, 0, repeats)
	for i := range repeats {
		starts = append(starts, first+i*step)
	}
	return starts, nil
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
