package scheduleserver

import (
	"context"
	"time"

	"github.com/nerrad567/irrigation-core/internal/eventlog"
)

// EventReporter adapts Client to eventlog.Reporter.
type EventReporter struct {
	client *Client
}

// NewEventReporter returns a reporter posting through c.
func NewEventReporter(c *Client) *EventReporter {
	return &EventReporter{client: c}
}

var _ eventlog.Reporter = (*EventReporter)(nil)

// ReportStart posts /api/events/start.
func (r *EventReporter) ReportStart(ctx context.Context, e eventlog.Event) error {
	return r.client.PostStart(ctx, StartReport{
		ScheduleID: e.ScheduleID,
		ZoneID:     e.ZoneID,
		DeviceID:   r.client.DeviceID(),
		StartTime:  e.StartTime.UTC().Format(time.RFC3339),
		Status:     eventlog.StatusRunning,
	})
}

// ReportCompletion posts /api/events/completion.
func (r *EventReporter) ReportCompletion(ctx context.Context, e eventlog.Event) error {
	end := e.StartTime.Add(time.Duration(e.ActualDurationSec) * time.Second)
	if e.EndTime != nil {
		end = *e.EndTime
	}
	return r.client.PostCompletion(ctx, CompletionReport{
		ScheduleID:        e.ScheduleID,
		ZoneID:            e.ZoneID,
		DeviceID:          r.client.DeviceID(),
		StartTime:         e.StartTime.UTC().Format(time.RFC3339),
		EndTime:           end.UTC().Format(time.RFC3339),
		ActualDurationMin: float64(e.ActualDurationSec) / 60,
		Status:            e.Status,
		Notes:             e.StopReason,
	})
}
