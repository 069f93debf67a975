package eventlog

import (
	"errors"
	"time"
)

// Event types, stored in the type column.
const (
	TypeManual    = "manual"
	TypeScheduled = "scheduled"
	TypeSystem    = "system"
)

// Event statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

// DefaultRetentionDays is used by Prune when called with days <= 0.
const DefaultRetentionDays = 365

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("eventlog: event not found")

// Event is one zone run.
type Event struct {
	ID                 string     `json:"id"`
	ZoneID             int        `json:"zone_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	PlannedDurationMin int        `json:"duration_min"`
	ActualDurationSec  int        `json:"actual_duration_sec"`
	Type               string     `json:"type"`
	ScheduleID         uint32     `json:"schedule_id,omitempty"`
	ScheduleKind       string     `json:"schedule_kind"`
	Status             string     `json:"status"`
	StopReason         string     `json:"stop_reason,omitempty"`
}

// Completed reports whether the run ended normally.
func (e Event) Completed() bool {
	return e.Status == StatusCompleted
}

// Filter narrows List. Zero values mean no constraint.
type Filter struct {
	ZoneID int
	Since  time.Time
	Until  time.Time
	Status string
	Limit  int
	Offset int
}

// ZoneCount is the number of events for one zone.
type ZoneCount struct {
	ZoneID int `json:"zone_id"`
	Count  int `json:"count"`
}

// Stats summarises closed events.
type Stats struct {
	TotalEvents          int         `json:"total_events"`
	CompletedEvents      int         `json:"completed_events"`
	InterruptedEvents    int         `json:"interrupted_events"`
	TotalWateringSeconds int64       `json:"total_watering_seconds"`
	TotalWateringHours   float64     `json:"total_watering_hours"`
	ManualEvents         int         `json:"manual_events"`
	ScheduledEvents      int         `json:"scheduled_events"`
	EventsPerZone        []ZoneCount `json:"events_per_zone"`
}
