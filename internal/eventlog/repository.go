package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Repository stores watering events in the watering_events table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository on db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new event.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watering_events
			(id, zone_id, start_time, planned_duration_min, type, schedule_id, schedule_kind, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ZoneID, e.StartTime.Unix(), e.PlannedDurationMin,
		e.Type, e.ScheduleID, e.ScheduleKind, e.Status)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}
	return nil
}

// UpdatePlanned changes the planned duration of a running event.
func (r *Repository) UpdatePlanned(ctx context.Context, id string, minutes int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE watering_events SET planned_duration_min = ? WHERE id = ? AND status = ?",
		minutes, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", id, err)
	}
	return expectOne(res, id)
}

// Close ends a running event.
func (r *Repository) Close(ctx context.Context, id string, end time.Time, actualSec int, status, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE watering_events
		SET end_time = ?, actual_duration_sec = ?, status = ?, stop_reason = ?
		WHERE id = ? AND status = ?`,
		end.Unix(), actualSec, status, reason, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("closing event %s: %w", id, err)
	}
	return expectOne(res, id)
}

// Get returns one event.
func (r *Repository) Get(ctx context.Context, id string) (Event, error) {
	row := r.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// List returns events matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Event, error) {
	where, args := f.where()

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(f.Offset, 0)

	query := selectEvents + where + " ORDER BY start_time DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events matching f, ignoring Limit and Offset.
func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM watering_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// Stats summarises the closed events started at or after since. A zero
// since covers the whole log.
func (r *Repository) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	sinceUnix := int64(0)
	if !since.IsZero() {
		sinceUnix = since.Unix()
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'completed'), 0),
			COALESCE(SUM(status = 'interrupted'), 0),
			COALESCE(SUM(actual_duration_sec), 0),
			COALESCE(SUM(type = 'manual'), 0),
			COALESCE(SUM(type = 'scheduled'), 0)
		FROM watering_events
		WHERE status != 'running' AND start_time >= ?`, sinceUnix).
		Scan(&s.TotalEvents, &s.CompletedEvents, &s.InterruptedEvents,
			&s.TotalWateringSeconds, &s.ManualEvents, &s.ScheduledEvents)
	if err != nil {
		return Stats{}, fmt.Errorf("querying event stats: %w", err)
	}
	s.TotalWateringHours = float64(s.TotalWateringSeconds) / 3600

	rows, err := r.db.QueryContext(ctx, `
		SELECT zone_id, COUNT(*) FROM watering_events
		WHERE status != 'running' AND start_time >= ?
		GROUP BY zone_id ORDER BY zone_id`, sinceUnix)
	if err != nil {
		return Stats{}, fmt.Errorf("querying per-zone stats: %w", err)
	}
	defer rows.Close()

	s.EventsPerZone = make([]ZoneCount, 0)
	for rows.Next() {
		var zc ZoneCount
		if err := rows.Scan(&zc.ZoneID, &zc.Count); err != nil {
			return Stats{}, fmt.Errorf("scanning per-zone stats: %w", err)
		}
		s.EventsPerZone = append(s.EventsPerZone, zc)
	}
	return s, rows.Err()
}

// Prune deletes closed events that started more than days before now and
// returns how many were removed.
func (r *Repository) Prune(ctx context.Context, now time.Time, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := now.AddDate(0, 0, -days).Unix()
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM watering_events WHERE status != ? AND start_time < ?", StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports it
	return n, nil
}

// CloseOrphans marks every event still running as interrupted. Called at
// startup: no valve is open after a restart, so a running row can only be
// left over from a crash.
func (r *Repository) CloseOrphans(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE watering_events
		SET status = ?, end_time = ?, stop_reason = 'restart',
		    actual_duration_sec = MAX(0, MIN(? - start_time, planned_duration_min * 60))
		WHERE status = ?`,
		StatusInterrupted, now.Unix(), now.Unix(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("closing orphaned events: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports it
	return n, nil
}

const selectEvents = `
	SELECT id, zone_id, start_time, end_time, planned_duration_min,
	       COALESCE(actual_duration_sec, 0), type, schedule_id, schedule_kind,
	       status, COALESCE(stop_reason, '')
	FROM watering_events`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		e     Event
		start int64
		end   sql.NullInt64
	)
	err := s.Scan(&e.ID, &e.ZoneID, &start, &end, &e.PlannedDurationMin,
		&e.ActualDurationSec, &e.Type, &e.ScheduleID, &e.ScheduleKind,
		&e.Status, &e.StopReason)
	if err != nil {
		return Event{}, fmt.Errorf("scanning event: %w", err)
	}
	e.StartTime = time.Unix(start, 0).UTC()
	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		e.EndTime = &t
	}
	return e, nil
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.ZoneID > 0 {
		clauses = append(clauses, "zone_id = ?")
		args = append(args, f.ZoneID)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "start_time < ?")
		args = append(args, f.Until.Unix())
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is not running", ErrNotFound, id)
	}
	return nil
}
