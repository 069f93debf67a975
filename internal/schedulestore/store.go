// Package schedulestore persists the engine's schedule table and
// controller state in SQLite so they survive a restart.
package schedulestore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// controller_state keys.
const (
	keyNextScheduleID    = "next_schedule_id"
	keyRainDelayEnd      = "rain_delay_end"
	keySchedulingEnabled = "scheduling_enabled"
)

// Store reads and writes engine snapshots.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Store on db. The schedules and controller_state tables
// must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save replaces the stored table and state with s in one transaction.
func (s *Store) Save(ctx context.Context, snap irrigation.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedules"); err != nil {
		return fmt.Errorf("clearing schedules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedules
			(id, slot, zone_id, day_mask, start_hour, start_minute, duration_min, enabled, kind, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing schedule insert: %w", err)
	}
	defer stmt.Close()

	for slot, e := range snap.Schedules {
		_, err := stmt.ExecContext(ctx, e.ID, slot, e.Zone, e.DayMask, e.StartHour, e.StartMinute,
			e.DurationMin, boolInt(e.Enabled), e.Kind.String(), e.CreatedAt, e.ExpiresAt)
		if err != nil {
			return fmt.Errorf("saving schedule %d: %w", e.ID, err)
		}
	}

	now := s.now().Unix()
	for key, value := range map[string]string{
		keyNextScheduleID:    strconv.FormatUint(uint64(snap.NextID), 10),
		keyRainDelayEnd:      strconv.FormatInt(snap.RainDelayEnd, 10),
		keySchedulingEnabled: strconv.FormatBool(snap.SchedulingEnabled),
	} {
		if err := putState(ctx, tx, key, value, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. found is false when nothing has been
// saved yet.
func (s *Store) Load(ctx context.Context) (snap irrigation.Snapshot, found bool, err error) {
	state, err := s.State(ctx)
	if err != nil {
		return irrigation.Snapshot{}, false, err
	}
	if len(state) == 0 {
		return irrigation.Snapshot{}, false, nil
	}

	if v, ok := state[keyNextScheduleID]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return irrigation.Snapshot{}, false, fmt.Errorf("parsing %s: %w", keyNextScheduleID, err)
		}
		snap.NextID = uint32(n)
	}
	if v, ok := state[keyRainDelayEnd]; ok {
		if snap.RainDelayEnd, err = strconv.ParseInt(v, 10, 64); err != nil {
			return irrigation.Snapshot{}, false, fmt.Errorf("parsing %s: %w", keyRainDelayEnd, err)
		}
	}
	snap.SchedulingEnabled = true
	if v, ok := state[keySchedulingEnabled]; ok {
		if snap.SchedulingEnabled, err = strconv.ParseBool(v); err != nil {
			return irrigation.Snapshot{}, false, fmt.Errorf("parsing %s: %w", keySchedulingEnabled, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, zone_id, day_mask, start_hour, start_minute, duration_min, enabled, kind, created_at, expires_at
		FROM schedules ORDER BY slot`)
	if err != nil {
		return irrigation.Snapshot{}, false, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	snap.Schedules = make([]irrigation.Schedule, 0)
	for rows.Next() {
		var (
			e       irrigation.Schedule
			enabled int
			kind    string
		)
		if err := rows.Scan(&e.ID, &e.Zone, &e.DayMask, &e.StartHour, &e.StartMinute,
			&e.DurationMin, &enabled, &kind, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return irrigation.Snapshot{}, false, fmt.Errorf("scanning schedule: %w", err)
		}
		e.Enabled = enabled != 0
		if err := e.Kind.UnmarshalText([]byte(kind)); err != nil {
			return irrigation.Snapshot{}, false, err
		}
		snap.Schedules = append(snap.Schedules, e)
	}
	if err := rows.Err(); err != nil {
		return irrigation.Snapshot{}, false, fmt.Errorf("reading schedules: %w", err)
	}
	return snap, true, nil
}

// State returns the raw controller_state key/value pairs.
func (s *Store) State(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM controller_state")
	if err != nil {
		return nil, fmt.Errorf("querying controller state: %w", err)
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning controller state: %w", err)
		}
		state[k] = v
	}
	return state, rows.Err()
}

func putState(ctx context.Context, tx *sql.Tx, key, value string, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO controller_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
