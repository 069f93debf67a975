package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// ErrNoDownMigration is returned by MigrateDown when the latest migration
// cannot be rolled back.
var ErrNoDownMigration = errors.New("database: migration has no down script")

// migrationSource holds the registered SQL files. Files are named
// YYYYMMDD_HHMMSS_description.up.sql with an optional matching .down.sql.
var migrationSource fs.FS

// RegisterMigrations sets the filesystem the migration scripts are read
// from. The migrations package calls it from init with its embedded files.
func RegisterMigrations(fsys fs.FS) {
	migrationSource = fsys
}

// Migration is one schema version.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies every pending migration, oldest first, each in its own
// transaction. A failure leaves earlier migrations applied; rerunning
// continues from the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	_, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. It returns
// the version rolled back, or "" when nothing was applied.
func (db *DB) MigrateDown(ctx context.Context) (string, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return "", err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	latest := applied[len(applied)-1].Version

	all, err := loadMigrations(migrationSource)
	if err != nil {
		return "", err
	}
	idx := sort.Search(len(all), func(i int) bool { return all[i].Version >= latest })
	if idx == len(all) || all[idx].Version != latest {
		return "", fmt.Errorf("migration %s not found in registered scripts", latest)
	}
	m := all[idx]
	if m.DownSQL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDownMigration, m.Version)
	}

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("rolling back %s: %w", m.Version, err)
	}
	return m.Version, nil
}

// MigrationStatus lists applied migrations and those still pending.
func (db *DB) MigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	if err = db.ensureMigrationsTable(ctx); err != nil {
		return nil, nil, err
	}
	applied, err = db.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations(migrationSource)
	if err != nil {
		return nil, nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var at string
		if err := rows.Scan(&r.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		records = append(records, r)
	}
	return records, rows.Err()
}

// loadMigrations reads the scripts from fsys sorted by version. A nil fsys
// yields no migrations.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(ups))
	for _, name := range ups {
		version, desc, ok := splitMigrationName(strings.TrimSuffix(name, ".up.sql"))
		if !ok {
			continue
		}
		up, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		m := Migration{Version: version, Name: desc, UpSQL: string(up)}

		downName := path.Clean(strings.TrimSuffix(name, ".up.sql") + ".down.sql")
		if down, err := fs.ReadFile(fsys, downName); err == nil {
			m.DownSQL = string(down)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", downName, err)
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// splitMigrationName turns "20250601_120000_watering_events" into its
// version and description.
func splitMigrationName(base string) (version, desc string, ok bool) {
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 || len(parts[0]) != 8 || len(parts[1]) != 6 {
		return "", "", false
	}
	version = parts[0] + "_" + parts[1]
	if len(parts) == 3 {
		desc = parts[2]
	}
	return version, desc, true
}
