// Package database provides the SQLite store of the irrigation controller.
//
// It holds the watering event log, the persisted schedule table and the
// controller state (id allocator, rain delay, scheduling flag).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package, which
// registers them with RegisterMigrations from its init function. Every
// migration has an .up.sql script and, where it can be undone, a .down.sql.
package database
