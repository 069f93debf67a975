// Package eventlog keeps the watering history.
//
// Recorder is wired into the engine's transition fan-out and maintains one
// watering_events row per zone run. Repository answers history queries
// (List, Stats) and housekeeping (Prune, CloseOrphans).
//
//	repo := eventlog.NewRepository(db.DB)
//	if _, err := repo.CloseOrphans(ctx, time.Now()); err != nil { ... }
//	rec := eventlog.NewRecorder(repo, serverClient, cfg.EventLog.ReportQueueSize)
//	go rec.Run(ctx)
package eventlog
