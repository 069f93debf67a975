package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/irrigation-core/internal/actuation"
	"github.com/nerrad567/irrigation-core/internal/api"
	"github.com/nerrad567/irrigation-core/internal/auth"
	"github.com/nerrad567/irrigation-core/internal/eventlog"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/logging"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
	"github.com/nerrad567/irrigation-core/internal/jobs"
	"github.com/nerrad567/irrigation-core/internal/metrics"
	"github.com/nerrad567/irrigation-core/internal/reporting"
	"github.com/nerrad567/irrigation-core/internal/schedulestore"
	"github.com/nerrad567/irrigation-core/internal/scheduleserver"
)

const (
	// metricsInterval is how often the controller_state point is written.
	metricsInterval = time.Minute

	shutdownTimeout = 10 * time.Second
	storeTimeout    = 5 * time.Second
)

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting irrigation controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // log file close on exit
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// A restart request from MQTT cancels the run context; the supervisor
	// brings the process back.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	events := eventlog.NewRepository(db.DB)
	if n, orphanErr := events.CloseOrphans(ctx, time.Now()); orphanErr != nil {
		log.Warn("closing orphaned events failed", "error", orphanErr)
	} else if n > 0 {
		log.Info("closed events left running by the previous process", "count", n)
	}

	// Connect to MQTT broker
	var mqttClient *mqtt.Client
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Controller.DeviceID)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"root", topics.Root(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	influxClient, err = influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Schedule server (optional)
	var upstream *scheduleserver.Client
	upstream, err = scheduleserver.New(cfg.ScheduleServer, cfg.Controller.DeviceID)
	switch {
	case errors.Is(err, scheduleserver.ErrDisabled):
		log.Info("schedule server disabled")
	case err != nil:
		return fmt.Errorf("configuring schedule server: %w", err)
	default:
		log.Info("schedule server configured", "url", cfg.ScheduleServer.URL)
	}

	// Engine and its transition sinks. Sinks run under the engine lock, so
	// each one only records or queues.
	settings := irrigation.NewSettings(cfg.Irrigation)

	valve, err := newValve(cfg, mqttClient, log)
	if err != nil {
		return err
	}
	driver := actuation.NewDriver(valve, settings)
	driver.SetLogger(log)

	var reporter eventlog.Reporter
	if upstream != nil {
		reporter = scheduleserver.NewEventReporter(upstream)
	}
	recorder := eventlog.NewRecorder(events, reporter, cfg.EventLog.ReportQueueSize)
	recorder.SetLogger(log)
	go recorder.Run(ctx)

	sinks := actuation.NewFanout(driver, recorder)
	var metricsSink *metrics.Sink
	if influxClient != nil {
		metricsSink = metrics.NewSink(influxClient, cfg.Site.ID)
		sinks.Add(metricsSink)
	}

	engine := irrigation.NewEngine(settings, irrigation.NewSystemClock(), sinks, irrigation.Options{
		ZoneCount:      cfg.Irrigation.ZoneCount,
		MaxActiveZones: cfg.Irrigation.MaxActiveZones,
		Logger:         log,
	})

	store := schedulestore.New(db.DB)
	if err := restoreSnapshot(ctx, store, engine, log); err != nil {
		return err
	}

	// MQTT reporting bridge
	var bridge *reporting.Bridge
	if mqttClient != nil {
		bridge = reporting.NewBridge(engine, mqttClient, reporting.Options{
			Topics:     topics,
			DeviceName: cfg.Site.Name,
			QoS:        mqttClient.QoS(),
			Retain:     cfg.MQTT.Retain,
			Discovery:  cfg.MQTT.Discovery,
			OnRestart:  cancel,
		})
		bridge.SetLogger(log)
		sinks.Add(bridge)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
		mqttClient.SetOnConnect(bridge.Republish)
		log.Info("MQTT bridge started")
	}

	// Housekeeping jobs
	scheduler := jobs.New(log, time.Local)
	if upstream != nil {
		onSync := func(scheduleserver.SyncReport) {
			if bridge != nil {
				bridge.PublishSchedules()
				bridge.PublishStatus()
			}
		}
		if err := scheduler.Add(jobs.JobScheduleSync, cfg.ScheduleServer.SyncCron,
			jobs.ScheduleSync(upstream, engine, log, onSync)); err != nil {
			return fmt.Errorf("registering schedule sync: %w", err)
		}
	}
	if err := scheduler.Add(jobs.JobEventLogPrune, cfg.EventLog.PruneCron,
		jobs.EventLogPrune(events, cfg.EventLog.RetentionDays, log)); err != nil {
		return fmt.Errorf("registering event log prune: %w", err)
	}
	scheduler.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		scheduler.Stop(stopCtx)
	}()

	// REST API
	checks := map[string]api.HealthChecker{"database": db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	if cfg.API.Enabled {
		server, err := startAPI(ctx, cfg, log, engine, events, scheduler, checks)
		if err != nil {
			return err
		}
		sinks.Add(server)
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete", "poll_interval", cfg.PollInterval().String())
	pollLoop(ctx, cfg.PollInterval(), engine, store, metricsSink, log)

	log.Info("shutdown signal received, cleaning up")
	if stopped := engine.StopAll(irrigation.ReasonShutdown); len(stopped) > 0 {
		log.Info("closed running zones", "zones", stopped)
	}
	saveSnapshot(store, engine, log)
	flushReports(recorder, log)

	log.Info("irrigation controller stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// newValve picks the valve driver named by controller.valve.
func newValve(cfg *config.Config, client *mqtt.Client, log *logging.Logger) (actuation.Valve, error) {
	switch cfg.Controller.Valve {
	case "log":
		log.Warn("valve driver is log only; no hardware will be switched")
		return actuation.NewLogValve(log), nil
	case "mqtt", "":
		if client == nil {
			return nil, errors.New("the mqtt valve driver needs mqtt.enabled")
		}
		return actuation.NewMQTTValve(client, client.Topics()), nil
	default:
		return nil, fmt.Errorf("unknown valve driver %q", cfg.Controller.Valve)
	}
}

func restoreSnapshot(ctx context.Context, store *schedulestore.Store, engine *irrigation.Engine, log *logging.Logger) error {
	snap, found, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}
	if !found {
		log.Info("no saved schedules, starting empty")
		return nil
	}
	if err := engine.Restore(snap); err != nil {
		return fmt.Errorf("restoring schedules: %w", err)
	}
	counts := engine.ScheduleCounts()
	log.Info("schedules restored", "basic", counts.Basic, "ai", counts.AI, "next_id", snap.NextID)
	return nil
}

func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, engine *irrigation.Engine,
	events *eventlog.Repository, scheduler *jobs.Scheduler, checks map[string]api.HealthChecker) (*api.Server, error) {
	var accounts *auth.Accounts
	if cfg.Security.Enabled {
		var err error
		if accounts, err = auth.NewAccounts(cfg.Security.Users); err != nil {
			return nil, fmt.Errorf("loading API accounts: %w", err)
		}
		log.Info("API security enabled", "accounts", accounts.Usernames())
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		Events:   events,
		Jobs:     scheduler,
		Accounts: accounts,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}

// pollLoop drives the engine until ctx ends. The schedule table is saved
// whenever the engine revision moves.
func pollLoop(ctx context.Context, interval time.Duration, engine *irrigation.Engine,
	store *schedulestore.Store, sink *metrics.Sink, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	saved := engine.Revision()
	lastMetrics := time.Time{}
	skipLogged := false

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report := engine.Tick()

			if report.Pass.Skipped {
				if !skipLogged {
					log.Warn("scheduling paused", "reason", report.Pass.SkipReason)
					skipLogged = true
				}
			} else {
				skipLogged = false
			}

			if rev := engine.Revision(); rev != saved {
				if saveSnapshot(store, engine, log) {
					saved = rev
				}
			}

			if sink != nil && now.Sub(lastMetrics) >= metricsInterval {
				sink.RecordStatus(engine.Status())
				lastMetrics = now
			}
		}
	}
}

// flushReports sends the event reports queued by the shutdown stop.
func flushReports(recorder *eventlog.Recorder, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if n := recorder.Flush(ctx); n > 0 {
		log.Info("flushed event reports", "count", n)
	}
}

func saveSnapshot(store *schedulestore.Store, engine *irrigation.Engine, log *logging.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := store.Save(ctx, engine.Snapshot()); err != nil {
		log.Error("saving schedules failed", "error", err)
		return false
	}
	return true
}

// healthCheck verifies every dependency once before the daemon settles.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
