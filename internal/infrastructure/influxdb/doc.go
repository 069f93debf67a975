// Package influxdb records watering telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//   - zone_run: one point per valve transition (tags zone, origin, kind,
//     reason; fields on, duration_min)
//   - controller: periodic snapshots (active_zones, rain_delay_active,
//     schedules_basic, schedules_ai)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteZoneRun(cfg.Site.ID, influxdb.ZoneRun{Zone: 3, On: true, Origin: "manual", DurationMin: 10})
//
// Writes are non-blocking and batched per influxdb.batch_size and
// influxdb.flush_interval; asynchronous failures go to SetOnError.
package influxdb
