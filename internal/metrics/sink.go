// Package metrics feeds watering telemetry to InfluxDB.
package metrics

import (
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// Writer is implemented by *influxdb.Client.
type Writer interface {
	WriteZoneRun(site string, r influxdb.ZoneRun)
	WriteControllerState(site string, s influxdb.ControllerState)
}

// Sink writes a zone_run point for every transition. Writes are queued by
// the InfluxDB client and never block the engine.
type Sink struct {
	w    Writer
	site string
}

// NewSink returns a Sink tagging points with site.
func NewSink(w Writer, site string) *Sink {
	return &Sink{w: w, site: site}
}

// OnZoneTransition implements irrigation.TransitionSink.
func (s *Sink) OnZoneTransition(t irrigation.Transition) {
	run := influxdb.ZoneRun{
		Zone:        t.Zone,
		On:          t.On,
		Origin:      t.Origin.String(),
		Reason:      t.Reason.String(),
		DurationMin: t.DurationMin,
		At:          t.At,
	}
	if t.Kind != irrigation.KindNone {
		run.Kind = t.Kind.String()
	}
	if !t.On {
		run.DurationMin = int(t.Elapsed.Minutes())
	}
	s.w.WriteZoneRun(s.site, run)
}

// RecordStatus writes a controller snapshot from a status report.
func (s *Sink) RecordStatus(st irrigation.DeviceStatus) {
	var at time.Time
	if st.Timestamp > 0 {
		at = time.Unix(st.Timestamp, 0)
	}
	s.w.WriteControllerState(s.site, influxdb.ControllerState{
		ActiveZones:     len(st.ActiveZones),
		RainDelayActive: st.RainDelayActive,
		SchedulesBasic:  st.Counts.Basic,
		SchedulesAI:     st.Counts.AI,
		At:              at,
	})
}
