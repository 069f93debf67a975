package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementZoneRun    = "zone_run"
	MeasurementController = "controller"
)

// ZoneRun is one valve transition.
type ZoneRun struct {
	Zone        int
	On          bool
	Origin      string // manual, schedule, system
	Kind        string // basic, ai; empty for manual runs
	Reason      string
	DurationMin int // planned minutes when On, elapsed minutes when off
	At          time.Time
}

// ControllerState is a periodic snapshot of the controller.
type ControllerState struct {
	ActiveZones     int
	RainDelayActive bool
	SchedulesBasic  int
	SchedulesAI     int
	At              time.Time
}

// ZoneRunPoint builds the zone_run point for r.
func ZoneRunPoint(site string, r ZoneRun) *write.Point {
	tags := map[string]string{
		"zone":   strconv.Itoa(r.Zone),
		"origin": r.Origin,
		"reason": r.Reason,
	}
	if site != "" {
		tags["site"] = site
	}
	if r.Kind != "" {
		tags["kind"] = r.Kind
	}
	return write.NewPoint(MeasurementZoneRun, tags, map[string]any{
		"on":           r.On,
		"duration_min": r.DurationMin,
	}, pointTime(r.At))
}

// ControllerPoint builds the controller point for s.
func ControllerPoint(site string, s ControllerState) *write.Point {
	tags := map[string]string{}
	if site != "" {
		tags["site"] = site
	}
	return write.NewPoint(MeasurementController, tags, map[string]any{
		"active_zones":      s.ActiveZones,
		"rain_delay_active": s.RainDelayActive,
		"schedules_basic":   s.SchedulesBasic,
		"schedules_ai":      s.SchedulesAI,
	}, pointTime(s.At))
}

// WriteZoneRun queues a zone_run point. Dropped while disconnected.
func (c *Client) WriteZoneRun(site string, r ZoneRun) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(ZoneRunPoint(site, r))
}

// WriteControllerState queues a controller point. Dropped while disconnected.
func (c *Client) WriteControllerState(site string, s ControllerState) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(ControllerPoint(site, s))
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
