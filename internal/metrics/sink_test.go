package metrics

import (
	"testing"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

type fakeWriter struct {
	runs   []influxdb.ZoneRun
	states []influxdb.ControllerState
	sites  []string
}

func (f *fakeWriter) WriteZoneRun(site string, r influxdb.ZoneRun) {
	f.sites = append(f.sites, site)
	f.runs = append(f.runs, r)
}

func (f *fakeWriter) WriteControllerState(site string, s influxdb.ControllerState) {
	f.sites = append(f.sites, site)
	f.states = append(f.states, s)
}

func TestSink_Transitions(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, "garden")
	at := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

	s.OnZoneTransition(irrigation.Transition{
		Zone: 2, On: true, DurationMin: 15, Kind: irrigation.KindBasic, ScheduleID: 4,
		Origin: irrigation.OriginScheduled, Reason: irrigation.ReasonStarted, At: at,
	})
	s.OnZoneTransition(irrigation.Transition{
		Zone: 2, DurationMin: 15, Kind: irrigation.KindBasic, Origin: irrigation.OriginScheduled,
		Reason: irrigation.ReasonPreempted, Elapsed: 7*time.Minute + 20*time.Second, At: at.Add(7 * time.Minute),
	})
	s.OnZoneTransition(irrigation.Transition{
		Zone: 5, On: true, DurationMin: 3, Origin: irrigation.OriginManual, Reason: irrigation.ReasonStarted,
	})

	if len(w.runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(w.runs))
	}
	on := w.runs[0]
	if !on.On || on.Origin != "scheduled" || on.Kind != "basic" || on.Reason != "started" || on.DurationMin != 15 || !on.At.Equal(at) {
		t.Errorf("on point = %+v", on)
	}
	off := w.runs[1]
	if off.On || off.Reason != "preempted" || off.DurationMin != 7 {
		t.Errorf("off point = %+v", off)
	}
	if manual := w.runs[2]; manual.Kind != "" || manual.Origin != "manual" {
		t.Errorf("manual point = %+v", manual)
	}
	if w.sites[0] != "garden" {
		t.Errorf("site = %q", w.sites[0])
	}
}

func TestSink_RecordStatus(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, "")

	s.RecordStatus(irrigation.DeviceStatus{
		Timestamp:       1748844000,
		RainDelayActive: true,
		ActiveZones:     []irrigation.ActiveRun{{Zone: 1}, {Zone: 2}},
		Counts:          irrigation.ScheduleCounts{Basic: 3, AI: 5, Total: 8},
	})
	s.RecordStatus(irrigation.DeviceStatus{})

	if len(w.states) != 2 {
		t.Fatalf("states = %d, want 2", len(w.states))
	}
	got := w.states[0]
	if got.ActiveZones != 2 || !got.RainDelayActive || got.SchedulesBasic != 3 || got.SchedulesAI != 5 {
		t.Errorf("state = %+v", got)
	}
	if got.At.Unix() != 1748844000 {
		t.Errorf("At = %v", got.At)
	}
	if !w.states[1].At.IsZero() {
		t.Error("untrusted clock should leave At zero")
	}
}
