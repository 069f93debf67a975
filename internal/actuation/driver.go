package actuation

import (
	"sync"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// Valve is the hardware side of a zone.
type Valve interface {
	Start(zone, minutes int) error
	Stop(zone int) error
	PumpOff() error
}

// PumpPolicy reports whether the pump must be switched off once the last
// zone closes. irrigation.Settings satisfies it.
type PumpPolicy interface {
	PumpSafety() bool
}

// Logger is the subset of logging.Logger the driver needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// DriverStats counts valve commands and failures.
type DriverStats struct {
	Starts   int `json:"starts"`
	Stops    int `json:"stops"`
	PumpOffs int `json:"pump_offs"`
	Failures int `json:"failures"`
}

// Driver opens and closes valves as the engine reports transitions.
//
// Valve errors are logged and counted; the engine state is authoritative
// and is never rolled back because a valve failed to answer.
type Driver struct {
	valve  Valve
	policy PumpPolicy

	mu     sync.Mutex
	stats  DriverStats
	logger Logger
}

// NewDriver returns a Driver for valve. A nil policy disables pump safety.
func NewDriver(valve Valve, policy PumpPolicy) *Driver {
	return &Driver{valve: valve, policy: policy}
}

// SetLogger sets the logger for valve failures.
func (d *Driver) SetLogger(l Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

// Stats returns a copy of the command counters.
func (d *Driver) Stats() DriverStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// OnZoneTransition implements irrigation.TransitionSink.
func (d *Driver) OnZoneTransition(t irrigation.Transition) {
	if t.On {
		d.record(func(s *DriverStats) { s.Starts++ })
		d.check("valve start failed", t.Zone, d.valve.Start(t.Zone, t.DurationMin))
		return
	}

	d.record(func(s *DriverStats) { s.Stops++ })
	d.check("valve stop failed", t.Zone, d.valve.Stop(t.Zone))

	if t.ActiveCount == 0 && d.policy != nil && d.policy.PumpSafety() {
		d.record(func(s *DriverStats) { s.PumpOffs++ })
		d.check("pump off failed", t.Zone, d.valve.PumpOff())
	}
}

func (d *Driver) record(fn func(*DriverStats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

func (d *Driver) check(msg string, zone int, err error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	d.stats.Failures++
	l := d.logger
	d.mu.Unlock()
	if l != nil {
		l.Error(msg, "zone", zone, "error", err)
	}
}
