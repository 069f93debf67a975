package actuation

import (
	"sync"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// Fanout delivers each transition to its sinks in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []irrigation.TransitionSink
}

// NewFanout returns a Fanout over sinks; nil entries are skipped.
func NewFanout(sinks ...irrigation.TransitionSink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add appends a sink. Sinks added after the engine starts see only later
// transitions.
func (f *Fanout) Add(s irrigation.TransitionSink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// OnZoneTransition implements irrigation.TransitionSink.
func (f *Fanout) OnZoneTransition(t irrigation.Transition) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		s.OnZoneTransition(t)
	}
}
