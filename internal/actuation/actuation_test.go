package actuation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// ─── Test doubles ──────────────────────────────────────────────────

type fakeValve struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (v *fakeValve) log(s string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, s)
	return v.err
}

func (v *fakeValve) Start(zone, minutes int) error { return v.log(fmt.Sprintf("start %d %d", zone, minutes)) }
func (v *fakeValve) Stop(zone int) error { return v.log(fmt.Sprintf("stop %d", zone)) }
func (v *fakeValve) PumpOff() error { return v.log("pump off") }

func (v *fakeValve) got() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

type pumpPolicy bool

func (p pumpPolicy) PumpSafety() bool { return bool(p) }

type captureLogger struct {
	mu     sync.Mutex
	errors int
	infos  int
}

func (l *captureLogger) Info(string, ...any) {
	l.mu.Lock()
	l.infos++
	l.mu.Unlock()
}

func (l *captureLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []string
	err      error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if retained || qos != 1 {
		return fmt.Errorf("unexpected qos %d retained %v", qos, retained)
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
	return p.err
}

type steadyClock struct{ now time.Time }

func (c steadyClock) NowUTC() (time.Time, bool) { return c.now, true }
func (c steadyClock) Monotonic() time.Duration { return 0 }

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ─── Driver ────────────────────────────────────────────────────────

func TestDriver_StartStop(t *testing.T) {
	valve := &fakeValve{}
	d := NewDriver(valve, pumpPolicy(true))

	d.OnZoneTransition(irrigation.Transition{Zone: 3, On: true, DurationMin: 10, ActiveCount: 1})
	d.OnZoneTransition(irrigation.Transition{Zone: 4, On: true, DurationMin: 5, ActiveCount: 2})
	d.OnZoneTransition(irrigation.Transition{Zone: 3, On: false, ActiveCount: 1})
	d.OnZoneTransition(irrigation.Transition{Zone: 4, On: false, ActiveCount: 0})

	assertCalls(t, valve.got(), []string{"start 3 10", "start 4 5", "stop 3", "stop 4", "pump off"})
	if s := d.Stats(); s.Starts != 2 || s.Stops != 2 || s.PumpOffs != 1 || s.Failures != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDriver_PumpSafetyOff(t *testing.T) {
	for _, policy := range []PumpPolicy{pumpPolicy(false), nil} {
		valve := &fakeValve{}
		d := NewDriver(valve, policy)
		d.OnZoneTransition(irrigation.Transition{Zone: 1, On: false, ActiveCount: 0})
		assertCalls(t, valve.got(), []string{"stop 1"})
	}
}

func TestDriver_ValveFailuresAreCounted(t *testing.T) {
	valve := &fakeValve{err: errors.New("bus timeout")}
	log := &captureLogger{}
	d := NewDriver(valve, pumpPolicy(true))
	d.SetLogger(log)

	d.OnZoneTransition(irrigation.Transition{Zone: 2, On: true, DurationMin: 1, ActiveCount: 1})
	d.OnZoneTransition(irrigation.Transition{Zone: 2, On: false, ActiveCount: 0})

	if s := d.Stats(); s.Failures != 3 {
		t.Errorf("Failures = %d, want 3", s.Failures)
	}
	if log.errors != 3 {
		t.Errorf("logged errors = %d, want 3", log.errors)
	}
}

func TestDriver_WithEngine(t *testing.T) {
	cfg := config.Default().Irrigation
	cfg.PumpSafety = true
	settings := irrigation.NewSettings(cfg)

	valve := &fakeValve{}
	engine := irrigation.NewEngine(settings,
		steadyClock{now: time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)},
		NewDriver(valve, settings), irrigation.Options{})

	if _, err := engine.StartManual(1, 10); err != nil {
		t.Fatalf("StartManual() error = %v", err)
	}
	if err := engine.StopZone(1); err != nil {
		t.Fatalf("StopZone() error = %v", err)
	}
	assertCalls(t, valve.got(), []string{"start 1 10", "stop 1", "pump off"})
}

// ─── Fanout ────────────────────────────────────────────────────────

func TestFanout_Order(t *testing.T) {
	var order []string
	sink := func(name string) irrigation.TransitionSink {
		return irrigation.TransitionSinkFunc(func(irrigation.Transition) { order = append(order, name) })
	}

	f := NewFanout(sink("driver"), nil, sink("recorder"))
	f.Add(sink("metrics"))
	f.Add(nil)

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	f.OnZoneTransition(irrigation.Transition{Zone: 1, On: true})
	assertCalls(t, order, []string{"driver", "recorder", "metrics"})
}

// ─── Valves ────────────────────────────────────────────────────────

func TestMQTTValve(t *testing.T) {
	pub := &fakePublisher{}
	topics := mqtt.NewTopics("irrigation", "ctrl-1")
	v := NewMQTTValve(pub, topics)

	if err := v.Start(3, 10); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := v.Stop(3); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := v.PumpOff(); err != nil {
		t.Fatalf("PumpOff() error = %v", err)
	}

	assertCalls(t, pub.topics, []string{topics.ValveZone(3), topics.ValveZone(3), topics.ValvePump()})

	var cmd ValveCommand
	if err := json.Unmarshal([]byte(pub.payloads[0]), &cmd); err != nil {
		t.Fatalf("decoding start payload: %v", err)
	}
	if !cmd.On || cmd.Minutes != 10 {
		t.Errorf("start payload = %+v", cmd)
	}
	if pub.payloads[1] != `{"on":false}` {
		t.Errorf("stop payload = %s", pub.payloads[1])
	}
}

func TestMQTTValve_PublishError(t *testing.T) {
	pub := &fakePublisher{err: mqtt.ErrNotConnected}
	v := NewMQTTValve(pub, mqtt.NewTopics("irrigation", "ctrl-1"))
	if err := v.Stop(1); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Stop() error = %v, want ErrNotConnected", err)
	}
}

func TestLogValve(t *testing.T) {
	log := &captureLogger{}
	v := NewLogValve(log)
	_ = v.Start(1, 5)
	_ = v.Stop(1)
	_ = v.PumpOff()
	if log.infos != 3 {
		t.Errorf("info lines = %d, want 3", log.infos)
	}
}
