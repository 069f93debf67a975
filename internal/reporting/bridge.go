package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

const (
	// DefaultQueueSize is the transition queue length.
	DefaultQueueSize = 64

	// DefaultStatusInterval is how often the full status is republished.
	DefaultStatusInterval = 60 * time.Second

	// DefaultSwitchMinutes is the run length for a Home Assistant switch ON.
	DefaultSwitchMinutes = 10

	ResultSuccess = "success"
	ResultError   = "error"
)

// ErrRestartUnsupported is returned for a restart command when no restart
// callback was configured.
var ErrRestartUnsupported = errors.New("reporting: restart not supported")

// Engine is the part of the irrigation engine the bridge drives.
type Engine interface {
	Execute(cmd irrigation.Command) (irrigation.Result, error)
	Status() irrigation.DeviceStatus
	Configuration() irrigation.Configuration
	ZoneCount() int
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Topics     mqtt.Topics
	DeviceName string
	QoS        byte
	Retain     bool
	Discovery  bool

	QueueSize      int
	StatusInterval time.Duration
	SwitchMinutes  int

	// OnRestart is invoked for the restart command.
	OnRestart func()
}

// Stats counts bridge traffic.
type Stats struct {
	Received  uint64 `json:"received"`
	Failed    uint64 `json:"failed"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Bridge connects the engine to MQTT: inbound config, command and schedule
// messages become engine commands; transitions and status go out.
//
// OnZoneTransition only queues; all publishing happens on the bridge
// goroutine or on the MQTT callback goroutine.
type Bridge struct {
	engine Engine
	client MQTTClient
	opts   Options
	logger Logger

	queue chan irrigation.Transition

	received  atomic.Uint64
	failed    atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool
}

// NewBridge creates a bridge. It does not subscribe until Start.
func NewBridge(engine Engine, client MQTTClient, opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.SwitchMinutes <= 0 {
		opts.SwitchMinutes = DefaultSwitchMinutes
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	if opts.DeviceName == "" {
		opts.DeviceName = opts.Topics.Device
	}
	return &Bridge{
		engine: engine,
		client: client,
		opts:   opts,
		logger: noopLogger{},
		queue:  make(chan irrigation.Transition, opts.QueueSize),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Call before Start.
func (b *Bridge) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// Stats returns the traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Failed:    b.failed.Load(),
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Start subscribes to the inbound topics, publishes the initial state and
// starts the publisher goroutine.
func (b *Bridge) Start(ctx context.Context) error {
	t := b.opts.Topics
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{t.ConfigSetAll(), b.handleConfig},
		{t.CommandAll(), b.handleCommand},
		{t.ScheduleSet(), b.handleSchedule(false)},
		{t.ScheduleAISet(), b.handleSchedule(true)},
	}
	for _, s := range subs {
		if err := b.client.Subscribe(s.topic, b.opts.QoS, s.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		b.logger.Debug("subscribed", "topic", s.topic)
	}

	b.Republish()

	b.started.Store(true)
	b.wg.Add(1)
	go b.run(ctx)

	b.logger.Info("reporting bridge started", "root", t.Root())
	return nil
}

// Stop stops the publisher goroutine and unsubscribes.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		if !b.started.Load() {
			return
		}
		t := b.opts.Topics
		for _, topic := range []string{t.ConfigSetAll(), t.CommandAll(), t.ScheduleSet(), t.ScheduleAISet()} {
			if err := b.client.Unsubscribe(topic); err != nil {
				b.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.logger.Info("reporting bridge stopped")
	})
}

// OnZoneTransition implements irrigation.TransitionSink. Transitions are
// dropped, and counted, when the queue is full.
func (b *Bridge) OnZoneTransition(t irrigation.Transition) {
	select {
	case b.queue <- t:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case <-b.done:
			b.drain()
			return
		case t := <-b.queue:
			b.publishTransition(t)
			b.PublishStatus()
		case <-ticker.C:
			b.PublishStatus()
		}
	}
}

// drain publishes whatever is still queued.
func (b *Bridge) drain() {
	for {
		select {
		case t := <-b.queue:
			b.publishTransition(t)
		default:
			return
		}
	}
}

// Republish sends discovery, config, schedules and status. Suitable as the
// MQTT on-connect callback.
func (b *Bridge) Republish() {
	if b.opts.Discovery {
		b.PublishDiscovery()
	}
	b.PublishConfig()
	b.PublishSchedules()
	b.PublishStatus()
}

// ─── Inbound ───────────────────────────────────────────────────────

func (b *Bridge) handleConfig(topic string, payload []byte) error {
	b.received.Add(1)
	key, ok := b.opts.Topics.ConfigKey(topic)
	if !ok {
		return b.fail(fmt.Errorf("%w: topic %s", ErrUnknownSetting, topic))
	}
	cmd, err := ParseConfigSet(key, string(payload))
	if err != nil {
		return b.fail(err)
	}
	if _, err := b.engine.Execute(cmd); err != nil {
		return b.fail(fmt.Errorf("config %s: %w", key, err))
	}
	b.logger.Info("setting changed", "key", key, "value", string(payload))

	b.PublishConfig()
	b.PublishStatus()
	return nil
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	b.received.Add(1)
	name, ok := b.opts.Topics.CommandName(topic)
	if !ok {
		return b.fail(fmt.Errorf("%w: topic %s", ErrUnknownCommand, topic))
	}
	cmd, action, err := ParseCommand(name, string(payload), b.opts.SwitchMinutes)
	if err != nil {
		return b.fail(err)
	}

	switch action {
	case ActionStatus:
		b.PublishStatus()
		return nil
	case ActionRestart:
		if b.opts.OnRestart == nil {
			return b.fail(ErrRestartUnsupported)
		}
		b.logger.Warn("restart requested over mqtt")
		b.opts.OnRestart()
		return nil
	}

	res, err := b.engine.Execute(cmd)
	if err != nil {
		return b.fail(fmt.Errorf("command %s: %w", name, err))
	}
	b.logger.Info("command executed", "command", name, "result", res.Message)
	b.PublishStatus()
	return nil
}

func (b *Bridge) handleSchedule(ai bool) mqtt.MessageHandler {
	resultTopic := b.opts.Topics.ScheduleResult()
	if ai {
		resultTopic = b.opts.Topics.ScheduleAIResult()
	}
	return func(_ string, payload []byte) error {
		b.received.Add(1)
		err := b.applySchedule(payload, ai)

		result := ResultSuccess
		if err != nil {
			result = ResultError
		}
		b.publish(resultTopic, []byte(result), false)

		if err != nil {
			return b.fail(err)
		}
		b.PublishSchedules()
		b.PublishStatus()
		return nil
	}
}

func (b *Bridge) applySchedule(payload []byte, ai bool) error {
	cmd, err := ParseScheduleMessage(payload, ai)
	if err != nil {
		return err
	}
	res, err := b.engine.Execute(cmd)
	if err != nil {
		// A replace that loaded some entries still counts as applied.
		if _, replace := cmd.(irrigation.CmdReplaceAISchedules); replace && len(res.ScheduleIDs) > 0 {
			b.logger.Warn("schedule update partially applied", "loaded", len(res.ScheduleIDs), "error", err)
			return nil
		}
		return err
	}
	b.logger.Info("schedule command applied", "result", res.Message, "ai", ai)
	return nil
}

func (b *Bridge) fail(err error) error {
	b.failed.Add(1)
	return err
}

// ─── Outbound ──────────────────────────────────────────────────────

// ZoneEvent is published on events/zone for every transition.
type ZoneEvent struct {
	Zone        int                     `json:"zone"`
	On          bool                    `json:"on"`
	Reason      irrigation.Reason       `json:"reason"`
	Origin      irrigation.Origin       `json:"origin"`
	Kind        irrigation.ScheduleKind `json:"type"`
	ScheduleID  uint32                  `json:"schedule_id,omitempty"`
	DurationMin int                     `json:"duration_min"`
	ActiveCount int                     `json:"active_count"`
	ElapsedSec  int64                   `json:"elapsed_sec,omitempty"`
	Timestamp   int64                   `json:"timestamp"`
}

// ZoneStatusMessage is published retained on status/zone/{n}.
type ZoneStatusMessage struct {
	Zone          int    `json:"zone"`
	Status        string `json:"status"`
	TimeRemaining int    `json:"time_remaining"`
	Timestamp     int64  `json:"timestamp"`
}

// ScheduleStatusMessage is published on status/schedules.
type ScheduleStatusMessage struct {
	Schedules []irrigation.Schedule     `json:"schedules"`
	Counts    irrigation.ScheduleCounts `json:"counts"`
	Timestamp int64                     `json:"timestamp"`
}

// DeviceConfigMessage is published on config/device.
type DeviceConfigMessage struct {
	DeviceID          string  `json:"device_id"`
	Timezone          float64 `json:"timezone"`
	DaylightSaving    bool    `json:"daylight_saving"`
	MaxZones          int     `json:"max_zones"`
	MaxEnabledZones   int     `json:"max_enabled_zones"`
	MaxZoneRunTime    int     `json:"max_zone_run_time"`
	PumpSafety        bool    `json:"pump_safety"`
	SchedulingEnabled bool    `json:"scheduling"`
}

func zoneEvent(t irrigation.Transition) ZoneEvent {
	ev := ZoneEvent{
		Zone:        t.Zone,
		On:          t.On,
		Reason:      t.Reason,
		Origin:      t.Origin,
		Kind:        t.Kind,
		ScheduleID:  t.ScheduleID,
		DurationMin: t.DurationMin,
		ActiveCount: t.ActiveCount,
		ElapsedSec:  int64(t.Elapsed / time.Second),
	}
	if !t.At.IsZero() {
		ev.Timestamp = t.At.Unix()
	}
	return ev
}

func zoneStatus(t irrigation.Transition) ZoneStatusMessage {
	msg := ZoneStatusMessage{Zone: t.Zone, Status: irrigation.StateIdle.String()}
	switch {
	case t.On:
		msg.Status = irrigation.StateRunning.String()
		msg.TimeRemaining = t.DurationMin * 60
	case t.Reason == irrigation.ReasonCompleted:
		msg.Status = irrigation.StateCompleted.String()
	case t.Reason == irrigation.ReasonRainCancelled:
		msg.Status = irrigation.StateRainCancelled.String()
	}
	if !t.At.IsZero() {
		msg.Timestamp = t.At.Unix()
	}
	return msg
}

func (b *Bridge) publishTransition(t irrigation.Transition) {
	b.publishJSON(b.opts.Topics.ZoneEvents(), zoneEvent(t), false)
	b.publishJSON(b.opts.Topics.ZoneStatus(t.Zone), zoneStatus(t), b.opts.Retain)
}

// PublishStatus publishes the full device status.
func (b *Bridge) PublishStatus() {
	b.publishJSON(b.opts.Topics.DeviceStatus(), b.engine.Status(), b.opts.Retain)
}

// PublishSchedules publishes the schedule table.
func (b *Bridge) PublishSchedules() {
	st := b.engine.Status()
	b.publishJSON(b.opts.Topics.ScheduleStatus(), ScheduleStatusMessage{
		Schedules: st.Schedules,
		Counts:    st.Counts,
		Timestamp: st.Timestamp,
	}, b.opts.Retain)
}

// PublishConfig publishes the current runtime settings.
func (b *Bridge) PublishConfig() {
	cfg := b.engine.Configuration()
	b.publishJSON(b.opts.Topics.DeviceConfig(), DeviceConfigMessage{
		DeviceID:          b.opts.Topics.Device,
		Timezone:          float64(cfg.TimezoneOffsetHalfHours()) / 2,
		DaylightSaving:    cfg.DaylightSavingActive(),
		MaxZones:          b.engine.ZoneCount(),
		MaxEnabledZones:   cfg.MaxEnabledZones(),
		MaxZoneRunTime:    cfg.MaxRunMinutes(),
		PumpSafety:        cfg.PumpSafety(),
		SchedulingEnabled: cfg.SchedulingEnabled(),
	}, true)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding mqtt payload", "topic", topic, "error", err)
		return
	}
	b.publish(topic, data, retained)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.client.Publish(topic, payload, b.opts.QoS, retained); err != nil {
		b.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	b.published.Add(1)
}
