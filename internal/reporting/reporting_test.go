package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// ─── Test Doubles ──────────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	messages []published
	unsubbed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, payload, qos, retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	c.unsubbed = append(c.unsubbed, topic)
	return nil
}

func (c *fakeClient) IsConnected() bool { return true }

// deliver routes a message to the handler subscribed with pattern.
func (c *fakeClient) deliver(t *testing.T, pattern, topic, payload string) error {
	t.Helper()
	c.mu.Lock()
	h, ok := c.handlers[pattern]
	c.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", pattern)
	}
	return h(topic, []byte(payload))
}

// last returns the most recent payload on topic.
func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i], true
		}
	}
	return published{}, false
}

func (c *fakeClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if strings.HasPrefix(m.topic, prefix) {
			n++
		}
	}
	return n
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

type steadyClock struct{ now time.Time }

func (c steadyClock) NowUTC() (time.Time, bool) { return c.now, true }
func (c steadyClock) Monotonic() time.Duration { return 0 }

var testTopics = mqtt.NewTopics("garden", "irrigation-01")

type harness struct {
	engine *irrigation.Engine
	client *fakeClient
	bridge *Bridge
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{client: newFakeClient()}

	sink := irrigation.TransitionSinkFunc(func(tr irrigation.Transition) {
		if h.bridge != nil {
			h.bridge.OnZoneTransition(tr)
		}
	})
	h.engine = irrigation.NewEngine(irrigation.NewSettings(config.Default().Irrigation),
		steadyClock{now: time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)}, sink, irrigation.Options{})

	opts.Topics = testTopics
	h.bridge = NewBridge(h.engine, h.client, opts)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.bridge.Stop)
}

// ─── Codec ─────────────────────────────────────────────────────────

func TestParseConfigSet(t *testing.T) {
	t.Run("timezone hours to half hours", func(t *testing.T) {
		for in, want := range map[string]int{"5.5": 11, "-3": -6, "0": 0, " 1 ": 2} {
			cmd, err := ParseConfigSet("timezone", in)
			if err != nil {
				t.Fatalf("ParseConfigSet(timezone, %q) error = %v", in, err)
			}
			u := cmd.(irrigation.CmdUpdateSettings).Update
			if u.TimezoneOffsetHalfHours == nil || *u.TimezoneOffsetHalfHours != want {
				t.Errorf("timezone %q = %v, want %d", in, u.TimezoneOffsetHalfHours, want)
			}
		}
	})

	t.Run("integers and booleans", func(t *testing.T) {
		cmd, err := ParseConfigSet("max_enabled_zones", "4")
		if err != nil || *cmd.(irrigation.CmdUpdateSettings).Update.MaxEnabledZones != 4 {
			t.Errorf("max_enabled_zones = %v, %v", cmd, err)
		}
		cmd, err = ParseConfigSet("max_zone_run_time", "90")
		if err != nil || *cmd.(irrigation.CmdUpdateSettings).Update.MaxRunMinutes != 90 {
			t.Errorf("max_zone_run_time = %v, %v", cmd, err)
		}
		cmd, err = ParseConfigSet("pump_safety", "off")
		if err != nil || *cmd.(irrigation.CmdUpdateSettings).Update.PumpSafety {
			t.Errorf("pump_safety = %v, %v", cmd, err)
		}
		cmd, err = ParseConfigSet("daylight_saving", "TRUE")
		if err != nil || !*cmd.(irrigation.CmdUpdateSettings).Update.DaylightSaving {
			t.Errorf("daylight_saving = %v, %v", cmd, err)
		}
	})

	t.Run("scheduling toggles the scheduler", func(t *testing.T) {
		cmd, err := ParseConfigSet("scheduling", "0")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if got, ok := cmd.(irrigation.CmdSetSchedulingEnabled); !ok || got.Enabled {
			t.Errorf("cmd = %#v, want CmdSetSchedulingEnabled{false}", cmd)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := ParseConfigSet("colour", "blue"); !errors.Is(err, ErrUnknownSetting) {
			t.Errorf("unknown key error = %v", err)
		}
		if _, err := ParseConfigSet("timezone", "utc"); !errors.Is(err, ErrBadPayload) {
			t.Errorf("bad timezone error = %v", err)
		}
		if _, err := ParseConfigSet("pump_safety", "maybe"); !errors.Is(err, ErrBadPayload) {
			t.Errorf("bad bool error = %v", err)
		}
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    irrigation.Command
		action  Action
	}{
		{"status", "", nil, ActionStatus},
		{"restart", "", nil, ActionRestart},
		{"rain_delay", "120", irrigation.CmdSetRainDelay{Minutes: 120}, ActionExecute},
		{"clear_rain", "", irrigation.CmdClearRainDelay{}, ActionExecute},
		{"enable_schedule", "1", irrigation.CmdSetSchedulingEnabled{Enabled: true}, ActionExecute},
		{"enable_schedule", "false", irrigation.CmdSetSchedulingEnabled{Enabled: false}, ActionExecute},
		{"start_zone", `{"zone":3,"minutes":10}`, irrigation.CmdStartZone{Zone: 3, Minutes: 10}, ActionExecute},
		{"stop_zone", "3", irrigation.CmdStopZone{Zone: 3}, ActionExecute},
		{"rain_cancel", "2", irrigation.CmdCancelZoneForRain{Zone: 2}, ActionExecute},
		{"zone_5", "ON", irrigation.CmdStartZone{Zone: 5, Minutes: 7}, ActionExecute},
		{"zone_5", "off", irrigation.CmdStopZone{Zone: 5}, ActionExecute},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.payload, func(t *testing.T) {
			cmd, action, err := ParseCommand(tt.name, tt.payload, 7)
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if cmd != tt.want || action != tt.action {
				t.Errorf("ParseCommand() = %#v, %v; want %#v, %v", cmd, action, tt.want, tt.action)
			}
		})
	}

	for _, bad := range []struct{ name, payload string }{
		{"start_zone", "3"},
		{"stop_zone", "three"},
		{"zone_x", "ON"},
		{"zone_2", "TOGGLE"},
	} {
		if _, _, err := ParseCommand(bad.name, bad.payload, 7); !errors.Is(err, ErrBadPayload) {
			t.Errorf("ParseCommand(%s, %q) error = %v, want ErrBadPayload", bad.name, bad.payload, err)
		}
	}
	if _, _, err := ParseCommand("self_destruct", "", 7); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestParseScheduleMessage(t *testing.T) {
	t.Run("updateSchedule", func(t *testing.T) {
		cmd, err := ParseScheduleMessage([]byte(`{"command":"updateSchedule","schedules":[
			{"zone":1,"days":["mon","wed"],"start_time":"06:30","duration":15,"expires":1748908800},
			{"zone":2,"days":["daily"],"start_time":"21:00","duration":5}]}`), true)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		replace, ok := cmd.(irrigation.CmdReplaceAISchedules)
		if !ok || len(replace.Entries) != 2 {
			t.Fatalf("cmd = %#v", cmd)
		}
		first := replace.Entries[0]
		want := irrigation.DayBit(time.Monday) | irrigation.DayBit(time.Wednesday)
		if first.Kind != irrigation.KindAI || first.DayMask != want || first.Hour != 6 || first.Minute != 30 ||
			first.DurationMin != 15 || first.ExpiresAt != 1748908800 {
			t.Errorf("entries[0] = %+v", first)
		}
		if replace.Entries[1].DayMask != irrigation.AllDays {
			t.Errorf("entries[1].DayMask = %b", replace.Entries[1].DayMask)
		}
	})

	t.Run("addSchedule kind follows topic", func(t *testing.T) {
		body := []byte(`{"command":"addSchedule","zone":2,"days":["sat"],"start_time":"07:05","duration":10}`)
		basic, err := ParseScheduleMessage(body, false)
		if err != nil || basic.(irrigation.CmdAddSchedule).Kind != irrigation.KindBasic {
			t.Errorf("schedule/set addSchedule = %#v, %v", basic, err)
		}
		ai, err := ParseScheduleMessage(body, true)
		if err != nil || ai.(irrigation.CmdAddSchedule).Kind != irrigation.KindAI {
			t.Errorf("schedule/ai/set addSchedule = %#v, %v", ai, err)
		}
		typed, err := ParseScheduleMessage([]byte(`{"command":"addSchedule","type":"ai","zone":2,"days":["sat"],"start_time":"07:05","duration":10}`), false)
		if err != nil || typed.(irrigation.CmdAddSchedule).Kind != irrigation.KindAI {
			t.Errorf("typed addSchedule = %#v, %v", typed, err)
		}
	})

	t.Run("remove enable rain", func(t *testing.T) {
		cmd, err := ParseScheduleMessage([]byte(`{"command":"removeSchedule","id":4}`), false)
		if err != nil || cmd != (irrigation.CmdRemoveSchedule{ID: 4}) {
			t.Errorf("removeSchedule = %#v, %v", cmd, err)
		}
		cmd, err = ParseScheduleMessage([]byte(`{"command":"enableSchedule","id":4,"enabled":false}`), false)
		if err != nil || cmd != (irrigation.CmdEnableSchedule{ID: 4, Enabled: false}) {
			t.Errorf("enableSchedule(id) = %#v, %v", cmd, err)
		}
		cmd, err = ParseScheduleMessage([]byte(`{"command":"enableSchedule","enabled":true}`), false)
		if err != nil || cmd != (irrigation.CmdSetSchedulingEnabled{Enabled: true}) {
			t.Errorf("enableSchedule = %#v, %v", cmd, err)
		}
		cmd, err = ParseScheduleMessage([]byte(`{"command":"rainDelay","minutes":60}`), false)
		if err != nil || cmd != (irrigation.CmdSetRainDelay{Minutes: 60}) {
			t.Errorf("rainDelay = %#v, %v", cmd, err)
		}
		cmd, err = ParseScheduleMessage([]byte(`{"command":"cancelRain"}`), false)
		if err != nil || cmd != (irrigation.CmdClearRainDelay{}) {
			t.Errorf("cancelRain = %#v, %v", cmd, err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		for _, body := range []string{
			`not json`,
			`{"command":"removeSchedule"}`,
			`{"command":"enableSchedule"}`,
		} {
			if _, err := ParseScheduleMessage([]byte(body), false); !errors.Is(err, ErrBadPayload) {
				t.Errorf("ParseScheduleMessage(%s) error = %v, want ErrBadPayload", body, err)
			}
		}
		if _, err := ParseScheduleMessage([]byte(`{"command":"explode"}`), false); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("unknown command error = %v", err)
		}
		_, err := ParseScheduleMessage([]byte(`{"command":"addSchedule","zone":1,"days":["someday"],"start_time":"07:00","duration":5}`), false)
		if !errors.Is(err, irrigation.ErrInvalidSchedule) {
			t.Errorf("bad day error = %v, want ErrInvalidSchedule", err)
		}
	})
}

// ─── Bridge ────────────────────────────────────────────────────────

func TestBridge_StartSubscribesAndPublishes(t *testing.T) {
	h := newHarness(t, Options{Discovery: true, Retain: true})
	h.start(t)

	for _, topic := range []string{
		testTopics.ConfigSetAll(), testTopics.CommandAll(), testTopics.ScheduleSet(), testTopics.ScheduleAISet(),
	} {
		if _, ok := h.client.handlers[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}

	status, ok := h.client.last(testTopics.DeviceStatus())
	if !ok || !status.retained {
		t.Fatalf("status/device = %+v, %v", status, ok)
	}
	var doc irrigation.DeviceStatus
	if err := json.Unmarshal(status.payload, &doc); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !doc.SchedulingEnabled || len(doc.Zones) != 8 {
		t.Errorf("status = %+v", doc)
	}

	cfgMsg, ok := h.client.last(testTopics.DeviceConfig())
	if !ok {
		t.Fatal("config/device not published")
	}
	var cfg DeviceConfigMessage
	if err := json.Unmarshal(cfgMsg.payload, &cfg); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	if cfg.DeviceID != "irrigation-01" || cfg.MaxZones != 16 || cfg.MaxEnabledZones != 8 || !cfg.PumpSafety {
		t.Errorf("config = %+v", cfg)
	}

	// One controller document plus a switch per enabled zone.
	if n := h.client.count(mqtt.DiscoveryPrefix + "/"); n != 9 {
		t.Errorf("discovery documents = %d, want 9", n)
	}
	sw, ok := h.client.last(testTopics.DiscoverySwitch(3))
	if !ok {
		t.Fatal("zone 3 switch not published")
	}
	var dc DiscoveryConfig
	if err := json.Unmarshal(sw.payload, &dc); err != nil {
		t.Fatalf("decoding discovery: %v", err)
	}
	if dc.CommandTopic != testTopics.Command("zone_3") || dc.StateTopic != testTopics.ZoneStatus(3) || !sw.retained {
		t.Errorf("zone 3 discovery = %+v", dc)
	}
}

func TestBridge_ScheduleSet(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	err := h.client.deliver(t, testTopics.ScheduleSet(), testTopics.ScheduleSet(),
		`{"command":"addSchedule","zone":2,"days":["mon"],"start_time":"07:00","duration":10}`)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res, _ := h.client.last(testTopics.ScheduleResult()); string(res.payload) != ResultSuccess {
		t.Errorf("schedule/result = %q, want success", res.payload)
	}
	if counts := h.engine.ScheduleCounts(); counts.Basic != 1 {
		t.Errorf("counts = %+v, want one basic", counts)
	}
	if _, ok := h.client.last(testTopics.ScheduleStatus()); !ok {
		t.Error("status/schedules not republished")
	}

	err = h.client.deliver(t, testTopics.ScheduleSet(), testTopics.ScheduleSet(), `{"command":"removeSchedule","id":99}`)
	if !errors.Is(err, irrigation.ErrScheduleNotFound) {
		t.Errorf("remove unknown error = %v", err)
	}
	if res, _ := h.client.last(testTopics.ScheduleResult()); string(res.payload) != ResultError {
		t.Errorf("schedule/result = %q, want error", res.payload)
	}
	if h.bridge.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", h.bridge.Stats().Failed)
	}
}

func TestBridge_ScheduleAISetReplaces(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	if _, err := h.engine.AddAI(1, irrigation.AllDays, 5, 0, 5, 0); err != nil {
		t.Fatalf("AddAI() error = %v", err)
	}

	// The zone 12 entry is beyond the enabled zones and is skipped.
	body := `{"command":"updateSchedule","schedules":[
		{"zone":3,"days":["tue"],"start_time":"06:00","duration":20},
		{"zone":12,"days":["tue"],"start_time":"06:30","duration":20}]}`
	if err := h.client.deliver(t, testTopics.ScheduleAISet(), testTopics.ScheduleAISet(), body); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res, _ := h.client.last(testTopics.ScheduleAIResult()); string(res.payload) != ResultSuccess {
		t.Errorf("schedule/ai/result = %q, want success", res.payload)
	}
	schedules := h.engine.Schedules()
	if len(schedules) != 1 || schedules[0].Zone != 3 || schedules[0].Kind != irrigation.KindAI {
		t.Errorf("schedules = %+v", schedules)
	}
}

func TestBridge_CommandsAndTransitions(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("start_zone"), `{"zone":3,"minutes":10}`); err != nil {
		t.Fatalf("start_zone error = %v", err)
	}
	if !h.engine.IsZoneActive(3) {
		t.Fatal("zone 3 not running")
	}
	if err := h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("stop_zone"), "3"); err != nil {
		t.Fatalf("stop_zone error = %v", err)
	}

	// Stop drains the transition queue.
	h.bridge.Stop()

	status, ok := h.client.last(testTopics.ZoneStatus(3))
	if !ok {
		t.Fatal("status/zone/3 not published")
	}
	var zs ZoneStatusMessage
	if err := json.Unmarshal(status.payload, &zs); err != nil {
		t.Fatalf("decoding zone status: %v", err)
	}
	if zs.Zone != 3 || zs.Status != "idle" {
		t.Errorf("zone status = %+v, want idle", zs)
	}
	if n := h.client.count(testTopics.ZoneEvents()); n != 2 {
		t.Errorf("zone events = %d, want 2", n)
	}
	if len(h.client.unsubbed) != 4 {
		t.Errorf("unsubscribed %d topics, want 4", len(h.client.unsubbed))
	}
}

func TestBridge_CommandErrors(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	err := h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("start_zone"), `{"zone":12,"minutes":10}`)
	if !errors.Is(err, irrigation.ErrZoneDisabled) {
		t.Errorf("disabled zone error = %v", err)
	}
	err = h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("restart"), "")
	if !errors.Is(err, ErrRestartUnsupported) {
		t.Errorf("restart error = %v", err)
	}
}

func TestBridge_RestartAndStatus(t *testing.T) {
	restarted := make(chan struct{}, 1)
	h := newHarness(t, Options{OnRestart: func() { restarted <- struct{}{} }})
	h.start(t)

	if err := h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("restart"), ""); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	select {
	case <-restarted:
	default:
		t.Error("restart callback not called")
	}

	h.client.reset()
	if err := h.client.deliver(t, testTopics.CommandAll(), testTopics.Command("status"), ""); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if _, ok := h.client.last(testTopics.DeviceStatus()); !ok {
		t.Error("status command did not publish status/device")
	}
}

func TestBridge_ConfigSet(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	if err := h.client.deliver(t, testTopics.ConfigSetAll(), testTopics.ConfigSet("timezone"), "5.5"); err != nil {
		t.Fatalf("timezone error = %v", err)
	}
	if got := h.engine.Configuration().TimezoneOffsetHalfHours(); got != 11 {
		t.Errorf("TimezoneOffsetHalfHours() = %d, want 11", got)
	}
	msg, _ := h.client.last(testTopics.DeviceConfig())
	var cfg DeviceConfigMessage
	if err := json.Unmarshal(msg.payload, &cfg); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	if cfg.Timezone != 5.5 {
		t.Errorf("config timezone = %v, want 5.5", cfg.Timezone)
	}

	if err := h.client.deliver(t, testTopics.ConfigSetAll(), testTopics.ConfigSet("scheduling"), "false"); err != nil {
		t.Fatalf("scheduling error = %v", err)
	}
	if h.engine.Configuration().SchedulingEnabled() {
		t.Error("scheduling still enabled")
	}

	err := h.client.deliver(t, testTopics.ConfigSetAll(), testTopics.ConfigSet("colour"), "blue")
	if !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("unknown setting error = %v", err)
	}
}

func TestBridge_QueueOverflow(t *testing.T) {
	h := newHarness(t, Options{QueueSize: 1})

	for range 3 {
		h.bridge.OnZoneTransition(irrigation.Transition{Zone: 1, On: true})
	}
	if got := h.bridge.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestZoneStatusFromTransition(t *testing.T) {
	at := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		tr            irrigation.Transition
		wantStatus    string
		wantRemaining int
	}{
		{irrigation.Transition{Zone: 1, On: true, DurationMin: 15, Reason: irrigation.ReasonStarted, At: at}, "running", 900},
		{irrigation.Transition{Zone: 1, Reason: irrigation.ReasonCompleted, At: at}, "completed", 0},
		{irrigation.Transition{Zone: 1, Reason: irrigation.ReasonRainCancelled, At: at}, "rain_cancelled", 0},
		{irrigation.Transition{Zone: 1, Reason: irrigation.ReasonPreempted, At: at}, "idle", 0},
	}
	for _, tt := range tests {
		got := zoneStatus(tt.tr)
		if got.Status != tt.wantStatus || got.TimeRemaining != tt.wantRemaining || got.Timestamp != at.Unix() {
			t.Errorf("zoneStatus(%v) = %+v", tt.tr.Reason, got)
		}
	}
	if zoneStatus(irrigation.Transition{Zone: 2}).Timestamp != 0 {
		t.Error("zero At should give zero timestamp")
	}
}
