package mqtt

import (
	"fmt"
	"strings"
)

// DiscoveryPrefix is the Home Assistant discovery root.
const DiscoveryPrefix = "homeassistant"

// Topics builds the controller's topic tree. Every topic is rooted at
// {prefix}{device}/, so several controllers can share one broker.
//
//	topics := mqtt.NewTopics("irrigation/", "garden-01")
//	topics.ZoneStatus(3) // "irrigation/garden-01/status/zone/3"
type Topics struct {
	Prefix string
	Device string
}

// NewTopics returns a builder for prefix and device. A non-empty prefix is
// given a trailing slash if it lacks one.
func NewTopics(prefix, device string) Topics {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Topics{Prefix: prefix, Device: device}
}

// Root returns "{prefix}{device}/".
func (t Topics) Root() string {
	return t.Prefix + t.Device + "/"
}

// ─── Status (published, retained) ───────────────────────────────────

// Availability carries "online"/"offline"; it is also the LWT topic.
func (t Topics) Availability() string { return t.Root() + "status/availability" }

// DeviceStatus carries the full device status document.
func (t Topics) DeviceStatus() string { return t.Root() + "status/device" }

// ZoneStatus carries the state of one zone.
func (t Topics) ZoneStatus(zone int) string {
	return fmt.Sprintf("%sstatus/zone/%d", t.Root(), zone)
}

// ScheduleStatus carries the schedule table.
func (t Topics) ScheduleStatus() string { return t.Root() + "status/schedules" }

// DeviceConfig carries the current runtime settings.
func (t Topics) DeviceConfig() string { return t.Root() + "config/device" }

// ZoneEvents carries one message per zone transition (not retained).
func (t Topics) ZoneEvents() string { return t.Root() + "events/zone" }

// ─── Inbound (subscribed) ───────────────────────────────────────────

// ConfigSet is the topic that changes one setting.
func (t Topics) ConfigSet(key string) string { return t.Root() + "config/" + key + "/set" }

// ConfigSetAll matches every ConfigSet topic.
func (t Topics) ConfigSetAll() string { return t.Root() + "config/+/set" }

// Command is the topic for a named device command.
func (t Topics) Command(name string) string { return t.Root() + "command/" + name }

// CommandAll matches every Command topic.
func (t Topics) CommandAll() string { return t.Root() + "command/+" }

// ScheduleSet receives JSON schedule commands.
func (t Topics) ScheduleSet() string { return t.Root() + "schedule/set" }

// ScheduleAISet receives JSON commands from the AI schedule service.
func (t Topics) ScheduleAISet() string { return t.Root() + "schedule/ai/set" }

// ScheduleResult answers ScheduleSet.
func (t Topics) ScheduleResult() string { return t.Root() + "schedule/result" }

// ScheduleAIResult answers ScheduleAISet.
func (t Topics) ScheduleAIResult() string { return t.Root() + "schedule/ai/result" }

// ─── Valve bridge ───────────────────────────────────────────────────

// ValveZone drives one zone valve through the serial bridge.
func (t Topics) ValveZone(zone int) string {
	return fmt.Sprintf("%svalve/zone/%d/set", t.Root(), zone)
}

// ValvePump drives the pump relay.
func (t Topics) ValvePump() string { return t.Root() + "valve/pump/set" }

// ─── Home Assistant ─────────────────────────────────────────────────

// DiscoveryDevice is the controller-level discovery config topic.
func (t Topics) DiscoveryDevice() string {
	return fmt.Sprintf("%s/switch/%s/config", DiscoveryPrefix, t.Device)
}

// DiscoverySwitch is the discovery config topic of one zone switch.
func (t Topics) DiscoverySwitch(zone int) string {
	return fmt.Sprintf("%s/switch/%s/zone_%d/config", DiscoveryPrefix, t.Device, zone)
}

// ─── Parsing ────────────────────────────────────────────────────────

// ConfigKey extracts the setting name from a ConfigSet topic.
func (t Topics) ConfigKey(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Root()+"config/")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, "/set")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// CommandName extracts the command from a Command topic.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.Root()+"command/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
