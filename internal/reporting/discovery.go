package reporting

import (
	"fmt"
)

// haDevice groups the entities of one controller in Home Assistant.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// DiscoveryConfig is a Home Assistant MQTT discovery document for a switch.
type DiscoveryConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	Device            haDevice `json:"device"`
}

// discoveryConfigs builds the controller document and one switch per
// enabled zone.
func (b *Bridge) discoveryConfigs() map[string]DiscoveryConfig {
	t := b.opts.Topics
	dev := haDevice{
		Identifiers:  []string{t.Device},
		Name:         b.opts.DeviceName,
		Manufacturer: "irrigation-core",
		Model:        fmt.Sprintf("%d-zone controller", b.engine.ZoneCount()),
	}

	docs := map[string]DiscoveryConfig{
		t.DiscoveryDevice(): {
			Name:              b.opts.DeviceName,
			UniqueID:          t.Device,
			DeviceClass:       "irrigation",
			StateTopic:        t.DeviceStatus(),
			CommandTopic:      t.Command("status"),
			AvailabilityTopic: t.Availability(),
			ValueTemplate:     "{{ 'ON' if value_json.active_zones else 'OFF' }}",
			Device:            dev,
		},
	}

	for zone := 1; zone <= b.engine.Configuration().MaxEnabledZones(); zone++ {
		docs[t.DiscoverySwitch(zone)] = DiscoveryConfig{
			Name:              fmt.Sprintf("Zone %d", zone),
			UniqueID:          fmt.Sprintf("%s_zone_%d", t.Device, zone),
			StateTopic:        t.ZoneStatus(zone),
			CommandTopic:      t.Command(fmt.Sprintf("zone_%d", zone)),
			AvailabilityTopic: t.Availability(),
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			ValueTemplate:     "{{ 'ON' if value_json.status == 'running' else 'OFF' }}",
			Device:            dev,
		}
	}
	return docs
}

// PublishDiscovery publishes the Home Assistant discovery documents,
// always retained.
func (b *Bridge) PublishDiscovery() {
	for topic, doc := range b.discoveryConfigs() {
		b.publishJSON(topic, doc, true)
	}
}
