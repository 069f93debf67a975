package actuation

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used to drive valves.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ValveCommand is the payload on valve/zone/{n}/set and valve/pump/set.
type ValveCommand struct {
	On      bool `json:"on"`
	Minutes int  `json:"minutes,omitempty"`
}

// MQTTValve drives valves through the serial valve bridge listening on
// the controller's valve/ topics. Commands use QoS 1 and are not retained,
// so a reconnecting bridge never replays a stale "on".
type MQTTValve struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTTValve returns a valve publishing on topics through pub.
func NewMQTTValve(pub Publisher, topics mqtt.Topics) *MQTTValve {
	return &MQTTValve{pub: pub, topics: topics}
}

// Start opens zone for minutes. The bridge closes the valve itself if the
// controller goes silent past that time.
func (v *MQTTValve) Start(zone, minutes int) error {
	return v.send(v.topics.ValveZone(zone), ValveCommand{On: true, Minutes: minutes})
}

// Stop closes zone.
func (v *MQTTValve) Stop(zone int) error {
	return v.send(v.topics.ValveZone(zone), ValveCommand{On: false})
}

// PumpOff switches the pump relay off.
func (v *MQTTValve) PumpOff() error {
	return v.send(v.topics.ValvePump(), ValveCommand{On: false})
}

func (v *MQTTValve) send(topic string, cmd ValveCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding valve command: %w", err)
	}
	if err := v.pub.Publish(topic, payload, 1, false); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}
