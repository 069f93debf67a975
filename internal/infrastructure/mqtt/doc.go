// Package mqtt connects the irrigation controller to its MQTT broker.
//
// The broker carries three kinds of traffic:
//
//   - status the controller publishes (retained device, zone and schedule
//     state, availability with a Last Will of "offline")
//   - commands it subscribes to (config/+/set, command/+, schedule/set,
//     schedule/ai/set)
//   - valve commands for the serial valve bridge (valve/zone/{n}/set)
//
// All topics come from Topics, rooted at {topic_prefix}{device_id}/.
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Controller.DeviceID)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.CommandAll(), 1, func(topic string, payload []byte) error {
//	    ...
//	})
package mqtt
