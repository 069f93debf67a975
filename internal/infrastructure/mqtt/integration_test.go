//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// Requires a broker on localhost:1883:
//
//	docker run --rm -p 1883:1883 eclipse-mosquitto:2 mosquitto -c /mosquitto-no-auth.conf
//	go test -tags integration ./internal/infrastructure/mqtt/

func TestIntegration_PublishSubscribe(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.ClientID = "irrigation-integration"
	topics := NewTopics(cfg.TopicPrefix, "it-ctrl")

	client, err := Connect(cfg, topics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	received := make(chan string, 1)
	err = client.Subscribe(topics.CommandAll(), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topics.Command("stop_all"), []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if want := topics.Command("stop_all") + " {}"; got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
