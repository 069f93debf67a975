package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// mockLogger records log calls for assertions.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) record(level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (m *mockLogger) Info(msg string, args ...any)  { m.record("INFO", msg, args...) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.record("WARN", msg, args...) }
func (m *mockLogger) Error(msg string, args ...any) { m.record("ERROR", msg, args...) }

func (m *mockLogger) contains(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "irrigation-test",
		},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 30},
		TopicPrefix: "irrigation",
	}
}

// disconnectedClient returns a Client that never dialled a broker.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testMQTTConfig(),
		topics:        NewTopics("irrigation", "ctrl-1"),
		subscriptions: make(map[string]subscription),
	}
}

// ─── Options ───────────────────────────────────────────────────────

func TestBrokerURL(t *testing.T) {
	cfg := testMQTTConfig()
	if got := brokerURL(cfg); got != "tcp://localhost:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://localhost:8883" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "valve", Password: "secret"}
	topics := NewTopics("irrigation", "ctrl-1")

	opts := buildClientOptions(cfg, topics)

	if opts.ClientID != "irrigation-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if !opts.WillEnabled || opts.WillTopic != topics.Availability() {
		t.Errorf("will = %v on %q, want enabled on %q", opts.WillEnabled, opts.WillTopic, topics.Availability())
	}
	if string(opts.WillPayload) != PayloadOffline || !opts.WillRetained {
		t.Errorf("will payload = %q retained = %v", opts.WillPayload, opts.WillRetained)
	}
	if opts.Username != "valve" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
}

// ─── Validation ────────────────────────────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	c := disconnectedClient()
	err := c.PublishJSON("a/b", func() {}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(func) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a/#", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("a/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("a/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := disconnectedClient().Close(); err != nil {
		t.Errorf("Close() on disconnected client error = %v", err)
	}
}

// ─── Handler dispatch ──────────────────────────────────────────────

func TestDispatch(t *testing.T) {
	t.Run("passes topic and payload", func(t *testing.T) {
		c := disconnectedClient()
		var gotTopic, gotPayload string
		c.dispatch(func(topic string, payload []byte) error {
			gotTopic, gotPayload = topic, string(payload)
			return nil
		}, "irrigation/ctrl-1/command/stop_all", []byte("{}"))

		if gotTopic != "irrigation/ctrl-1/command/stop_all" || gotPayload != "{}" {
			t.Errorf("handler got %q %q", gotTopic, gotPayload)
		}
	})

	t.Run("logs handler errors", func(t *testing.T) {
		c := disconnectedClient()
		log := &mockLogger{}
		c.SetLogger(log)
		c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

		if !log.contains("bad payload") {
			t.Error("handler error not logged")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		c := disconnectedClient()
		log := &mockLogger{}
		c.SetLogger(log)
		c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

		if !log.contains("panic recovered") {
			t.Error("panic not logged")
		}
	})

	t.Run("no logger", func(t *testing.T) {
		c := disconnectedClient()
		c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	})
}
