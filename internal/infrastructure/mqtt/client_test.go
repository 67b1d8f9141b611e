package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/bluescout-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker tests expect Mosquitto at 127.0.0.1:1883 and skip without it.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "bluescout-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Option and payload Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "scout"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "bluescout-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "scout" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
	if !opts.AutoReconnect || opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("reconnect = %v/%v", opts.AutoReconnect, opts.MaxReconnectInterval)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "bluescout-test")

	if !opts.WillEnabled || opts.WillTopic != "bluescout/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"unexpected_disconnect"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	if p := statusPayload("scout-001", statusOnline, ""); !strings.Contains(p, `"status":"online"`) || !strings.Contains(p, `"scout-001"`) || strings.Contains(p, "reason") {
		t.Errorf("online payload = %s", p)
	}
	if p := statusPayload("scout-001", statusOffline, reasonShutdown); !strings.Contains(p, `"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", p)
	}
}

// =============================================================================
// Unconnected client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"bad qos", "bluescout/test", 3, nil, ErrInvalidQoS},
		{"too large", "bluescout/test", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", "bluescout/test", 1, []byte("x"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	client := &Client{}
	if err := client.PublishJSON("bluescout/test", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := client.Subscribe("bluescout/#", 4, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 4) error = %v", err)
	}
	if err := client.Subscribe("bluescout/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
	if client.SubscriptionCount() != 0 || client.HasSubscription("bluescout/#") {
		t.Error("failed subscriptions were tracked")
	}
}

type fakeToken struct {
	done bool
	err  error
}

func (f fakeToken) Wait() bool                     { return f.done }
func (f fakeToken) WaitTimeout(time.Duration) bool { return f.done }
func (f fakeToken) Error() error                   { return f.err }
func (f fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if f.done {
		close(ch)
	}
	return ch
}

// Timeouts and broker errors both surface as the operation's sentinel.
func TestAwait(t *testing.T) {
	broker := errors.New("not authorized")
	tests := []struct {
		name  string
		token fakeToken
		want  error
	}{
		{"ok", fakeToken{done: true}, nil},
		{"timeout", fakeToken{}, ErrUnsubscribeFailed},
		{"broker error", fakeToken{done: true, err: broker}, broker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := await(tt.token, ErrUnsubscribeFailed)
			if tt.want == nil {
				if err != nil {
					t.Errorf("await() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrUnsubscribeFailed) {
				t.Errorf("await() = %v, want %v wrapped in ErrUnsubscribeFailed", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "bluescout/system/status"},
		{"Health", topics.Health(), "bluescout/system/health"},
		{"DeviceDiscovered", topics.DeviceDiscovered("AA:BB:CC:11:22:33"), "bluescout/device/AA:BB:CC:11:22:33/discovered"},
		{"RegistrySnapshot", topics.RegistrySnapshot(), "bluescout/registry/snapshot"},
		{"DiscoveryPass", topics.DiscoveryPass("classic"), "bluescout/discovery/classic"},
		{"Command", topics.Command("connect"), "bluescout/command/connect"},
		{"Response", topics.Response("req-1"), "bluescout/response/req-1"},
		{"ConnectionEvent", topics.ConnectionEvent("AA:BB:CC:11:22:33"), "bluescout/connection/AA:BB:CC:11:22:33"},
		{"AllCommands", topics.AllCommands(), "bluescout/command/+"},
		{"AllDiscovered", topics.AllDiscovered(), "bluescout/device/+/discovered"},
		{"AllTopics", topics.AllTopics(), "bluescout/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t, "bluescout-test-health")

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "bluescout-test-pub")
	sub := connectOrSkip(t, "bluescout-test-sub")

	topic := Topics{}.Command("roundtrip")
	received := make(chan []byte, 1)
	if err := sub.Subscribe(Topics{}.AllCommands(), 1, func(got string, payload []byte) error {
		if got == topic {
			received <- payload
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(Topics{}.AllCommands()) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)
	if err := pub.PublishJSON(topic, map[string]string{"address": "AA:BB:CC:11:22:33"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		if !strings.Contains(string(payload), "AA:BB:CC:11:22:33") {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Error("message not received")
	}

	if err := sub.Unsubscribe(Topics{}.AllCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", sub.SubscriptionCount())
	}
}
