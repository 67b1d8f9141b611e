package discovery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/mqtt"
)

// Publisher is the message bus used for events and health.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SnapshotSource supplies the registry view published after each pass.
type SnapshotSource interface {
	Snapshot() []device.Record
}

// Snapshot is the retained registry message.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Count       int             `json:"count"`
	Devices     []device.Record `json:"devices"`
}

// MQTTPublisher implements Events over MQTT.
//
// New records go to bluescout/device/{address}/discovered, pass summaries
// to bluescout/discovery/{transport}, and the full registry is retained on
// bluescout/registry/snapshot after every pass.
type MQTTPublisher struct {
	pub    Publisher
	source SnapshotSource
	qos    byte
	now    func() time.Time
	logger Logger
}

// NewMQTTPublisher creates a publisher. source may be nil to skip snapshots.
func NewMQTTPublisher(pub Publisher, source SnapshotSource) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, source: source, qos: 1, now: time.Now, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// DeviceDiscovered announces a new registry record.
func (p *MQTTPublisher) DeviceDiscovered(rec device.Record) {
	p.publish(mqtt.Topics{}.DeviceDiscovered(rec.Address), rec, false)
}

// PassComplete publishes the pass summary and a fresh snapshot.
func (p *MQTTPublisher) PassComplete(res PassResult) {
	p.publish(mqtt.Topics{}.DiscoveryPass(string(res.Transport)), res, false)

	if p.source == nil {
		return
	}
	if err := p.PublishSnapshot(); err != nil {
		p.logger.Warn("registry snapshot not published", "error", err)
	}
}

// PublishSnapshot publishes the registry immediately.
func (p *MQTTPublisher) PublishSnapshot() error {
	if p.source == nil {
		return nil
	}
	devices := p.source.Snapshot()
	msg := Snapshot{GeneratedAt: p.now().UTC(), Count: len(devices), Devices: devices}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return p.pub.Publish(mqtt.Topics{}.RegistrySnapshot(), payload, p.qos, true)
}

func (p *MQTTPublisher) publish(topic string, v any, retained bool) {
	if p.pub == nil || !p.pub.IsConnected() {
		p.logger.Debug("bus offline, event dropped", "topic", topic)
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encoding event", "topic", topic, "error", err)
		return
	}
	if err := p.pub.Publish(topic, payload, p.qos, retained); err != nil {
		p.logger.Warn("event not published", "topic", topic, "error", err)
	}
}
