// Package mqtt provides MQTT client connectivity for Blue Scout Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the seam between the engine and any front end. The engine
// publishes discovery events, registry snapshots and health; front ends
// publish control requests and read replies from the response topic.
//
//	Blue Scout Core ↔ MQTT Broker ↔ Front ends
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) whenever the broker is not local
//   - Control topics can open radio connections; restrict them by ACL
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.Handle(topic, payload)
//	    })
//
//	client.PublishJSON(mqtt.Topics{}.RegistrySnapshot(), snapshot, true)
package mqtt
