// Package mqtt provides the broker connection used by the UniFi bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - A retained presence message backed by Last Will and Testament
//
// The bridge mirrors synchronised states to retained topics, publishes its
// health and listens for poll commands:
//
//	UniFi controller → bridge → MQTT broker → subscribers
//
// # Presence
//
// On connect the client publishes {"status":"online"} to
// graylogic/system/{client_id}/status. A clean Close replaces it with
// "graceful_shutdown"; a crash lets the broker publish the will, reason
// "unexpected_disconnect".
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetLogger(logger)
//	err = client.Publish("graylogic/state/unifi/default/health", payload, 1, true)
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on
// the local host.
package mqtt
