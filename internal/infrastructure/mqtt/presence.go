package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// TopicPrefix is the root of every topic the bridge publishes or subscribes to.
const TopicPrefix = "graylogic"

// Presence states and reasons carried on the presence topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonUnexpected = "unexpected_disconnect"
	reasonShutdown   = "graceful_shutdown"
)

// PresenceTopic is the retained presence topic for one client ID, e.g.
// graylogic/system/graylogic-unifi/status. Online, graceful offline and
// the broker-sent will all land here.
func PresenceTopic(clientID string) string {
	return TopicPrefix + "/system/" + clientID + "/status"
}

// statusPayload is the retained presence message for this client.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// configureLWT registers the offline will the broker publishes (QoS 1,
// retained) if the connection drops without a clean Close.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	will := buildStatusPayload(clientID, statusOffline, reasonUnexpected)
	opts.SetWill(PresenceTopic(clientID), string(will), 1, true)
}

// buildStatusPayload encodes a presence message stamped with the current time.
func buildStatusPayload(clientID, status, reason string) []byte {
	data, err := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return []byte(`{"status":"` + status + `"}`)
	}
	return data
}

// publishPresence sends a retained presence message. With wait it blocks
// until the broker acknowledges or the publish timeout passes.
func (c *Client) publishPresence(status, reason string, wait bool) {
	clientID := c.cfg.Broker.ClientID
	token := c.client.Publish(PresenceTopic(clientID), byte(c.cfg.QoS), true,
		buildStatusPayload(clientID, status, reason))
	if wait {
		token.WaitTimeout(defaultPublishTimeout)
	}
}
