package unifi

import (
	"fmt"
	"strings"
	"time"
)

// MQTT message types published by the UniFi bridge.

// BridgeID identifies this bridge in topics and health messages.
const BridgeID = "unifi"

// StateMessage mirrors one written state.
// Topic: graylogic/state/unifi/{path}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// ID is the dotted state path, e.g. "default.health.wlan.num_ap".
	ID string `json:"id"`

	// Value is the stored value.
	Value any `json:"val"`

	// Ack is always true for controller-sourced values.
	Ack bool `json:"ack"`

	// Timestamp is when the value was written (UTC, ISO8601).
	Timestamp time.Time `json:"ts"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the last poll cycle succeeded.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the last cycle failed or MQTT is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/unifi
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Phase is the orchestrator's activity when the message was built.
	Phase Phase `json:"phase,omitempty"`

	// Statistics summarises cycle history.
	Statistics *PollStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// PollStatistics summarises poll cycles for health messages.
type PollStatistics struct {
	Cycles     int64      `json:"cycles"`
	Failures   int64      `json:"failures"`
	LastResult string     `json:"last_result,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	Written    int        `json:"last_written"`
	Skipped    int        `json:"last_skipped"`
}

// NewHealthMessage builds a health message from a bridge status snapshot.
func NewHealthMessage(version string, status HealthStatus, st Status, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Phase:         st.Phase,
		Statistics: &PollStatistics{
			Cycles:   st.Cycles,
			Failures: st.Failures,
			NextRun:  st.NextRun,
		},
	}
	if st.LastCycle != nil {
		last := st.LastCycle.StartedAt
		msg.Statistics.LastResult = st.LastCycle.Result
		msg.Statistics.LastRun = &last
		msg.Statistics.Written = st.LastCycle.Written
		msg.Statistics.Skipped = st.LastCycle.Skipped
	}
	return msg
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Gray Logic messages.
	TopicPrefix = "graylogic"
)

// StateTopic returns the MQTT topic mirroring a state path. Path dots
// become topic levels.
// Example: default.health.wlan.num_ap → graylogic/state/unifi/default/health/wlan/num_ap
func StateTopic(path string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, BridgeID, EncodeTopicPath(path))
}

// HealthTopic returns the MQTT topic for health status.
// Example: graylogic/health/unifi
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, BridgeID)
}

// PollCommandTopic returns the topic that triggers an immediate poll.
// Example: graylogic/command/unifi/poll
func PollCommandTopic() string {
	return fmt.Sprintf("%s/command/%s/poll", TopicPrefix, BridgeID)
}

// topicEscaper encodes characters that would change a topic's structure.
var topicEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"+", "%2B",
	"#", "%23",
)

var topicUnescaper = strings.NewReplacer(
	"%2F", "/",
	"%2B", "+",
	"%23", "#",
	"%25", "%",
)

// EncodeTopicPath converts a dotted state path into topic levels.
// Characters that are MQTT separators or wildcards are percent-encoded.
// Example: "default.clients.aa:bb.name" → "default/clients/aa:bb/name"
func EncodeTopicPath(path string) string {
	return strings.ReplaceAll(topicEscaper.Replace(path), ".", "/")
}

// DecodeTopicPath reverses EncodeTopicPath.
func DecodeTopicPath(encoded string) string {
	return topicUnescaper.Replace(strings.ReplaceAll(encoded, "/", "."))
}
