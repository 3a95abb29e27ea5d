package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// StateMeasurement holds one point per numeric or boolean state write.
	StateMeasurement = "unifi_state"

	// CycleMeasurement holds one point per finished poll cycle.
	CycleMeasurement = "unifi_cycle"
)

// NewStatePoint builds the point recorded for one state write.
//
// The full dotted path and its first segment (the site) are tags; the value
// is the single "value" field. Only numbers and booleans are meaningful here,
// so callers filter other types out before writing.
func NewStatePoint(path string, value any, timestamp time.Time) *write.Point {
	site, _, _ := strings.Cut(path, ".")
	return write.NewPoint(
		StateMeasurement,
		map[string]string{"path": path, "site": site},
		map[string]any{"value": value},
		timestamp,
	)
}

// NewCyclePoint builds the summary point for one poll cycle, tagged by
// result. Each count becomes an integer field next to duration_ms.
func NewCyclePoint(result string, counts map[string]int, duration time.Duration, timestamp time.Time) *write.Point {
	fields := make(map[string]any, len(counts)+1)
	for name, n := range counts {
		fields[name] = int64(n)
	}
	fields["duration_ms"] = duration.Milliseconds()

	return write.NewPoint(
		CycleMeasurement,
		map[string]string{"result": result},
		fields,
		timestamp,
	)
}

// WriteState queues a numeric or boolean state value. Dropped after Close.
func (c *Client) WriteState(path string, value any, timestamp time.Time) {
	if c.closed.Load() {
		return
	}
	c.writes.WritePoint(NewStatePoint(path, value, timestamp))
}

// WriteCycle records a cycle summary and flushes, so a cycle's state points
// reach the server together with the cycle that produced them.
func (c *Client) WriteCycle(result string, counts map[string]int, duration time.Duration, timestamp time.Time) {
	if c.closed.Load() {
		return
	}
	c.writes.WritePoint(NewCyclePoint(result, counts, duration, timestamp))
	c.Flush()
}
