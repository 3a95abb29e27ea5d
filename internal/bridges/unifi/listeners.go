package unifi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// StatePublisher publishes state mirror messages.
type StatePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StateMirror publishes every written state to MQTT as a retained message.
type StateMirror struct {
	publisher StatePublisher
}

// NewStateMirror creates an MQTT state mirror.
func NewStateMirror(publisher StatePublisher) *StateMirror {
	return &StateMirror{publisher: publisher}
}

// StateChanged implements statesync.Listener. Changes are dropped while
// the broker is unreachable; Republish catches up after a reconnect.
func (m *StateMirror) StateChanged(_ context.Context, change statesync.Change) error {
	if !m.publisher.IsConnected() {
		return nil
	}
	return m.publish(change.Path, change.Value, change.Ack, change.Timestamp)
}

// StateLister lists current states under a path prefix.
type StateLister interface {
	ListStates(ctx context.Context, prefix string) ([]objectstore.State, error)
}

// Republish publishes every stored state again, replacing retained values
// that went stale while the broker was unreachable. It stops at the first
// publish error and returns the number of states published.
func (m *StateMirror) Republish(ctx context.Context, states StateLister) (int, error) {
	if !m.publisher.IsConnected() {
		return 0, nil
	}

	list, err := states.ListStates(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("listing states: %w", err)
	}
	for i, st := range list {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := m.publish(st.ID, st.Value, st.Ack, st.UpdatedAt); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

func (m *StateMirror) publish(path string, value any, ack bool, ts time.Time) error {
	payload, err := json.Marshal(StateMessage{
		ID:        path,
		Value:     value,
		Ack:       ack,
		Timestamp: ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", path, err)
	}
	return m.publisher.Publish(StateTopic(path), payload, 1, true)
}

// HistoryWriter appends state changes to a history log.
type HistoryWriter interface {
	RecordStateChange(ctx context.Context, stateID string, value any, ack bool) error
}

// HistoryRecorder appends every written state to the history log.
type HistoryRecorder struct {
	writer HistoryWriter
}

// NewHistoryRecorder creates a history recorder.
func NewHistoryRecorder(writer HistoryWriter) *HistoryRecorder {
	return &HistoryRecorder{writer: writer}
}

// StateChanged implements statesync.Listener.
func (r *HistoryRecorder) StateChanged(ctx context.Context, change statesync.Change) error {
	return r.writer.RecordStateChange(ctx, change.Path, change.Value, change.Ack)
}

// PointWriter records time-series points.
type PointWriter interface {
	WriteState(path string, value any, timestamp time.Time)
	WriteCycle(result string, counts map[string]int, duration time.Duration, timestamp time.Time)
}

// TimeSeriesRecorder forwards numeric and boolean states to a time-series
// database, followed by one summary point per cycle. Other state values
// are ignored.
type TimeSeriesRecorder struct {
	writer PointWriter
}

// NewTimeSeriesRecorder creates a time-series recorder.
func NewTimeSeriesRecorder(writer PointWriter) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{writer: writer}
}

// StateChanged implements statesync.Listener.
func (r *TimeSeriesRecorder) StateChanged(_ context.Context, change statesync.Change) error {
	value, ok := seriesValue(change.Value)
	if !ok {
		return nil
	}
	r.writer.WriteState(change.Path, value, change.Timestamp)
	return nil
}

// CycleFinished implements CycleListener.
func (r *TimeSeriesRecorder) CycleFinished(report CycleReport) {
	r.writer.WriteCycle(report.Result, map[string]int{
		"sites":            report.Sites,
		"channels_created": report.ChannelsCreated,
		"states_created":   report.StatesCreated,
		"queued":           report.Queued,
		"written":          report.Written,
		"skipped":          report.Skipped,
	}, report.Duration, report.StartedAt.Add(report.Duration))
}

// seriesValue converts a state value to a field value if it has one.
func seriesValue(v any) (any, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return nil, false
	}
}
