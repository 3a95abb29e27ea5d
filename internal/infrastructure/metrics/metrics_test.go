package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCollector_ObserveCycle(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveCycle("success", 1500*time.Millisecond)
	c.ObserveCycle("success", time.Second)
	c.ObserveCycle("login_failed", 10*time.Millisecond)

	if got := testutil.ToFloat64(c.cycles.WithLabelValues("success")); got != 2 {
		t.Errorf("cycles{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cycles.WithLabelValues("login_failed")); got != 1 {
		t.Errorf("cycles{login_failed} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.cycleDuration); n != 1 {
		t.Errorf("cycle_duration series = %d, want 1", n)
	}
}

func TestCollector_SyncCounters(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveSync(4, 20)
	c.ObserveSync(1, 23)
	c.AddChannelsCreated(7)
	c.SetQueueLength(24)
	c.SetQueueLength(12)
	c.ObserveBrokerDisconnect()
	c.ObserveBrokerDisconnect()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"written", testutil.ToFloat64(c.stateWrites.WithLabelValues("written")), 5},
		{"skipped", testutil.ToFloat64(c.stateWrites.WithLabelValues("skipped")), 43},
		{"channels", testutil.ToFloat64(c.channelsCreated), 7},
		{"queue", testutil.ToFloat64(c.queueLength), 12},
		{"mqtt disconnects", testutil.ToFloat64(c.mqttDrops), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_RegisterGaugeFunc(t *testing.T) {
	c := newTestCollector(t)

	clients := 3.0
	if err := c.RegisterGaugeFunc("websocket_clients", "Connected WebSocket clients", func() float64 { return clients }); err != nil {
		t.Fatalf("RegisterGaugeFunc() error = %v", err)
	}
	if err := c.RegisterGaugeFunc("websocket_clients", "duplicate", func() float64 { return 0 }); err == nil {
		t.Error("duplicate registration should fail")
	}

	expected := `
# HELP unifibridge_websocket_clients Connected WebSocket clients
# TYPE unifibridge_websocket_clients gauge
unifibridge_websocket_clients 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "unifibridge_websocket_clients"); err != nil {
		t.Error(err)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.ObserveCycle("success", time.Second)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`unifibridge_cycles_total{result="success"} 1`,
		"unifibridge_cycle_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
