package unifi

import (
	"testing"
	"time"
)

func TestTopicHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StateTopic("default.health.wlan.num_ap"), "graylogic/state/unifi/default/health/wlan/num_ap"},
		{StateTopic("default.clients.aa:bb:cc.hostname"), "graylogic/state/unifi/default/clients/aa:bb:cc/hostname"},
		{HealthTopic(), "graylogic/health/unifi"},
		{PollCommandTopic(), "graylogic/command/unifi/poll"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEncodeDecodeTopicPath(t *testing.T) {
	tests := []struct {
		path    string
		encoded string
	}{
		{"default.health", "default/health"},
		{"default.devices.f0.port_table.Port 1/2", "default/devices/f0/port_table/Port 1%2F2"},
		{"site.+.#", "site/%2B/%23"},
		{"site.50%", "site/50%25"},
	}

	for _, tt := range tests {
		if got := EncodeTopicPath(tt.path); got != tt.encoded {
			t.Errorf("EncodeTopicPath(%q) = %q, want %q", tt.path, got, tt.encoded)
		}
		if got := DecodeTopicPath(tt.encoded); got != tt.path {
			t.Errorf("DecodeTopicPath(%q) = %q, want %q", tt.encoded, got, tt.path)
		}
	}
}

func TestNewHealthMessage(t *testing.T) {
	next := time.Now().Add(time.Minute)
	st := Status{
		Phase:    PhaseScheduled,
		Cycles:   3,
		Failures: 1,
		NextRun:  &next,
		LastCycle: &CycleReport{
			Result:    ResultSuccess,
			StartedAt: time.Now(),
			Written:   5,
			Skipped:   20,
		},
	}

	msg := NewHealthMessage("1.2.3", HealthHealthy, st, time.Now().Add(-90*time.Second))

	if msg.Bridge != BridgeID || msg.Version != "1.2.3" || msg.Phase != PhaseScheduled {
		t.Errorf("msg = %+v", msg)
	}
	if msg.UptimeSeconds < 89 {
		t.Errorf("UptimeSeconds = %d, want ~90", msg.UptimeSeconds)
	}
	s := msg.Statistics
	if s.Cycles != 3 || s.Failures != 1 || s.LastResult != ResultSuccess || s.Written != 5 || s.Skipped != 20 {
		t.Errorf("statistics = %+v", s)
	}
	if s.LastRun == nil || s.NextRun == nil {
		t.Error("LastRun/NextRun not set")
	}
}
