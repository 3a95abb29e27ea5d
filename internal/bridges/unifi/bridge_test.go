package unifi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// errControllerDown is returned by the fake controller when scripted to fail.
var errControllerDown = errors.New("controller down")

// fakeController is a scriptable Controller.
type fakeController struct {
	mu        sync.Mutex
	sites     string
	clients   string
	failLogin bool
	failFetch bool
	logins    int
	logouts   int

	// block, when set, holds SiteStats until closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		sites:   `[{"name": "default", "desc": "Home", "health": [{"subsystem": "wlan", "num_ap": 3}]}]`,
		clients: `[{"mac": "aa:bb", "hostname": "laptop", "rx_bytes": 10}]`,
	}
}

func (f *fakeController) Login(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.failLogin {
		return errControllerDown
	}
	return nil
}

func (f *fakeController) SiteStats(_ context.Context) ([]jsontree.Node, error) {
	f.mu.Lock()
	block, entered, doc, fail := f.block, f.entered, f.sites, f.failFetch
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fail {
		return nil, errControllerDown
	}
	n, err := jsontree.Parse([]byte(doc))
	if err != nil {
		return nil, err
	}
	return n.([]jsontree.Node), nil //nolint:errcheck // test fixture is an array
}

func (f *fakeController) SiteSysinfo(_ context.Context, sites []string) ([]jsontree.Node, error) {
	return f.each(sites, `[{"version": "7.4.162"}]`)
}

func (f *fakeController) ClientDevices(_ context.Context, sites []string) ([]jsontree.Node, error) {
	f.mu.Lock()
	doc := f.clients
	f.mu.Unlock()
	return f.each(sites, doc)
}

func (f *fakeController) AccessDevices(_ context.Context, sites []string) ([]jsontree.Node, error) {
	return f.each(sites, `[]`)
}

func (f *fakeController) Logout(_ context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeController) each(sites []string, doc string) ([]jsontree.Node, error) {
	out := make([]jsontree.Node, 0, len(sites))
	for range sites {
		n, err := jsontree.Parse([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeController) counts() (logins, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.logouts
}

func (f *fakeController) set(fn func(f *fakeController)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

// mockMQTT records publishes and subscriptions.
type mockMQTT struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
	handlers  map[string]func(topic string, payload []byte) error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: map[string]func(string, []byte) error{}}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(topic string, payload []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) getMessages(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, msg := range m.messages {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockMQTT) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockMQTT) handler(topic string) func(string, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

type testBridge struct {
	*Bridge
	store *objectstore.MemoryStore
}

func newTestBridge(t *testing.T, cfg Config, ctrl Controller, mqtt MQTTClient) *testBridge {
	t.Helper()
	store := objectstore.NewMemoryStore()
	engine, err := statesync.NewEngine(statesync.EngineOptions{Store: store})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	b, err := NewBridge(BridgeOptions{
		Config:     cfg,
		Controller: ctrl,
		Store:      store,
		Engine:     engine,
		MQTTClient: mqtt,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(b.Stop)

	return &testBridge{Bridge: b, store: store}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewBridge_Validation(t *testing.T) {
	store := objectstore.NewMemoryStore()
	engine, err := statesync.NewEngine(statesync.EngineOptions{Store: store})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	ctrl := newFakeController()

	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{name: "no controller", opts: BridgeOptions{Store: store, Engine: engine}},
		{name: "no store", opts: BridgeOptions{Controller: ctrl, Engine: engine}},
		{name: "no engine", opts: BridgeOptions{Controller: ctrl, Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() should fail")
			}
		})
	}

	b, err := NewBridge(BridgeOptions{Controller: ctrl, Store: store, Engine: engine})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if b.cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want default %v", b.cfg.Interval, DefaultInterval)
	}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	dir := writeFixture(t, homeFixture)
	b := newTestBridge(t, Config{}, NewFileController(dir), nil)
	ctx := context.Background()

	report, err := b.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Result != ResultSuccess || report.Sites != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.ID == "" {
		t.Error("report has no cycle id")
	}

	obj, err := b.store.GetObject(ctx, "default.health.wlan")
	if err != nil || obj.Common.Name != "Subsystem wlan" {
		t.Errorf("default.health.wlan = %+v, %v", obj, err)
	}
	obj, err = b.store.GetObject(ctx, "default")
	if err != nil || obj.Common.Name != "Site Home" {
		t.Errorf("default = %+v, %v", obj, err)
	}

	wantStates := map[string]string{
		"default.health.wlan.num_ap":                   "3",
		"default.sysinfo.version":                      "7.4.162",
		"default.clients.aa:bb.hostname":               "laptop",
		"default.devices.f0:9f.radio_table.ng.channel": "6",
	}
	for id, want := range wantStates {
		st, err := b.store.GetState(ctx, id)
		if err != nil {
			t.Errorf("GetState(%q) error = %v", id, err)
			continue
		}
		if !st.Ack {
			t.Errorf("%s ack = false, want true", id)
		}
		if got := statesync.Canonical(st.Value); got != want {
			t.Errorf("%s = %q, want %q", id, got, want)
		}
	}

	if report.Written == 0 || report.Written != report.Queued {
		t.Errorf("first cycle written = %d, queued = %d", report.Written, report.Queued)
	}
}

func TestRunCycle_SecondCycleSkipsUnchanged(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{}, ctrl, nil)
	ctx := context.Background()

	if _, err := b.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	report, err := b.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Written != 0 || report.Skipped != report.Queued {
		t.Errorf("second cycle = %+v, want everything skipped", report)
	}
	if report.ChannelsCreated != 0 || report.StatesCreated != 0 {
		t.Errorf("second cycle created objects: %+v", report)
	}

	ctrl.set(func(f *fakeController) {
		f.clients = `[{"mac": "aa:bb", "hostname": "laptop", "rx_bytes": 11}]`
	})
	report, err = b.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Written != 1 {
		t.Errorf("third cycle written = %d, want 1", report.Written)
	}
	st, err := b.store.GetState(ctx, "default.clients.aa:bb.rx_bytes")
	if err != nil || st.Value != json.Number("11") {
		t.Errorf("rx_bytes = %+v, %v", st, err)
	}
}

func TestRunCycle_LoginFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failLogin = true
	b := newTestBridge(t, Config{}, ctrl, nil)

	report, err := b.RunCycle(context.Background())
	if !errors.Is(err, ErrLoginFailed) || !errors.Is(err, errControllerDown) {
		t.Fatalf("RunCycle() error = %v, want ErrLoginFailed wrapping the cause", err)
	}
	if report.Result != ResultLoginFailed {
		t.Errorf("Result = %q, want %q", report.Result, ResultLoginFailed)
	}
	if _, logouts := ctrl.counts(); logouts != 0 {
		t.Errorf("logouts = %d, want 0 after failed login", logouts)
	}
	if b.store.Len() != 0 {
		t.Errorf("store has %d objects after failed login", b.store.Len())
	}

	st := b.Status()
	if st.Failures != 1 || st.LastCycle == nil || st.LastCycle.Error == "" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestRunCycle_FetchFailureLogsOut(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failFetch = true
	b := newTestBridge(t, Config{}, ctrl, nil)

	report, err := b.RunCycle(context.Background())
	if !errors.Is(err, errControllerDown) {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Result != ResultFetchFailed {
		t.Errorf("Result = %q, want %q", report.Result, ResultFetchFailed)
	}
	if _, logouts := ctrl.counts(); logouts != 1 {
		t.Errorf("logouts = %d, want 1", logouts)
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	ctrl := newFakeController()
	ctrl.block = make(chan struct{})
	ctrl.entered = make(chan struct{}, 1)
	b := newTestBridge(t, Config{}, ctrl, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.RunCycle(context.Background())
		done <- err
	}()
	<-ctrl.entered

	if got := b.Status().Phase; got != PhaseFetching {
		t.Errorf("Phase = %q, want %q", got, PhaseFetching)
	}
	if _, err := b.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("concurrent RunCycle() error = %v, want ErrCycleInProgress", err)
	}

	close(ctrl.block)
	if err := <-done; err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if got := b.Status().Phase; got != PhaseIdle {
		t.Errorf("Phase after cycle = %q, want %q", got, PhaseIdle)
	}
}

func TestBridge_SchedulesAfterSuccess(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{Interval: 10 * time.Millisecond}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "three cycles", func() bool { return b.Status().Cycles >= 3 })

	b.Stop()
	cycles := b.Status().Cycles
	time.Sleep(30 * time.Millisecond)
	if got := b.Status().Cycles; got != cycles {
		t.Errorf("cycles after Stop() = %d, want %d", got, cycles)
	}
	if got := b.Status().Phase; got != PhaseStopped {
		t.Errorf("Phase = %q, want %q", got, PhaseStopped)
	}
}

func TestBridge_NoRescheduleAfterFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failLogin = true
	b := newTestBridge(t, Config{Interval: 5 * time.Millisecond}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first cycle", func() bool { return b.Status().Cycles == 1 })
	time.Sleep(50 * time.Millisecond)

	if logins, _ := ctrl.counts(); logins != 1 {
		t.Fatalf("logins = %d, want 1 (no reschedule after failure)", logins)
	}
	if b.Status().NextRun != nil {
		t.Error("NextRun set after failed cycle")
	}

	// A trigger recovers the bridge.
	ctrl.set(func(f *fakeController) { f.failLogin = false })
	if err := b.Trigger(); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	waitFor(t, "recovery cycle", func() bool {
		st := b.Status()
		return st.LastCycle != nil && st.LastCycle.Result == ResultSuccess
	})
}

func TestBridge_RetryOnFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failLogin = true
	b := newTestBridge(t, Config{Interval: 5 * time.Millisecond, RetryOnFailure: true}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "retries", func() bool {
		logins, _ := ctrl.counts()
		return logins >= 3
	})
}

func TestBridge_TriggerReplacesPendingTimer(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{Interval: time.Hour}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "scheduled", func() bool { return b.Status().NextRun != nil })

	if err := b.Trigger(); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	waitFor(t, "triggered cycle", func() bool { return b.Status().Cycles == 2 })
}

func TestBridge_TriggerAfterStop(t *testing.T) {
	b := newTestBridge(t, Config{}, newFakeController(), nil)
	b.Stop()

	if err := b.Trigger(); !errors.Is(err, ErrBridgeStopped) {
		t.Errorf("Trigger() error = %v, want ErrBridgeStopped", err)
	}
}

func TestRunCycle_AfterStop(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{Interval: time.Hour}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first cycle", func() bool { return b.Status().Cycles == 1 })
	b.Stop()

	if _, err := b.RunCycle(context.Background()); !errors.Is(err, ErrBridgeStopped) {
		t.Fatalf("RunCycle() error = %v, want ErrBridgeStopped", err)
	}
	if logins, _ := ctrl.counts(); logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
	if got := b.Status().Phase; got != PhaseStopped {
		t.Errorf("Phase = %q, want %q", got, PhaseStopped)
	}
}

func TestRunCycle_CallerCancelDoesNotAbortCycle(t *testing.T) {
	tests := []struct {
		name  string
		start bool
	}{
		{name: "before start", start: false},
		{name: "on scheduler", start: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			b := newTestBridge(t, Config{Interval: time.Hour}, ctrl, nil)
			if tt.start {
				if err := b.Start(context.Background()); err != nil {
					t.Fatalf("Start() error = %v", err)
				}
				waitFor(t, "first cycle", func() bool { return b.Status().NextRun != nil })
			}
			before := b.Status().Cycles

			block := make(chan struct{})
			entered := make(chan struct{}, 1)
			ctrl.set(func(f *fakeController) {
				f.block = block
				f.entered = entered
				f.clients = `[{"mac": "aa:bb", "hostname": "laptop", "rx_bytes": 20}]`
			})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				_, err := b.RunCycle(ctx)
				done <- err
			}()
			<-entered
			cancel()
			close(block)

			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				t.Fatalf("RunCycle() error = %v", err)
			}
			waitFor(t, "cycle to finish", func() bool { return b.Status().Cycles == before+1 })

			last := b.Status().LastCycle
			if last.Result != ResultSuccess || last.Written == 0 {
				t.Errorf("last cycle = %+v, want a successful cycle with writes", last)
			}
		})
	}
}

func TestRunCycle_ReplacesPendingTimer(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{Interval: time.Hour}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "scheduled", func() bool { return b.Status().NextRun != nil })
	first := *b.Status().NextRun

	time.Sleep(5 * time.Millisecond)
	report, err := b.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Result != ResultSuccess {
		t.Fatalf("Result = %q, want %q", report.Result, ResultSuccess)
	}

	waitFor(t, "rescheduled", func() bool {
		next := b.Status().NextRun
		return next != nil && next.After(first)
	})
	if got := b.Status().Cycles; got != 2 {
		t.Errorf("cycles = %d, want 2", got)
	}
}

func TestRunCycle_ReschedulesAfterEarlierFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failLogin = true
	b := newTestBridge(t, Config{Interval: 10 * time.Millisecond}, ctrl, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "failed cycle", func() bool { return b.Status().Cycles == 1 })
	if b.Status().NextRun != nil {
		t.Fatal("NextRun set after failed cycle")
	}

	ctrl.set(func(f *fakeController) { f.failLogin = false })
	if _, err := b.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	// The timer is armed again, so cycles continue without triggers.
	waitFor(t, "scheduled cycles", func() bool { return b.Status().Cycles >= 4 })
}

func TestBridge_StopsOnContextCancel(t *testing.T) {
	ctrl := newFakeController()
	b := newTestBridge(t, Config{Interval: 5 * time.Millisecond}, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first cycle", func() bool { return b.Status().Cycles >= 1 })
	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after context cancel")
	}
}

func TestBridge_MQTTPollCommand(t *testing.T) {
	ctrl := newFakeController()
	mqtt := newMockMQTT()
	b := newTestBridge(t, Config{Interval: time.Hour, Version: "1.0.0"}, ctrl, mqtt)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first cycle", func() bool { return b.Status().Cycles == 1 })

	handler := mqtt.handler(PollCommandTopic())
	if handler == nil {
		t.Fatal("no subscription on poll command topic")
	}
	if err := handler(PollCommandTopic(), nil); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	waitFor(t, "commanded cycle", func() bool { return b.Status().Cycles == 2 })

	health := mqtt.getMessages(HealthTopic())
	if len(health) < 2 {
		t.Fatalf("health messages = %d, want starting plus one per cycle", len(health))
	}
	var first HealthMessage
	if err := json.Unmarshal(health[0].payload, &first); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if first.Status != HealthStarting || first.Bridge != BridgeID {
		t.Errorf("first health = %+v", first)
	}
	if !health[0].retained || health[0].qos != 1 {
		t.Errorf("health qos/retained = %d/%v, want 1/true", health[0].qos, health[0].retained)
	}

	b.Stop()
	if mqtt.handler(PollCommandTopic()) != nil {
		t.Error("poll command subscription kept after Stop")
	}
}

type recordingCycleListener struct {
	mu      sync.Mutex
	reports []CycleReport
}

func (r *recordingCycleListener) CycleFinished(report CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingCycleListener) get() []CycleReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CycleReport(nil), r.reports...)
}

func TestBridge_CycleListeners(t *testing.T) {
	tests := []struct {
		name       string
		failLogin  bool
		wantResult string
	}{
		{name: "success", wantResult: ResultSuccess},
		{name: "login failure", failLogin: true, wantResult: ResultLoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.failLogin = tt.failLogin
			store := objectstore.NewMemoryStore()
			engine, err := statesync.NewEngine(statesync.EngineOptions{Store: store})
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}
			listeners := []*recordingCycleListener{{}, {}}
			b, err := NewBridge(BridgeOptions{
				Config:         Config{Interval: time.Hour},
				Controller:     ctrl,
				Store:          store,
				Engine:         engine,
				CycleListeners: []CycleListener{listeners[0], listeners[1]},
			})
			if err != nil {
				t.Fatalf("NewBridge() error = %v", err)
			}
			t.Cleanup(b.Stop)

			report, _ := b.RunCycle(context.Background())
			for i, l := range listeners {
				got := l.get()
				if len(got) != 1 {
					t.Fatalf("listener %d saw %d cycles, want 1", i, len(got))
				}
				if got[0].ID != report.ID || got[0].Result != tt.wantResult {
					t.Errorf("listener %d report = %s/%s, want %s/%s", i, got[0].ID, got[0].Result, report.ID, tt.wantResult)
				}
			}
		})
	}
}

func TestBridge_BrokerReconnected(t *testing.T) {
	mqtt := newMockMQTT()
	b := newTestBridge(t, Config{Interval: time.Hour}, newFakeController(), mqtt)
	if _, err := b.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	before := len(mqtt.getMessages(HealthTopic()))

	b.BrokerReconnected()

	health := mqtt.getMessages(HealthTopic())
	if len(health) != before+1 {
		t.Fatalf("health messages = %d, want %d", len(health), before+1)
	}
	var msg HealthMessage
	if err := json.Unmarshal(health[len(health)-1].payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if msg.Status != HealthHealthy || !health[len(health)-1].retained {
		t.Errorf("republished health = %+v", msg)
	}

	// Without MQTT there is nothing to republish.
	newTestBridge(t, Config{Interval: time.Hour}, newFakeController(), nil).BrokerReconnected()
}

func TestBridge_StartTwice(t *testing.T) {
	b := newTestBridge(t, Config{Interval: time.Hour}, newFakeController(), nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}
