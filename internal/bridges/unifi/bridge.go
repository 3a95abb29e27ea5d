package unifi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// Bridge defaults.
const (
	// DefaultInterval is the pause between the end of one cycle and the
	// start of the next.
	DefaultInterval = 60 * time.Second

	// logoutTimeout bounds the best-effort logout after a failed fetch.
	logoutTimeout = 5 * time.Second
)

// Phase is the orchestrator's current activity.
type Phase string

// Orchestrator phases, in cycle order.
const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseFlattening Phase = "flattening"
	PhaseDraining   Phase = "draining"
	PhaseScheduled  Phase = "scheduled"
	PhaseStopped    Phase = "stopped"
)

// Cycle results reported to metrics and health.
const (
	ResultSuccess     = "success"
	ResultLoginFailed = "login_failed"
	ResultFetchFailed = "fetch_failed"
	ResultStoreFailed = "store_failed"
)

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics receives cycle measurements. Implemented by the metrics package.
type Metrics interface {
	ObserveCycle(result string, duration time.Duration)
	ObserveSync(written, skipped int)
	AddChannelsCreated(n int)
	SetQueueLength(n int)
}

// MQTTClient is the subset of the MQTT client the bridge uses.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// Unsubscribe removes a subscription made with Subscribe.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// CycleListener is told about every finished cycle, successful or not.
// It runs on the scheduler goroutine and should not block for long.
type CycleListener interface {
	CycleFinished(report CycleReport)
}

// Config holds the bridge's polling settings.
type Config struct {
	// Username and Password are sent on every login.
	Username string
	Password string

	// Interval between cycles. Default: 60 seconds.
	Interval time.Duration

	// RetryOnFailure reschedules after a failed cycle. When false, a
	// failed cycle leaves the bridge idle until triggered.
	RetryOnFailure bool

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	ID              string        `json:"id"`
	Result          string        `json:"result"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Sites           int           `json:"sites"`
	ChannelsCreated int           `json:"channels_created"`
	StatesCreated   int           `json:"states_created"`
	Queued          int           `json:"queued"`
	Written         int           `json:"written"`
	Skipped         int           `json:"skipped"`
}

// Status is a snapshot of the bridge for the API and health reporting.
type Status struct {
	Phase     Phase        `json:"phase"`
	Cycles    int64        `json:"cycles"`
	Failures  int64        `json:"failures"`
	NextRun   *time.Time   `json:"next_run,omitempty"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// BridgeOptions holds the dependencies of a bridge.
type BridgeOptions struct {
	// Config is the polling configuration.
	Config Config

	// Controller is polled every cycle. Required.
	Controller Controller

	// Store receives channels and state objects. Required.
	Store objectstore.Store

	// Engine drains each cycle's queue into Store. Required.
	Engine *statesync.Engine

	// MQTTClient is optional. When set the bridge subscribes to the poll
	// command topic and publishes health.
	MQTTClient MQTTClient

	// Metrics is optional.
	Metrics Metrics

	// CycleListeners are optional.
	CycleListeners []CycleListener

	// Logger is optional.
	Logger Logger
}

// Bridge is the poll orchestrator. It runs one cycle at a time:
// login, fetch the four document sets, logout, project them into the
// store, drain the queue, then wait Interval before the next cycle.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg     Config
	ctrl    Controller
	store   objectstore.Store
	engine  *statesync.Engine
	mqtt    MQTTClient
	metrics Metrics
	health  *HealthReporter
	logger  Logger

	cycleListeners []CycleListener

	// cycleMu is held for the whole of a cycle (single-flight).
	cycleMu sync.Mutex

	// trigger requests a cycle; buffered so requests coalesce.
	trigger chan struct{}

	// runNow hands the scheduler a synchronous cycle request.
	runNow chan chan<- cycleOutcome

	// exited is closed when the scheduler returns.
	exited chan struct{}

	statusMu  sync.RWMutex
	phase     Phase
	cycles    int64
	failures  int64
	nextRun   time.Time
	last      *CycleReport
	startedAt time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// cycleOutcome carries a synchronous cycle's result back to RunCycle.
type cycleOutcome struct {
	report CycleReport
	err    error
}

// NewBridge creates a bridge. Call Start to begin polling.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}

	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	b := &Bridge{
		cfg:       cfg,
		ctrl:      opts.Controller,
		store:     opts.Store,
		engine:    opts.Engine,
		mqtt:      opts.MQTTClient,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		trigger:   make(chan struct{}, 1),
		runNow:    make(chan chan<- cycleOutcome),
		exited:    make(chan struct{}),
		phase:     PhaseIdle,
		startedAt: time.Now(),
		done:      make(chan struct{}),

		cycleListeners: opts.CycleListeners,
	}

	if opts.MQTTClient != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			Version:   cfg.Version,
			Interval:  cfg.HealthInterval,
			Publisher: opts.MQTTClient,
			Status:    b.Status,
		})
		if opts.Logger != nil {
			b.health.SetLogger(opts.Logger)
		}
	}

	return b, nil
}

// Start subscribes to the poll command, starts health reporting and the
// scheduler, and requests an immediate first cycle.
//
// The scheduler stops when ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.statusMu.Lock()
	if b.started {
		b.statusMu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.statusMu.Unlock()

	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}
	}

	if b.mqtt != nil {
		topic := PollCommandTopic()
		if err := b.mqtt.Subscribe(topic, 1, b.handlePollCommand); err != nil {
			return fmt.Errorf("subscribe to poll command: %w", err)
		}
		b.logInfo("subscribed to poll command", "topic", topic)
	}

	if b.health != nil {
		b.health.Start(ctx)
	}

	b.wg.Add(1)
	go b.scheduleLoop(ctx)

	if err := b.Trigger(); err != nil {
		return err
	}

	b.logInfo("bridge started", "interval", b.cfg.Interval.String())
	return nil
}

// Stop cancels the pending scheduled cycle and waits for an in-flight
// cycle to finish. An in-flight cycle is not interrupted.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		if b.mqtt != nil && b.mqtt.IsConnected() {
			if err := b.mqtt.Unsubscribe(PollCommandTopic()); err != nil {
				b.logWarn("unsubscribe from poll command failed", "error", err)
			}
		}

		if b.health != nil {
			b.health.Stop()
		}

		b.setPhase(PhaseStopped)
		b.logInfo("bridge stopped")
	})
}

// Trigger requests a cycle now. A pending scheduled cycle is replaced.
// If a cycle is running, at most one further cycle is queued behind it.
func (b *Bridge) Trigger() error {
	if b.stopped() {
		return ErrBridgeStopped
	}

	select {
	case b.trigger <- struct{}{}:
	default:
		// A request is already pending.
	}
	return nil
}

// RunCycle runs one cycle now and returns its report.
//
// Once started, the cycle runs on the scheduler: a pending timer is
// cancelled and the next cycle is scheduled afterwards exactly as for a
// timed cycle. Before Start it runs on the caller's goroutine. Cancelling
// ctx stops the wait, never the cycle. It returns ErrCycleInProgress if a
// cycle is running and ErrBridgeStopped after Stop.
func (b *Bridge) RunCycle(ctx context.Context) (CycleReport, error) {
	if b.stopped() {
		return CycleReport{}, ErrBridgeStopped
	}
	if !b.cycleMu.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}

	b.statusMu.RLock()
	started := b.started
	b.statusMu.RUnlock()
	if !started {
		defer b.cycleMu.Unlock()
		return b.runCycle(context.WithoutCancel(ctx))
	}
	b.cycleMu.Unlock()

	reply := make(chan cycleOutcome, 1)
	select {
	case b.runNow <- reply:
	case <-b.done:
		return CycleReport{}, ErrBridgeStopped
	case <-b.exited:
		return CycleReport{}, ErrBridgeStopped
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}

	select {
	case out := <-reply:
		return out.report, out.err
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}
}

// stopped reports whether Stop was called or the scheduler has exited.
func (b *Bridge) stopped() bool {
	select {
	case <-b.done:
		return true
	case <-b.exited:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the bridge state.
func (b *Bridge) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()

	s := Status{
		Phase:     b.phase,
		Cycles:    b.cycles,
		Failures:  b.failures,
		StartedAt: b.startedAt,
	}
	if !b.nextRun.IsZero() {
		next := b.nextRun
		s.NextRun = &next
	}
	if b.last != nil {
		last := *b.last
		s.LastCycle = &last
	}
	return s
}

// scheduleLoop runs cycles on trigger or timer until stopped.
func (b *Bridge) scheduleLoop(ctx context.Context) {
	defer b.wg.Done()
	defer close(b.exited)

	var timer *time.Timer
	var timerC <-chan time.Time
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		b.statusMu.Lock()
		b.nextRun = time.Time{}
		b.statusMu.Unlock()
	}
	defer disarm()

	for {
		var reply chan<- cycleOutcome
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-b.trigger:
		case <-timerC:
		case reply = <-b.runNow:
		}
		disarm()

		// The cycle itself is never cancelled mid-way.
		b.cycleMu.Lock()
		report, err := b.runCycle(context.WithoutCancel(ctx))
		b.cycleMu.Unlock()
		if reply != nil {
			reply <- cycleOutcome{report: report, err: err}
		}

		if err != nil && !b.cfg.RetryOnFailure {
			b.logWarn("cycle failed, not rescheduling until triggered")
			continue
		}

		timer = time.NewTimer(b.cfg.Interval)
		timerC = timer.C
		b.statusMu.Lock()
		b.nextRun = time.Now().Add(b.cfg.Interval)
		if b.phase == PhaseIdle {
			b.phase = PhaseScheduled
		}
		b.statusMu.Unlock()
	}
}

// runCycle performs one cycle. The caller holds cycleMu.
func (b *Bridge) runCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	start := time.Now()
	b.logInfo("starting controller query", "cycle_id", report.ID)

	err := b.cycle(ctx, &report)

	report.Duration = time.Since(start)
	if err != nil {
		report.Error = err.Error()
	}
	b.finishCycle(report)

	if err != nil {
		b.logError("poll cycle failed", err, "cycle_id", report.ID, "result", report.Result)
		return report, err
	}

	b.logInfo("poll cycle complete",
		"cycle_id", report.ID,
		"sites", report.Sites,
		"channels_created", report.ChannelsCreated,
		"queued", report.Queued,
		"written", report.Written,
		"skipped", report.Skipped,
		"duration", report.Duration.String())
	return report, nil
}

// cycle fetches, projects and drains, filling in report as it goes.
func (b *Bridge) cycle(ctx context.Context, report *CycleReport) error {
	b.setPhase(PhaseFetching)
	docs, err := b.fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrLoginFailed) {
			report.Result = ResultLoginFailed
		} else {
			report.Result = ResultFetchFailed
		}
		return err
	}
	report.Sites = len(docs.Names)

	b.setPhase(PhaseFlattening)
	queue := statesync.NewQueue()
	p := newProjector(ctx, b.store, queue)
	projectSites(p, docs.Sites)
	projectSysinfo(p, docs.Names, docs.Sysinfo)
	projectClients(p, docs.Names, docs.Clients)
	projectDevices(p, docs.Names, docs.Devices)

	report.ChannelsCreated = p.channelsCreated
	report.StatesCreated = p.statesCreated
	report.Queued = queue.Len()
	if b.metrics != nil {
		b.metrics.AddChannelsCreated(p.channelsCreated)
		b.metrics.SetQueueLength(queue.Len())
	}
	if p.err != nil {
		queue.Reset()
		report.Result = ResultStoreFailed
		return fmt.Errorf("projecting documents: %w", p.err)
	}

	b.setPhase(PhaseDraining)
	res, err := b.engine.Drain(ctx, queue)
	report.Written = res.Written
	report.Skipped = res.Skipped
	if b.metrics != nil {
		b.metrics.ObserveSync(res.Written, res.Skipped)
		b.metrics.SetQueueLength(0)
	}
	if err != nil {
		report.Result = ResultStoreFailed
		return err
	}

	report.Result = ResultSuccess
	return nil
}

// fetch runs login, the four controller calls and logout in sequence.
func (b *Bridge) fetch(ctx context.Context) (*Documents, error) {
	if err := b.ctrl.Login(ctx, b.cfg.Username, b.cfg.Password); err != nil {
		if !errors.Is(err, ErrLoginFailed) {
			err = fmt.Errorf("%w: %w", ErrLoginFailed, err)
		}
		return nil, err
	}

	docs, err := b.fetchDocuments(ctx)
	if err != nil {
		b.logout()
		return nil, err
	}

	if err := b.ctrl.Logout(ctx); err != nil {
		b.logWarn("controller logout failed", "error", err)
	}
	return docs, nil
}

func (b *Bridge) fetchDocuments(ctx context.Context) (*Documents, error) {
	docs := &Documents{}
	var err error

	if docs.Sites, err = b.ctrl.SiteStats(ctx); err != nil {
		return nil, fmt.Errorf("fetching site stats: %w", err)
	}
	docs.Names = siteNames(docs.Sites)
	b.logDebug("fetched sites", "sites", docs.Names)

	if docs.Sysinfo, err = b.ctrl.SiteSysinfo(ctx, docs.Names); err != nil {
		return nil, fmt.Errorf("fetching site sysinfo: %w", err)
	}
	if docs.Clients, err = b.ctrl.ClientDevices(ctx, docs.Names); err != nil {
		return nil, fmt.Errorf("fetching client devices: %w", err)
	}
	if docs.Devices, err = b.ctrl.AccessDevices(ctx, docs.Names); err != nil {
		return nil, fmt.Errorf("fetching access devices: %w", err)
	}
	return docs, nil
}

// logout closes the session after a failed fetch, ignoring errors.
func (b *Bridge) logout() {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := b.ctrl.Logout(ctx); err != nil {
		b.logDebug("logout after failed fetch", "error", err)
	}
}

func (b *Bridge) finishCycle(report CycleReport) {
	b.statusMu.Lock()
	b.cycles++
	if report.Result != ResultSuccess {
		b.failures++
	}
	b.last = &report
	b.phase = PhaseIdle
	b.statusMu.Unlock()

	if b.metrics != nil {
		b.metrics.ObserveCycle(report.Result, report.Duration)
	}
	for _, l := range b.cycleListeners {
		l.CycleFinished(report)
	}
	if b.health != nil {
		if err := b.health.PublishNow(); err != nil {
			b.logError("failed to publish health", err)
		}
	}
}

// BrokerReconnected republishes health once the MQTT connection is back,
// so the retained message no longer shows what was sent before the outage.
func (b *Bridge) BrokerReconnected() {
	if b.health == nil {
		return
	}
	b.logInfo("MQTT broker reconnected, republishing health")
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}

// handlePollCommand triggers a cycle for any message on the poll topic.
func (b *Bridge) handlePollCommand(topic string, _ []byte) error {
	b.logInfo("poll requested over MQTT", "topic", topic)
	return b.Trigger()
}

func (b *Bridge) setPhase(p Phase) {
	b.statusMu.Lock()
	b.phase = p
	b.statusMu.Unlock()
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
