// Gray Logic UniFi Bridge
//
// This is the main entry point for the UniFi bridge. It polls a UniFi
// Network controller on a fixed interval, projects site statistics, sysinfo,
// connected clients and access devices into a dotted object tree stored in
// SQLite, and mirrors every changed value to MQTT, InfluxDB and WebSocket
// clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-unifi/migrations"

	"github.com/nerrad567/gray-logic-unifi/internal/api"
	"github.com/nerrad567/gray-logic-unifi/internal/bridges/unifi"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	defaultTokenTTL = 30 * 24 * time.Hour

	// pruneInterval is how often old state history is deleted.
	pruneInterval = time.Hour

	shutdownTimeout = 5 * time.Second
)

// options are the command-line flags.
type options struct {
	configPath  string
	migrateDown bool
	issueToken  string
	tokenTTL    time.Duration
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("unifibridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. The config path defaults to
// GRAYLOGIC_CONFIG, then configs/config.yaml.
func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("unifibridge", pflag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	flagSet.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the newest database migration and exit")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print an API token for this subject and exit")
	flagSet.DurationVar(&opts.tokenTTL, "token-ttl", defaultTokenTTL, "lifetime of a token minted with --issue-token")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.tokenTTL <= 0 {
		return options{}, fmt.Errorf("--token-ttl must be positive")
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command-line flags
//   - out: Destination for command output (tokens)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options, out io.Writer) error { //nolint:gocognit,gocyclo // Startup wiring is linear
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting UniFi bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	if opts.issueToken != "" {
		return issueToken(out, cfg.Security, opts.issueToken, opts.tokenTTL)
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		checkpointCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cpErr := db.Checkpoint(checkpointCtx); cpErr != nil {
			log.Warn("WAL checkpoint failed", "error", cpErr)
		}
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if opts.migrateDown {
		if downErr := db.MigrateDown(ctx); downErr != nil {
			return fmt.Errorf("rolling back migration: %w", downErr)
		}
		schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // Informational only
		log.Info("rolled back newest migration", "schema_version", schema)
		return nil
	}

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // Informational only
	log.Info("database migrations complete", "schema_version", schema)

	store := objectstore.NewSQLiteStore(db.DB)
	history := objectstore.NewHistoryRepository(db.DB)

	collector, err := metrics.New()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	engine, err := statesync.NewEngine(statesync.EngineOptions{
		Store:     store,
		Logger:    log.With("component", "statesync"),
		Listeners: []statesync.Listener{unifi.NewHistoryRecorder(history)},
	})
	if err != nil {
		return fmt.Errorf("creating sync engine: %w", err)
	}

	checks := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional)
	var (
		mqttClient *mqtt.Client
		mirror     *unifi.StateMirror
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mirror = unifi.NewStateMirror(mqttClient)
		engine.AddListener(mirror)
		checks["mqtt"] = mqttClient
		if gaugeErr := collector.RegisterGaugeFunc("mqtt_connected",
			"1 while the MQTT broker connection is up.",
			func() float64 {
				if mqttClient.IsConnected() {
					return 1
				}
				return 0
			},
		); gaugeErr != nil {
			return fmt.Errorf("registering mqtt gauge: %w", gaugeErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var cycleListeners []unifi.CycleListener
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		recorder := unifi.NewTimeSeriesRecorder(influxClient)
		engine.AddListener(recorder)
		cycleListeners = append(cycleListeners, recorder)
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	ctrl, err := newController(cfg.Controller)
	if err != nil {
		return fmt.Errorf("creating controller client: %w", err)
	}

	bridgeOpts := unifi.BridgeOptions{
		Config: unifi.Config{
			Username:       cfg.Controller.Username,
			Password:       cfg.Controller.Password,
			Interval:       cfg.GetPollInterval(),
			RetryOnFailure: cfg.Poll.RetryOnFailure,
			HealthInterval: cfg.GetHealthInterval(),
			Version:        version,
		},
		Controller:     ctrl,
		Store:          store,
		Engine:         engine,
		Metrics:        collector,
		Logger:         log.With("component", "bridge"),
		CycleListeners: cycleListeners,
	}
	// Assigned only when set so the interface is not a typed nil.
	if mqttClient != nil {
		bridgeOpts.MQTTClient = mqttClient
	}
	bridge, err := unifi.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if mqttClient != nil {
		watchBroker(ctx, mqttClient, bridge, mirror, store, collector, log)
	}

	if cfg.API.Enabled {
		hub := api.NewHub(log.With("component", "websocket"))
		engine.AddListener(hub)
		if gaugeErr := collector.RegisterGaugeFunc("websocket_clients",
			"Number of connected WebSocket clients.",
			func() float64 { return float64(hub.ClientCount()) },
		); gaugeErr != nil {
			return fmt.Errorf("registering websocket gauge: %w", gaugeErr)
		}
		if gaugeErr := collector.RegisterGaugeFunc("websocket_dropped_frames",
			"State frames discarded because a WebSocket client fell behind.",
			func() float64 { return float64(hub.Dropped()) },
		); gaugeErr != nil {
			return fmt.Errorf("registering websocket gauge: %w", gaugeErr)
		}

		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Bridge:   bridge,
			Objects:  store,
			History:  history,
			Checks:   checks,
			Metrics:  collector.Handler(),
			Hub:      hub,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled: security.jwt.secret is empty")
		}
	} else {
		log.Info("API disabled")
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	var wg sync.WaitGroup
	if retention := cfg.GetHistoryRetention(); retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, history, retention, pruneInterval, log)
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	// Deferred cleanup runs in reverse order: bridge, API, InfluxDB,
	// MQTT, then the database.
	return nil
}

// newController picks the live HTTP client or the fixture replayer.
func newController(cfg config.ControllerConfig) (unifi.Controller, error) {
	switch cfg.Mode {
	case config.ModeFile:
		return unifi.NewFileController(cfg.FixtureDir), nil
	default:
		return unifi.NewHTTPClient(unifi.ClientConfig{
			Host:               cfg.Host,
			Port:               cfg.Port,
			BaseURL:            cfg.BaseURL,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Timeout:            time.Duration(cfg.Timeout) * time.Second,
		})
	}
}

// brokerHooks is satisfied by *mqtt.Client.
type brokerHooks interface {
	SetOnConnect(hook func())
	SetOnDisconnect(hook func(err error))
}

// watchBroker counts broker outages and, once the broker is back,
// republishes health and every stored state so retained messages are
// current again.
func watchBroker(ctx context.Context, broker brokerHooks, bridge *unifi.Bridge,
	mirror *unifi.StateMirror, states unifi.StateLister, collector *metrics.Collector, log *logging.Logger,
) {
	broker.SetOnDisconnect(func(error) {
		collector.ObserveBrokerDisconnect()
	})
	broker.SetOnConnect(func() {
		bridge.BrokerReconnected()
		n, err := mirror.Republish(ctx, states)
		if err != nil {
			log.Warn("republishing states after reconnect failed", "published", n, "error", err)
			return
		}
		log.Info("republished states after reconnect", "states", n)
	})
}

// issueToken writes a signed API token for subject to out.
func issueToken(out io.Writer, sec config.SecurityConfig, subject string, ttl time.Duration) error {
	if sec.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret must be set to issue tokens")
	}
	token, err := api.IssueToken(sec.JWT.Secret, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// historyPruner is satisfied by *objectstore.HistoryRepository.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneLoop deletes state history older than retention, once at start
// and then every interval, until ctx is cancelled.
func pruneLoop(ctx context.Context, p historyPruner, retention, interval time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := p.PruneHistory(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("state history prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("pruned state history", "deleted", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
