// RV-C Bridge - Device State and Command Dispatch
//
// This is the main entry point for the RV-C bridge. It keeps an in-memory
// picture of every coach device (dimmers, vents, HVAC, water heater,
// generator), mirrors it over MQTT, and accepts commands from both the
// HTTP API and the RVC/command/# topics.
//
// Usage:
//
//	rvcbridge                       run the bridge
//	rvcbridge hash-password <pass>  print an argon2id hash for auth.password_hash
//
// The config file is read from RVCBRIDGE_CONFIG, or configs/config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rvc-bridge/migrations"

	"github.com/nerrad567/rvc-bridge/internal/api"
	"github.com/nerrad567/rvc-bridge/internal/auth"
	"github.com/nerrad567/rvc-bridge/internal/bus"
	"github.com/nerrad567/rvc-bridge/internal/devicetype"
	"github.com/nerrad567/rvc-bridge/internal/dispatch"
	"github.com/nerrad567/rvc-bridge/internal/eventlog"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/database"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/postgres"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupCheckTimeout bounds the health checks run before serving.
const startupCheckTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword writes the argon2id encoding of the single password argument.
func hashPassword(w io.Writer, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: rvcbridge hash-password <password>")
	}
	encoded, err := auth.HashPassword(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, encoded)
	return err
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting RV-C bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	// Event log backend
	repo, checks, closeRepo, err := openEventLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	recorder := eventlog.NewRecorder(repo, cfg.EventLog.QueueSize, log.Component("eventlog"))
	defer func() {
		log.Info("draining event log")
		recorder.Close()
	}()

	// Device state engine
	store := state.NewStore()
	store.SetLogger(log.Component("state"))

	dispatcher := dispatch.New(dispatch.Config{
		Store:       store,
		Types:       devicetype.Builtin(),
		Recorder:    recorder,
		Logger:      log.Component("dispatch"),
		HistorySize: cfg.Devices.CommandHistory,
	})

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)
	checks = append(checks, namedCheck{"mqtt", mqttClient.HealthCheck})

	bridge, err := bus.NewBridge(bus.Options{
		MQTTClient: mqttClient,
		Topics:     mqttClient.Topics(),
		QoS:        mqttClient.QoS(),
		Store:      store,
		Executor:   dispatcher,
		Recorder:   recorder,
		Logger:     log.Component("bus"),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}
	dispatcher.SetPublisher(bridge)

	// Connect to InfluxDB (optional)
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
		store.OnChange(func(change state.Change) {
			influxClient.WriteDeviceState(change.State.DeviceID, change.State.DeviceType,
				change.State.Attributes, time.Now())
		})
		checks = append(checks, namedCheck{"influxdb", influxClient.HealthCheck})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	seeded, err := startBus(ctx, dispatcher, bridge, seedStates(cfg.Devices))
	if err != nil {
		return fmt.Errorf("starting MQTT bridge: %w", err)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		bridge.Stop()
	}()
	log.Info("devices provisioned", "count", seeded)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Store:      store,
		Dispatcher: dispatcher,
		EventLog:   recorder,
		Auth:       verifier,
		Broker:     mqttClient,
		Bus:        bridge,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	checks = append(checks, namedCheck{"api", server.HealthCheck})

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "api", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT bridge (retained offline status)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Event log recorder (drains pending writes)
	// 6. Event log database

	log.Info("RV-C bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RVCBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RVCBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openEventLog opens the configured event log backend and applies its
// migrations.
//
// Parameters:
//   - ctx: Context for connection and migration
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - eventlog.Repository: Backend ready for the recorder
//   - []namedCheck: Health check for the backend
//   - func(): Closes the backend; always safe to call
//   - error: If the backend cannot be opened or migrated
func openEventLog(ctx context.Context, cfg *config.Config, log *logging.Logger) (eventlog.Repository, []namedCheck, func(), error) {
	limits := eventlog.Limits{Default: cfg.EventLog.DefaultLimit, Max: cfg.EventLog.MaxLimit}
	noop := func() {}

	switch cfg.EventLog.Driver {
	case config.EventLogDriverPostgres:
		pg, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		closeFn := func() {
			log.Info("closing PostgreSQL pool")
			if closeErr := pg.Close(); closeErr != nil {
				log.Error("error closing PostgreSQL", "error", closeErr)
			}
		}
		if err := pg.Migrate(ctx, migrations.PostgresFS(), migrations.PostgresDir); err != nil {
			closeFn()
			return nil, nil, noop, fmt.Errorf("running PostgreSQL migrations: %w", err)
		}
		log.Info("event log using PostgreSQL")
		return eventlog.NewPostgresRepository(pg.Pool, limits),
			[]namedCheck{{"postgres", pg.HealthCheck}}, closeFn, nil

	default:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("opening database: %w", err)
		}
		closeFn := func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}
		if err := db.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, noop, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("event log using SQLite", "path", cfg.Database.Path)
		return eventlog.NewSQLiteRepository(db.DB, limits),
			[]namedCheck{{"database", db.HealthCheck}}, closeFn, nil
	}
}

// seedStates returns the devices provisioned at startup: the demonstration
// set when enabled, followed by any configured devices. A configured device
// with the same ID replaces the demonstration entry.
func seedStates(cfg config.DevicesConfig) []state.DeviceState {
	var seeds []state.DeviceState
	if cfg.SeedTestDevices {
		seeds = append(seeds, dispatch.DefaultSeed()...)
	}
	for _, d := range cfg.Seed {
		seeds = append(seeds, state.New(d.ID, d.Type, d.Attributes))
	}
	return seeds
}

// startBus seeds the store and then subscribes the bridge.
//
// The seed publishes replace any retained state left by an earlier run
// before the subscription exists, so the retained values the broker replays
// on subscribe are the bridge's own and are dropped as echoes.
//
// Returns:
//   - int: Number of devices seeded
//   - error: If the bridge fails to subscribe
func startBus(ctx context.Context, dispatcher *dispatch.Dispatcher, bridge *bus.Bridge, seeds []state.DeviceState) (int, error) {
	seeded := dispatcher.Seed(ctx, seeds...)
	if err := bridge.Start(ctx); err != nil {
		return seeded, err
	}
	return seeded, nil
}

// namedCheck is one component health check.
type namedCheck struct {
	name  string
	check func(ctx context.Context) error
}

// healthCheck runs every check concurrently and returns the first failure.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Checks for the components started so far
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks []namedCheck) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		c := c
		g.Go(func() error {
			if err := c.check(gctx); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
