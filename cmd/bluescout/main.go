// Blue Scout Core - radio device reconnaissance engine
//
// This is the main entry point for the Blue Scout engine. It discovers
// nearby classic and low-energy devices, correlates them with the
// vulnerability signature database, and manages operator-driven
// connections over the MQTT control surface.
//
// Configuration is read from configs/config.yaml (or BLUESCOUT_CONFIG).
// When the default file is absent the built-in defaults are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/control"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/discovery"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/config"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/database"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/logging"
	"github.com/nerrad567/bluescout-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/bluescout-core/internal/signature"
	"github.com/nerrad567/bluescout-core/internal/timing"
	"github.com/nerrad567/bluescout-core/internal/transport"
	"github.com/nerrad567/bluescout-core/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logStartup records the build. The version attribute already comes from
// the logger itself.
func logStartup(log *logging.Logger) {
	log.Info("starting Blue Scout Core",
		"commit", commit,
		"build_date", date,
	)
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled and returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	logStartup(log)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no configuration file, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Signature database degrades to empty rather than failing startup
	sigDB, sigErr := signature.Load(cfg.Signatures.VulnerabilitiesPath, cfg.Signatures.ExploitsPath)
	if sigErr != nil {
		log.Warn("signature database incomplete, correlation limited", "error", sigErr)
	}
	correlator := signature.NewCorrelator(sigDB)
	log.Info("signature database loaded",
		"patterns", sigDB.Len(),
		"exploits", sigDB.ExploitCount(),
	)

	// Device registry
	registry := device.NewRegistry(correlator, device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if cfg.Discovery.RestoreOnStart {
		n, restoreErr := registry.Restore(ctx)
		if restoreErr != nil {
			return fmt.Errorf("restoring device registry: %w", restoreErr)
		}
		log.Info("device registry restored", "devices", n)
	}

	engine, err := newEngine(cfg.Stealth)
	if err != nil {
		return fmt.Errorf("creating timing engine: %w", err)
	}
	engine.SetLogger(log.Component("timing"))

	radios := openTransports(cfg, log)
	defer radios.close(log)

	// Connection manager
	resolver := capability.NewStaticResolver()
	manager := connection.NewManager(connection.Options{
		Classic:    radios.classicDialer(),
		Session:    radios.sessionTransport(),
		Engine:     engine,
		Signatures: registry,
		Journal:    connection.NewSQLiteJournal(db.DB),
		Resolver:   resolver,
		Defaults: connection.Params{
			Port:           cfg.Connection.DefaultPort,
			Characteristic: cfg.Connection.Characteristic,
		},
	})
	manager.SetLogger(log.Component("connection"))
	defer func() {
		log.Info("closing connections")
		if closeErr := manager.CloseAll(context.Background()); closeErr != nil {
			log.Error("error closing connections", "error", closeErr)
		}
	}()

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			log.Info("closing influxdb connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(writeErr error) {
			log.Error("influxdb write error", "error", writeErr)
		})
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("influxdb disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to mqtt: %w", err)
		}
		defer func() {
			log.Info("closing mqtt connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing mqtt", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("mqtt connected", "broker", cfg.MQTT.Broker.Host)
		})
		mqttClient.SetOnDisconnect(func(disconnectErr error) {
			log.Warn("mqtt disconnected", "error", disconnectErr)
		})
		log.Info("mqtt connected", "broker", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)
	} else {
		log.Info("mqtt disabled, control surface unavailable")
	}

	// Discovery loop
	loopOpts := discovery.Options{
		Registry:           registry,
		Engine:             engine,
		Classic:            radios.inquirer(),
		Advertisement:      radios.advertisementScanner(),
		Interval:           cfg.Discovery.Interval,
		MaxDuration:        cfg.Discovery.MaxDuration,
		ClassicProbability: cfg.Discovery.ClassicProbability,
		ClearOnRescan:      cfg.Discovery.ClearOnRescan,
		TransientBackoff:   cfg.Discovery.TransientBackoff,
		BreakerFailures:    cfg.Discovery.BreakerFailures,
		BreakerTimeout:     cfg.Discovery.BreakerTimeout,
	}
	if mqttClient != nil {
		publisher := discovery.NewMQTTPublisher(mqttClient, registry)
		publisher.SetLogger(log.Component("publisher"))
		loopOpts.Events = publisher
	}
	if influxClient != nil {
		loopOpts.Telemetry = influxClient
	}
	loop := discovery.NewLoop(loopOpts)
	loop.SetLogger(log.Component("discovery"))
	defer func() {
		log.Info("stopping discovery")
		loop.Stop()
	}()

	if mqttClient != nil {
		health := discovery.NewHealthReporter(discovery.HealthReporterConfig{
			EngineID:    cfg.Engine.ID,
			Version:     version,
			Interval:    cfg.Engine.HealthInterval,
			Publisher:   mqttClient,
			Devices:     registry,
			Connections: manager,
			Scan:        loop,
		})
		health.SetLogger(log.Component("health"))
		if pubErr := health.PublishStarting(); pubErr != nil {
			log.Warn("publishing starting status failed", "error", pubErr)
		}
		health.Start(ctx)
		defer health.Stop()

		if cfg.Control.Enabled {
			bridge, bridgeErr := startControl(ctx, cfg, control.Options{
				MQTT:        mqttClient,
				Connections: manager,
				Registry:    registry,
				Discovery:   loop,
				Correlator:  correlator,
				Resolver:    resolver,
				Telemetry:   telemetryOrNil(influxClient),
			}, log)
			if bridgeErr != nil {
				return fmt.Errorf("starting control bridge: %w", bridgeErr)
			}
			defer func() {
				log.Info("stopping control bridge")
				bridge.Stop()
			}()
		} else {
			log.Info("control bridge disabled")
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Discovery.AutoStart {
		if startErr := loop.Start(ctx); startErr != nil {
			log.Warn("discovery not started", "error", startErr)
		} else {
			log.Info("discovery started",
				"interval", cfg.Discovery.Interval,
				"max_duration", cfg.Discovery.MaxDuration,
			)
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: control bridge, health,
	// discovery, MQTT, InfluxDB, connections, radios, database.

	log.Info("Blue Scout Core stopped")
	return nil
}

// loadConfig resolves the configuration. An explicit BLUESCOUT_CONFIG must
// exist; a missing default file falls back to built-in defaults and
// returns an empty path.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if os.Getenv("BLUESCOUT_CONFIG") == "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, defErr := config.Default()
			return cfg, "", defErr
		}
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// getConfigPath returns the configuration file path.
// Uses BLUESCOUT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BLUESCOUT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newEngine builds the process-wide timing engine from the stealth level.
// extra options are applied after the seed.
func newEngine(cfg config.StealthConfig, extra ...timing.Option) (*timing.Engine, error) {
	profile, err := timing.NewProfile(cfg.Level)
	if err != nil {
		return nil, err
	}
	var opts []timing.Option
	if cfg.Seed != 0 {
		opts = append(opts, timing.WithSeed(cfg.Seed))
	}
	return timing.New(profile, append(opts, extra...)...), nil
}

// radios holds whichever transports the configuration enabled. Nil fields
// are absent radios.
type radios struct {
	rfcomm *transport.RFCOMM
	bluez  *transport.BlueZInquirer
	le     *transport.LE
}

func openTransports(cfg *config.Config, log *logging.Logger) *radios {
	r := &radios{}
	if cfg.Transport.ClassicEnabled {
		r.rfcomm = transport.NewRFCOMM()
		r.rfcomm.SetPollInterval(cfg.Connection.RecvTimeout)
		r.bluez = transport.NewBlueZInquirer(cfg.Transport.Adapter)
		r.bluez.SetLogger(log.Component("bluez"))
		log.Info("classic transport enabled", "adapter", cfg.Transport.Adapter)
	}
	if cfg.Transport.AdvertisementEnabled {
		id, err := hciIndex(cfg.Transport.Adapter)
		if err != nil {
			log.Warn("advertisement transport disabled", "adapter", cfg.Transport.Adapter, "error", err)
		} else {
			r.le = transport.NewLE(id)
			r.le.SetLogger(log.Component("le"))
			log.Info("advertisement transport enabled", "hci", id)
		}
	}
	return r
}

// The accessors return untyped nil for absent radios so interface checks
// downstream see nil rather than a typed nil pointer.

func (r *radios) classicDialer() connection.ClassicTransport {
	if r.rfcomm == nil {
		return nil
	}
	return r.rfcomm
}

func (r *radios) sessionTransport() connection.SessionTransport {
	if r.le == nil {
		return nil
	}
	return r.le
}

func (r *radios) inquirer() discovery.Scanner {
	if r.bluez == nil {
		return nil
	}
	return r.bluez
}

func (r *radios) advertisementScanner() discovery.Scanner {
	if r.le == nil {
		return nil
	}
	return r.le
}

func (r *radios) close(log *logging.Logger) {
	if r.le != nil {
		if err := r.le.Close(); err != nil {
			log.Error("error closing advertisement transport", "error", err)
		}
	}
}

// hciIndex parses an adapter name such as "hci0" into its device index.
func hciIndex(adapter string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid adapter name %q", adapter)
	}
	return n, nil
}

func telemetryOrNil(c *influxdb.Client) control.Telemetry {
	if c == nil {
		return nil
	}
	return c
}

// startControl creates and starts the MQTT control bridge.
func startControl(ctx context.Context, cfg *config.Config, opts control.Options, log *logging.Logger) (*control.Bridge, error) {
	opts.RateLimit = cfg.Control.RateLimit
	opts.Burst = cfg.Control.Burst
	opts.CommandTimeout = cfg.Control.CommandTimeout
	opts.CaptureSize = cfg.Connection.CaptureQueueSize

	bridge, err := control.NewBridge(opts)
	if err != nil {
		return nil, err
	}
	bridge.SetLogger(log.Component("control"))

	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("control bridge started",
		"topic", mqtt.Topics{}.AllCommands(),
		"rate_limit", cfg.Control.RateLimit,
	)
	return bridge, nil
}

// healthCheck verifies the infrastructure connections that are enabled.
// mqttClient and influxClient may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
