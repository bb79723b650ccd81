// SensorFlow Core - Telemetry Relay Service
//
// This is the main entry point for the SensorFlow Core service.
// SensorFlow ingests encrypted sensor readings over MQTT, keeps a
// bounded per-topic history, and relays live readings to WebSocket
// dashboards:
//   - Always-on primary broker connection plus dynamic per-device brokers
//   - AES-256-CBC payload decryption with a legacy plaintext fallback
//   - History replay before live delivery for every new viewer
//   - Optional InfluxDB export of accepted readings
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/sensorflow/sensorflow-core/migrations"

	"github.com/sensorflow/sensorflow-core/internal/api"
	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/codec"
	"github.com/sensorflow/sensorflow-core/internal/history"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/config"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/database"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/influxdb"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/logging"
	"github.com/sensorflow/sensorflow-core/internal/registry"
	"github.com/sensorflow/sensorflow-core/internal/relay"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SensorFlow Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Payload codec shared by every connection and the HTTP ingestion path
	payloadCodec, err := codec.New([]byte(cfg.Crypto.Key), []byte(cfg.Crypto.IV))
	if err != nil {
		return fmt.Errorf("initialising codec: %w", err)
	}

	// Open database for broker registration persistence
	db, err := database.Open(database.Config{
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to InfluxDB (optional export sink)
	var influxClient *influxdb.Client
	var sink relay.Sink
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		sink = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// History store and topic namespace
	store := history.NewStore(cfg.Telemetry.HistoryCapacity)
	topics := broker.Topics{Base: cfg.Telemetry.BaseTopic}

	// The registry's handlers forward into the hub, and the hub
	// delegates commands back to the registry. The closures below are
	// only invoked once connections start, after the hub exists.
	var hub *relay.Hub
	handlers := broker.Handlers{
		OnReading: func(topic string, reading codec.Reading) {
			hub.OnReading(topic, reading)
		},
		OnDecodeError: func(topic string, err error) {
			hub.OnDecodeError(topic, err)
		},
		OnStateChange: func(name string, state broker.State) {
			hub.OnStateChange(name, state)
		},
	}

	repo := registry.NewSQLiteRepository(db.DB)
	brokers := registry.New(repo, payloadCodec, handlers, registry.Options{
		Topics:           topics,
		QoS:              byte(cfg.MQTT.QoS),
		Username:         cfg.MQTT.Auth.Username,
		Password:         cfg.MQTT.Auth.Password,
		ClientIDPrefix:   cfg.MQTT.Broker.ClientID,
		ReconnectInitial: time.Duration(cfg.MQTT.Reconnect.InitialDelay) * time.Second,
		ReconnectMax:     time.Duration(cfg.MQTT.Reconnect.MaxDelay) * time.Second,
	}, log)

	hub = relay.NewHub(store, brokers, sink, relay.Config{
		Topics:     topics,
		SendBuffer: cfg.WebSocket.SendBuffer,
	}, log)
	defer hub.Close()

	// Start the primary connection and restore persisted registrations.
	// Connections establish asynchronously and retry indefinitely, so a
	// broker outage at boot does not prevent startup.
	endpoint := primaryEndpoint(cfg.MQTT.Broker)
	if startErr := brokers.Start(ctx, endpoint); startErr != nil {
		return fmt.Errorf("starting connection registry: %w", startErr)
	}
	defer func() {
		log.Info("closing broker connections")
		brokers.Close()
	}()
	log.Info("connection registry started",
		"endpoint", endpoint,
		"restored", len(brokers.Names()),
	)

	// Start the HTTP API and WebSocket server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Hub:      hub,
		Registry: brokers,
		Codec:    payloadCodec,
		Topics:   topics,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops accepting viewers and commands)
	// 2. Broker connections
	// 3. Relay hub (detaches remaining sessions)
	// 4. InfluxDB (if enabled)
	// 5. Database

	log.Info("SensorFlow Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SENSORFLOW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSORFLOW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// primaryEndpoint builds the primary broker endpoint from config.
func primaryEndpoint(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// healthCheck verifies infrastructure connections are healthy.
// Broker connections are excluded deliberately: they establish
// asynchronously and an unreachable broker is a normal condition the
// reconnect loop handles.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
