// Gray Logic Hub - smart-home plugin gateway
//
// This is the main entry point for the Gray Logic Hub application.
// The hub hosts integration plugins, exposes their devices as protocol
// nodes in bridge or childbridge topology, and manages commissioning
// windows for pairing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-hub/migrations"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/hub"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/integrations/virtual"
	"github.com/nerrad567/gray-logic-hub/internal/node/local"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
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

// destroyTimeout bounds the teardown on shutdown.
const destroyTimeout = 30 * time.Second

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Storage.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store, err := storage.NewStore(ctx, db, storage.Options{
		BackupPath: cfg.Storage.BackupPathOrDefault(),
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	store.SetLogger(log)

	// Registries
	plugins := plugin.NewRegistry(plugin.NewSQLiteRepository(db.DB))
	plugins.SetLogger(log)
	devices := device.NewRegistry()
	devices.SetLogger(log)

	// Integration catalog: built-in integrations register here.
	catalog := plugin.NewCatalogResolver()
	virtual.Register(catalog)
	log.Info("integration catalog ready", "integrations", catalog.Names())

	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{
		Resolver: catalog,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating plugin adapter: %w", err)
	}

	// Protocol node factory
	factory := local.NewFactory(local.Options{
		BasePort:  cfg.Bridge.Network.Port,
		Interface: cfg.Bridge.Network.Interface,
		MDNS:      cfg.Bridge.Network.MDNS,
		Logger:    log,
	})
	defer func() {
		log.Info("closing node factory")
		if closeErr := factory.Close(); closeErr != nil {
			log.Error("error closing node factory", "error", closeErr)
		}
	}()

	h, err := hub.New(hub.Options{
		Config:  cfg,
		Store:   store,
		Plugins: plugins,
		Devices: devices,
		Adapter: adapter,
		Factory: factory,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// #nosec G115 -- QoS validated by config to 0..2
		h.AddSink(mqtt.NewNodeEventSink(mqttClient, byte(cfg.MQTT.QoS)))

		if subErr := subscribeHubCommands(mqttClient, h, byte(cfg.MQTT.QoS), log); subErr != nil {
			log.Warn("hub command subscription failed", "error", subErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		h.AddSink(influxdb.NewNodeEventSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// API server (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Hub:      h,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		h.AddSink(server.WSHub())

		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API server disabled")
	}

	// Bring the bridge up: load persisted plugins, resolve topology,
	// launch plugins and start nodes.
	if err := h.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising hub: %w", err)
	}
	log.Info("hub initialised", "mode", h.Mode(), "plugins", plugins.Count())

	if interval := cfg.Hub.UpdateCheckInterval; interval > 0 {
		h.StartUpdateChecks(ctx, time.Duration(interval)*time.Minute)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	destroyCtx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	h.Destroy(destroyCtx, "shutdown signal", false)

	log.Info("Gray Logic Hub stopped")
	return nil
}

// openDatabase opens the SQLite store and verifies its integrity,
// restoring from the sidecar backup when the config allows it.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	dbCfg := database.Config{
		Path:        cfg.Storage.Path,
		WALMode:     cfg.Storage.WALMode,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	verifyErr := db.Verify(ctx)
	if verifyErr == nil {
		return db, nil
	}

	if !cfg.Storage.RestoreOnCorruption {
		db.Close() //nolint:errcheck // Error path
		return nil, fmt.Errorf("database corrupted (restore disabled): %w", verifyErr)
	}

	backupPath := cfg.Storage.BackupPathOrDefault()
	log.Warn("database corrupted, restoring from backup",
		"error", verifyErr,
		"backup", backupPath,
	)

	if closeErr := db.Close(); closeErr != nil {
		return nil, fmt.Errorf("closing corrupted database: %w", closeErr)
	}
	if restoreErr := database.RestoreFromBackup(cfg.Storage.Path, backupPath); restoreErr != nil {
		return nil, fmt.Errorf("restoring database: %w", restoreErr)
	}

	db, err = database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("reopening restored database: %w", err)
	}
	if err := db.Verify(ctx); err != nil {
		db.Close() //nolint:errcheck // Error path
		return nil, fmt.Errorf("restored database still corrupted: %w", err)
	}
	log.Info("database restored from backup")

	return db, nil
}

// subscribeHubCommands wires the small MQTT command surface:
// grayhub/hub/command/stop-advertising closes all commissioning windows.
func subscribeHubCommands(client *mqtt.Client, h *hub.Hub, qos byte, log *logging.Logger) error {
	topics := mqtt.Topics{}
	return client.Subscribe(topics.AllHubCommands(), qos, func(topic string, _ []byte) error {
		command := topic[strings.LastIndex(topic, "/")+1:]
		switch command {
		case "stop-advertising":
			log.Info("stop-advertising command received")
			h.StopAdvertising()
		default:
			log.Warn("unknown hub command", "command", command)
		}
		return nil
	})
}

// getConfigPath returns the configuration file path.
// Uses GRAYHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB clients may be nil when disabled.
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
