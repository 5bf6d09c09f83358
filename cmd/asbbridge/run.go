package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/asysbus-bridge/migrations"

	"github.com/nerrad567/asysbus-bridge/internal/api"
	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/database"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/asysbus-bridge/internal/journal"
)

// retentionInterval is how often the journal is pruned.
const retentionInterval = time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	Long: `Run the bridge until interrupted or until the serial port is lost.

With serial.reconnect_interval set to 0 a lost port stops the bridge with
a non-zero exit status, so a supervisor can restart it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), resolveConfigPath())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the bridge process, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting aSysBus bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	mode, err := asb.ParseNumericMode(cfg.Bridge.NumericMode)
	if err != nil {
		return err
	}

	// Open the frame journal (optional)
	var db *database.DB
	var repo *journal.SQLiteRepository
	if cfg.Journal.Enabled {
		db, err = database.Open(database.FromJournal(cfg.Journal))
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo = journal.NewSQLiteRepository(db.DB, mode)
		log.Info("journal opened", "path", cfg.Journal.Path, "retention", cfg.Retention().String())
	} else {
		log.Info("journal disabled")
	}

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	serialConn := asb.NewSerialConnector(asb.SerialConfigFrom(cfg.Serial), nil)
	serialConn.SetLogger(log.Component("serial"))
	defer func() {
		if closeErr := serialConn.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()

	bridge, err := asb.NewBridge(asb.BridgeOptions{
		Config: asb.BridgeConfig{
			ID:             cfg.Bridge.ID,
			Prefix:         cfg.Bridge.TopicPrefix,
			Mode:           mode,
			QoS:            byte(cfg.MQTT.QoS),
			QueueSize:      cfg.Bridge.QueueSize,
			HealthInterval: cfg.HealthInterval(),
			Version:        version,
		},
		MQTT:      brokerClient{mqttClient},
		Serial:    serialConn,
		Telemetry: telemetryWriter(influxClient),
		Journal:   frameJournal(repo),
		Logger:    log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Start HTTP status server (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			BridgeID: cfg.Bridge.ID,
			Status:   bridge,
			Control:  bridge.Relay(),
			Prefix:   cfg.Bridge.TopicPrefix,
			Broker:   mqttClient,
			Version:  version,
		}
		if repo != nil {
			deps.Journal = repo
			deps.DB = db.DB
		}
		if influxClient != nil {
			deps.Telemetry = influxClient
		}
		srv, srvErr := api.New(deps)
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	if repo != nil {
		g.Go(func() error {
			return journal.RunRetention(gctx, repo, cfg.Retention(), retentionInterval, log.Component("journal"))
		})
	}

	log.Info("initialisation complete, bridging",
		"serial_port", cfg.Serial.Port,
		"prefix", cfg.Bridge.TopicPrefix,
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	// Deferred Close() calls run in reverse order:
	// serial, API, InfluxDB, MQTT, journal.
	log.Info("aSysBus bridge stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Journal database to check (may be nil if disabled)
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The serial port is checked by the bridge itself: Run fails if the
	// port cannot be opened.

	return nil
}

// telemetryWriter keeps a nil client from becoming a non-nil interface.
func telemetryWriter(c *influxdb.Client) asb.TelemetryWriter {
	if c == nil {
		return nil
	}
	return c
}

func frameJournal(r *journal.SQLiteRepository) asb.FrameJournal {
	if r == nil {
		return nil
	}
	return r
}
