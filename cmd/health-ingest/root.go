// ABOUTME: Root Cobra command for the health-ingest CLI.
// ABOUTME: Loads config and opens storage, logging and the coordinator in PersistentPre/PostRunE.
package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/harperreed/health-ingest/internal/config"
	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/storage"
	"github.com/harperreed/health-ingest/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	dataDir  string
	logLevel string

	cfg         *config.Config
	log         *logger.Logger
	db          *storage.DB
	promReg     *prometheus.Registry
	metrics     *telemetry.Metrics
	coordinator *ingest.Coordinator
)

var rootCmd = &cobra.Command{
	Use:   "health-ingest",
	Short: "Idempotent storage for Health Auto Export payloads",
	Long: `health-ingest stores Health Auto Export JSON payloads in SQLite or PostgreSQL.

Every payload, metric group and record is deduplicated, so the same export
can be delivered any number of times without creating duplicate rows.

QUICK START:

  $ health-ingest ingest export.json        # Store one export file
  $ health-ingest ingest export.json        # Again: reported as duplicate
  $ health-ingest payloads list             # See stored payloads
  $ health-ingest stats                     # Row counts per table

RECEIVING EXPORTS:

  $ health-ingest serve                     # POST /api/v1/sync on :8080
  $ health-ingest serve --mqtt-broker tcp://localhost:1883

  Point the Health Auto Export REST API automation at
  http://<host>:8080/api/v1/sync.

MCP INTEGRATION:

  Run 'health-ingest mcp' to start the Model Context Protocol server for
  AI assistants:

  {
    "mcpServers": {
      "health-ingest": { "command": "health-ingest", "args": ["mcp"] }
    }
  }

CONFIGURATION:

  Settings are read from $XDG_CONFIG_HOME/health-ingest/config.json and
  HEALTH_INGEST_* environment variables (HEALTH_INGEST_BACKEND,
  HEALTH_INGEST_DATABASE_URL, HEALTH_INGEST_HTTP_ADDR, ...).

DATA STORAGE:

  The SQLite backend keeps health.db in $XDG_DATA_HOME/health-ingest.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func setup(cmd *cobra.Command) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	mode := "prod"
	if cfg.Log.Development {
		mode = "dev"
	}
	log, err = logger.New(mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	promReg = prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics = telemetry.New(promReg)

	db, err = cfg.OpenStorage(cmd.Context(), storage.WithObserver(metrics))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	coordinator = ingest.New(ingest.NewStore(db), log, metrics, cfg.IngestConfig())
	return nil
}

func teardown() error {
	var result *multierror.Error
	if db != nil {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
		}
		db = nil
	}
	if log != nil {
		log.Sync()
	}
	return result.ErrorOrNil()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/health-ingest/config.json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the sqlite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
