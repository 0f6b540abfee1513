package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/assign"
	"github.com/landing-lab/landing-lab/internal/config"
	"github.com/landing-lab/landing-lab/internal/experiment"
	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/logging"
	"github.com/landing-lab/landing-lab/internal/stats"
	"github.com/landing-lab/landing-lab/internal/store"
)

// services wires the experiment components over one open store.
type services struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	registry *experiment.Registry
	assigner *assign.Service
	ledger   *ledger.Ledger
	analyzer *stats.Analyzer
}

// loadConfig reads the config and applies command-line overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dbPath != "" {
		cfg.Storage.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}

// withServices opens the database, executes the function, and handles cleanup.
func (o *rootOptions) withServices(cmd *cobra.Command, fn func(*services) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	logger := o.logger(cmd, cfg)
	timeout := cfg.StorageTimeout()

	registry := experiment.NewRegistry(s, experiment.Options{
		Defaults: experiment.Defaults{
			MinSampleSize:   cfg.Experiments.MinSampleSize,
			ConfidenceLevel: cfg.Experiments.ConfidenceLevel,
		},
		Timeout: timeout,
		Logger:  logger,
	})
	events := ledger.New(s, registry, ledger.Options{Timeout: timeout, Logger: logger})

	return fn(&services{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		registry: registry,
		assigner: assign.NewService(registry, logger),
		ledger:   events,
		analyzer: stats.NewAnalyzer(registry, events, logger),
	})
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
