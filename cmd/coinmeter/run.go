package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lexhq/coinmeter/pkg/billing"
	"lexhq/coinmeter/pkg/cli"
	"lexhq/coinmeter/pkg/config"
	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/server"
	"lexhq/coinmeter/pkg/session"
	"lexhq/coinmeter/pkg/subscription"
	"lexhq/coinmeter/pkg/telemetry/logging"
	"lexhq/coinmeter/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the metering API server",
	Long: `Start the metering API server with the specified configuration.

The server exposes the charge path, cost previews, session tracking and
wallet operations over HTTP.

Examples:
  # Start with default config
  coinmeter run

  # Start with custom config
  coinmeter run --config /etc/coinmeter/config.yaml

  # Override listen address
  coinmeter run --listen 0.0.0.0:8080

  # Hot-reload the pricing catalog when the config file changes
  coinmeter run --watch

  # Validate config without starting the server
  coinmeter run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "hot-reload pricing catalog on config file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Coinmeter v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Pricing catalog
	repo, err := pricing.NewStaticRepository(cfg.PricingConfigs())
	if err != nil {
		return cli.NewConfigError("pricing", err.Error())
	}
	fmt.Printf("✓ Pricing catalog loaded (%d configs)\n", len(cfg.Pricing))

	// Persistence
	wallets, sessionStore, err := buildStorage(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer wallets.Close()
	defer sessionStore.Close()
	fmt.Printf("✓ Storage initialized (%s)\n", cfg.Storage.Backend)

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(
			cfg.Telemetry.Metrics.Namespace,
			cfg.Telemetry.Metrics.Subsystem,
			nil,
		)
	}

	// Session tracking and expiry sweeping
	sessions := session.NewTracker(sessionStore, repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := session.NewSweeper(sessions, cfg.Sessions.SweepSchedule, logger)
	if err := sweeper.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to start session sweeper: %w", err))
	}
	defer sweeper.Stop()

	// Billing
	subs := subscription.NewStaticService(cfg.Billing.PremiumUsers)
	var billingMetrics *metrics.BillingMetrics
	if collector != nil {
		billingMetrics = collector.Billing
	}
	tracker, err := billing.NewTracker(billing.TrackerConfig{
		Configs:       repo,
		Wallets:       wallets,
		Sessions:      sessions,
		Bypass:        billing.NewBypassPolicy(subs),
		CharTolerance: cfg.Billing.CharTolerance,
		Metrics:       billingMetrics,
		Logger:        logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	// Config hot reload
	if runFlags.watch {
		watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
			if err := repo.Reload(next.PricingConfigs()); err != nil {
				logger.Error("pricing catalog reload rejected", "error", err)
				return
			}
			subs.Replace(next.Billing.PremiumUsers)
			logger.Info("pricing catalog and premium users reloaded",
				"pricing_entries", len(next.Pricing),
				"premium_users", len(next.Billing.PremiumUsers),
			)
		}, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Println("✓ Config watcher started")
	}

	// HTTP server
	srv, err := server.NewServer(cfg, server.Deps{
		Billing:   tracker,
		Sessions:  sessions,
		Wallets:   wallets,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a shutdown signal, context cancellation or a
	// server fault.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

// buildStorage creates the wallet service and session store for the
// configured backend.
func buildStorage(cfg *config.Config) (ledger.Service, session.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		wallets, err := ledger.NewSQLiteService(cfg.Storage.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open wallet ledger: %w", err)
		}
		sessionStore, err := session.NewSQLiteStore(cfg.Storage.SessionsPath)
		if err != nil {
			wallets.Close()
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return wallets, sessionStore, nil
	case "memory":
		return ledger.NewMemoryService(), session.NewMemoryStore(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
