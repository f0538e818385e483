package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lexhq/coinmeter/pkg/cli"
	"lexhq/coinmeter/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.

The validate command checks:
  - YAML syntax
  - Storage backend selection and paths
  - Session TTL and sweep schedule (cron syntax)
  - Billing tolerance and exchange rate
  - Every pricing catalog entry (names, strengths, cost fields, token ranges)

Environment variable overrides (COINMETER_*) are applied before validation,
so the result reflects the configuration the server would actually run with.

Examples:
  # Validate the default config file
  coinmeter validate

  # Validate a specific file
  coinmeter validate --config /etc/coinmeter/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Storage backend:  %s\n", cfg.Storage.Backend)
	fmt.Printf("  Listen address:   %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  Pricing configs:  %d\n", len(cfg.Pricing))
	fmt.Printf("  Premium users:    %d\n", len(cfg.Billing.PremiumUsers))
	if cfg.Sessions.SweepSchedule != "" {
		fmt.Printf("  Sweep schedule:   %s\n", cfg.Sessions.SweepSchedule)
	}
	return nil
}
