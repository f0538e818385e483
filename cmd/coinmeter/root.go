package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coinmeter",
	Short: "Coinmeter - AI usage metering and billing service",
	Long: `Coinmeter meters and bills AI conversation usage.

It provides:
  - A pricing catalog of AI tiers (flat per-message and hybrid token pricing)
  - Per-conversation usage tracking with hard message and token caps
  - An idempotent coin wallet ledger with full transaction history
  - An HTTP API for previews, charges, sessions and wallets`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
