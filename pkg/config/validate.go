package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for consistency. It assumes defaults
// have already been applied.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.LedgerPath == "" {
			return fmt.Errorf("storage.ledger_path is required for the sqlite backend")
		}
		if cfg.Storage.SessionsPath == "" {
			return fmt.Errorf("storage.sessions_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be \"memory\" or \"sqlite\", got %q", cfg.Storage.Backend)
	}

	if cfg.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl cannot be negative")
	}
	if cfg.Sessions.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Sessions.SweepSchedule); err != nil {
			return fmt.Errorf("invalid sessions.sweep_schedule %q: %w", cfg.Sessions.SweepSchedule, err)
		}
	}

	if cfg.Billing.CharTolerance < 0 {
		return fmt.Errorf("billing.char_tolerance cannot be negative")
	}
	if cfg.Billing.ExchangeRate <= 0 {
		return fmt.Errorf("billing.exchange_rate must be positive")
	}

	if cfg.Telemetry.Metrics.Enabled && !strings.HasPrefix(cfg.Telemetry.Metrics.Path, "/") {
		return fmt.Errorf("telemetry.metrics.path must start with \"/\"")
	}

	seen := make(map[string]bool, len(cfg.Pricing))
	for i := range cfg.Pricing {
		entry := &cfg.Pricing[i]
		if seen[entry.StaticName] {
			return fmt.Errorf("duplicate pricing entry %q", entry.StaticName)
		}
		seen[entry.StaticName] = true
		if err := entry.ToPricing().Validate(); err != nil {
			return fmt.Errorf("pricing[%d]: %w", i, err)
		}
	}

	return nil
}
