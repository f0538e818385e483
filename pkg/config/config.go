package config

import (
	"time"

	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/pricing"
)

// Config is the root configuration for the metering service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Billing   BillingConfig   `yaml:"billing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Pricing is the catalog of AI tiers. Hot-reloaded when the config
	// file changes.
	Pricing []PricingEntry `yaml:"pricing"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend for wallets and sessions.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// LedgerPath is the SQLite file for the wallet ledger.
	LedgerPath string `yaml:"ledger_path"`

	// SessionsPath is the SQLite file for sessions.
	SessionsPath string `yaml:"sessions_path"`
}

// SessionsConfig configures session lifecycle handling.
type SessionsConfig struct {
	// TTL limits session lifetime. Zero disables time-based expiry.
	TTL time.Duration `yaml:"ttl"`

	// SweepSchedule is the cron expression for the expiry sweeper.
	// Empty disables sweeping.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// BillingConfig configures the charge path.
type BillingConfig struct {
	// CharTolerance is the allowed frontend/backend character count
	// disagreement before a charge is refused.
	CharTolerance int `yaml:"char_tolerance"`

	// ExchangeRate is the currency cost of one coin for coin purchases.
	ExchangeRate float64 `yaml:"exchange_rate"`

	// PremiumUsers lists user ids holding a premium entitlement.
	PremiumUsers []string `yaml:"premium_users"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// PricingEntry is the YAML shape of one pricing config. Money fields are
// plain floats here and converted to decimals at the boundary; nothing
// downstream of this package touches a float coin amount.
type PricingEntry struct {
	StaticName string `yaml:"static_name"`
	Name       string `yaml:"name"`
	ModelName  string `yaml:"model_name"`
	Strength   string `yaml:"strength"`
	Type       string `yaml:"pricing_type"`
	Active     *bool  `yaml:"active"`

	CostPerMessage float64 `yaml:"cost_per_message"`

	BaseCost    float64 `yaml:"base_cost"`
	CharPerCoin int     `yaml:"char_per_coin"`
	FreeChars   int     `yaml:"free_chars"`
	TokensMin   int     `yaml:"tokens_min"`
	TokensMax   int     `yaml:"tokens_max"`
	TokensStep  int     `yaml:"tokens_step"`
	CostPerStep float64 `yaml:"cost_per_step"`

	FreePages          int     `yaml:"free_pages"`
	CostPerPage        float64 `yaml:"cost_per_page"`
	MaxPagesPerRequest int     `yaml:"max_pages_per_request"`

	FreeMinutes          int     `yaml:"free_minutes"`
	CostPerMinute        float64 `yaml:"cost_per_minute"`
	MaxMinutesPerRequest int     `yaml:"max_minutes_per_request"`

	MaxMessagesPerChat int `yaml:"max_messages_per_chat"`
	MaxTokensPerChat   int `yaml:"max_tokens_per_chat"`
	DefaultMaxTokens   int `yaml:"default_max_tokens"`
}

// ToPricing converts the YAML entry into the calculator's config type.
func (e *PricingEntry) ToPricing() *pricing.Config {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return &pricing.Config{
		StaticName:           e.StaticName,
		Name:                 e.Name,
		ModelName:            e.ModelName,
		Strength:             pricing.Strength(e.Strength),
		PricingType:          pricing.Type(e.Type),
		Active:               active,
		CostPerMessage:       decimal.NewFromFloat(e.CostPerMessage),
		BaseCost:             decimal.NewFromFloat(e.BaseCost),
		CharPerCoin:          e.CharPerCoin,
		FreeChars:            e.FreeChars,
		TokensMin:            e.TokensMin,
		TokensMax:            e.TokensMax,
		TokensStep:           e.TokensStep,
		CostPerStep:          decimal.NewFromFloat(e.CostPerStep),
		FreePages:            e.FreePages,
		CostPerPage:          decimal.NewFromFloat(e.CostPerPage),
		MaxPagesPerRequest:   e.MaxPagesPerRequest,
		FreeMinutes:          e.FreeMinutes,
		CostPerMinute:        decimal.NewFromFloat(e.CostPerMinute),
		MaxMinutesPerRequest: e.MaxMinutesPerRequest,
		MaxMessagesPerChat:   e.MaxMessagesPerChat,
		MaxTokensPerChat:     e.MaxTokensPerChat,
		DefaultMaxTokens:     e.DefaultMaxTokens,
	}
}

// PricingConfigs converts the full catalog.
func (c *Config) PricingConfigs() []*pricing.Config {
	out := make([]*pricing.Config, 0, len(c.Pricing))
	for i := range c.Pricing {
		out = append(out, c.Pricing[i].ToPricing())
	}
	return out
}
