package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Strength represents the capability tier of an AI configuration.
// The bypass policy keys off this tier: premium entitlements only make
// medium-strength configs free.
type Strength string

const (
	// StrengthMedium is the baseline tier.
	StrengthMedium Strength = "medium"

	// StrengthStrong is the enhanced tier.
	StrengthStrong Strength = "strong"

	// StrengthVeryStrong is the high-end tier.
	StrengthVeryStrong Strength = "very_strong"

	// StrengthSpecial is a tier reserved for special-purpose configs.
	StrengthSpecial Strength = "special"

	// StrengthUnique is a tier reserved for one-off configs.
	StrengthUnique Strength = "unique"
)

// Valid reports whether s is a known strength tier.
func (s Strength) Valid() bool {
	switch s {
	case StrengthMedium, StrengthStrong, StrengthVeryStrong, StrengthSpecial, StrengthUnique:
		return true
	}
	return false
}

// Type selects how a config prices user messages.
type Type string

const (
	// MessageBased charges a flat cost per message.
	MessageBased Type = "message_based"

	// AdvancedHybrid charges base + characters + token steps.
	AdvancedHybrid Type = "advanced_hybrid"
)

// Valid reports whether t is a known pricing type.
func (t Type) Valid() bool {
	return t == MessageBased || t == AdvancedHybrid
}

// Config is an immutable-per-request pricing policy for one AI tier.
//
// All cost and threshold fields are non-negative; TokensMin <= TokensMax and
// TokensStep >= 1. Validate enforces these invariants when configs are loaded.
type Config struct {
	// StaticName is the stable identifier used to look the config up.
	StaticName string

	// Name is the human-readable display name.
	Name string

	// ModelName is the backing model identifier (informational).
	ModelName string

	// Strength is the capability tier, consulted by the bypass policy.
	Strength Strength

	// PricingType selects message_based or advanced_hybrid pricing.
	PricingType Type

	// Active marks whether the config can be used. Inactive configs are
	// treated as not found by repositories.
	Active bool

	// CostPerMessage is the flat per-message cost (message_based only).
	CostPerMessage decimal.Decimal

	// BaseCost is charged once per conversation (advanced_hybrid only).
	BaseCost decimal.Decimal

	// CharPerCoin is how many characters one coin buys (>= 1).
	CharPerCoin int

	// FreeChars is the number of characters metered for free per message.
	FreeChars int

	// TokensMin, TokensMax and TokensStep bound and quantize the
	// requested output size. Values between min and max are billed in
	// steps of TokensStep above TokensMin.
	TokensMin  int
	TokensMax  int
	TokensStep int

	// CostPerStep is the coin cost per token step above TokensMin.
	CostPerStep decimal.Decimal

	// FreePages, CostPerPage and MaxPagesPerRequest price file
	// attachments. An image counts as one page.
	FreePages          int
	CostPerPage        decimal.Decimal
	MaxPagesPerRequest int

	// FreeMinutes, CostPerMinute and MaxMinutesPerRequest price voice
	// attachments. Durations round up to whole minutes.
	FreeMinutes          int
	CostPerMinute        decimal.Decimal
	MaxMinutesPerRequest int

	// MaxMessagesPerChat and MaxTokensPerChat are the hard per-session
	// caps; a session that reaches either flips read-only.
	MaxMessagesPerChat int
	MaxTokensPerChat   int

	// DefaultMaxTokens is the suggested output size for the frontend.
	DefaultMaxTokens int
}

// IsMessageBased reports whether the config uses flat per-message pricing.
func (c *Config) IsMessageBased() bool {
	return c.PricingType == MessageBased
}

// IsAdvancedHybrid reports whether the config uses hybrid pricing.
func (c *Config) IsAdvancedHybrid() bool {
	return c.PricingType == AdvancedHybrid
}

// Validate checks the config invariants. It returns an error describing the
// first violation found.
func (c *Config) Validate() error {
	if c.StaticName == "" {
		return errors.New("static_name cannot be empty")
	}
	if !c.Strength.Valid() {
		return fmt.Errorf("config %q: unknown strength %q", c.StaticName, c.Strength)
	}
	if !c.PricingType.Valid() {
		return fmt.Errorf("config %q: unknown pricing type %q", c.StaticName, c.PricingType)
	}
	if c.CostPerMessage.IsNegative() {
		return fmt.Errorf("config %q: cost_per_message cannot be negative", c.StaticName)
	}
	if c.BaseCost.IsNegative() {
		return fmt.Errorf("config %q: base_cost cannot be negative", c.StaticName)
	}
	if c.CostPerStep.IsNegative() {
		return fmt.Errorf("config %q: cost_per_step cannot be negative", c.StaticName)
	}
	if c.CostPerPage.IsNegative() {
		return fmt.Errorf("config %q: cost_per_page cannot be negative", c.StaticName)
	}
	if c.CostPerMinute.IsNegative() {
		return fmt.Errorf("config %q: cost_per_minute cannot be negative", c.StaticName)
	}
	if c.CharPerCoin < 1 {
		return fmt.Errorf("config %q: char_per_coin must be >= 1, got %d", c.StaticName, c.CharPerCoin)
	}
	if c.FreeChars < 0 || c.FreePages < 0 || c.FreeMinutes < 0 {
		return fmt.Errorf("config %q: free allowances cannot be negative", c.StaticName)
	}
	if c.IsAdvancedHybrid() {
		if c.TokensMin <= 0 {
			return fmt.Errorf("config %q: tokens_min must be positive, got %d", c.StaticName, c.TokensMin)
		}
		if c.TokensMin > c.TokensMax {
			return fmt.Errorf("config %q: tokens_min %d exceeds tokens_max %d",
				c.StaticName, c.TokensMin, c.TokensMax)
		}
		if c.TokensStep < 1 {
			return fmt.Errorf("config %q: tokens_step must be >= 1, got %d", c.StaticName, c.TokensStep)
		}
	}
	if c.MaxMessagesPerChat < 0 || c.MaxTokensPerChat < 0 {
		return fmt.Errorf("config %q: session caps cannot be negative", c.StaticName)
	}
	return nil
}

// NotFoundError indicates that no active config exists for a static name.
type NotFoundError struct {
	// StaticName is the identifier that was looked up.
	StaticName string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pricing config not found: %s", e.StaticName)
}
