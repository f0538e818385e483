package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/session"
	"lexhq/coinmeter/pkg/telemetry/metrics"
)

// Reason codes carried by ChargeResult on expected failures.
const (
	ReasonConfigNotFound      = "config_not_found"
	ReasonCharacterMismatch   = "character_mismatch"
	ReasonInvalidTokenRange   = "invalid_token_range"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonSessionReadonly     = "session_readonly"
)

// ChargeRequest carries the raw usage signals for one message charge.
type ChargeRequest struct {
	SessionID string

	// MessageID ties the charge to one billable message. Generated when
	// empty; callers that retry must pass the same id both times.
	MessageID string

	// CharacterCountFrontend is the client's measurement, compared against
	// the backend count within the tolerance.
	CharacterCountFrontend int

	// CharacterCountBackend is the authoritative server measurement.
	CharacterCountBackend int

	// MaxTokensRequested is the requested output size (hybrid only).
	MaxTokensRequested int

	Description string
}

// ChargeResult is the outcome of one charge attempt. Expected failures set
// Success=false with a Reason code; they are never raised as errors.
type ChargeResult struct {
	Success bool

	// Message is a human-readable summary of the outcome.
	Message string

	// Reason is the machine-readable failure code, empty on success.
	Reason string

	// Free marks a successful zero-cost charge (bypass).
	Free bool

	// BypassReason is set when Free is true.
	BypassReason string

	ChargedAmount decimal.Decimal
	ReferenceID   string

	// Shortage is set with ReasonInsufficientBalance.
	Shortage decimal.Decimal

	// Breakdown is the priced breakdown, present whenever the cost was
	// computed (including bypassed charges).
	Breakdown *pricing.Breakdown
}

// Tracker orchestrates validate, bypass, compute, charge and record as one
// logical unit per message.
type Tracker struct {
	configs   pricing.Repository
	wallets   ledger.Service
	sessions  *session.Tracker
	bypass    *BypassPolicy
	tolerance int
	metrics   *metrics.BillingMetrics
	logger    *slog.Logger
}

// TrackerConfig wires a Tracker's collaborators.
type TrackerConfig struct {
	Configs  pricing.Repository
	Wallets  ledger.Service
	Sessions *session.Tracker
	Bypass   *BypassPolicy

	// CharTolerance is the allowed frontend/backend character count
	// disagreement. Zero uses DefaultCharTolerance.
	CharTolerance int

	// Metrics is optional.
	Metrics *metrics.BillingMetrics

	Logger *slog.Logger
}

// NewTracker creates the charge orchestrator.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Configs == nil || cfg.Wallets == nil || cfg.Sessions == nil || cfg.Bypass == nil {
		return nil, fmt.Errorf("configs, wallets, sessions and bypass policy are all required")
	}
	if cfg.CharTolerance <= 0 {
		cfg.CharTolerance = DefaultCharTolerance
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		configs:   cfg.Configs,
		wallets:   cfg.Wallets,
		sessions:  cfg.Sessions,
		bypass:    cfg.Bypass,
		tolerance: cfg.CharTolerance,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "billing.tracker"),
	}, nil
}

// PreviewCost prices a prospective request without touching wallet or
// session state.
func (t *Tracker) PreviewCost(ctx context.Context, configName string, characterCount, maxTokens int, files []pricing.File, voiceSeconds int) (*pricing.CompleteBreakdown, error) {
	cfg, err := t.configs.Get(configName)
	if err != nil {
		return nil, err
	}
	return pricing.CompleteCost(cfg, characterCount, maxTokens, files, voiceSeconds)
}

// StepOptions lists the selectable output sizes for a config.
func (t *Tracker) StepOptions(ctx context.Context, configName string) ([]pricing.StepOption, error) {
	cfg, err := t.configs.Get(configName)
	if err != nil {
		return nil, err
	}
	return pricing.StepOptions(cfg), nil
}

// PreChargeValidation fails fast before any expensive work (such as calling
// the AI backend) so money and tokens are never spent on a message that
// cannot be billed. It checks that the session accepts messages, that the
// config still exists, and that a flat-priced message is affordable.
func (t *Tracker) PreChargeValidation(ctx context.Context, sessionID string) error {
	sess, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsReadonly {
		return &session.ReadOnlyError{SessionID: sessionID, Reason: sess.ReadonlyReason}
	}

	cfg, err := t.configs.Get(sess.ConfigName)
	if err != nil {
		return err
	}

	if cfg.IsMessageBased() && cfg.CostPerMessage.GreaterThan(decimal.Zero) {
		bypass, _, err := t.bypass.ShouldBypass(ctx, sess.UserID, cfg)
		if err != nil {
			return err
		}
		if !bypass {
			w, err := t.wallets.GetWallet(ctx, sess.UserID)
			if err != nil {
				return err
			}
			if w.CoinBalance.LessThan(cfg.CostPerMessage) {
				return ledger.NewInsufficientBalanceError(sess.UserID, cfg.CostPerMessage, w.CoinBalance)
			}
		}
	}
	return nil
}

// ValidateAndCharge runs the full charge path for one message: reconcile
// the usage signals, apply the bypass policy, compute the cost, deduct the
// wallet and update the session.
func (t *Tracker) ValidateAndCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	sess, err := t.sessions.Get(ctx, req.SessionID)
	if err != nil {
		var notFound *session.NotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.IsReadonly {
		t.metrics.RecordReadonly(string(sess.ReadonlyReason))
		return &ChargeResult{
			Message: fmt.Sprintf("session is read-only: %s", sess.ReadonlyReason),
			Reason:  ReasonSessionReadonly,
		}, nil
	}

	cfg, err := t.configs.Get(sess.ConfigName)
	if err != nil {
		var notFound *pricing.NotFoundError
		if errors.As(err, &notFound) {
			return &ChargeResult{
				Message: err.Error(),
				Reason:  ReasonConfigNotFound,
			}, nil
		}
		return nil, err
	}

	maxTokens := req.MaxTokensRequested
	if cfg.IsAdvancedHybrid() && maxTokens == 0 {
		// the field is optional: an omitted token request takes the
		// config's default output size, or the minimum when none is set
		maxTokens = cfg.DefaultMaxTokens
		if maxTokens == 0 {
			maxTokens = cfg.TokensMin
		}
	}

	if err := ValidateUsage(cfg, req.CharacterCountFrontend, req.CharacterCountBackend, maxTokens, t.tolerance); err != nil {
		var mismatch *CharacterMismatchError
		if errors.As(err, &mismatch) {
			return &ChargeResult{Message: err.Error(), Reason: ReasonCharacterMismatch}, nil
		}
		var tokenRange *pricing.TokenRangeError
		if errors.As(err, &tokenRange) {
			return &ChargeResult{Message: err.Error(), Reason: ReasonInvalidTokenRange}, nil
		}
		return nil, err
	}

	if cfg.IsMessageBased() {
		return t.RecordMessageCharge(ctx, sess, cfg, req.MessageID, req.Description)
	}
	return t.RecordTokenCharge(ctx, sess, cfg, req.MessageID, req.CharacterCountBackend, maxTokens, req.Description)
}

// RecordMessageCharge settles one flat-priced message. The reference id is
// deterministic in (session, message), so a retried call deducts at most
// once.
func (t *Tracker) RecordMessageCharge(ctx context.Context, sess *session.Session, cfg *pricing.Config, messageID, description string) (*ChargeResult, error) {
	bd, err := pricing.MessageCost(cfg)
	if err != nil {
		return nil, err
	}
	referenceID := fmt.Sprintf("ai_msg_%s_%s", sess.ID, messageID)
	return t.settle(ctx, sess, cfg, referenceID, description, bd, func(charged *pricing.Breakdown) error {
		_, err := t.sessions.AddMessageCost(ctx, sess.ID, charged.TotalCost)
		return err
	})
}

// RecordTokenCharge settles one hybrid-priced message.
func (t *Tracker) RecordTokenCharge(ctx context.Context, sess *session.Session, cfg *pricing.Config, messageID string, characterCount, maxTokens int, description string) (*ChargeResult, error) {
	bd, err := pricing.HybridCost(cfg, characterCount, maxTokens)
	if err != nil {
		return nil, err
	}
	if sess.HybridBaseCostPaid && bd.BaseCost.GreaterThan(decimal.Zero) {
		// the base cost is charged once per conversation
		bd.TotalCost = bd.TotalCost.Sub(bd.BaseCost)
		bd.BaseCost = decimal.Zero
	}
	referenceID := fmt.Sprintf("ai_tokens_%s_%s", sess.ID, messageID)
	return t.settle(ctx, sess, cfg, referenceID, description, bd, func(charged *pricing.Breakdown) error {
		_, err := t.sessions.AddHybridUsage(ctx, sess.ID, characterCount, 0, 0, charged)
		return err
	})
}

// settle deducts the wallet and records session usage. record receives the
// breakdown that was actually charged (zeroed when bypassed).
func (t *Tracker) settle(ctx context.Context, sess *session.Session, cfg *pricing.Config, referenceID, description string, bd *pricing.Breakdown, record func(*pricing.Breakdown) error) (*ChargeResult, error) {
	// Replay detection: a message already settled under this reference id
	// must not touch the wallet or the session again.
	prior, err := t.wallets.FindByReference(ctx, sess.UserID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("replay check failed: %w", err)
	}
	if prior != nil {
		return &ChargeResult{
			Success:       true,
			Message:       "already charged",
			ChargedAmount: prior.CoinAmount.Neg(),
			ReferenceID:   prior.ReferenceID,
			Breakdown:     bd,
		}, nil
	}

	bypass, bypassReason, err := t.bypass.ShouldBypass(ctx, sess.UserID, cfg)
	if err != nil {
		return nil, fmt.Errorf("bypass policy failed: %w", err)
	}

	charged := bd
	if bypass {
		// usage still accumulates so the session caps keep their teeth,
		// but nothing is billed
		zeroed := *bd
		zeroed.BaseCost = decimal.Zero
		zeroed.CharCost = decimal.Zero
		zeroed.StepCost = decimal.Zero
		zeroed.TotalCost = decimal.Zero
		charged = &zeroed
	}

	if description == "" {
		description = fmt.Sprintf("AI usage (%s)", cfg.StaticName)
	}
	tx, created, err := t.wallets.Deduct(ctx, sess.UserID, charged.TotalCost, referenceID, description)
	if err != nil {
		var insufficient *ledger.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			t.metrics.RecordCharge(cfg.StaticName, string(cfg.PricingType), "insufficient_balance", 0)
			return &ChargeResult{
				Message:   fmt.Sprintf("insufficient balance: %s more coins needed", insufficient.Shortage),
				Reason:    ReasonInsufficientBalance,
				Shortage:  insufficient.Shortage,
				Breakdown: bd,
			}, nil
		}
		return nil, fmt.Errorf("ledger deduct failed: %w", err)
	}
	if !created {
		// a concurrent charge under this reference id won the race after
		// the replay check above; its settlement updates the session, so
		// recording here would count the message twice
		return &ChargeResult{
			Success:       true,
			Message:       "already charged",
			ChargedAmount: tx.CoinAmount.Neg(),
			ReferenceID:   tx.ReferenceID,
			Breakdown:     bd,
		}, nil
	}

	if err := record(charged); err != nil {
		var readonly *session.ReadOnlyError
		if errors.As(err, &readonly) {
			// the deduct already settled idempotently under this reference
			// id; surface the frozen session, not a fault
			t.metrics.RecordReadonly(string(readonly.Reason))
			return &ChargeResult{
				Message:       readonly.Error(),
				Reason:        ReasonSessionReadonly,
				ChargedAmount: charged.TotalCost,
				ReferenceID:   tx.ReferenceID,
				Breakdown:     bd,
			}, nil
		}
		return nil, fmt.Errorf("failed to record session usage: %w", err)
	}

	coins, _ := charged.TotalCost.Float64()
	t.metrics.RecordCharge(cfg.StaticName, string(cfg.PricingType), "success", coins)
	if bypass {
		t.metrics.RecordBypass(cfg.StaticName, bypassReason)
	}

	t.logger.Info("charge settled",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"config", cfg.StaticName,
		"reference_id", tx.ReferenceID,
		"coins", charged.TotalCost.String(),
		"bypassed", bypass,
	)

	message := "charged"
	if bypass {
		message = "free of charge"
	}
	return &ChargeResult{
		Success:       true,
		Message:       message,
		Free:          bypass,
		BypassReason:  bypassReason,
		ChargedAmount: charged.TotalCost,
		ReferenceID:   tx.ReferenceID,
		Breakdown:     charged,
	}, nil
}
