package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/pricing"
)

// defaultEstimateChars seeds the next-cost estimate before any message has
// been sent in a session.
const defaultEstimateChars = 500

// Tracker owns all session mutations.
//
// Every update to a session runs inside a per-session critical section, so
// the cap check and the accumulator write are indivisible. The Store is only
// touched while the session's lock is held.
type Tracker struct {
	store   Store
	configs pricing.Repository
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker over the given store and config repository.
func NewTracker(store Store, configs pricing.Repository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:   store,
		configs: configs,
		logger:  logger.With("component", "session.tracker"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Create starts a new active session for a user under a pricing config.
// A non-zero ttl sets the session's end time for the expiry sweeper.
func (t *Tracker) Create(ctx context.Context, userID, configName string, ttl time.Duration) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if _, err := t.configs.Get(configName); err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConfigName:     configName,
		Status:         StatusActive,
		TotalCostCoins: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ttl > 0 {
		sess.EndsAt = now.Add(ttl)
	}

	if err := t.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	t.logger.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"config", configName,
	)
	return sess.Clone(), nil
}

// Get returns a session by id.
func (t *Tracker) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := t.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &NotFoundError{SessionID: id}
	}
	return sess, nil
}

// CheckAndUpdateReadonly evaluates the session against its config's caps.
//
// If the session is already read-only the cached reason is returned without
// touching storage. On a cap breach the session flips read-only, its status
// moves to completed, and the change is persisted. Runs inside the session's
// critical section.
func (t *Tracker) CheckAndUpdateReadonly(ctx context.Context, id string) (bool, ReadonlyReason, error) {
	unlock := t.lock(id)
	defer unlock()

	sess, err := t.load(ctx, id)
	if err != nil {
		return false, "", err
	}
	return t.checkReadonlyLocked(ctx, sess)
}

// checkReadonlyLocked runs the cap comparison and persists a flip. The
// caller must hold the session's lock.
func (t *Tracker) checkReadonlyLocked(ctx context.Context, sess *Session) (bool, ReadonlyReason, error) {
	if sess.IsReadonly {
		return true, sess.ReadonlyReason, nil
	}

	cfg, err := t.configs.Get(sess.ConfigName)
	if err != nil {
		return false, "", err
	}

	var reason ReadonlyReason
	switch {
	case cfg.MaxMessagesPerChat > 0 && sess.TotalMessages >= cfg.MaxMessagesPerChat:
		reason = ReasonMaxMessages
	case cfg.MaxTokensPerChat > 0 && sess.TotalTokensUsed >= cfg.MaxTokensPerChat:
		reason = ReasonMaxTokens
	default:
		return false, "", nil
	}

	sess.IsReadonly = true
	sess.ReadonlyReason = reason
	sess.Status = StatusCompleted
	sess.UpdatedAt = time.Now()
	if err := t.store.Save(ctx, sess); err != nil {
		return false, "", err
	}

	t.logger.Info("session frozen",
		"session_id", sess.ID,
		"reason", string(reason),
		"total_messages", sess.TotalMessages,
		"total_tokens", sess.TotalTokensUsed,
	)
	return true, reason, nil
}

// AddHybridUsage records one hybrid-priced message: characters, tokens and
// the charged breakdown. Rejects with ReadOnlyError when the session is
// frozen, and re-evaluates the caps after accumulating.
func (t *Tracker) AddHybridUsage(ctx context.Context, id string, characterCount, inputTokens, outputTokens int, bd *pricing.Breakdown) (*Session, error) {
	if bd == nil {
		return nil, fmt.Errorf("breakdown cannot be nil")
	}

	unlock := t.lock(id)
	defer unlock()

	sess, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.IsReadonly {
		return nil, &ReadOnlyError{SessionID: id, Reason: sess.ReadonlyReason}
	}

	cfg, err := t.configs.Get(sess.ConfigName)
	if err != nil {
		return nil, err
	}

	sess.TotalMessages++
	sess.TotalCharactersSent += characterCount
	sess.TotalInputTokens += inputTokens
	sess.TotalOutputTokens += outputTokens
	sess.TotalTokensUsed = sess.TotalInputTokens + sess.TotalOutputTokens
	sess.TotalCostCoins = sess.TotalCostCoins.Add(bd.TotalCost)
	if bd.BaseCost.GreaterThan(decimal.Zero) {
		sess.HybridBaseCostPaid = true
	}
	sess.HybridFreeCharsUsed += bd.FreeCharsUsed
	if sess.HybridFreeCharsUsed > cfg.FreeChars {
		sess.HybridFreeCharsUsed = cfg.FreeChars
	}
	sess.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if _, _, err := t.checkReadonlyLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// AddMessageCost records one flat-priced message: increments the message
// count, adds the cost, persists, then re-checks the caps.
func (t *Tracker) AddMessageCost(ctx context.Context, id string, cost decimal.Decimal) (*Session, error) {
	unlock := t.lock(id)
	defer unlock()

	sess, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.IsReadonly {
		return nil, &ReadOnlyError{SessionID: id, Reason: sess.ReadonlyReason}
	}

	sess.TotalMessages++
	sess.TotalCostCoins = sess.TotalCostCoins.Add(cost)
	sess.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if _, _, err := t.checkReadonlyLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// AddTokenUsage records token consumption without billing. Tokens are
// tracked for reporting under every pricing model, and a response that
// arrives after the session froze is still recorded.
func (t *Tracker) AddTokenUsage(ctx context.Context, id string, inputTokens, outputTokens int) (*Session, error) {
	unlock := t.lock(id)
	defer unlock()

	sess, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.TotalInputTokens += inputTokens
	sess.TotalOutputTokens += outputTokens
	sess.TotalTokensUsed = sess.TotalInputTokens + sess.TotalOutputTokens
	sess.UpdatedAt = time.Now()

	if err := t.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if _, _, err := t.checkReadonlyLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Cancel moves an active or pending session to cancelled.
func (t *Tracker) Cancel(ctx context.Context, id string) (*Session, error) {
	return t.transition(ctx, id, StatusCancelled)
}

// Expire moves an active or pending session to expired.
func (t *Tracker) Expire(ctx context.Context, id string) (*Session, error) {
	return t.transition(ctx, id, StatusExpired)
}

func (t *Tracker) transition(ctx context.Context, id string, to Status) (*Session, error) {
	unlock := t.lock(id)
	defer unlock()

	sess, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		// terminal states never change again
		return sess.Clone(), nil
	}

	sess.Status = to
	sess.UpdatedAt = time.Now()
	if err := t.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	t.logger.Info("session transitioned",
		"session_id", id,
		"status", string(to),
	)
	return sess.Clone(), nil
}

// SweepExpired expires every active session past its end time. Returns how
// many sessions were expired.
func (t *Tracker) SweepExpired(ctx context.Context) (int, error) {
	due, err := t.store.ListDue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range due {
		if _, err := t.Expire(ctx, sess.ID); err != nil {
			return expired, fmt.Errorf("failed to expire session %s: %w", sess.ID, err)
		}
		expired++
	}
	return expired, nil
}

// Summary aggregates a session's usage for reporting.
func (t *Tracker) Summary(ctx context.Context, id string) (*Summary, error) {
	sess, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		SessionID:           sess.ID,
		Status:              sess.Status,
		TotalMessages:       sess.TotalMessages,
		TotalCharactersSent: sess.TotalCharactersSent,
		TotalTokensUsed:     sess.TotalTokensUsed,
		TotalCostCoins:      sess.TotalCostCoins,
		IsReadonly:          sess.IsReadonly,
		ReadonlyReason:      sess.ReadonlyReason,
	}
	if sess.TotalMessages > 0 {
		sum.AverageCostPerMessage = sess.TotalCostCoins.
			Div(decimal.NewFromInt(int64(sess.TotalMessages))).
			Round(2)
	} else {
		sum.AverageCostPerMessage = decimal.Zero
	}
	return sum, nil
}

// EstimateNextCost predicts the cost of the session's next message. The
// character count is the session's running average (or a default before the
// first message), and the base cost is dropped once it has been paid.
func (t *Tracker) EstimateNextCost(ctx context.Context, id string, maxTokens int) (*pricing.Breakdown, error) {
	sess, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := t.configs.Get(sess.ConfigName)
	if err != nil {
		return nil, err
	}

	if cfg.IsMessageBased() {
		return pricing.MessageCost(cfg)
	}

	chars := defaultEstimateChars
	if sess.TotalMessages > 0 {
		chars = sess.TotalCharactersSent / sess.TotalMessages
	}

	bd, err := pricing.HybridCost(cfg, chars, maxTokens)
	if err != nil {
		return nil, err
	}
	if sess.HybridBaseCostPaid {
		bd.TotalCost = bd.TotalCost.Sub(bd.BaseCost)
		bd.BaseCost = decimal.Zero
	}
	return bd, nil
}

// lock acquires the per-session mutex and returns its unlock func.
func (t *Tracker) lock(id string) func() {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// load fetches a session or fails with NotFoundError. Callers hold the lock.
func (t *Tracker) load(ctx context.Context, id string) (*Session, error) {
	sess, err := t.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &NotFoundError{SessionID: id}
	}
	return sess, nil
}
