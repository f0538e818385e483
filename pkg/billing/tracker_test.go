package billing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/session"
	"lexhq/coinmeter/pkg/subscription"
)

type fixture struct {
	tracker  *Tracker
	wallets  ledger.Service
	sessions *session.Tracker
	configs  pricing.Repository
}

func newFixture(t *testing.T, premiumUsers ...string) *fixture {
	t.Helper()

	hybrid := &pricing.Config{
		StaticName:         "contract_review_strong",
		Strength:           pricing.StrengthStrong,
		PricingType:        pricing.AdvancedHybrid,
		Active:             true,
		BaseCost:           decimal.NewFromInt(5),
		CharPerCoin:        2500,
		FreeChars:          5000,
		TokensMin:          1000,
		TokensMax:          4000,
		TokensStep:         500,
		CostPerStep:        decimal.NewFromInt(1),
		MaxMessagesPerChat: 100,
		MaxTokensPerChat:   200000,
	}
	research := &pricing.Config{
		StaticName:       "deep_research_strong",
		Strength:         pricing.StrengthStrong,
		PricingType:      pricing.AdvancedHybrid,
		Active:           true,
		BaseCost:         decimal.NewFromInt(5),
		CharPerCoin:      2500,
		FreeChars:        5000,
		TokensMin:        1000,
		TokensMax:        4000,
		TokensStep:       500,
		CostPerStep:      decimal.NewFromInt(1),
		DefaultMaxTokens: 2000,
	}
	flatMedium := &pricing.Config{
		StaticName:     "quick_question_medium",
		Strength:       pricing.StrengthMedium,
		PricingType:    pricing.MessageBased,
		Active:         true,
		CostPerMessage: decimal.NewFromInt(2),
		CharPerCoin:    1,
	}
	flatStrong := &pricing.Config{
		StaticName:     "quick_question_strong",
		Strength:       pricing.StrengthStrong,
		PricingType:    pricing.MessageBased,
		Active:         true,
		CostPerMessage: decimal.NewFromInt(4),
		CharPerCoin:    1,
	}

	configs, err := pricing.NewStaticRepository([]*pricing.Config{hybrid, research, flatMedium, flatStrong})
	if err != nil {
		t.Fatal(err)
	}

	wallets := ledger.NewMemoryService()
	sessions := session.NewTracker(session.NewMemoryStore(), configs, slog.Default())

	tracker, err := NewTracker(TrackerConfig{
		Configs:  configs,
		Wallets:  wallets,
		Sessions: sessions,
		Bypass:   NewBypassPolicy(subscription.NewStaticService(premiumUsers)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{tracker: tracker, wallets: wallets, sessions: sessions, configs: configs}
}

func (f *fixture) fund(t *testing.T, userID string, coins int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.wallets.Deposit(ctx, userID, decimal.NewFromInt(coins), "dep_"+userID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.wallets.PurchaseCoins(ctx, userID, decimal.NewFromInt(coins), decimal.NewFromInt(1), "buy_"+userID, ""); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) startSession(t *testing.T, userID, configName string) *session.Session {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), userID, configName, 0)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func coinBalance(t *testing.T, f *fixture, userID string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return w.CoinBalance
}

func TestValidateAndChargeHybrid(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")
	ctx := context.Background()

	res, err := f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 10000,
		CharacterCountBackend:  10000,
		MaxTokensRequested:     3000,
	})
	if err != nil {
		t.Fatalf("ValidateAndCharge: %v", err)
	}
	if !res.Success {
		t.Fatalf("charge failed: %s (%s)", res.Message, res.Reason)
	}
	if !res.ChargedAmount.Equal(decimal.NewFromInt(11)) {
		t.Errorf("charged = %s, want 11", res.ChargedAmount)
	}
	if res.ReferenceID != "ai_tokens_"+sess.ID+"_m1" {
		t.Errorf("reference id = %s", res.ReferenceID)
	}

	if got := coinBalance(t, f, "u1"); !got.Equal(decimal.NewFromInt(89)) {
		t.Errorf("coin balance = %s, want 89", got)
	}
	got, err := f.sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 1 || !got.TotalCostCoins.Equal(decimal.NewFromInt(11)) {
		t.Errorf("session messages=%d cost=%s, want 1/11", got.TotalMessages, got.TotalCostCoins)
	}
	if !got.HybridBaseCostPaid {
		t.Error("base cost not marked paid")
	}
}

func TestChargeIdempotentPerMessage(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")
	ctx := context.Background()

	req := ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 3000,
		CharacterCountBackend:  3000,
		MaxTokensRequested:     1000,
	}
	first, err := f.tracker.ValidateAndCharge(ctx, req)
	if err != nil || !first.Success {
		t.Fatalf("first charge: %v %+v", err, first)
	}
	second, err := f.tracker.ValidateAndCharge(ctx, req)
	if err != nil {
		t.Fatalf("retried charge: %v", err)
	}
	if second.ReferenceID != first.ReferenceID {
		t.Errorf("retry produced new reference id %s", second.ReferenceID)
	}

	// the wallet moved exactly once
	if got := coinBalance(t, f, "u1"); !got.Equal(decimal.NewFromInt(95)) {
		t.Errorf("coin balance = %s, want 95 (one 5-coin charge)", got)
	}
	// and the session recorded exactly one message
	got, err := f.sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 1 {
		t.Errorf("session messages = %d, want 1", got.TotalMessages)
	}
}

// blindLedger hides prior transactions from reference lookups, reproducing
// the window where two concurrent charges for the same message both pass the
// replay check before either has deducted.
type blindLedger struct {
	ledger.Service
}

func (b *blindLedger) FindByReference(ctx context.Context, userID, referenceID string) (*ledger.Transaction, error) {
	return nil, nil
}

func TestDuplicateChargeCountsSessionOnce(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")
	ctx := context.Background()

	tracker, err := NewTracker(TrackerConfig{
		Configs:  f.configs,
		Wallets:  &blindLedger{Service: f.wallets},
		Sessions: f.sessions,
		Bypass:   NewBypassPolicy(subscription.NewStaticService(nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	req := ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1000,
		MaxTokensRequested:     1000,
	}
	first, err := tracker.ValidateAndCharge(ctx, req)
	if err != nil || !first.Success {
		t.Fatalf("first charge: %v %+v", err, first)
	}
	second, err := tracker.ValidateAndCharge(ctx, req)
	if err != nil || !second.Success {
		t.Fatalf("duplicate charge: %v %+v", err, second)
	}
	if second.ReferenceID != first.ReferenceID {
		t.Errorf("duplicate produced new reference id %s", second.ReferenceID)
	}

	// the wallet moved exactly once
	if got := coinBalance(t, f, "u1"); !got.Equal(decimal.NewFromInt(95)) {
		t.Errorf("coin balance = %s, want 95 (one 5-coin charge)", got)
	}
	// and the session did not double-count the message
	got, err := f.sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 1 {
		t.Errorf("session messages = %d, want 1", got.TotalMessages)
	}
	if !got.TotalCostCoins.Equal(decimal.NewFromInt(5)) {
		t.Errorf("session cost = %s, want 5", got.TotalCostCoins)
	}
}

func TestChargeInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 3)
	sess := f.startSession(t, "u1", "contract_review_strong")

	res, err := f.tracker.ValidateAndCharge(context.Background(), ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1000,
		MaxTokensRequested:     1000,
	})
	if err != nil {
		t.Fatalf("expected a result, got error %v", err)
	}
	if res.Success || res.Reason != ReasonInsufficientBalance {
		t.Fatalf("result = %+v, want insufficient_balance", res)
	}
	if !res.Shortage.Equal(decimal.NewFromInt(2)) {
		t.Errorf("shortage = %s, want 2", res.Shortage)
	}

	// nothing moved
	if got := coinBalance(t, f, "u1"); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("coin balance = %s, want 3", got)
	}
	got, err := f.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 0 {
		t.Errorf("session recorded %d messages on a failed charge", got.TotalMessages)
	}
}

func TestChargeCharacterMismatch(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")

	res, err := f.tracker.ValidateAndCharge(context.Background(), ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1050,
		MaxTokensRequested:     1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != ReasonCharacterMismatch {
		t.Errorf("result = %+v, want character_mismatch", res)
	}

	// within tolerance passes
	res, err = f.tracker.ValidateAndCharge(context.Background(), ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1005,
		MaxTokensRequested:     1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("in-tolerance counts refused: %+v", res)
	}
}

func TestChargeInvalidTokenRange(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")

	res, err := f.tracker.ValidateAndCharge(context.Background(), ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1000,
		MaxTokensRequested:     50,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != ReasonInvalidTokenRange {
		t.Errorf("result = %+v, want invalid_token_range", res)
	}
}

func TestChargeOmittedMaxTokensUsesDefault(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	ctx := context.Background()

	// config with a default output size: omitted tokens bill at the default
	sess := f.startSession(t, "u1", "deep_research_strong")
	res, err := f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1000,
	})
	if err != nil {
		t.Fatalf("ValidateAndCharge: %v", err)
	}
	if !res.Success {
		t.Fatalf("charge refused: %s (%s)", res.Message, res.Reason)
	}
	// base 5 + two 500-token steps above the minimum
	if !res.ChargedAmount.Equal(decimal.NewFromInt(7)) {
		t.Errorf("charged = %s, want 7", res.ChargedAmount)
	}
	if res.Breakdown.MaxTokensRequested != 2000 {
		t.Errorf("billed tokens = %d, want default 2000", res.Breakdown.MaxTokensRequested)
	}

	// config without a default: omitted tokens bill at the minimum
	sess = f.startSession(t, "u1", "contract_review_strong")
	res, err = f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		MessageID:              "m1",
		CharacterCountFrontend: 1000,
		CharacterCountBackend:  1000,
	})
	if err != nil {
		t.Fatalf("ValidateAndCharge: %v", err)
	}
	if !res.Success {
		t.Fatalf("charge refused: %s (%s)", res.Message, res.Reason)
	}
	if !res.ChargedAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("charged = %s, want 5 (base cost only)", res.ChargedAmount)
	}
	if res.Breakdown.MaxTokensRequested != 1000 {
		t.Errorf("billed tokens = %d, want minimum 1000", res.Breakdown.MaxTokensRequested)
	}
}

func TestBaseCostChargedOncePerSession(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")
	ctx := context.Background()

	for i, wantCharge := range []int64{5, 0} {
		res, err := f.tracker.ValidateAndCharge(ctx, ChargeRequest{
			SessionID:              sess.ID,
			MessageID:              "m" + string(rune('1'+i)),
			CharacterCountFrontend: 1000,
			CharacterCountBackend:  1000,
			MaxTokensRequested:     1000,
		})
		if err != nil || !res.Success {
			t.Fatalf("charge %d: %v %+v", i+1, err, res)
		}
		if !res.ChargedAmount.Equal(decimal.NewFromInt(wantCharge)) {
			t.Errorf("charge %d = %s, want %d", i+1, res.ChargedAmount, wantCharge)
		}
	}
}

func TestPremiumBypassOnMediumOnly(t *testing.T) {
	f := newFixture(t, "premium_user")
	f.fund(t, "premium_user", 100)
	ctx := context.Background()

	// medium config: free
	sess := f.startSession(t, "premium_user", "quick_question_medium")
	res, err := f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 100,
		CharacterCountBackend:  100,
	})
	if err != nil || !res.Success {
		t.Fatalf("bypass charge: %v %+v", err, res)
	}
	if !res.Free || res.BypassReason != BypassReasonPremium {
		t.Errorf("result = %+v, want free via premium_subscription", res)
	}
	if !res.ChargedAmount.IsZero() {
		t.Errorf("charged = %s, want 0", res.ChargedAmount)
	}

	// usage still counts toward caps
	got, err := f.sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 1 {
		t.Errorf("bypassed message not counted: %d", got.TotalMessages)
	}

	// strong config: premium users still pay
	sess = f.startSession(t, "premium_user", "quick_question_strong")
	res, err = f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 100,
		CharacterCountBackend:  100,
	})
	if err != nil || !res.Success {
		t.Fatalf("strong-tier charge: %v %+v", err, res)
	}
	if res.Free {
		t.Error("strong tier bypassed for premium user")
	}
	if !res.ChargedAmount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("charged = %s, want 4", res.ChargedAmount)
	}
}

func TestChargeOnReadonlySession(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", 100)
	sess := f.startSession(t, "u1", "contract_review_strong")
	ctx := context.Background()

	// freeze the session through the token cap
	if _, err := f.sessions.AddTokenUsage(ctx, sess.ID, 100000, 100000); err != nil {
		t.Fatal(err)
	}

	res, err := f.tracker.ValidateAndCharge(ctx, ChargeRequest{
		SessionID:              sess.ID,
		CharacterCountFrontend: 100,
		CharacterCountBackend:  100,
		MaxTokensRequested:     1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != ReasonSessionReadonly {
		t.Errorf("result = %+v, want session_readonly", res)
	}
}

func TestPreChargeValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t, "u1", "quick_question_medium")
	ctx := context.Background()

	// empty wallet cannot afford a flat-priced message
	err := f.tracker.PreChargeValidation(ctx, sess.ID)
	var insufficient *ledger.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	f.fund(t, "u1", 10)
	if err := f.tracker.PreChargeValidation(ctx, sess.ID); err != nil {
		t.Errorf("funded wallet rejected: %v", err)
	}

	var notFound *session.NotFoundError
	if err := f.tracker.PreChargeValidation(ctx, "ghost"); !errors.As(err, &notFound) {
		t.Errorf("expected session.NotFoundError, got %v", err)
	}
}

func TestPreviewCostAndStepOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cb, err := f.tracker.PreviewCost(ctx, "contract_review_strong", 10000, 3000, nil, 0)
	if err != nil {
		t.Fatalf("PreviewCost: %v", err)
	}
	if !cb.TotalCost.Equal(decimal.NewFromInt(11)) {
		t.Errorf("preview total = %s, want 11", cb.TotalCost)
	}

	options, err := f.tracker.StepOptions(ctx, "contract_review_strong")
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 7 {
		t.Errorf("got %d step options, want 7", len(options))
	}

	var notFound *pricing.NotFoundError
	if _, err := f.tracker.PreviewCost(ctx, "ghost", 1, 1000, nil, 0); !errors.As(err, &notFound) {
		t.Errorf("expected pricing.NotFoundError, got %v", err)
	}
}
