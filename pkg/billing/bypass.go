package billing

import (
	"context"

	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/subscription"
)

// BypassReasonPremium is the reason string recorded when a premium
// entitlement made a request free.
const BypassReasonPremium = "premium_subscription"

// BypassPolicy decides whether a user's entitlement makes a request free.
type BypassPolicy struct {
	subs subscription.Service
}

// NewBypassPolicy creates a policy over a subscription service.
func NewBypassPolicy(subs subscription.Service) *BypassPolicy {
	return &BypassPolicy{subs: subs}
}

// ShouldBypass reports whether the charge should be skipped and why.
//
// The rule is two-factor: the user must hold an active premium entitlement
// AND the config must be medium strength. Premium users still pay for every
// stronger tier.
func (p *BypassPolicy) ShouldBypass(ctx context.Context, userID string, cfg *pricing.Config) (bool, string, error) {
	if cfg.Strength != pricing.StrengthMedium {
		return false, "", nil
	}
	premium, err := p.subs.HasPremiumAccess(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if !premium {
		return false, "", nil
	}
	return true, BypassReasonPremium, nil
}
