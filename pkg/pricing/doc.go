// Package pricing defines AI pricing configurations and the pure cost
// calculator that maps usage to coin-denominated costs.
//
// # Overview
//
// A Config describes one purchasable AI tier. Two pricing models exist:
//
//   - message_based: a flat coin cost per user message
//   - advanced_hybrid: a multi-dimensional tariff combining a one-time base
//     cost, metered characters beyond a free allowance, quantized output-token
//     "steps", and optional per-page and per-minute attachment costs
//
// The calculator functions in this package are pure: they take a Config plus
// raw usage numbers and return a detailed breakdown. They perform no I/O and
// never touch a wallet or a session. All coin amounts use
// github.com/shopspring/decimal; conversion to float happens only at
// serialization boundaries.
//
// # Clamping vs. rejecting
//
// HybridCost silently clamps an out-of-range token request into
// [TokensMin, TokensMax]. This is deliberate: the calculator is also used for
// estimates and previews, where a corrected value is more useful than an
// error. Rejection of out-of-range requests before money moves is the job of
// the billing validation layer, which calls ValidateMaxTokens instead.
//
// # Usage
//
//	cfg, err := repo.Get("contract_review_strong")
//	if err != nil { ... }
//
//	bd, err := pricing.HybridCost(cfg, characterCount, maxTokens)
//	if err != nil { ... }
//	fmt.Println(bd.TotalCost) // base + characters + steps
package pricing
