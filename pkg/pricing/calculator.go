package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Breakdown is the result of pricing the text dimension of one message.
// All intermediate values are included so callers (session accumulators,
// previews) never need to recompute them.
type Breakdown struct {
	// PricingType records which model produced this breakdown.
	PricingType Type

	// CharacterCount is the character count the breakdown was computed for.
	CharacterCount int

	// MaxTokensRequested is the requested output size after clamping
	// into [TokensMin, TokensMax]. Zero for message_based pricing.
	MaxTokensRequested int

	// BaseCost is the one-time per-conversation cost (hybrid only).
	BaseCost decimal.Decimal

	// CharCost is the character-tier cost in whole coins.
	CharCost decimal.Decimal

	// FreeCharsUsed is how many characters fell inside the free allowance.
	FreeCharsUsed int

	// BillableChars is how many characters were metered.
	BillableChars int

	// NumSteps is the number of token steps above TokensMin.
	NumSteps int

	// StepCost is NumSteps * CostPerStep.
	StepCost decimal.Decimal

	// TotalCost is BaseCost + CharCost + StepCost, or the flat message
	// cost for message_based configs.
	TotalCost decimal.Decimal

	// Warning carries a non-fatal correction note, e.g. when an
	// out-of-range token request was clamped during a preview.
	Warning string
}

// MessageCost prices one message under flat per-message pricing.
// It fails only when the config does not use message_based pricing.
func MessageCost(cfg *Config) (*Breakdown, error) {
	if !cfg.IsMessageBased() {
		return nil, fmt.Errorf("config %q does not use message-based pricing", cfg.StaticName)
	}
	return &Breakdown{
		PricingType: MessageBased,
		TotalCost:   cfg.CostPerMessage,
	}, nil
}

// HybridCost prices the text dimension of one message under hybrid pricing.
//
// The requested token count is clamped into [TokensMin, TokensMax]; callers
// that must reject out-of-range values instead use ValidateMaxTokens before
// charging. Character cost is rounded up to whole coins so fractional usage
// is never under-charged.
func HybridCost(cfg *Config, characterCount, maxTokensRequested int) (*Breakdown, error) {
	if !cfg.IsAdvancedHybrid() {
		return nil, fmt.Errorf("config %q does not use advanced hybrid pricing", cfg.StaticName)
	}

	bd := &Breakdown{
		PricingType:    AdvancedHybrid,
		CharacterCount: characterCount,
		BaseCost:       cfg.BaseCost,
		CharCost:       decimal.Zero,
		StepCost:       decimal.Zero,
	}

	// Character tier.
	if characterCount > cfg.FreeChars {
		bd.FreeCharsUsed = cfg.FreeChars
		bd.BillableChars = characterCount - cfg.FreeChars
		bd.CharCost = decimal.NewFromInt(int64(ceilDiv(bd.BillableChars, cfg.CharPerCoin)))
	} else if characterCount > 0 {
		bd.FreeCharsUsed = characterCount
	}

	// Token step tier.
	bd.MaxTokensRequested = ClampTokens(cfg, maxTokensRequested)
	if above := bd.MaxTokensRequested - cfg.TokensMin; above > 0 {
		bd.NumSteps = ceilDiv(above, cfg.TokensStep)
		bd.StepCost = cfg.CostPerStep.Mul(decimal.NewFromInt(int64(bd.NumSteps)))
	}

	bd.TotalCost = bd.BaseCost.Add(bd.CharCost).Add(bd.StepCost)
	return bd, nil
}

// FileKind classifies an attachment for page counting.
type FileKind string

const (
	// FileImage counts as a single page regardless of size.
	FileImage FileKind = "image"

	// FileDocument contributes its counted page total.
	FileDocument FileKind = "document"
)

// File describes one attachment to be priced. Page extraction happens
// outside this package; only the resulting counts enter the calculator.
type File struct {
	Name  string
	Kind  FileKind
	Pages int
}

// FileBreakdown is the result of pricing a set of attachments.
type FileBreakdown struct {
	TotalPages    int
	FreePages     int
	BillablePages int
	CostPerPage   decimal.Decimal
	TotalFileCost decimal.Decimal

	// Files echoes the priced attachments with images normalized to one
	// page each.
	Files []File
}

// PageLimitError indicates a request exceeded the per-request page cap.
type PageLimitError struct {
	TotalPages int
	MaxPages   int
}

func (e *PageLimitError) Error() string {
	return fmt.Sprintf("page limit exceeded: %d pages requested, at most %d allowed", e.TotalPages, e.MaxPages)
}

// FileCost prices a set of attachments. An image is one page; a document
// contributes its counted pages. The request is rejected with PageLimitError
// when the total exceeds MaxPagesPerRequest.
func FileCost(cfg *Config, files []File) (*FileBreakdown, error) {
	fb := &FileBreakdown{
		FreePages:     cfg.FreePages,
		CostPerPage:   cfg.CostPerPage,
		TotalFileCost: decimal.Zero,
	}

	for _, f := range files {
		switch f.Kind {
		case FileImage:
			f.Pages = 1
		case FileDocument:
			if f.Pages < 0 {
				return nil, fmt.Errorf("file %q has negative page count %d", f.Name, f.Pages)
			}
		default:
			return nil, fmt.Errorf("file %q has unsupported kind %q", f.Name, f.Kind)
		}
		fb.TotalPages += f.Pages
		fb.Files = append(fb.Files, f)
	}

	if cfg.MaxPagesPerRequest > 0 && fb.TotalPages > cfg.MaxPagesPerRequest {
		return nil, &PageLimitError{TotalPages: fb.TotalPages, MaxPages: cfg.MaxPagesPerRequest}
	}

	if fb.TotalPages > cfg.FreePages {
		fb.BillablePages = fb.TotalPages - cfg.FreePages
		fb.TotalFileCost = cfg.CostPerPage.Mul(decimal.NewFromInt(int64(fb.BillablePages)))
	}
	return fb, nil
}

// VoiceBreakdown is the result of pricing one voice attachment.
type VoiceBreakdown struct {
	DurationSeconds int
	DurationMinutes int
	FreeMinutes     int
	BillableMinutes int
	CostPerMinute   decimal.Decimal

	// VoiceCost is rounded up to whole coins.
	VoiceCost decimal.Decimal
}

// MinuteLimitError indicates a voice request exceeded the per-request cap.
type MinuteLimitError struct {
	Minutes    int
	MaxMinutes int
}

func (e *MinuteLimitError) Error() string {
	return fmt.Sprintf("voice limit exceeded: %d minutes requested, at most %d allowed", e.Minutes, e.MaxMinutes)
}

// VoiceCost prices a voice attachment. Duration rounds up to whole minutes
// and the final cost rounds up to whole coins.
func VoiceCost(cfg *Config, durationSeconds int) (*VoiceBreakdown, error) {
	vb := &VoiceBreakdown{
		DurationSeconds: durationSeconds,
		FreeMinutes:     cfg.FreeMinutes,
		CostPerMinute:   cfg.CostPerMinute,
		VoiceCost:       decimal.Zero,
	}
	if durationSeconds <= 0 || cfg.CostPerMinute.IsZero() {
		return vb, nil
	}

	vb.DurationMinutes = ceilDiv(durationSeconds, 60)
	if cfg.MaxMinutesPerRequest > 0 && vb.DurationMinutes > cfg.MaxMinutesPerRequest {
		return nil, &MinuteLimitError{Minutes: vb.DurationMinutes, MaxMinutes: cfg.MaxMinutesPerRequest}
	}

	if vb.DurationMinutes > cfg.FreeMinutes {
		vb.BillableMinutes = vb.DurationMinutes - cfg.FreeMinutes
		vb.VoiceCost = cfg.CostPerMinute.Mul(decimal.NewFromInt(int64(vb.BillableMinutes))).Ceil()
	}
	return vb, nil
}

// CompleteBreakdown combines the independent text, file and voice dimensions
// of one request. Dimensions never interact: the character free tier does not
// offset page cost, and so on.
type CompleteBreakdown struct {
	Text  *Breakdown
	File  *FileBreakdown
	Voice *VoiceBreakdown

	// TotalCost is the sum of all dimension totals.
	TotalCost decimal.Decimal
}

// CompleteCost prices a full request: message or hybrid text cost plus
// optional attachments. Each dimension is computed independently.
func CompleteCost(cfg *Config, characterCount, maxTokensRequested int, files []File, voiceSeconds int) (*CompleteBreakdown, error) {
	var (
		text *Breakdown
		err  error
	)
	if cfg.IsMessageBased() {
		text, err = MessageCost(cfg)
	} else {
		text, err = HybridCost(cfg, characterCount, maxTokensRequested)
	}
	if err != nil {
		return nil, err
	}

	cb := &CompleteBreakdown{Text: text, TotalCost: text.TotalCost}

	if len(files) > 0 {
		cb.File, err = FileCost(cfg, files)
		if err != nil {
			return nil, err
		}
		cb.TotalCost = cb.TotalCost.Add(cb.File.TotalFileCost)
	}

	if voiceSeconds > 0 {
		cb.Voice, err = VoiceCost(cfg, voiceSeconds)
		if err != nil {
			return nil, err
		}
		cb.TotalCost = cb.TotalCost.Add(cb.Voice.VoiceCost)
	}

	return cb, nil
}

// StepOption describes one selectable output size for the frontend.
type StepOption struct {
	// Value is the token count for this option.
	Value int

	// Steps is how many steps above TokensMin the value sits.
	Steps int

	// StepCost is the coin cost of those steps.
	StepCost decimal.Decimal
}

// StepOptions lists every selectable token value between TokensMin and
// TokensMax in increments of TokensStep, with the step cost of each. The
// result is empty for non-hybrid configs.
func StepOptions(cfg *Config) []StepOption {
	if !cfg.IsAdvancedHybrid() {
		return nil
	}

	var options []StepOption
	for value := cfg.TokensMin; value <= cfg.TokensMax; value += cfg.TokensStep {
		steps := 0
		if above := value - cfg.TokensMin; above > 0 {
			steps = ceilDiv(above, cfg.TokensStep)
		}
		options = append(options, StepOption{
			Value:    value,
			Steps:    steps,
			StepCost: cfg.CostPerStep.Mul(decimal.NewFromInt(int64(steps))),
		})
	}
	return options
}

// ClampTokens corrects a requested token count into the config's valid
// range. Non-hybrid configs return the value unchanged.
func ClampTokens(cfg *Config, maxTokens int) int {
	if !cfg.IsAdvancedHybrid() {
		return maxTokens
	}
	if maxTokens < cfg.TokensMin {
		return cfg.TokensMin
	}
	if maxTokens > cfg.TokensMax {
		return cfg.TokensMax
	}
	return maxTokens
}

// TokenRangeError indicates a requested token count fell outside the
// config's [TokensMin, TokensMax] range. The bounds are included so callers
// can correct and retry.
type TokenRangeError struct {
	Requested int
	Min       int
	Max       int
}

func (e *TokenRangeError) Error() string {
	return fmt.Sprintf("requested tokens %d outside allowed range [%d, %d]", e.Requested, e.Min, e.Max)
}

// ValidateMaxTokens rejects a token request outside the config's range.
// Unlike ClampTokens, no silent correction happens: this is the boundary
// check used before a charge. Non-hybrid configs accept any value.
func ValidateMaxTokens(cfg *Config, maxTokens int) error {
	if !cfg.IsAdvancedHybrid() {
		return nil
	}
	if maxTokens < cfg.TokensMin || maxTokens > cfg.TokensMax {
		return &TokenRangeError{Requested: maxTokens, Min: cfg.TokensMin, Max: cfg.TokensMax}
	}
	return nil
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
