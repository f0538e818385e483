package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func hybridConfig() *Config {
	return &Config{
		StaticName:           "contract_review_strong",
		Name:                 "Contract Review",
		Strength:             StrengthStrong,
		PricingType:          AdvancedHybrid,
		Active:               true,
		BaseCost:             decimal.NewFromInt(5),
		CharPerCoin:          2500,
		FreeChars:            5000,
		TokensMin:            1000,
		TokensMax:            4000,
		TokensStep:           500,
		CostPerStep:          decimal.NewFromInt(1),
		FreePages:            2,
		CostPerPage:          decimal.NewFromInt(3),
		MaxPagesPerRequest:   50,
		FreeMinutes:          1,
		CostPerMinute:        decimal.RequireFromString("2.5"),
		MaxMinutesPerRequest: 30,
		MaxMessagesPerChat:   100,
		MaxTokensPerChat:     200000,
	}
}

func messageConfig() *Config {
	return &Config{
		StaticName:     "quick_question_medium",
		Name:           "Quick Question",
		Strength:       StrengthMedium,
		PricingType:    MessageBased,
		Active:         true,
		CostPerMessage: decimal.NewFromInt(2),
		CharPerCoin:    1,
	}
}

func TestMessageCost(t *testing.T) {
	bd, err := MessageCost(messageConfig())
	if err != nil {
		t.Fatalf("MessageCost: %v", err)
	}
	if !bd.TotalCost.Equal(decimal.NewFromInt(2)) {
		t.Errorf("total = %s, want 2", bd.TotalCost)
	}

	if _, err := MessageCost(hybridConfig()); err == nil {
		t.Error("expected error for hybrid config")
	}
}

func TestHybridCost(t *testing.T) {
	tests := []struct {
		name      string
		chars     int
		maxTokens int
		wantChar  string
		wantStep  string
		wantTotal string
	}{
		{"free tier only", 3000, 1000, "0", "0", "5"},
		{"billable characters", 10000, 1000, "2", "0", "7"},
		{"token steps", 3000, 2000, "0", "2", "7"},
		{"characters and steps", 10000, 3000, "2", "4", "11"},
		{"zero characters", 0, 1000, "0", "0", "5"},
		{"boundary at free_chars", 5000, 1000, "0", "0", "5"},
		{"one char past free tier", 5001, 1000, "1", "0", "6"},
		{"below min clamps up", 3000, 100, "0", "0", "5"},
		{"above max clamps down", 3000, 99999, "0", "6", "11"},
		{"partial step rounds up", 3000, 1001, "0", "1", "6"},
	}

	cfg := hybridConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bd, err := HybridCost(cfg, tt.chars, tt.maxTokens)
			if err != nil {
				t.Fatalf("HybridCost: %v", err)
			}
			if got := bd.CharCost.String(); got != tt.wantChar {
				t.Errorf("char cost = %s, want %s", got, tt.wantChar)
			}
			if got := bd.StepCost.String(); got != tt.wantStep {
				t.Errorf("step cost = %s, want %s", got, tt.wantStep)
			}
			if got := bd.TotalCost.String(); got != tt.wantTotal {
				t.Errorf("total = %s, want %s", got, tt.wantTotal)
			}
			if !bd.TotalCost.Equal(bd.BaseCost.Add(bd.CharCost).Add(bd.StepCost)) {
				t.Error("total is not base + char + step")
			}
		})
	}

	if _, err := HybridCost(messageConfig(), 100, 1000); err == nil {
		t.Error("expected error for message-based config")
	}
}

func TestHybridCostFreeCharAccounting(t *testing.T) {
	cfg := hybridConfig()

	bd, err := HybridCost(cfg, 3000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if bd.FreeCharsUsed != 3000 || bd.BillableChars != 0 {
		t.Errorf("free=%d billable=%d, want 3000/0", bd.FreeCharsUsed, bd.BillableChars)
	}

	bd, err = HybridCost(cfg, 10000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if bd.FreeCharsUsed != 5000 || bd.BillableChars != 5000 {
		t.Errorf("free=%d billable=%d, want 5000/5000", bd.FreeCharsUsed, bd.BillableChars)
	}
}

func TestStepCostMonotonic(t *testing.T) {
	cfg := hybridConfig()
	prev := decimal.NewFromInt(-1)
	for tokens := cfg.TokensMin; tokens <= cfg.TokensMax; tokens += 100 {
		bd, err := HybridCost(cfg, 0, tokens)
		if err != nil {
			t.Fatal(err)
		}
		if bd.StepCost.LessThan(prev) {
			t.Fatalf("step cost decreased at %d tokens: %s < %s", tokens, bd.StepCost, prev)
		}
		prev = bd.StepCost
	}
}

func TestFileCost(t *testing.T) {
	cfg := hybridConfig()

	tests := []struct {
		name      string
		files     []File
		wantPages int
		wantCost  string
	}{
		{"nothing", nil, 0, "0"},
		{"images are one page each", []File{
			{Name: "a.png", Kind: FileImage, Pages: 99},
			{Name: "b.jpg", Kind: FileImage},
		}, 2, "0"},
		{"document past free pages", []File{
			{Name: "contract.pdf", Kind: FileDocument, Pages: 5},
		}, 5, "9"},
		{"mixed", []File{
			{Name: "scan.png", Kind: FileImage},
			{Name: "brief.pdf", Kind: FileDocument, Pages: 3},
		}, 4, "6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := FileCost(cfg, tt.files)
			if err != nil {
				t.Fatalf("FileCost: %v", err)
			}
			if fb.TotalPages != tt.wantPages {
				t.Errorf("pages = %d, want %d", fb.TotalPages, tt.wantPages)
			}
			if got := fb.TotalFileCost.String(); got != tt.wantCost {
				t.Errorf("cost = %s, want %s", got, tt.wantCost)
			}
		})
	}
}

func TestFileCostPageLimit(t *testing.T) {
	cfg := hybridConfig()
	_, err := FileCost(cfg, []File{{Name: "huge.pdf", Kind: FileDocument, Pages: 51}})

	var limitErr *PageLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected PageLimitError, got %v", err)
	}
	if limitErr.TotalPages != 51 || limitErr.MaxPages != 50 {
		t.Errorf("error carries %d/%d, want 51/50", limitErr.TotalPages, limitErr.MaxPages)
	}
}

func TestVoiceCost(t *testing.T) {
	cfg := hybridConfig()

	tests := []struct {
		name        string
		seconds     int
		wantMinutes int
		wantCost    string
	}{
		{"zero duration", 0, 0, "0"},
		{"within free minute", 45, 1, "0"},
		{"partial minute rounds up", 61, 2, "3"},
		{"several minutes", 300, 5, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vb, err := VoiceCost(cfg, tt.seconds)
			if err != nil {
				t.Fatalf("VoiceCost: %v", err)
			}
			if vb.DurationMinutes != tt.wantMinutes {
				t.Errorf("minutes = %d, want %d", vb.DurationMinutes, tt.wantMinutes)
			}
			if got := vb.VoiceCost.String(); got != tt.wantCost {
				t.Errorf("cost = %s, want %s", got, tt.wantCost)
			}
		})
	}
}

func TestVoiceCostMinuteLimit(t *testing.T) {
	cfg := hybridConfig()
	_, err := VoiceCost(cfg, 31*60)

	var limitErr *MinuteLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected MinuteLimitError, got %v", err)
	}
	if limitErr.Minutes != 31 || limitErr.MaxMinutes != 30 {
		t.Errorf("error carries %d/%d, want 31/30", limitErr.Minutes, limitErr.MaxMinutes)
	}
}

func TestCompleteCost(t *testing.T) {
	cfg := hybridConfig()
	files := []File{{Name: "brief.pdf", Kind: FileDocument, Pages: 3}}

	cb, err := CompleteCost(cfg, 10000, 3000, files, 300)
	if err != nil {
		t.Fatalf("CompleteCost: %v", err)
	}
	// text 11 + file 3 + voice 10
	if got := cb.TotalCost.String(); got != "24" {
		t.Errorf("total = %s, want 24", got)
	}
	if cb.File == nil || cb.Voice == nil {
		t.Fatal("expected file and voice breakdowns")
	}

	cb, err = CompleteCost(messageConfig(), 500, 0, nil, 0)
	if err != nil {
		t.Fatalf("CompleteCost message-based: %v", err)
	}
	if got := cb.TotalCost.String(); got != "2" {
		t.Errorf("message-based total = %s, want 2", got)
	}
}

func TestStepOptions(t *testing.T) {
	cfg := hybridConfig()
	options := StepOptions(cfg)

	if len(options) != 7 {
		t.Fatalf("got %d options, want 7", len(options))
	}
	if options[0].Value != 1000 || options[0].Steps != 0 || !options[0].StepCost.IsZero() {
		t.Errorf("first option = %+v, want value 1000 at zero cost", options[0])
	}
	last := options[len(options)-1]
	if last.Value != 4000 || last.Steps != 6 || last.StepCost.String() != "6" {
		t.Errorf("last option = %+v, want value 4000 with 6 steps", last)
	}

	if got := StepOptions(messageConfig()); got != nil {
		t.Errorf("message-based config produced %d options, want none", len(got))
	}
}

func TestValidateMaxTokens(t *testing.T) {
	cfg := hybridConfig()

	if err := ValidateMaxTokens(cfg, 2000); err != nil {
		t.Errorf("in-range tokens rejected: %v", err)
	}

	err := ValidateMaxTokens(cfg, 50)
	var rangeErr *TokenRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected TokenRangeError, got %v", err)
	}
	if rangeErr.Min != 1000 || rangeErr.Max != 4000 {
		t.Errorf("error bounds = [%d, %d], want [1000, 4000]", rangeErr.Min, rangeErr.Max)
	}

	if err := ValidateMaxTokens(messageConfig(), -5); err != nil {
		t.Errorf("message-based config should accept any token value: %v", err)
	}
}
