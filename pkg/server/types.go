package server

import (
	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/billing"
	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/session"
)

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type createSessionRequest struct {
	UserID     string `json:"user_id"`
	ConfigName string `json:"config_name"`
}

type sessionResponse struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	ConfigName          string          `json:"config_name"`
	Status              string          `json:"status"`
	IsReadonly          bool            `json:"is_readonly"`
	ReadonlyReason      string          `json:"readonly_reason,omitempty"`
	TotalMessages       int             `json:"total_messages"`
	TotalCharactersSent int             `json:"total_characters_sent"`
	TotalInputTokens    int             `json:"total_input_tokens"`
	TotalOutputTokens   int             `json:"total_output_tokens"`
	TotalTokensUsed     int             `json:"total_tokens_used"`
	TotalCostCoins      decimal.Decimal `json:"total_cost_coins"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
	EndsAt              string          `json:"ends_at,omitempty"`
}

type summaryResponse struct {
	SessionID             string          `json:"session_id"`
	Status                string          `json:"status"`
	TotalMessages         int             `json:"total_messages"`
	TotalCharactersSent   int             `json:"total_characters_sent"`
	TotalTokensUsed       int             `json:"total_tokens_used"`
	TotalCostCoins        decimal.Decimal `json:"total_cost_coins"`
	AverageCostPerMessage decimal.Decimal `json:"average_cost_per_message"`
	IsReadonly            bool            `json:"is_readonly"`
	ReadonlyReason        string          `json:"readonly_reason,omitempty"`
}

type addTokensRequest struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type chargeRequest struct {
	SessionID              string `json:"session_id"`
	MessageID              string `json:"message_id"`
	CharacterCountFrontend int    `json:"character_count_frontend"`
	CharacterCountBackend  int    `json:"character_count_backend"`
	MaxTokensRequested     int    `json:"max_tokens_requested"`
	Description            string `json:"description"`
}

type chargeResponse struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	Reason        string             `json:"reason,omitempty"`
	Free          bool               `json:"free,omitempty"`
	BypassReason  string             `json:"bypass_reason,omitempty"`
	ChargedAmount decimal.Decimal    `json:"charged_amount"`
	ReferenceID   string             `json:"reference_id,omitempty"`
	Shortage      *decimal.Decimal   `json:"shortage,omitempty"`
	Breakdown     *breakdownResponse `json:"breakdown,omitempty"`
}

type breakdownResponse struct {
	PricingType        string          `json:"pricing_type"`
	CharacterCount     int             `json:"character_count"`
	MaxTokensRequested int             `json:"max_tokens_requested,omitempty"`
	BaseCost           decimal.Decimal `json:"base_cost"`
	CharCost           decimal.Decimal `json:"char_cost"`
	FreeCharsUsed      int             `json:"free_chars_used"`
	BillableChars      int             `json:"billable_chars"`
	NumSteps           int             `json:"num_steps"`
	StepCost           decimal.Decimal `json:"step_cost"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	Warning            string          `json:"warning,omitempty"`
}

type previewRequest struct {
	ConfigName     string        `json:"config_name"`
	CharacterCount int           `json:"character_count"`
	MaxTokens      int           `json:"max_tokens"`
	Files          []previewFile `json:"files,omitempty"`
	VoiceSeconds   int           `json:"voice_seconds,omitempty"`
}

type previewFile struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Pages int    `json:"pages"`
}

type previewResponse struct {
	Text      *breakdownResponse `json:"text,omitempty"`
	File      *fileResponse      `json:"file,omitempty"`
	Voice     *voiceResponse     `json:"voice,omitempty"`
	TotalCost decimal.Decimal    `json:"total_cost"`
}

type fileResponse struct {
	TotalPages    int             `json:"total_pages"`
	FreePages     int             `json:"free_pages"`
	BillablePages int             `json:"billable_pages"`
	CostPerPage   decimal.Decimal `json:"cost_per_page"`
	TotalFileCost decimal.Decimal `json:"total_file_cost"`
}

type voiceResponse struct {
	DurationSeconds int             `json:"duration_seconds"`
	DurationMinutes int             `json:"duration_minutes"`
	FreeMinutes     int             `json:"free_minutes"`
	BillableMinutes int             `json:"billable_minutes"`
	CostPerMinute   decimal.Decimal `json:"cost_per_minute"`
	VoiceCost       decimal.Decimal `json:"voice_cost"`
}

type stepOptionResponse struct {
	Value    int             `json:"value"`
	Steps    int             `json:"steps"`
	StepCost decimal.Decimal `json:"step_cost"`
}

type walletResponse struct {
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	CoinBalance decimal.Decimal `json:"coin_balance"`
}

type walletMutationRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

type purchaseCoinsRequest struct {
	CoinAmount  decimal.Decimal `json:"coin_amount"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

type transactionResponse struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	CoinAmount  decimal.Decimal `json:"coin_amount"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

func toSessionResponse(s *session.Session) *sessionResponse {
	resp := &sessionResponse{
		ID:                  s.ID,
		UserID:              s.UserID,
		ConfigName:          s.ConfigName,
		Status:              string(s.Status),
		IsReadonly:          s.IsReadonly,
		ReadonlyReason:      string(s.ReadonlyReason),
		TotalMessages:       s.TotalMessages,
		TotalCharactersSent: s.TotalCharactersSent,
		TotalInputTokens:    s.TotalInputTokens,
		TotalOutputTokens:   s.TotalOutputTokens,
		TotalTokensUsed:     s.TotalTokensUsed,
		TotalCostCoins:      s.TotalCostCoins,
		CreatedAt:           s.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:           s.UpdatedAt.UTC().Format(timeFormat),
	}
	if !s.EndsAt.IsZero() {
		resp.EndsAt = s.EndsAt.UTC().Format(timeFormat)
	}
	return resp
}

func toSummaryResponse(sum *session.Summary) *summaryResponse {
	return &summaryResponse{
		SessionID:             sum.SessionID,
		Status:                string(sum.Status),
		TotalMessages:         sum.TotalMessages,
		TotalCharactersSent:   sum.TotalCharactersSent,
		TotalTokensUsed:       sum.TotalTokensUsed,
		TotalCostCoins:        sum.TotalCostCoins,
		AverageCostPerMessage: sum.AverageCostPerMessage,
		IsReadonly:            sum.IsReadonly,
		ReadonlyReason:        string(sum.ReadonlyReason),
	}
}

func toChargeResponse(res *billing.ChargeResult) *chargeResponse {
	resp := &chargeResponse{
		Success:       res.Success,
		Message:       res.Message,
		Reason:        res.Reason,
		Free:          res.Free,
		BypassReason:  res.BypassReason,
		ChargedAmount: res.ChargedAmount,
		ReferenceID:   res.ReferenceID,
		Breakdown:     toBreakdownResponse(res.Breakdown),
	}
	if res.Reason == billing.ReasonInsufficientBalance {
		shortage := res.Shortage
		resp.Shortage = &shortage
	}
	return resp
}

func toBreakdownResponse(bd *pricing.Breakdown) *breakdownResponse {
	if bd == nil {
		return nil
	}
	return &breakdownResponse{
		PricingType:        string(bd.PricingType),
		CharacterCount:     bd.CharacterCount,
		MaxTokensRequested: bd.MaxTokensRequested,
		BaseCost:           bd.BaseCost,
		CharCost:           bd.CharCost,
		FreeCharsUsed:      bd.FreeCharsUsed,
		BillableChars:      bd.BillableChars,
		NumSteps:           bd.NumSteps,
		StepCost:           bd.StepCost,
		TotalCost:          bd.TotalCost,
		Warning:            bd.Warning,
	}
}

func toPreviewResponse(cb *pricing.CompleteBreakdown) *previewResponse {
	resp := &previewResponse{
		Text:      toBreakdownResponse(cb.Text),
		TotalCost: cb.TotalCost,
	}
	if cb.File != nil {
		resp.File = &fileResponse{
			TotalPages:    cb.File.TotalPages,
			FreePages:     cb.File.FreePages,
			BillablePages: cb.File.BillablePages,
			CostPerPage:   cb.File.CostPerPage,
			TotalFileCost: cb.File.TotalFileCost,
		}
	}
	if cb.Voice != nil {
		resp.Voice = &voiceResponse{
			DurationSeconds: cb.Voice.DurationSeconds,
			DurationMinutes: cb.Voice.DurationMinutes,
			FreeMinutes:     cb.Voice.FreeMinutes,
			BillableMinutes: cb.Voice.BillableMinutes,
			CostPerMinute:   cb.Voice.CostPerMinute,
			VoiceCost:       cb.Voice.VoiceCost,
		}
	}
	return resp
}

func toWalletResponse(w *ledger.Wallet) *walletResponse {
	return &walletResponse{
		UserID:      w.UserID,
		Balance:     w.Balance,
		CoinBalance: w.CoinBalance,
	}
}

func toTransactionResponse(tx *ledger.Transaction) *transactionResponse {
	return &transactionResponse{
		ID:          tx.ID,
		Amount:      tx.Amount,
		CoinAmount:  tx.CoinAmount,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		ReferenceID: tx.ReferenceID,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.UTC().Format(timeFormat),
	}
}
