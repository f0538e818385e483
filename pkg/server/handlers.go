package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"lexhq/coinmeter/pkg/billing"
	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/pricing"
	"lexhq/coinmeter/pkg/session"
)

const timeFormat = time.RFC3339

// maxBodyBytes caps request bodies. Charge and preview payloads are small.
const maxBodyBytes = 1 << 20

type handlers struct {
	billing      *billing.Tracker
	sessions     *session.Tracker
	wallets      ledger.Service
	sessionTTL   time.Duration
	exchangeRate float64
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP status codes. Expected billing
// failures never reach here; they travel inside a 200 charge response.
func writeError(w http.ResponseWriter, err error) {
	var (
		sessNotFound *session.NotFoundError
		cfgNotFound  *pricing.NotFoundError
		readonly     *session.ReadOnlyError
		insufficient *ledger.InsufficientBalanceError
		tokenRange   *pricing.TokenRangeError
		pageLimit    *pricing.PageLimitError
		minuteLimit  *pricing.MinuteLimitError
	)

	switch {
	case errors.As(err, &sessNotFound), errors.As(err, &cfgNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &readonly):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "session_readonly"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error(), Code: "insufficient_balance"})
	case errors.As(err, &tokenRange), errors.As(err, &pageLimit), errors.As(err, &minuteLimit),
		errors.Is(err, ledger.ErrNegativeAmount):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Code:  "invalid_request",
		})
		return false
	}
	return true
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ConfigName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "user_id and config_name are required",
			Code:  "invalid_request",
		})
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.UserID, req.ConfigName, h.sessionTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *handlers) cancelSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *handlers) sessionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.sessions.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(sum))
}

func (h *handlers) estimateNextCost(w http.ResponseWriter, r *http.Request) {
	maxTokens := 0
	if raw := r.URL.Query().Get("max_tokens"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: "max_tokens must be an integer",
				Code:  "invalid_request",
			})
			return
		}
		maxTokens = v
	}

	bd, err := h.sessions.EstimateNextCost(r.Context(), r.PathValue("id"), maxTokens)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownResponse(bd))
}

func (h *handlers) addTokenUsage(w http.ResponseWriter, r *http.Request) {
	var req addTokensRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "token counts cannot be negative",
			Code:  "invalid_request",
		})
		return
	}

	sess, err := h.sessions.AddTokenUsage(r.Context(), r.PathValue("id"), req.InputTokens, req.OutputTokens)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *handlers) charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "session_id is required",
			Code:  "invalid_request",
		})
		return
	}

	res, err := h.billing.ValidateAndCharge(r.Context(), billing.ChargeRequest{
		SessionID:              req.SessionID,
		MessageID:              req.MessageID,
		CharacterCountFrontend: req.CharacterCountFrontend,
		CharacterCountBackend:  req.CharacterCountBackend,
		MaxTokensRequested:     req.MaxTokensRequested,
		Description:            req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeResponse(res))
}

func (h *handlers) preCharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "session_id is required",
			Code:  "invalid_request",
		})
		return
	}

	if err := h.billing.PreChargeValidation(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConfigName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "config_name is required",
			Code:  "invalid_request",
		})
		return
	}

	files := make([]pricing.File, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, pricing.File{
			Name:  f.Name,
			Kind:  pricing.FileKind(f.Kind),
			Pages: f.Pages,
		})
	}

	cb, err := h.billing.PreviewCost(r.Context(), req.ConfigName, req.CharacterCount, req.MaxTokens, files, req.VoiceSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(cb))
}

func (h *handlers) stepOptions(w http.ResponseWriter, r *http.Request) {
	configName := r.URL.Query().Get("config")
	if configName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "config query parameter is required",
			Code:  "invalid_request",
		})
		return
	}

	opts, err := h.billing.StepOptions(r.Context(), configName)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]stepOptionResponse, 0, len(opts))
	for _, o := range opts {
		out = append(out, stepOptionResponse{Value: o.Value, Steps: o.Steps, StepCost: o.StepCost})
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": out})
}

func (h *handlers) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.GetWallet(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletResponse(wallet))
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	var req walletMutationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := h.wallets.Deposit(r.Context(), r.PathValue("user"), req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	var req walletMutationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := h.wallets.Withdraw(r.Context(), r.PathValue("user"), req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *handlers) purchaseCoins(w http.ResponseWriter, r *http.Request) {
	var req purchaseCoinsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rate := decimal.NewFromFloat(h.exchangeRate)
	tx, err := h.wallets.PurchaseCoins(r.Context(), r.PathValue("user"), req.CoinAmount, rate, req.ReferenceID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *handlers) transactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: "limit must be a non-negative integer",
				Code:  "invalid_request",
			})
			return
		}
		limit = v
	}

	txs, err := h.wallets.Transactions(r.Context(), r.PathValue("user"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
