package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusPending is a created but not yet started session.
	StatusPending Status = "pending"

	// StatusActive accepts billable messages.
	StatusActive Status = "active"

	// StatusCompleted is terminal; set when a hard cap flips the session
	// read-only or when the conversation finishes normally.
	StatusCompleted Status = "completed"

	// StatusExpired is terminal; set by the expiry sweeper.
	StatusExpired Status = "expired"

	// StatusCancelled is terminal; set on explicit user cancellation.
	StatusCancelled Status = "cancelled"
)

// ReadonlyReason names the cap that froze a session.
type ReadonlyReason string

const (
	// ReasonMaxMessages means the per-session message cap was reached.
	ReasonMaxMessages ReadonlyReason = "max_messages_reached"

	// ReasonMaxTokens means the per-session token cap was reached.
	ReasonMaxTokens ReadonlyReason = "max_tokens_reached"
)

// Session is one conversation's usage record.
//
// TotalTokensUsed always equals TotalInputTokens + TotalOutputTokens.
// HybridFreeCharsUsed never decreases and never exceeds the config's free
// character allowance.
type Session struct {
	// ID is a generated UUID.
	ID string

	// UserID is the wallet owner the session bills against.
	UserID string

	// ConfigName is the static name of the pricing config in force.
	ConfigName string

	Status Status

	// IsReadonly blocks further billable usage once true.
	IsReadonly bool

	// ReadonlyReason is set together with IsReadonly, empty otherwise.
	ReadonlyReason ReadonlyReason

	// Accumulators. Mutated only through the Tracker.
	TotalMessages       int
	TotalCharactersSent int
	TotalInputTokens    int
	TotalOutputTokens   int
	TotalTokensUsed     int
	TotalCostCoins      decimal.Decimal

	// HybridBaseCostPaid is set the first time a breakdown with a positive
	// base cost is charged.
	HybridBaseCostPaid bool

	// HybridFreeCharsUsed tracks consumption of the free character tier.
	HybridFreeCharsUsed int

	CreatedAt time.Time
	UpdatedAt time.Time

	// EndsAt is when the sweeper may expire the session. Zero means no
	// time limit.
	EndsAt time.Time
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	cp := *s
	return &cp
}

// Terminal reports whether the session can never become active again.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ReadOnlyError indicates a billable action hit a frozen session. Terminal
// for that session: no retry will succeed without an admin override.
type ReadOnlyError struct {
	SessionID string
	Reason    ReadonlyReason
}

// Error implements the error interface.
func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("session %s is read-only: %s", e.SessionID, e.Reason)
}

// NotFoundError indicates an unknown session id.
type NotFoundError struct {
	SessionID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// Summary aggregates a session's usage for reporting.
type Summary struct {
	SessionID           string
	Status              Status
	TotalMessages       int
	TotalCharactersSent int
	TotalTokensUsed     int
	TotalCostCoins      decimal.Decimal

	// AverageCostPerMessage is zero when no messages were sent.
	AverageCostPerMessage decimal.Decimal

	IsReadonly     bool
	ReadonlyReason ReadonlyReason
}
