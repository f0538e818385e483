package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger mutation.
type TransactionType string

const (
	// TypeDeposit adds money to the wallet balance.
	TypeDeposit TransactionType = "deposit"

	// TypeWithdrawal removes money from the wallet balance.
	TypeWithdrawal TransactionType = "withdrawal"

	// TypeCoinPurchase converts money into coins at an exchange rate.
	TypeCoinPurchase TransactionType = "coin_purchase"

	// TypeCoinUsage spends coins on AI usage.
	TypeCoinUsage TransactionType = "coin_usage"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	// StatusCompleted marks a settled transaction.
	StatusCompleted TransactionStatus = "completed"

	// StatusFailed marks a transaction recorded for audit after a rejected
	// mutation.
	StatusFailed TransactionStatus = "failed"
)

// Wallet holds one user's money and coin balances.
type Wallet struct {
	UserID      string
	Balance     decimal.Decimal
	CoinBalance decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction is one recorded ledger mutation.
type Transaction struct {
	// ID is a generated UUID.
	ID string

	// UserID identifies the wallet owner.
	UserID string

	// Amount is the monetary delta (zero for pure coin usage).
	Amount decimal.Decimal

	// CoinAmount is the coin delta.
	CoinAmount decimal.Decimal

	Type   TransactionType
	Status TransactionStatus

	// ReferenceID is the caller-supplied idempotency key, unique per wallet.
	ReferenceID string

	// Description is free-form context for audit trails.
	Description string

	// ExchangeRate records the coin-to-currency rate in effect, when one
	// applied to this transaction.
	ExchangeRate decimal.Decimal

	CreatedAt time.Time
}

// InsufficientBalanceError indicates a wallet could not cover a charge.
// Shortage is how much was missing, so callers can tell the user exactly
// what to top up.
type InsufficientBalanceError struct {
	UserID    string
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortage  decimal.Decimal
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: required %s, available %s (short %s)",
		e.UserID, e.Required, e.Available, e.Shortage)
}

// NewInsufficientBalanceError builds the error with the shortage computed.
func NewInsufficientBalanceError(userID string, required, available decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		UserID:    userID,
		Required:  required,
		Available: available,
		Shortage:  required.Sub(available),
	}
}
