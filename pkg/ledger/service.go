package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeAmount rejects mutations with a negative amount. Zero is
// allowed: free usage still records an auditable transaction row.
var ErrNegativeAmount = errors.New("ledger: amount cannot be negative")

// Service is the wallet contract the billing path depends on.
//
// Every mutating call is idempotent on its reference id: calling it twice
// with the same reference id mutates the wallet once and returns the
// transaction recorded by the first call. Balance checks and mutations are
// atomic per wallet.
type Service interface {
	// GetWallet returns the user's wallet, creating an empty one on first
	// use.
	GetWallet(ctx context.Context, userID string) (*Wallet, error)

	// Deposit adds money to the wallet balance.
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error)

	// Withdraw removes money from the wallet balance. Returns
	// InsufficientBalanceError when the balance cannot cover it.
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error)

	// PurchaseCoins converts money into coins at the given exchange rate
	// (currency per coin). The monetary cost is coinAmount * exchangeRate.
	PurchaseCoins(ctx context.Context, userID string, coinAmount, exchangeRate decimal.Decimal, referenceID, description string) (*Transaction, error)

	// Deduct spends coins. A zero coinAmount is valid and still records a
	// transaction. The bool reports whether this call created the
	// transaction; a replayed reference id returns the original row with
	// false, which lets callers skip side effects the ledger's idempotency
	// does not cover. Returns InsufficientBalanceError when the coin
	// balance cannot cover it.
	Deduct(ctx context.Context, userID string, coinAmount decimal.Decimal, referenceID, description string) (*Transaction, bool, error)

	// Transactions returns the user's most recent transactions, newest
	// first, up to limit (0 means no limit).
	Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)

	// FindByReference returns the transaction recorded under a reference
	// id, or nil when none exists. Callers use it to detect replays
	// before doing work that is not covered by the ledger's idempotency.
	FindByReference(ctx context.Context, userID, referenceID string) (*Transaction, error)

	// Close releases any resources held by the service.
	Close() error
}
