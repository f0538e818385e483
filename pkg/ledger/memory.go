package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryService implements Service with in-process state. Used in tests and
// ephemeral deployments; semantics match SQLiteService exactly, including
// reference id idempotency and atomic check-and-mutate.
type MemoryService struct {
	mu           sync.Mutex
	wallets      map[string]*Wallet
	transactions map[string][]*Transaction
	byReference  map[string]*Transaction
}

// NewMemoryService creates an empty in-memory ledger.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		wallets:      make(map[string]*Wallet),
		transactions: make(map[string][]*Transaction),
		byReference:  make(map[string]*Transaction),
	}
}

// GetWallet implements Service.
func (s *MemoryService) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.walletLocked(userID)
	cp := *w
	return &cp, nil
}

// Deposit implements Service.
func (s *MemoryService) Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	rec, _, err := s.mutate(userID, TypeDeposit, amount, decimal.Zero, decimal.Zero, referenceID, description,
		func(w *Wallet) error {
			w.Balance = w.Balance.Add(amount)
			return nil
		})
	return rec, err
}

// Withdraw implements Service.
func (s *MemoryService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	rec, _, err := s.mutate(userID, TypeWithdrawal, amount.Neg(), decimal.Zero, decimal.Zero, referenceID, description,
		func(w *Wallet) error {
			if w.Balance.LessThan(amount) {
				return NewInsufficientBalanceError(userID, amount, w.Balance)
			}
			w.Balance = w.Balance.Sub(amount)
			return nil
		})
	return rec, err
}

// PurchaseCoins implements Service.
func (s *MemoryService) PurchaseCoins(ctx context.Context, userID string, coinAmount, exchangeRate decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if coinAmount.IsNegative() || exchangeRate.IsNegative() {
		return nil, ErrNegativeAmount
	}
	cost := coinAmount.Mul(exchangeRate)
	rec, _, err := s.mutate(userID, TypeCoinPurchase, cost.Neg(), coinAmount, exchangeRate, referenceID, description,
		func(w *Wallet) error {
			if w.Balance.LessThan(cost) {
				return NewInsufficientBalanceError(userID, cost, w.Balance)
			}
			w.Balance = w.Balance.Sub(cost)
			w.CoinBalance = w.CoinBalance.Add(coinAmount)
			return nil
		})
	return rec, err
}

// Deduct implements Service.
func (s *MemoryService) Deduct(ctx context.Context, userID string, coinAmount decimal.Decimal, referenceID, description string) (*Transaction, bool, error) {
	if coinAmount.IsNegative() {
		return nil, false, ErrNegativeAmount
	}
	return s.mutate(userID, TypeCoinUsage, decimal.Zero, coinAmount.Neg(), decimal.Zero, referenceID, description,
		func(w *Wallet) error {
			if w.CoinBalance.LessThan(coinAmount) {
				return NewInsufficientBalanceError(userID, coinAmount, w.CoinBalance)
			}
			w.CoinBalance = w.CoinBalance.Sub(coinAmount)
			return nil
		})
}

func (s *MemoryService) mutate(userID string, txType TransactionType, amount, coinAmount, exchangeRate decimal.Decimal, referenceID, description string, apply func(*Wallet) error) (*Transaction, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("user id cannot be empty")
	}
	if referenceID == "" {
		return nil, false, fmt.Errorf("reference id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "\x00" + referenceID
	if existing, ok := s.byReference[key]; ok {
		cp := *existing
		return &cp, false, nil
	}

	w := s.walletLocked(userID)
	if err := apply(w); err != nil {
		return nil, false, err
	}
	w.UpdatedAt = time.Now()

	rec := &Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		CoinAmount:   coinAmount,
		Type:         txType,
		Status:       StatusCompleted,
		ReferenceID:  referenceID,
		Description:  description,
		ExchangeRate: exchangeRate,
		CreatedAt:    w.UpdatedAt,
	}
	s.transactions[userID] = append(s.transactions[userID], rec)
	s.byReference[key] = rec

	cp := *rec
	return &cp, true, nil
}

// Transactions implements Service.
func (s *MemoryService) Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transactions[userID]
	out := make([]*Transaction, 0, len(all))
	// newest first
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// FindByReference implements Service.
func (s *MemoryService) FindByReference(ctx context.Context, userID, referenceID string) (*Transaction, error) {
	if userID == "" || referenceID == "" {
		return nil, fmt.Errorf("user id and reference id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byReference[userID+"\x00"+referenceID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Close implements Service.
func (s *MemoryService) Close() error {
	return nil
}

func (s *MemoryService) walletLocked(userID string) *Wallet {
	w, ok := s.wallets[userID]
	if !ok {
		now := time.Now()
		w = &Wallet{
			UserID:      userID,
			Balance:     decimal.Zero,
			CoinBalance: decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.wallets[userID] = w
	}
	return w
}
