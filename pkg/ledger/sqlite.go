package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteService implements Service using SQLite for persistence.
//
// Amounts are stored as TEXT in decimal string form, never as floats.
// Idempotency is enforced by a UNIQUE(user_id, reference_id) index on the
// transactions table. Every balance mutation runs inside one database
// transaction on a pool capped at a single connection, so the balance check
// and the write cannot interleave with another mutation.
type SQLiteService struct {
	db *sql.DB
}

// SQLiteServiceConfig configures the SQLite ledger.
type SQLiteServiceConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteService opens (or creates) the ledger database at dbPath.
func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	return NewSQLiteServiceWithConfig(SQLiteServiceConfig{DBPath: dbPath})
}

// NewSQLiteServiceWithConfig opens the ledger with custom configuration.
func NewSQLiteServiceWithConfig(cfg SQLiteServiceConfig) (*SQLiteService, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteService{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteService) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0',
		coin_balance TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		coin_amount TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		description TEXT,
		exchange_rate TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_reference
		ON transactions(user_id, reference_id);
	CREATE INDEX IF NOT EXISTS idx_tx_user_created
		ON transactions(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetWallet implements Service.
func (s *SQLiteService) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	if err := s.ensureWallet(ctx, s.db, userID); err != nil {
		return nil, err
	}
	return s.loadWallet(ctx, s.db, userID)
}

// Deposit implements Service.
func (s *SQLiteService) Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	rec, _, err := s.mutate(ctx, mutation{
		userID:      userID,
		txType:      TypeDeposit,
		amount:      amount,
		referenceID: referenceID,
		description: description,
		apply: func(w *Wallet) error {
			w.Balance = w.Balance.Add(amount)
			return nil
		},
	})
	return rec, err
}

// Withdraw implements Service.
func (s *SQLiteService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	rec, _, err := s.mutate(ctx, mutation{
		userID:      userID,
		txType:      TypeWithdrawal,
		amount:      amount.Neg(),
		referenceID: referenceID,
		description: description,
		apply: func(w *Wallet) error {
			if w.Balance.LessThan(amount) {
				return NewInsufficientBalanceError(userID, amount, w.Balance)
			}
			w.Balance = w.Balance.Sub(amount)
			return nil
		},
	})
	return rec, err
}

// PurchaseCoins implements Service.
func (s *SQLiteService) PurchaseCoins(ctx context.Context, userID string, coinAmount, exchangeRate decimal.Decimal, referenceID, description string) (*Transaction, error) {
	if coinAmount.IsNegative() || exchangeRate.IsNegative() {
		return nil, ErrNegativeAmount
	}
	cost := coinAmount.Mul(exchangeRate)
	rec, _, err := s.mutate(ctx, mutation{
		userID:       userID,
		txType:       TypeCoinPurchase,
		amount:       cost.Neg(),
		coinAmount:   coinAmount,
		exchangeRate: exchangeRate,
		referenceID:  referenceID,
		description:  description,
		apply: func(w *Wallet) error {
			if w.Balance.LessThan(cost) {
				return NewInsufficientBalanceError(userID, cost, w.Balance)
			}
			w.Balance = w.Balance.Sub(cost)
			w.CoinBalance = w.CoinBalance.Add(coinAmount)
			return nil
		},
	})
	return rec, err
}

// Deduct implements Service.
func (s *SQLiteService) Deduct(ctx context.Context, userID string, coinAmount decimal.Decimal, referenceID, description string) (*Transaction, bool, error) {
	if coinAmount.IsNegative() {
		return nil, false, ErrNegativeAmount
	}
	return s.mutate(ctx, mutation{
		userID:      userID,
		txType:      TypeCoinUsage,
		coinAmount:  coinAmount.Neg(),
		referenceID: referenceID,
		description: description,
		apply: func(w *Wallet) error {
			if w.CoinBalance.LessThan(coinAmount) {
				return NewInsufficientBalanceError(userID, coinAmount, w.CoinBalance)
			}
			w.CoinBalance = w.CoinBalance.Sub(coinAmount)
			return nil
		},
	})
}

// mutation describes one wallet change to run atomically.
type mutation struct {
	userID       string
	txType       TransactionType
	amount       decimal.Decimal
	coinAmount   decimal.Decimal
	exchangeRate decimal.Decimal
	referenceID  string
	description  string

	// apply checks the balance and updates the wallet in memory. It runs
	// inside the database transaction.
	apply func(*Wallet) error
}

func (s *SQLiteService) mutate(ctx context.Context, m mutation) (*Transaction, bool, error) {
	if m.userID == "" {
		return nil, false, fmt.Errorf("user id cannot be empty")
	}
	if m.referenceID == "" {
		return nil, false, fmt.Errorf("reference id cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureWallet(ctx, tx, m.userID); err != nil {
		return nil, false, err
	}

	// Idempotency: a retried reference id returns the original transaction
	// without touching the balance.
	if existing, err := s.findByReference(ctx, tx, m.userID, m.referenceID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	w, err := s.loadWallet(ctx, tx, m.userID)
	if err != nil {
		return nil, false, err
	}
	if err := m.apply(w); err != nil {
		return nil, false, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, coin_balance = ?, updated_at = ?
		WHERE user_id = ?`,
		w.Balance.String(), w.CoinBalance.String(), now.Unix(), m.userID,
	); err != nil {
		return nil, false, fmt.Errorf("failed to update wallet: %w", err)
	}

	rec := &Transaction{
		ID:           uuid.NewString(),
		UserID:       m.userID,
		Amount:       m.amount,
		CoinAmount:   m.coinAmount,
		Type:         m.txType,
		Status:       StatusCompleted,
		ReferenceID:  m.referenceID,
		Description:  m.description,
		ExchangeRate: m.exchangeRate,
		CreatedAt:    now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, coin_amount, type, status, reference_id, description, exchange_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Amount.String(), rec.CoinAmount.String(),
		string(rec.Type), string(rec.Status), rec.ReferenceID, rec.Description,
		rec.ExchangeRate.String(), rec.CreatedAt.Unix(),
	); err != nil {
		return nil, false, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, true, nil
}

// Transactions implements Service.
func (s *SQLiteService) Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	query := `
		SELECT id, user_id, amount, coin_amount, type, status, reference_id, description, exchange_rate, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

// FindByReference implements Service.
func (s *SQLiteService) FindByReference(ctx context.Context, userID, referenceID string) (*Transaction, error) {
	if userID == "" || referenceID == "" {
		return nil, fmt.Errorf("user id and reference id cannot be empty")
	}
	return s.findByReference(ctx, s.db, userID, referenceID)
}

// Close releases the database handle.
func (s *SQLiteService) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// querier abstracts *sql.DB and *sql.Tx so wallet helpers work in both.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteService) ensureWallet(ctx context.Context, q querier, userID string) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, coin_balance, created_at, updated_at)
		VALUES (?, '0', '0', ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

func (s *SQLiteService) loadWallet(ctx context.Context, q querier, userID string) (*Wallet, error) {
	var (
		balance     string
		coinBalance string
		createdAt   int64
		updatedAt   int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT balance, coin_balance, created_at, updated_at
		FROM wallets WHERE user_id = ?`, userID,
	).Scan(&balance, &coinBalance, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	w := &Wallet{
		UserID:    userID,
		CreatedAt: time.Unix(createdAt, 0),
		UpdatedAt: time.Unix(updatedAt, 0),
	}
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}
	if w.CoinBalance, err = decimal.NewFromString(coinBalance); err != nil {
		return nil, fmt.Errorf("corrupt coin balance for user %s: %w", userID, err)
	}
	return w, nil
}

func (s *SQLiteService) findByReference(ctx context.Context, q querier, userID, referenceID string) (*Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, amount, coin_amount, type, status, reference_id, description, exchange_rate, created_at
		FROM transactions
		WHERE user_id = ? AND reference_id = ?`,
		userID, referenceID,
	)
	rec, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		rec          Transaction
		amount       string
		coinAmount   string
		txType       string
		status       string
		description  sql.NullString
		exchangeRate string
		createdAt    int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &amount, &coinAmount, &txType, &status,
		&rec.ReferenceID, &description, &exchangeRate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	rec.Type = TransactionType(txType)
	rec.Status = TransactionStatus(status)
	rec.Description = description.String
	rec.CreatedAt = time.Unix(createdAt, 0)
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount on transaction %s: %w", rec.ID, err)
	}
	if rec.CoinAmount, err = decimal.NewFromString(coinAmount); err != nil {
		return nil, fmt.Errorf("corrupt coin amount on transaction %s: %w", rec.ID, err)
	}
	if rec.ExchangeRate, err = decimal.NewFromString(exchangeRate); err != nil {
		return nil, fmt.Errorf("corrupt exchange rate on transaction %s: %w", rec.ID, err)
	}
	return &rec, nil
}
