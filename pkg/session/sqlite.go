package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence.
//
// Coin amounts are stored as TEXT in decimal string form. The store itself
// performs no cap logic; serialization of concurrent updates is the
// Tracker's job.
type SQLiteStore struct {
	db *sql.DB

	saveStmt *sql.Stmt
	loadStmt *sql.Stmt
	dueStmt  *sql.Stmt
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		dbPath, int((5 * time.Second).Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		config_name TEXT NOT NULL,
		status TEXT NOT NULL,
		is_readonly INTEGER NOT NULL DEFAULT 0,
		readonly_reason TEXT NOT NULL DEFAULT '',
		total_messages INTEGER NOT NULL DEFAULT 0,
		total_characters_sent INTEGER NOT NULL DEFAULT 0,
		total_input_tokens INTEGER NOT NULL DEFAULT 0,
		total_output_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens_used INTEGER NOT NULL DEFAULT 0,
		total_cost_coins TEXT NOT NULL DEFAULT '0',
		hybrid_base_cost_paid INTEGER NOT NULL DEFAULT 0,
		hybrid_free_chars_used INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		ends_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_due ON sessions(status, ends_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO sessions (id, user_id, config_name, status, is_readonly, readonly_reason,
			total_messages, total_characters_sent, total_input_tokens, total_output_tokens,
			total_tokens_used, total_cost_coins, hybrid_base_cost_paid, hybrid_free_chars_used,
			created_at, updated_at, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			is_readonly = excluded.is_readonly,
			readonly_reason = excluded.readonly_reason,
			total_messages = excluded.total_messages,
			total_characters_sent = excluded.total_characters_sent,
			total_input_tokens = excluded.total_input_tokens,
			total_output_tokens = excluded.total_output_tokens,
			total_tokens_used = excluded.total_tokens_used,
			total_cost_coins = excluded.total_cost_coins,
			hybrid_base_cost_paid = excluded.hybrid_base_cost_paid,
			hybrid_free_chars_used = excluded.hybrid_free_chars_used,
			updated_at = excluded.updated_at,
			ends_at = excluded.ends_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT id, user_id, config_name, status, is_readonly, readonly_reason,
			total_messages, total_characters_sent, total_input_tokens, total_output_tokens,
			total_tokens_used, total_cost_coins, hybrid_base_cost_paid, hybrid_free_chars_used,
			created_at, updated_at, ends_at
		FROM sessions WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.dueStmt, err = s.db.Prepare(`
		SELECT id, user_id, config_name, status, is_readonly, readonly_reason,
			total_messages, total_characters_sent, total_input_tokens, total_output_tokens,
			total_tokens_used, total_cost_coins, hybrid_base_cost_paid, hybrid_free_chars_used,
			created_at, updated_at, ends_at
		FROM sessions
		WHERE status = ? AND ends_at > 0 AND ends_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare due statement: %w", err)
	}

	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if sess.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	var endsAt int64
	if !sess.EndsAt.IsZero() {
		endsAt = sess.EndsAt.Unix()
	}

	_, err := s.saveStmt.ExecContext(ctx,
		sess.ID, sess.UserID, sess.ConfigName, string(sess.Status),
		boolToInt(sess.IsReadonly), string(sess.ReadonlyReason),
		sess.TotalMessages, sess.TotalCharactersSent,
		sess.TotalInputTokens, sess.TotalOutputTokens, sess.TotalTokensUsed,
		sess.TotalCostCoins.String(),
		boolToInt(sess.HybridBaseCostPaid), sess.HybridFreeCharsUsed,
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(), endsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.loadStmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListDue implements Store.
func (s *SQLiteStore) ListDue(ctx context.Context, before time.Time) ([]*Session, error) {
	rows, err := s.dueStmt.QueryContext(ctx, string(StatusActive), before.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list due sessions: %w", err)
	}
	defer rows.Close()

	var due []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return due, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.saveStmt != nil {
		s.saveStmt.Close()
	}
	if s.loadStmt != nil {
		s.loadStmt.Close()
	}
	if s.dueStmt != nil {
		s.dueStmt.Close()
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess           Session
		status         string
		isReadonly     int
		readonlyReason string
		totalCost      string
		basePaid       int
		createdAt      int64
		updatedAt      int64
		endsAt         int64
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ConfigName, &status,
		&isReadonly, &readonlyReason,
		&sess.TotalMessages, &sess.TotalCharactersSent,
		&sess.TotalInputTokens, &sess.TotalOutputTokens, &sess.TotalTokensUsed,
		&totalCost, &basePaid, &sess.HybridFreeCharsUsed,
		&createdAt, &updatedAt, &endsAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.Status = Status(status)
	sess.IsReadonly = isReadonly != 0
	sess.ReadonlyReason = ReadonlyReason(readonlyReason)
	sess.HybridBaseCostPaid = basePaid != 0
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	if endsAt > 0 {
		sess.EndsAt = time.Unix(endsAt, 0)
	}
	if sess.TotalCostCoins, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("corrupt cost on session %s: %w", sess.ID, err)
	}
	return &sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
