package session

import (
	"context"
	"time"
)

// Store persists sessions. Load returns (nil, nil) for an unknown id; the
// Tracker translates that into NotFoundError at its boundary.
type Store interface {
	// Save inserts or updates a session.
	Save(ctx context.Context, s *Session) error

	// Load retrieves a session by id, or (nil, nil) when absent.
	Load(ctx context.Context, id string) (*Session, error)

	// ListDue returns active sessions whose EndsAt is non-zero and before
	// the given time.
	ListDue(ctx context.Context, before time.Time) ([]*Session, error)

	// Close releases any resources held by the store.
	Close() error
}
