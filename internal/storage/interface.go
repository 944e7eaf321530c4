package storage

import (
	"context"
	"fmt"

	"github.com/mcoot/pongladder/internal/model"
)

// RatingUpdate is a compare-and-swap on a user's rating: it applies only
// if the stored rating still equals From.
type RatingUpdate struct {
	Username string
	From     int
	To       int
}

// Storage defines the interface for ledger persistence.
// Implementations must apply each write atomically: a match and the
// rating updates that go with it become visible together or not at all.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) error

	// Match operations
	ListMatches(ctx context.Context) ([]*model.Match, error)
	LastMatch(ctx context.Context) (*model.Match, error)

	// CommitMatch appends the match and applies the rating updates.
	// It assigns match.Sequence and fails with model.ErrWriteConflict
	// if any update's From no longer matches.
	CommitMatch(ctx context.Context, match *model.Match, updates []RatingUpdate) error

	// RemoveLastMatch deletes the tail of the ledger and applies the
	// rating updates. It fails with model.ErrWriteConflict if the tail
	// is no longer matchID or any update's From no longer matches.
	RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []RatingUpdate) error

	Close() error
}

// Unavailable wraps a backend failure so callers can match it with
// errors.Is(err, model.ErrStorageUnavailable).
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err)
}
