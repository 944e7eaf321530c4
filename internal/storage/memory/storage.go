package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Values are copied in and out so callers never share state with it.
type Storage struct {
	mu sync.RWMutex

	users   map[string]*model.User
	matches []*model.Match
	lastSeq int64
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users: make(map[string]*model.User),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close is a no-op for in-memory storage
func (s *Storage) Close() error {
	return nil
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return model.ErrDuplicateUsername
	}
	u := *user
	s.users[user.Username] = &u
	return nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, model.ErrUnknownPlayer
	}
	u := *user
	return &u, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*model.User, 0, len(s.users))
	for _, user := range s.users {
		u := *user
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return model.ErrUnknownPlayer
	}
	user.PasswordHash = hash
	return nil
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]*model.Match, len(s.matches))
	for i, match := range s.matches {
		m := *match
		matches[i] = &m
	}
	return matches, nil
}

func (s *Storage) LastMatch(ctx context.Context) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.matches) == 0 {
		return nil, model.ErrEmptyLedger
	}
	m := *s.matches[len(s.matches)-1]
	return &m, nil
}

func (s *Storage) CommitMatch(ctx context.Context, match *model.Match, updates []storage.RatingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUpdates(updates); err != nil {
		return err
	}
	s.applyUpdates(updates, match.PlayedAt)

	s.lastSeq++
	match.Sequence = s.lastSeq
	m := *match
	s.matches = append(s.matches, &m)
	return nil
}

func (s *Storage) RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []storage.RatingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.matches) == 0 {
		return model.ErrEmptyLedger
	}
	last := s.matches[len(s.matches)-1]
	if last.ID != matchID {
		return model.ErrWriteConflict
	}
	if err := s.checkUpdates(updates); err != nil {
		return err
	}
	s.applyUpdates(updates, last.PlayedAt)
	s.matches = s.matches[:len(s.matches)-1]
	return nil
}

// checkUpdates must be called with the write lock held
func (s *Storage) checkUpdates(updates []storage.RatingUpdate) error {
	for _, u := range updates {
		user, ok := s.users[u.Username]
		if !ok {
			return model.ErrUnknownPlayer
		}
		if user.Rating != u.From {
			return model.ErrWriteConflict
		}
	}
	return nil
}

// applyUpdates must be called with the write lock held
func (s *Storage) applyUpdates(updates []storage.RatingUpdate, at time.Time) {
	for _, u := range updates {
		user := s.users[u.Username]
		user.Rating = u.To
		user.UpdatedAt = at
	}
}
