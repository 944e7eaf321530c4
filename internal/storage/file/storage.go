// Package file stores the whole ledger as one JSON document on disk.
// Every write replaces the document atomically, under an exclusive file
// lock, so several processes can share the same file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

// Config holds file storage settings
type Config struct {
	// Path is the ledger document; its lock file is Path + ".lock"
	Path string
}

// DefaultConfig returns the default file storage configuration
func DefaultConfig() Config {
	return Config{Path: "data/ledger.json"}
}

// Storage is a JSON-file implementation of the storage interface
type Storage struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

type document struct {
	Users   []userRecord  `json:"users"`
	Matches []matchRecord `json:"matches"`

	// LastSequence is the highest sequence ever issued, including removed matches
	LastSequence int64 `json:"last_sequence"`
}

type userRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type matchRecord struct {
	ID       string    `json:"id"`
	Sequence int64     `json:"sequence"`
	PlayerA  string    `json:"player_a"`
	PlayerB  string    `json:"player_b"`
	Result   string    `json:"result"`
	RatingA  int       `json:"rating_a"`
	RatingB  int       `json:"rating_b"`
	PlayedAt time.Time `json:"played_at"`
}

// New opens (or prepares to create) the ledger document at cfg.Path
func New(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("file storage: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, storage.Unavailable(err)
	}

	s := &Storage{
		path: cfg.Path,
		lock: flock.New(cfg.Path + ".lock"),
	}

	// Fail fast on an unreadable or corrupt document
	if err := s.read(context.Background(), func(*document) error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the file lock handle
func (s *Storage) Close() error {
	return s.lock.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	return s.write(ctx, func(doc *document) error {
		if doc.findUser(user.Username) >= 0 {
			return model.ErrDuplicateUsername
		}
		doc.Users = append(doc.Users, toUserRecord(user))
		return nil
	})
}

func (s *Storage) GetUser(ctx context.Context, username string) (*model.User, error) {
	var user *model.User
	err := s.read(ctx, func(doc *document) error {
		i := doc.findUser(username)
		if i < 0 {
			return model.ErrUnknownPlayer
		}
		user = doc.Users[i].toModel()
		return nil
	})
	return user, err
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := s.read(ctx, func(doc *document) error {
		users = make([]*model.User, 0, len(doc.Users))
		for _, r := range doc.Users {
			users = append(users, r.toModel())
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, err
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	return s.write(ctx, func(doc *document) error {
		i := doc.findUser(username)
		if i < 0 {
			return model.ErrUnknownPlayer
		}
		doc.Users[i].PasswordHash = hash
		return nil
	})
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]*model.Match, error) {
	var matches []*model.Match
	err := s.read(ctx, func(doc *document) error {
		matches = make([]*model.Match, 0, len(doc.Matches))
		for _, r := range doc.Matches {
			matches = append(matches, r.toModel())
		}
		return nil
	})
	return matches, err
}

func (s *Storage) LastMatch(ctx context.Context) (*model.Match, error) {
	var match *model.Match
	err := s.read(ctx, func(doc *document) error {
		if len(doc.Matches) == 0 {
			return model.ErrEmptyLedger
		}
		match = doc.Matches[len(doc.Matches)-1].toModel()
		return nil
	})
	return match, err
}

func (s *Storage) CommitMatch(ctx context.Context, match *model.Match, updates []storage.RatingUpdate) error {
	var seq int64
	err := s.write(ctx, func(doc *document) error {
		if err := doc.applyUpdates(updates, match.PlayedAt); err != nil {
			return err
		}
		seq = doc.LastSequence
		if n := len(doc.Matches); n > 0 {
			seq = max(seq, doc.Matches[n-1].Sequence)
		}
		seq++
		record := toMatchRecord(match)
		record.Sequence = seq
		doc.Matches = append(doc.Matches, record)
		doc.LastSequence = seq
		return nil
	})
	if err != nil {
		return err
	}
	match.Sequence = seq
	return nil
}

func (s *Storage) RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []storage.RatingUpdate) error {
	return s.write(ctx, func(doc *document) error {
		n := len(doc.Matches)
		if n == 0 {
			return model.ErrEmptyLedger
		}
		last := doc.Matches[n-1]
		if last.ID != string(matchID) {
			return model.ErrWriteConflict
		}
		if err := doc.applyUpdates(updates, last.PlayedAt); err != nil {
			return err
		}
		doc.Matches = doc.Matches[:n-1]
		return nil
	})
}

// read loads the document under a shared lock
func (s *Storage) read(ctx context.Context, fn func(*document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return storage.Unavailable(err)
	}
	defer func() { _ = s.lock.Unlock() }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// write loads, mutates and atomically replaces the document under an
// exclusive lock. Nothing is written if fn fails.
func (s *Storage) write(ctx context.Context, fn func(*document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return storage.Unavailable(err)
	}
	defer func() { _ = s.lock.Unlock() }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

func (s *Storage) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storage.Unavailable(fmt.Errorf("decode %s: %w", s.path, err))
	}
	return &doc, nil
}

func (d *document) findUser(username string) int {
	for i, u := range d.Users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

// applyUpdates checks every update before applying any of them
func (d *document) applyUpdates(updates []storage.RatingUpdate, at time.Time) error {
	idx := make([]int, len(updates))
	for n, u := range updates {
		i := d.findUser(u.Username)
		if i < 0 {
			return model.ErrUnknownPlayer
		}
		if d.Users[i].Rating != u.From {
			return model.ErrWriteConflict
		}
		idx[n] = i
	}
	for n, u := range updates {
		d.Users[idx[n]].Rating = u.To
		d.Users[idx[n]].UpdatedAt = at
	}
	return nil
}

func toUserRecord(u *model.User) userRecord {
	return userRecord{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Rating:       u.Rating,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toModel() *model.User {
	return &model.User{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Rating:       r.Rating,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toMatchRecord(m *model.Match) matchRecord {
	return matchRecord{
		ID:       string(m.ID),
		Sequence: m.Sequence,
		PlayerA:  m.PlayerA,
		PlayerB:  m.PlayerB,
		Result:   string(m.Result),
		RatingA:  m.RatingA,
		RatingB:  m.RatingB,
		PlayedAt: m.PlayedAt,
	}
}

func (r matchRecord) toModel() *model.Match {
	return &model.Match{
		ID:       model.MatchID(r.ID),
		Sequence: r.Sequence,
		PlayerA:  r.PlayerA,
		PlayerB:  r.PlayerB,
		Result:   model.Result(r.Result),
		RatingA:  r.RatingA,
		RatingB:  r.RatingB,
		PlayedAt: r.PlayedAt,
	}
}
