package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Users live in one HASH and matches in one LIST; every write runs as a
// WATCH/MULTI transaction over both keys. A separate counter holds the last
// sequence handed out so removed positions are never reused.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Unavailable(err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, usersKey(s.cfg.KeyPrefix), user.Username, data).Result()
	if err != nil {
		return storage.Unavailable(err)
	}
	if !created {
		return model.ErrDuplicateUsername
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (*model.User, error) {
	return getUser(ctx, s.client, s.cfg.KeyPrefix, username)
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	raw, err := s.client.HGetAll(ctx, usersKey(s.cfg.KeyPrefix)).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	users := make([]*model.User, 0, len(raw))
	for username, data := range raw {
		var user model.User
		if err := json.Unmarshal([]byte(data), &user); err != nil {
			return nil, storage.Unavailable(fmt.Errorf("decode user %q: %w", username, err))
		}
		users = append(users, &user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	key := usersKey(s.cfg.KeyPrefix)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		user, err := getUser(ctx, tx, s.cfg.KeyPrefix, username)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, username, data)
			return nil
		})
		return err
	}, key)
	return classify(err)
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]*model.Match, error) {
	raw, err := s.client.LRange(ctx, matchesKey(s.cfg.KeyPrefix), 0, -1).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	matches := make([]*model.Match, 0, len(raw))
	for i, data := range raw {
		var match model.Match
		if err := json.Unmarshal([]byte(data), &match); err != nil {
			return nil, storage.Unavailable(fmt.Errorf("decode match %d: %w", i, err))
		}
		matches = append(matches, &match)
	}
	return matches, nil
}

func (s *Storage) LastMatch(ctx context.Context) (*model.Match, error) {
	return lastMatch(ctx, s.client, s.cfg.KeyPrefix)
}

func (s *Storage) CommitMatch(ctx context.Context, match *model.Match, updates []storage.RatingUpdate) error {
	usersK, matchesK := usersKey(s.cfg.KeyPrefix), matchesKey(s.cfg.KeyPrefix)
	seqK := sequenceKey(s.cfg.KeyPrefix)

	var seq int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		users, err := s.checkUpdates(ctx, tx, updates, match.PlayedAt)
		if err != nil {
			return err
		}

		seq, err = nextSequence(ctx, tx, s.cfg.KeyPrefix)
		if err != nil {
			return err
		}

		record := *match
		record.Sequence = seq
		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for username, userData := range users {
				pipe.HSet(ctx, usersK, username, userData)
			}
			pipe.RPush(ctx, matchesK, data)
			pipe.Set(ctx, seqK, seq, 0)
			return nil
		})
		return err
	}, usersK, matchesK, seqK)
	if err != nil {
		return classify(err)
	}

	match.Sequence = seq
	return nil
}

func (s *Storage) RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []storage.RatingUpdate) error {
	usersK, matchesK := usersKey(s.cfg.KeyPrefix), matchesKey(s.cfg.KeyPrefix)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		last, err := lastMatch(ctx, tx, s.cfg.KeyPrefix)
		if err != nil {
			return err
		}
		if last.ID != matchID {
			return model.ErrWriteConflict
		}
		users, err := s.checkUpdates(ctx, tx, updates, last.PlayedAt)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for username, userData := range users {
				pipe.HSet(ctx, usersK, username, userData)
			}
			pipe.RPop(ctx, matchesK)
			return nil
		})
		return err
	}, usersK, matchesK)
	return classify(err)
}

// checkUpdates reads every updated user inside the watch and returns their
// new encoded records keyed by username.
func (s *Storage) checkUpdates(ctx context.Context, tx *redis.Tx, updates []storage.RatingUpdate, at time.Time) (map[string][]byte, error) {
	users := make(map[string][]byte, len(updates))
	for _, u := range updates {
		user, err := getUser(ctx, tx, s.cfg.KeyPrefix, u.Username)
		if err != nil {
			return nil, err
		}
		if user.Rating != u.From {
			return nil, model.ErrWriteConflict
		}
		user.Rating = u.To
		user.UpdatedAt = at
		data, err := json.Marshal(user)
		if err != nil {
			return nil, err
		}
		users[u.Username] = data
	}
	return users, nil
}

// reader is the subset of commands shared by *redis.Client and *redis.Tx
type reader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	LIndex(ctx context.Context, key string, index int64) *redis.StringCmd
}

func getUser(ctx context.Context, c reader, prefix, username string) (*model.User, error) {
	data, err := c.HGet(ctx, usersKey(prefix), username).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUnknownPlayer
		}
		return nil, storage.Unavailable(err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, storage.Unavailable(fmt.Errorf("decode user %q: %w", username, err))
	}
	return &user, nil
}

func lastMatch(ctx context.Context, c reader, prefix string) (*model.Match, error) {
	data, err := c.LIndex(ctx, matchesKey(prefix), -1).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrEmptyLedger
		}
		return nil, storage.Unavailable(err)
	}

	var match model.Match
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, storage.Unavailable(fmt.Errorf("decode last match: %w", err))
	}
	return &match, nil
}

// nextSequence returns one past the larger of the stored counter and the
// tail's sequence. The tail covers lists written before the counter existed.
func nextSequence(ctx context.Context, tx *redis.Tx, prefix string) (int64, error) {
	counter, err := tx.Get(ctx, sequenceKey(prefix)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, storage.Unavailable(err)
	}

	last, err := lastMatch(ctx, tx, prefix)
	switch {
	case err == nil:
		counter = max(counter, last.Sequence)
	case !errors.Is(err, model.ErrEmptyLedger):
		return 0, err
	}
	return counter + 1, nil
}

// classify maps an error returned from a WATCH transaction
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return model.ErrWriteConflict
	case errors.Is(err, model.ErrUnknownPlayer),
		errors.Is(err, model.ErrEmptyLedger),
		errors.Is(err, model.ErrWriteConflict),
		errors.Is(err, model.ErrStorageUnavailable):
		return err
	}
	return storage.Unavailable(err)
}
