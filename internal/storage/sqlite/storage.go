// Package sqlite stores the ledger in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

//go:embed schema.sql
var schema string

// Config holds SQLite settings
type Config struct {
	// Path is the database file
	Path string

	// BusyTimeout is how long a writer waits for another process's lock
	BusyTimeout time.Duration
}

// DefaultConfig returns the default SQLite configuration
func DefaultConfig() Config {
	return Config{
		Path:        "data/pongladder.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Storage is a SQLite implementation of the storage interface
type Storage struct {
	db *sql.DB
}

// New opens the database file and creates the schema if it is missing
func New(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite storage: path is required")
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	// One connection keeps in-process writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable(fmt.Errorf("failed to apply schema: %w", err))
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (username) DO NOTHING`,
		user.Username, user.PasswordHash, user.Rating,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if err != nil {
		return storage.Unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable(err)
	}
	if n == 0 {
		return model.ErrDuplicateUsername
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, rating, created_at, updated_at
		FROM users WHERE username = ?`, username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUnknownPlayer
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, rating, created_at, updated_at
		FROM users ORDER BY username`)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storage.Unavailable(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(err)
	}
	return users, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE username = ?`, hash, username)
	if err != nil {
		return storage.Unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable(err)
	}
	if n == 0 {
		return model.ErrUnknownPlayer
	}
	return nil
}

// Match operations

const matchColumns = `sequence, id, player_a, player_b, result, rating_a, rating_b, played_at`

func (s *Storage) ListMatches(ctx context.Context) ([]*model.Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY sequence`)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer rows.Close()

	matches := []*model.Match{}
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, storage.Unavailable(err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(err)
	}
	return matches, nil
}

func (s *Storage) LastMatch(ctx context.Context) (*model.Match, error) {
	return lastMatch(ctx, s.db)
}

func (s *Storage) CommitMatch(ctx context.Context, match *model.Match, updates []storage.RatingUpdate) error {
	var seq int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := applyUpdates(ctx, tx, updates, match.PlayedAt); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO matches (id, player_a, player_b, result, rating_a, rating_b, played_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(match.ID), match.PlayerA, match.PlayerB, string(match.Result),
			match.RatingA, match.RatingB, formatTime(match.PlayedAt),
		)
		if err != nil {
			return err
		}
		seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}
	match.Sequence = seq
	return nil
}

func (s *Storage) RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []storage.RatingUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		last, err := lastMatch(ctx, tx)
		if err != nil {
			return err
		}
		if last.ID != matchID {
			return model.ErrWriteConflict
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE sequence = ?`, last.Sequence); err != nil {
			return err
		}
		return applyUpdates(ctx, tx, updates, last.PlayedAt)
	})
}

// inTx runs fn in a transaction, rolling back if it fails
func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

func applyUpdates(ctx context.Context, tx *sql.Tx, updates []storage.RatingUpdate, at time.Time) error {
	for _, u := range updates {
		var current int
		err := tx.QueryRowContext(ctx, `SELECT rating FROM users WHERE username = ?`, u.Username).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrUnknownPlayer
		}
		if err != nil {
			return err
		}
		if current != u.From {
			return model.ErrWriteConflict
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET rating = ?, updated_at = ? WHERE username = ?`,
			u.To, formatTime(at), u.Username,
		); err != nil {
			return err
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastMatch(ctx context.Context, q querier) (*model.Match, error) {
	match, err := scanMatch(q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY sequence DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEmptyLedger
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return match, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u                    model.User
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.Username, &u.PasswordHash, &u.Rating, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanMatch(row scanner) (*model.Match, error) {
	var (
		m                    model.Match
		id, result, playedAt string
	)
	if err := row.Scan(&m.Sequence, &id, &m.PlayerA, &m.PlayerB, &result, &m.RatingA, &m.RatingB, &playedAt); err != nil {
		return nil, err
	}
	var err error
	if m.PlayedAt, err = parseTime(playedAt); err != nil {
		return nil, err
	}
	m.ID = model.MatchID(id)
	m.Result = model.Result(result)
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func classify(err error) error {
	switch {
	case errors.Is(err, model.ErrUnknownPlayer),
		errors.Is(err, model.ErrEmptyLedger),
		errors.Is(err, model.ErrWriteConflict),
		errors.Is(err, model.ErrStorageUnavailable):
		return err
	}
	return storage.Unavailable(err)
}
