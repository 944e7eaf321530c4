package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

//go:embed schema.sql
var schema string

// ledgerLockKey is the advisory lock that serialises ledger writes
// across every process sharing the database.
const ledgerLockKey = 0x706f6e67

const uniqueViolation = "23505"

// Storage is a Postgres-backed implementation of the storage interface
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and creates the schema if it is missing
func New(cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable(err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, storage.Unavailable(fmt.Errorf("failed to apply schema: %w", err))
	}

	return &Storage{pool: pool}, nil
}

// Close closes the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	q := `INSERT INTO users (username, password_hash, rating, created_at, updated_at)
	      VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		user.Username, user.PasswordHash, user.Rating, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrDuplicateUsername
		}
		return storage.Unavailable(err)
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (*model.User, error) {
	q := `SELECT username, password_hash, rating, created_at, updated_at
	      FROM users WHERE username = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, q, username))
	if err != nil {
		return nil, classify(err)
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	q := `SELECT username, password_hash, rating, created_at, updated_at
	      FROM users ORDER BY username COLLATE "C"`

	rows, err := s.pool.Query(ctx, q)
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return storage.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUnknownPlayer
	}
	return nil
}

// Match operations

const matchColumns = `sequence, id, player_a, player_b, result, rating_a, rating_b, played_at`

func (s *Storage) ListMatches(ctx context.Context) ([]*model.Match, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY sequence`)
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
	match, err := lastMatch(ctx, s.pool)
	if err != nil {
		return nil, classify(err)
	}
	return match, nil
}

func (s *Storage) CommitMatch(ctx context.Context, match *model.Match, updates []storage.RatingUpdate) error {
	var seq int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return err
		}
		if err := applyUpdates(ctx, tx, updates, match.PlayedAt); err != nil {
			return err
		}

		q := `INSERT INTO matches (id, player_a, player_b, result, rating_a, rating_b, played_at)
		      VALUES ($1, $2, $3, $4, $5, $6, $7)
		      RETURNING sequence`
		return tx.QueryRow(ctx, q,
			string(match.ID), match.PlayerA, match.PlayerB, string(match.Result),
			match.RatingA, match.RatingB, match.PlayedAt,
		).Scan(&seq)
	})
	if err != nil {
		return classify(fmt.Errorf("failed to commit match: %w", err))
	}
	match.Sequence = seq
	return nil
}

func (s *Storage) RemoveLastMatch(ctx context.Context, matchID model.MatchID, updates []storage.RatingUpdate) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return err
		}
		last, err := lastMatch(ctx, tx)
		if err != nil {
			return err
		}
		if last.ID != matchID {
			return model.ErrWriteConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM matches WHERE sequence = $1`, last.Sequence); err != nil {
			return err
		}
		return applyUpdates(ctx, tx, updates, last.PlayedAt)
	})
	if err != nil {
		return classify(fmt.Errorf("failed to remove last match: %w", err))
	}
	return nil
}

// applyUpdates locks each user row and applies the update if its rating is unchanged
func applyUpdates(ctx context.Context, tx pgx.Tx, updates []storage.RatingUpdate, at time.Time) error {
	for _, u := range updates {
		var current int
		err := tx.QueryRow(ctx,
			`SELECT rating FROM users WHERE username = $1 FOR UPDATE`, u.Username,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrUnknownPlayer
		}
		if err != nil {
			return err
		}
		if current != u.From {
			return model.ErrWriteConflict
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET rating = $2, updated_at = $3 WHERE username = $1`,
			u.Username, u.To, at,
		); err != nil {
			return err
		}
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lastMatch(ctx context.Context, q querier) (*model.Match, error) {
	match, err := scanMatch(q.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY sequence DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrEmptyLedger
	}
	return match, err
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.Username, &u.PasswordHash, &u.Rating, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanMatch(row pgx.Row) (*model.Match, error) {
	var (
		m      model.Match
		id     string
		result string
	)
	if err := row.Scan(&m.Sequence, &id, &m.PlayerA, &m.PlayerB, &result, &m.RatingA, &m.RatingB, &m.PlayedAt); err != nil {
		return nil, err
	}
	m.ID = model.MatchID(id)
	m.Result = model.Result(result)
	return &m, nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.ErrUnknownPlayer
	case errors.Is(err, model.ErrUnknownPlayer),
		errors.Is(err, model.ErrEmptyLedger),
		errors.Is(err, model.ErrWriteConflict):
		return err
	}
	return storage.Unavailable(err)
}
