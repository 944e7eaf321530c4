// Package legacy imports the two JSON documents kept by the older
// single-file ladder: a list of users with unsalted sha256 password digests
// and a list of matches with per-side scores and post-match ratings.
//
// Imported accounts keep their sha256 digest; the auth service upgrades it
// to bcrypt on the first successful login.
package legacy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/pongladder/internal/dependencies/clock"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

var (
	// ErrLedgerNotEmpty is returned when the target storage already holds users or matches
	ErrLedgerNotEmpty = errors.New("ledger is not empty")
	// ErrInvalidRecord is returned for a document entry that cannot be imported
	ErrInvalidRecord = errors.New("invalid legacy record")
)

// digestLen is the length of a sha256 hex digest
const digestLen = 64

// isoLayout matches Python's datetime.isoformat() for naive values, with or
// without microseconds.
const isoLayout = "2006-01-02T15:04:05.999999999"

type userRecord struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Elo      float64 `json:"elo"`
}

type matchRecord struct {
	Player1  string  `json:"player1"`
	Player2  string  `json:"player2"`
	Score1   float64 `json:"score1"`
	Score2   float64 `json:"score2"`
	NewElo1  float64 `json:"new_elo1"`
	NewElo2  float64 `json:"new_elo2"`
	Datetime string  `json:"datetime"`
}

// Config holds configuration for the importer
type Config struct {
	// Location is the zone naive datetimes were recorded in. Nil means UTC.
	Location *time.Location
}

// Summary reports what an import wrote
type Summary struct {
	Users   int
	Matches int
}

// Importer loads legacy documents into an empty ledger
type Importer struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	loc     *time.Location
}

// New creates a new Importer
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger, cfg Config) *Importer {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{
		storage: storage,
		clock:   clock,
		logger:  logger,
		loc:     loc,
	}
}

// Import decodes both documents, checks them against each other and writes
// users then matches in document order. matches may be nil when there is no
// match history. Every check runs before the first write, so an invalid
// document leaves storage untouched.
//
// Stored ratings are taken from the users document and match ratings from
// new_elo1/new_elo2 as recorded; the ledger's verify operation reports any
// account whose stored rating disagrees with a replay.
func (i *Importer) Import(ctx context.Context, users, matches io.Reader) (*Summary, error) {
	var userRecs []userRecord
	if err := json.NewDecoder(users).Decode(&userRecs); err != nil {
		return nil, fmt.Errorf("%w: decode users: %w", ErrInvalidRecord, err)
	}
	var matchRecs []matchRecord
	if matches != nil {
		if err := json.NewDecoder(matches).Decode(&matchRecs); err != nil {
			return nil, fmt.Errorf("%w: decode matches: %w", ErrInvalidRecord, err)
		}
	}

	now := i.clock.Now()
	newUsers, err := i.convertUsers(userRecs, now)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(newUsers))
	for _, u := range newUsers {
		known[u.Username] = true
	}
	newMatches, err := i.convertMatches(matchRecs, known)
	if err != nil {
		return nil, err
	}

	if err := i.checkEmpty(ctx); err != nil {
		return nil, err
	}

	for _, u := range newUsers {
		if err := i.storage.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("create user %q: %w", u.Username, err)
		}
	}
	for n, m := range newMatches {
		// Ratings come from the users document, so matches carry no updates
		if err := i.storage.CommitMatch(ctx, m, nil); err != nil {
			return nil, fmt.Errorf("commit match %d: %w", n+1, err)
		}
	}

	i.logger.Info("legacy ledger imported",
		slog.Int("users", len(newUsers)),
		slog.Int("matches", len(newMatches)),
	)
	return &Summary{Users: len(newUsers), Matches: len(newMatches)}, nil
}

func (i *Importer) convertUsers(recs []userRecord, now time.Time) ([]*model.User, error) {
	seen := make(map[string]bool, len(recs))
	out := make([]*model.User, 0, len(recs))
	for n, rec := range recs {
		if strings.TrimSpace(rec.Username) == "" {
			return nil, fmt.Errorf("user %d: %w", n+1, model.ErrInvalidUsername)
		}
		if seen[rec.Username] {
			return nil, fmt.Errorf("user %q: %w", rec.Username, model.ErrDuplicateUsername)
		}
		seen[rec.Username] = true

		if !isDigest(rec.Password) {
			return nil, fmt.Errorf("%w: user %q: password is not a sha256 hex digest", ErrInvalidRecord, rec.Username)
		}
		rating, err := toRating(rec.Elo)
		if err != nil {
			return nil, fmt.Errorf("%w: user %q: %w", ErrInvalidRecord, rec.Username, err)
		}

		out = append(out, &model.User{
			Username:     rec.Username,
			PasswordHash: strings.ToLower(rec.Password),
			Rating:       rating,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out, nil
}

func (i *Importer) convertMatches(recs []matchRecord, known map[string]bool) ([]*model.Match, error) {
	out := make([]*model.Match, 0, len(recs))
	var last time.Time
	for n, rec := range recs {
		pos := n + 1
		for _, p := range []string{rec.Player1, rec.Player2} {
			if !known[p] {
				return nil, fmt.Errorf("match %d: %w: %q", pos, model.ErrUnknownPlayer, p)
			}
		}
		if rec.Player1 == rec.Player2 {
			return nil, fmt.Errorf("match %d: %w", pos, model.ErrSamePlayer)
		}

		playedAt, err := i.parseTime(rec.Datetime)
		if err != nil {
			return nil, fmt.Errorf("%w: match %d: %w", ErrInvalidRecord, pos, err)
		}
		// Append order is authoritative; keep timestamps from going backwards
		if playedAt.Before(last) {
			playedAt = last
		}
		last = playedAt

		ratingA, err := toRating(rec.NewElo1)
		if err != nil {
			return nil, fmt.Errorf("%w: match %d: %w", ErrInvalidRecord, pos, err)
		}
		ratingB, err := toRating(rec.NewElo2)
		if err != nil {
			return nil, fmt.Errorf("%w: match %d: %w", ErrInvalidRecord, pos, err)
		}

		out = append(out, &model.Match{
			ID:       model.MatchID(uuid.NewString()),
			PlayerA:  rec.Player1,
			PlayerB:  rec.Player2,
			Result:   resultFromScores(rec.Score1, rec.Score2),
			RatingA:  ratingA,
			RatingB:  ratingB,
			PlayedAt: playedAt,
		})
	}
	return out, nil
}

func (i *Importer) checkEmpty(ctx context.Context) error {
	existing, err := i.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %d user(s) registered", ErrLedgerNotEmpty, len(existing))
	}
	_, err = i.storage.LastMatch(ctx)
	switch {
	case err == nil:
		return fmt.Errorf("%w: matches recorded", ErrLedgerNotEmpty)
	case errors.Is(err, model.ErrEmptyLedger):
		return nil
	}
	return err
}

// parseTime accepts naive isoformat values in the importer's zone and
// RFC 3339 values with an explicit offset.
func (i *Importer) parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(isoLayout, s, i.loc); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
	}
	return t.UTC(), nil
}

func resultFromScores(score1, score2 float64) model.Result {
	switch {
	case score1 > score2:
		return model.ResultAWin
	case score1 < score2:
		return model.ResultBWin
	default:
		return model.ResultDraw
	}
}

// maxRating bounds imported ratings well inside int range
const maxRating = 1e6

// toRating rounds half to even, the same way new ratings are rounded
func toRating(elo float64) (int, error) {
	if math.Abs(elo) > maxRating {
		return 0, fmt.Errorf("rating %v out of range", elo)
	}
	return int(math.RoundToEven(elo)), nil
}

func isDigest(s string) bool {
	if len(s) != digestLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
