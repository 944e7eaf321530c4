// Package ledger owns the match history and the current rating of every
// user. It records matches through the rating engine and derives the
// ranking, per-user statistics and rating history from the stored ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/pongladder/internal/dependencies/clock"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/services/rating"
	"github.com/mcoot/pongladder/internal/storage"
)

const defaultRecentLimit = 20

// Config holds configuration for the ledger service
type Config struct {
	// HistoryLimit is the number of points RatingHistory returns when no limit is given
	HistoryLimit int
}

// DefaultConfig returns default ledger configuration
func DefaultConfig() Config {
	return Config{
		HistoryLimit: 10,
	}
}

// Service records matches and answers ranking and statistics queries
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	// mu serialises read-compute-write within this process; storage
	// compare-and-swap catches writers in other processes.
	mu sync.Mutex
}

// New creates a new ledger Service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}
}

// RecordMatch applies the rating update for a finished match and appends it
// to the ledger. Both ratings and the match record are written together.
func (s *Service) RecordMatch(ctx context.Context, playerA, playerB string, result model.Result) (*model.Match, error) {
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidResult, result)
	}
	if playerA == playerB {
		return nil, model.ErrSamePlayer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userA, err := s.getPlayer(ctx, playerA)
	if err != nil {
		return nil, err
	}
	userB, err := s.getPlayer(ctx, playerB)
	if err != nil {
		return nil, err
	}

	newA, newB, err := rating.Update(userA.Rating, userB.Rating, result)
	if err != nil {
		return nil, err
	}

	playedAt, err := s.nextTimestamp(ctx)
	if err != nil {
		return nil, err
	}

	match := &model.Match{
		ID:       model.MatchID(uuid.NewString()),
		PlayerA:  playerA,
		PlayerB:  playerB,
		Result:   result,
		RatingA:  newA,
		RatingB:  newB,
		PlayedAt: playedAt,
	}
	updates := []storage.RatingUpdate{
		{Username: playerA, From: userA.Rating, To: newA},
		{Username: playerB, From: userB.Rating, To: newB},
	}

	if err := s.storage.CommitMatch(ctx, match, updates); err != nil {
		s.logWriteFailure("failed to record match", err,
			slog.String("player_a", playerA),
			slog.String("player_b", playerB),
		)
		return nil, err
	}

	s.logger.Info("match recorded",
		slog.String("match_id", string(match.ID)),
		slog.Int64("sequence", match.Sequence),
		slog.String("player_a", playerA),
		slog.String("player_b", playerB),
		slog.String("result", string(result)),
		slog.Int("rating_a", newA),
		slog.Int("rating_b", newB),
	)
	return match, nil
}

// RecordWin records a match with a single named winner, who must be one of the two players
func (s *Service) RecordWin(ctx context.Context, playerA, playerB, winner string) (*model.Match, error) {
	var result model.Result
	switch winner {
	case playerA:
		result = model.ResultAWin
	case playerB:
		result = model.ResultBWin
	default:
		return nil, fmt.Errorf("%w: winner %q did not play", model.ErrInvalidResult, winner)
	}
	return s.RecordMatch(ctx, playerA, playerB, result)
}

// DeleteLastMatch removes the most recent match and restores both players'
// ratings to the values the remaining ledger gives them.
func (s *Service) DeleteLastMatch(ctx context.Context) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.storage.ListMatches(ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, model.ErrEmptyLedger
	}
	last := matches[len(matches)-1]
	remaining := matches[:len(matches)-1]

	var updates []storage.RatingUpdate
	for _, username := range []string{last.PlayerA, last.PlayerB} {
		user, err := s.storage.GetUser(ctx, username)
		if err != nil {
			return nil, err
		}
		restored := ratingBefore(remaining, username)
		if restored != user.Rating {
			updates = append(updates, storage.RatingUpdate{Username: username, From: user.Rating, To: restored})
		}
	}

	if err := s.storage.RemoveLastMatch(ctx, last.ID, updates); err != nil {
		s.logWriteFailure("failed to delete last match", err,
			slog.String("match_id", string(last.ID)),
		)
		return nil, err
	}

	s.logger.Info("match deleted",
		slog.String("match_id", string(last.ID)),
		slog.String("player_a", last.PlayerA),
		slog.String("player_b", last.PlayerB),
		slog.Int("ratings_restored", len(updates)),
	)
	return last, nil
}

// Ranking returns every user ordered by rating, highest first, with ties
// broken by username.
func (s *Service) Ranking(ctx context.Context) ([]model.RankingEntry, error) {
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Rating != users[j].Rating {
			return users[i].Rating > users[j].Rating
		}
		return users[i].Username < users[j].Username
	})

	entries := make([]model.RankingEntry, len(users))
	for i, u := range users {
		entries[i] = model.RankingEntry{
			Position: i + 1,
			Username: u.Username,
			Rating:   u.Rating,
		}
	}
	return entries, nil
}

// UserStats summarises the user's match record. A win needs a strictly
// greater score, so draws count toward neither wins nor losses.
func (s *Service) UserStats(ctx context.Context, username string) (*model.UserStats, error) {
	if _, err := s.getPlayer(ctx, username); err != nil {
		return nil, err
	}
	matches, err := s.storage.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.UserStats{Username: username}
	for _, m := range matches {
		if !m.Involves(username) {
			continue
		}
		stats.TotalMatches++

		own, other := m.Scores()
		if m.PlayerB == username {
			own, other = other, own
		}
		switch {
		case own > other:
			stats.Wins++
		case own < other:
			stats.Losses++
		default:
			stats.Draws++
		}
	}

	if stats.TotalMatches > 0 {
		stats.WinRate = 100 * float64(stats.Wins) / float64(stats.TotalMatches)
	}
	stats.LossRate = 100 - stats.WinRate
	return stats, nil
}

// RatingHistory returns the user's rating after each of their most recent
// matches, oldest first. A limit of zero or less uses the configured default.
func (s *Service) RatingHistory(ctx context.Context, username string, limit int) ([]model.RatingPoint, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if _, err := s.getPlayer(ctx, username); err != nil {
		return nil, err
	}
	matches, err := s.storage.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	points := []model.RatingPoint{}
	for _, m := range matches {
		r, ok := m.RatingFor(username)
		if !ok {
			continue
		}
		points = append(points, model.RatingPoint{
			MatchID:  m.ID,
			Rating:   r,
			PlayedAt: m.PlayedAt,
		})
	}
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// RecentMatches returns up to limit matches, newest first
func (s *Service) RecentMatches(ctx context.Context, limit int) ([]*model.Match, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	matches, err := s.storage.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	n := min(limit, len(matches))
	recent := make([]*model.Match, 0, n)
	for i := len(matches) - 1; i >= len(matches)-n; i-- {
		recent = append(recent, matches[i])
	}
	return recent, nil
}

// Verify replays the whole ledger through the rating engine from the
// initial rating and reports every stored rating that disagrees with it.
// Users registered with a non-initial rating, such as imported accounts,
// show up here too.
func (s *Service) Verify(ctx context.Context) ([]model.RatingDrift, error) {
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.storage.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	replayed := make(map[string]int, len(users))
	for _, u := range users {
		replayed[u.Username] = model.InitialRating
	}
	for _, m := range matches {
		newA, newB, err := rating.Update(replayed[m.PlayerA], replayed[m.PlayerB], m.Result)
		if err != nil {
			return nil, fmt.Errorf("replay match %s: %w", m.ID, err)
		}
		replayed[m.PlayerA], replayed[m.PlayerB] = newA, newB
	}

	drifts := []model.RatingDrift{}
	for _, u := range users {
		if replayed[u.Username] != u.Rating {
			drifts = append(drifts, model.RatingDrift{
				Username: u.Username,
				Stored:   u.Rating,
				Replayed: replayed[u.Username],
			})
		}
	}
	return drifts, nil
}

// User returns a single user with their current rating
func (s *Service) User(ctx context.Context, username string) (*model.User, error) {
	return s.getPlayer(ctx, username)
}

func (s *Service) getPlayer(ctx context.Context, username string) (*model.User, error) {
	user, err := s.storage.GetUser(ctx, username)
	if errors.Is(err, model.ErrUnknownPlayer) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPlayer, username)
	}
	return user, err
}

// nextTimestamp never goes backwards relative to the ledger tail, so
// append order and timestamp order always agree.
func (s *Service) nextTimestamp(ctx context.Context) (time.Time, error) {
	now := s.clock.Now()
	last, err := s.storage.LastMatch(ctx)
	if errors.Is(err, model.ErrEmptyLedger) {
		return now, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if now.Before(last.PlayedAt) {
		return last.PlayedAt, nil
	}
	return now, nil
}

func (s *Service) logWriteFailure(msg string, err error, attrs ...any) {
	level := slog.LevelError
	if errors.Is(err, model.ErrWriteConflict) {
		level = slog.LevelWarn
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.Log(context.Background(), level, msg, attrs...)
}

// ratingBefore returns the rating username held at the end of matches:
// their post-match rating from the last match they played, or the
// initial rating if they played none.
func ratingBefore(matches []*model.Match, username string) int {
	for i := len(matches) - 1; i >= 0; i-- {
		if r, ok := matches[i].RatingFor(username); ok {
			return r
		}
	}
	return model.InitialRating
}
