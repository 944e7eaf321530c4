package response

import (
	"time"

	"github.com/mcoot/pongladder/internal/model"
)

// User represents a user in API responses. The password hash never leaves the server.
type User struct {
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFromModel converts a model.User to a response User
func UserFromModel(u *model.User) User {
	return User{
		Username:  u.Username,
		Rating:    u.Rating,
		CreatedAt: u.CreatedAt,
	}
}

// AuthResponse is the response for the login endpoint
type AuthResponse struct {
	User         User   `json:"user"`
	SessionToken string `json:"session_token"`
}

// Match represents a ledger entry
type Match struct {
	ID       string    `json:"id"`
	Sequence int64     `json:"sequence"`
	PlayerA  string    `json:"player_a"`
	PlayerB  string    `json:"player_b"`
	Result   string    `json:"result"`
	RatingA  int       `json:"rating_a"`
	RatingB  int       `json:"rating_b"`
	PlayedAt time.Time `json:"played_at"`
}

// MatchFromModel converts a model.Match
func MatchFromModel(m *model.Match) Match {
	return Match{
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

// MatchList is the response for the match listing endpoint
type MatchList struct {
	Matches []Match `json:"matches"`
}

// MatchListFromModel converts a slice of matches, keeping their order
func MatchListFromModel(ms []*model.Match) MatchList {
	out := make([]Match, 0, len(ms))
	for _, m := range ms {
		out = append(out, MatchFromModel(m))
	}
	return MatchList{Matches: out}
}

// RankingEntry is one row of the ladder
type RankingEntry struct {
	Position int    `json:"position"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// Ranking is the response for the ranking endpoint
type Ranking struct {
	Entries []RankingEntry `json:"entries"`
}

// RankingFromModel converts ranking entries
func RankingFromModel(entries []model.RankingEntry) Ranking {
	out := make([]RankingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RankingEntry{
			Position: e.Position,
			Username: e.Username,
			Rating:   e.Rating,
		})
	}
	return Ranking{Entries: out}
}

// UserStats is the response for the stats endpoint
type UserStats struct {
	Username     string  `json:"username"`
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	WinRate      float64 `json:"win_rate"`
	LossRate     float64 `json:"loss_rate"`
}

// UserStatsFromModel converts model.UserStats
func UserStatsFromModel(s *model.UserStats) UserStats {
	return UserStats{
		Username:     s.Username,
		TotalMatches: s.TotalMatches,
		Wins:         s.Wins,
		Losses:       s.Losses,
		Draws:        s.Draws,
		WinRate:      s.WinRate,
		LossRate:     s.LossRate,
	}
}

// RatingPoint is a rating after one match
type RatingPoint struct {
	MatchID  string    `json:"match_id"`
	Rating   int       `json:"rating"`
	PlayedAt time.Time `json:"played_at"`
}

// RatingHistory is the response for the history endpoint, oldest first
type RatingHistory struct {
	Username string        `json:"username"`
	Points   []RatingPoint `json:"points"`
}

// RatingHistoryFromModel converts rating points
func RatingHistoryFromModel(username string, points []model.RatingPoint) RatingHistory {
	out := make([]RatingPoint, 0, len(points))
	for _, p := range points {
		out = append(out, RatingPoint{
			MatchID:  string(p.MatchID),
			Rating:   p.Rating,
			PlayedAt: p.PlayedAt,
		})
	}
	return RatingHistory{Username: username, Points: out}
}

// RatingDrift is a user whose stored rating differs from a ledger replay
type RatingDrift struct {
	Username string `json:"username"`
	Stored   int    `json:"stored"`
	Replayed int    `json:"replayed"`
}

// VerifyResult is the response for the ledger verification endpoint
type VerifyResult struct {
	Consistent bool          `json:"consistent"`
	Drifts     []RatingDrift `json:"drifts"`
}

// VerifyResultFromModel converts a drift report
func VerifyResultFromModel(drifts []model.RatingDrift) VerifyResult {
	out := make([]RatingDrift, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, RatingDrift{
			Username: d.Username,
			Stored:   d.Stored,
			Replayed: d.Replayed,
		})
	}
	return VerifyResult{Consistent: len(out) == 0, Drifts: out}
}
