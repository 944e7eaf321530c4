package model

import (
	"fmt"
	"time"
)

// MatchID uniquely identifies a match
type MatchID string

// Result is the outcome of a match from player A's point of view
type Result string

const (
	ResultAWin Result = "a_win"
	ResultBWin Result = "b_win"
	ResultDraw Result = "draw"
)

// ParseResult converts a wire value into a Result
func ParseResult(s string) (Result, error) {
	r := Result(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResult, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known results
func (r Result) Valid() bool {
	switch r {
	case ResultAWin, ResultBWin, ResultDraw:
		return true
	}
	return false
}

// Match is an immutable record of a played match.
// RatingA and RatingB are the ratings each player held after the match.
type Match struct {
	ID       MatchID
	Sequence int64 // 1-based position in the ledger, assigned by storage
	PlayerA  string
	PlayerB  string
	Result   Result
	RatingA  int
	RatingB  int
	PlayedAt time.Time
}

// Involves reports whether username played in the match
func (m *Match) Involves(username string) bool {
	return m.PlayerA == username || m.PlayerB == username
}

// Scores returns the per-side score: 1 for a win, 0 for a loss, and 0.5 each for a draw
func (m *Match) Scores() (scoreA, scoreB float64) {
	switch m.Result {
	case ResultAWin:
		return 1, 0
	case ResultBWin:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// RatingFor returns the post-match rating of username, and false if they did not play
func (m *Match) RatingFor(username string) (int, bool) {
	switch username {
	case m.PlayerA:
		return m.RatingA, true
	case m.PlayerB:
		return m.RatingB, true
	}
	return 0, false
}
