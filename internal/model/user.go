package model

import "time"

// InitialRating is the rating every user starts with
const InitialRating = 1500

// User is a registered participant in the ladder
type User struct {
	Username     string // unique, case-sensitive, immutable
	PasswordHash string // bcrypt, or legacy sha256 hex for imported accounts
	Rating       int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RankingEntry is one row of the ladder
type RankingEntry struct {
	Position int // 1-based
	Username string
	Rating   int
}

// UserStats summarises a user's match record.
// LossRate is always 100 - WinRate, so draws count against it.
type UserStats struct {
	Username     string
	TotalMatches int
	Wins         int
	Losses       int
	Draws        int
	WinRate      float64
	LossRate     float64
}

// RatingPoint is a user's rating immediately after a match
type RatingPoint struct {
	MatchID  MatchID
	Rating   int
	PlayedAt time.Time
}

// RatingDrift is a user whose stored rating differs from a full ledger replay
type RatingDrift struct {
	Username string
	Stored   int
	Replayed int
}
