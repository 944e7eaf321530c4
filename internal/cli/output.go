package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case AuthResult:
		o.printAuthResult(v)
	case Match:
		o.printMatch(v)
	case MatchList:
		o.printMatchList(v)
	case Ranking:
		o.printRanking(v)
	case UserStats:
		o.printUserStats(v)
	case RatingHistory:
		o.printRatingHistory(v)
	case VerifyResult:
		o.printVerifyResult(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// User response type (matches API)
type User struct {
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResult combines user and token
type AuthResult struct {
	User         User   `json:"user"`
	SessionToken string `json:"session_token"`
}

// Match response type
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

// MatchList response type
type MatchList struct {
	Matches []Match `json:"matches"`
}

// RankingEntry response type
type RankingEntry struct {
	Position int    `json:"position"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// Ranking response type
type Ranking struct {
	Entries []RankingEntry `json:"entries"`
}

// UserStats response type
type UserStats struct {
	Username     string  `json:"username"`
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	WinRate      float64 `json:"win_rate"`
	LossRate     float64 `json:"loss_rate"`
}

// RatingPoint response type
type RatingPoint struct {
	MatchID  string    `json:"match_id"`
	Rating   int       `json:"rating"`
	PlayedAt time.Time `json:"played_at"`
}

// RatingHistory response type
type RatingHistory struct {
	Username string        `json:"username"`
	Points   []RatingPoint `json:"points"`
}

// RatingDrift response type
type RatingDrift struct {
	Username string `json:"username"`
	Stored   int    `json:"stored"`
	Replayed int    `json:"replayed"`
}

// VerifyResult response type
type VerifyResult struct {
	Consistent bool          `json:"consistent"`
	Drifts     []RatingDrift `json:"drifts"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printUser(u User) {
	o.printf("User: %s\n", u.Username)
	o.printf("Rating: %d\n", u.Rating)
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printUser(a.User)
	o.printf("Token: %s\n", a.SessionToken)
}

// describe renders the outcome from player A's side of the table
func (m Match) describe() string {
	switch m.Result {
	case "a_win":
		return fmt.Sprintf("%s beat %s", m.PlayerA, m.PlayerB)
	case "b_win":
		return fmt.Sprintf("%s beat %s", m.PlayerB, m.PlayerA)
	default:
		return fmt.Sprintf("%s drew with %s", m.PlayerA, m.PlayerB)
	}
}

func (o *Output) printMatch(m Match) {
	o.printf("Match #%d: %s\n", m.Sequence, m.describe())
	o.printf("Ratings: %s %d, %s %d\n", m.PlayerA, m.RatingA, m.PlayerB, m.RatingB)
	o.printf("ID: %s\n", m.ID)
}

func (o *Output) printMatchList(l MatchList) {
	if len(l.Matches) == 0 {
		o.printf("No matches recorded\n")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tPLAYED\tRESULT\tRATINGS")
	for _, m := range l.Matches {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d / %d\n",
			m.Sequence, m.PlayedAt.Format(time.DateTime), m.describe(), m.RatingA, m.RatingB)
	}
	_ = tw.Flush()
}

func (o *Output) printRanking(r Ranking) {
	if len(r.Entries) == 0 {
		o.printf("No users registered\n")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POS\tUSER\tRATING")
	for _, e := range r.Entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Position, e.Username, e.Rating)
	}
	_ = tw.Flush()
}

func (o *Output) printUserStats(s UserStats) {
	o.printf("User: %s\n", s.Username)
	o.printf("Matches: %d (%d won, %d lost, %d drawn)\n", s.TotalMatches, s.Wins, s.Losses, s.Draws)
	o.printf("Win rate: %.1f%%\n", s.WinRate)
	o.printf("Loss rate: %.1f%%\n", s.LossRate)
}

func (o *Output) printRatingHistory(h RatingHistory) {
	if len(h.Points) == 0 {
		o.printf("%s has not played any matches\n", h.Username)
		return
	}
	o.printf("Rating history for %s:\n", h.Username)
	for _, p := range h.Points {
		o.printf("  %s  %d\n", p.PlayedAt.Format(time.DateTime), p.Rating)
	}
}

func (o *Output) printVerifyResult(v VerifyResult) {
	if v.Consistent {
		o.printf("Ledger is consistent\n")
		return
	}
	o.printf("Ledger has %d drifted rating(s):\n", len(v.Drifts))
	for _, d := range v.Drifts {
		o.printf("  %s: stored %d, replayed %d\n", d.Username, d.Stored, d.Replayed)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	o.printf("Status: %s\n", h.Status)
}
