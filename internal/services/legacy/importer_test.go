package legacy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/pongladder/internal/dependencies/mocks"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/services/auth"
	"github.com/mcoot/pongladder/internal/services/ledger"
	"github.com/mcoot/pongladder/internal/storage/memory"
	"github.com/mcoot/pongladder/internal/testutil"
)

type ImporterSuite struct {
	suite.Suite
	storage  *memory.Storage
	clock    *mocks.MockClock
	importer *Importer
	ctx      context.Context
}

func TestImporterSuite(t *testing.T) {
	suite.Run(t, new(ImporterSuite))
}

func (s *ImporterSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	s.importer = New(s.storage, s.clock, testutil.NopLogger(), Config{})
	s.ctx = context.Background()
}

func (s *ImporterSuite) open(name string) *os.File {
	f, err := os.Open(filepath.Join("testdata", name))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = f.Close() })
	return f
}

func (s *ImporterSuite) importFixtures() *Summary {
	summary, err := s.importer.Import(s.ctx, s.open("users.json"), s.open("matches.json"))
	s.Require().NoError(err)
	return summary
}

func (s *ImporterSuite) TestImportFixtures() {
	summary := s.importFixtures()
	s.Equal(&Summary{Users: 3, Matches: 2}, summary)

	users, err := s.storage.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 3)
	s.Equal("alice", users[0].Username)
	s.Equal(1516, users[0].Rating)
	s.Equal("6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", users[0].PasswordHash)

	matches, err := s.storage.ListMatches(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(matches, 2)

	first := matches[0]
	s.Equal("alice", first.PlayerA)
	s.Equal("bob", first.PlayerB)
	s.Equal(model.ResultAWin, first.Result)
	s.Equal(1516, first.RatingA)
	s.Equal(1484, first.RatingB)
	s.Equal(time.Date(2024, 5, 1, 12, 34, 56, 123456000, time.UTC), first.PlayedAt)
	s.NotEmpty(first.ID)

	second := matches[1]
	s.Equal(model.ResultBWin, second.Result)
	s.Equal(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), second.PlayedAt)
	s.Less(first.Sequence, second.Sequence)
}

func (s *ImporterSuite) TestImportedLedgerReplaysCleanly() {
	s.importFixtures()

	svc := ledger.New(s.storage, s.clock, testutil.NopLogger(), ledger.DefaultConfig())
	drifts, err := svc.Verify(s.ctx)
	s.Require().NoError(err)
	s.Empty(drifts)

	stats, err := svc.UserStats(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(1, stats.Wins)
	s.Equal(1, stats.Losses)
}

func (s *ImporterSuite) TestLegacyPasswordLogsInAndUpgrades() {
	s.importFixtures()

	cfg := auth.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	authSvc := auth.New(s.storage, s.clock, mocks.NewMockRandom(), testutil.NopLogger(), cfg)

	_, user, err := authSvc.Login(s.ctx, "alice", "alicepw")
	s.Require().NoError(err)
	s.Equal(1516, user.Rating)

	stored, err := s.storage.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(strings.HasPrefix(stored.PasswordHash, "$2"), stored.PasswordHash)

	_, _, err = authSvc.Login(s.ctx, "bob", "alicepw")
	s.ErrorIs(err, auth.ErrInvalidCredentials)
}

func (s *ImporterSuite) TestScoresMapToResults() {
	users := `[
		{"username": "alice", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1500},
		{"username": "bob", "password": "e8f318657ce39ec4edeecbbee28fd72dea2261d8a6b2155ce4977393e0ea721b", "elo": 1500}
	]`
	matches := `[
		{"player1": "alice", "player2": "bob", "score1": 3, "score2": 1, "new_elo1": 1516, "new_elo2": 1484, "datetime": "2024-05-01T10:00:00"},
		{"player1": "alice", "player2": "bob", "score1": 0, "score2": 1, "new_elo1": 1498, "new_elo2": 1502, "datetime": "2024-05-01T11:00:00"},
		{"player1": "alice", "player2": "bob", "score1": 2, "score2": 2, "new_elo1": 1498, "new_elo2": 1502, "datetime": "2024-05-01T12:00:00"}
	]`

	_, err := s.importer.Import(s.ctx, strings.NewReader(users), strings.NewReader(matches))
	s.Require().NoError(err)

	got, err := s.storage.ListMatches(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(model.ResultAWin, got[0].Result)
	s.Equal(model.ResultBWin, got[1].Result)
	s.Equal(model.ResultDraw, got[2].Result)
}

func (s *ImporterSuite) TestTimestampsNeverGoBackwards() {
	users := `[
		{"username": "alice", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1500},
		{"username": "bob", "password": "e8f318657ce39ec4edeecbbee28fd72dea2261d8a6b2155ce4977393e0ea721b", "elo": 1500}
	]`
	matches := `[
		{"player1": "alice", "player2": "bob", "score1": 1, "score2": 0, "new_elo1": 1516, "new_elo2": 1484, "datetime": "2024-05-02T10:00:00"},
		{"player1": "alice", "player2": "bob", "score1": 1, "score2": 0, "new_elo1": 1530, "new_elo2": 1470, "datetime": "2024-05-01T10:00:00+02:00"}
	]`

	_, err := s.importer.Import(s.ctx, strings.NewReader(users), strings.NewReader(matches))
	s.Require().NoError(err)

	got, err := s.storage.ListMatches(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(got[0].PlayedAt, got[1].PlayedAt)
}

func (s *ImporterSuite) TestNaiveTimesUseConfiguredZone() {
	loc := time.FixedZone("CEST", 2*60*60)
	s.importer = New(s.storage, s.clock, testutil.NopLogger(), Config{Location: loc})
	s.importFixtures()

	matches, err := s.storage.ListMatches(s.ctx)
	s.Require().NoError(err)
	s.Equal(time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC), matches[1].PlayedAt)
}

func (s *ImporterSuite) TestUsersOnly() {
	summary, err := s.importer.Import(s.ctx, s.open("users.json"), nil)
	s.Require().NoError(err)
	s.Equal(&Summary{Users: 3}, summary)
}

func (s *ImporterSuite) TestRejectsNonEmptyLedger() {
	s.Require().NoError(s.storage.CreateUser(s.ctx, &model.User{Username: "dave", Rating: 1500}))

	_, err := s.importer.Import(s.ctx, s.open("users.json"), s.open("matches.json"))
	s.ErrorIs(err, ErrLedgerNotEmpty)

	users, err := s.storage.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 1)
}

func (s *ImporterSuite) TestInvalidDocumentsWriteNothing() {
	alice := `{"username": "alice", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1500}`
	bob := `{"username": "bob", "password": "e8f318657ce39ec4edeecbbee28fd72dea2261d8a6b2155ce4977393e0ea721b", "elo": 1500}`
	match := func(p1, p2, when string) string {
		return `[{"player1": "` + p1 + `", "player2": "` + p2 + `", "score1": 1, "score2": 0, "new_elo1": 1516, "new_elo2": 1484, "datetime": "` + when + `"}]`
	}

	tests := []struct {
		name    string
		users   string
		matches string
		want    error
	}{
		{"users not a list", `{"alice": 1500}`, `[]`, ErrInvalidRecord},
		{"matches not json", "[" + alice + "]", `{not json`, ErrInvalidRecord},
		{"blank username", `[{"username": " ", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1500}]`, `[]`, model.ErrInvalidUsername},
		{"duplicate username", "[" + alice + "," + alice + "]", `[]`, model.ErrDuplicateUsername},
		{"plaintext password", `[{"username": "alice", "password": "alicepw", "elo": 1500}]`, `[]`, ErrInvalidRecord},
		{"rating out of range", `[{"username": "alice", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1e12}]`, `[]`, ErrInvalidRecord},
		{"unknown player", "[" + alice + "," + bob + "]", match("alice", "ghost", "2024-05-01T10:00:00"), model.ErrUnknownPlayer},
		{"same player", "[" + alice + "," + bob + "]", match("alice", "alice", "2024-05-01T10:00:00"), model.ErrSamePlayer},
		{"bad datetime", "[" + alice + "," + bob + "]", match("alice", "bob", "yesterday"), ErrInvalidRecord},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			_, err := s.importer.Import(s.ctx, strings.NewReader(tt.users), strings.NewReader(tt.matches))
			s.ErrorIs(err, tt.want)

			users, err := s.storage.ListUsers(s.ctx)
			s.Require().NoError(err)
			s.Empty(users)
		})
	}
}

func (s *ImporterSuite) TestFractionalEloRoundsHalfToEven() {
	users := `[
		{"username": "alice", "password": "6624974ea2baffac164422e4490376c1c31313cd97724ae8ce62fb3f0a0370f2", "elo": 1516.5},
		{"username": "bob", "password": "e8f318657ce39ec4edeecbbee28fd72dea2261d8a6b2155ce4977393e0ea721b", "elo": 1483.5}
	]`
	_, err := s.importer.Import(s.ctx, strings.NewReader(users), nil)
	s.Require().NoError(err)

	alice, err := s.storage.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1516, alice.Rating)
	bob, err := s.storage.GetUser(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(1484, bob.Rating)
}
