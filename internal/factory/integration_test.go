package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pongladder/internal/model"
	filestorage "github.com/mcoot/pongladder/internal/storage/file"
	sqlitestorage "github.com/mcoot/pongladder/internal/storage/sqlite"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) register(usernames ...string) {
	for _, u := range usernames {
		_, err := s.app.AuthService.RegisterUser(s.ctx, u, "pw-"+u)
		s.Require().NoError(err)
	}
}

// Test: register, play a short season, undo a mistake, read the ladder
func (s *IntegrationSuite) TestSeasonFlow() {
	s.register("alice", "bob", "carol")

	ok, err := s.app.AuthService.Authenticate(s.ctx, "alice", "pw-alice")
	s.Require().NoError(err)
	s.True(ok)

	// Three matches, one of them entered wrongly
	_, err = s.app.LedgerService.RecordWin(s.ctx, "alice", "bob", "alice")
	s.Require().NoError(err)
	s.app.MockClock.Advance(time.Minute)
	_, err = s.app.LedgerService.RecordMatch(s.ctx, "bob", "carol", model.ResultDraw)
	s.Require().NoError(err)
	s.app.MockClock.Advance(time.Minute)
	_, err = s.app.LedgerService.RecordWin(s.ctx, "carol", "alice", "carol")
	s.Require().NoError(err)

	ranking, err := s.app.LedgerService.Ranking(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(ranking, 3)
	s.Equal("carol", ranking[0].Username)

	// Undo the last one
	removed, err := s.app.LedgerService.DeleteLastMatch(s.ctx)
	s.Require().NoError(err)
	s.Equal("carol", removed.PlayerA)

	ranking, err = s.app.LedgerService.Ranking(s.ctx)
	s.Require().NoError(err)
	s.Equal("alice", ranking[0].Username)
	s.Equal(1516, ranking[0].Rating)

	stats, err := s.app.LedgerService.UserStats(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(2, stats.TotalMatches)
	s.Equal(0, stats.Wins)
	s.Equal(1, stats.Losses)
	s.Equal(1, stats.Draws)

	history, err := s.app.LedgerService.RatingHistory(s.ctx, "bob", 0)
	s.Require().NoError(err)
	s.Len(history, 2)

	drifts, err := s.app.LedgerService.Verify(s.ctx)
	s.Require().NoError(err)
	s.Empty(drifts)
}

// Test: Login session is tied to the registered user
func (s *IntegrationSuite) TestLoginSession() {
	s.register("alice")
	s.app.MockRandom.QueueString("fixed")

	session, user, err := s.app.AuthService.Login(s.ctx, "alice", "pw-alice")
	s.Require().NoError(err)
	s.Equal("sess_fixed", session.Token)
	s.Equal(model.InitialRating, user.Rating)
}

// Test: the factory opens each embedded backend and the services work on it
func (s *IntegrationSuite) TestNewWithEmbeddedBackends() {
	dir := s.T().TempDir()
	configs := map[string]Config{
		StorageTypeMemory: {},
		StorageTypeFile: {
			StorageType: StorageTypeFile,
			FileConfig:  &filestorage.Config{Path: filepath.Join(dir, "ledger.json")},
		},
		StorageTypeSQLite: {
			StorageType:  StorageTypeSQLite,
			SQLiteConfig: &sqlitestorage.Config{Path: filepath.Join(dir, "ledger.db")},
		},
	}

	for name, cfg := range configs {
		s.Run(name, func() {
			app, err := New(cfg)
			s.Require().NoError(err)
			defer func() { _ = app.Close() }()

			_, err = app.AuthService.RegisterUser(s.ctx, "alice", "pw")
			s.Require().NoError(err)
			_, err = app.AuthService.RegisterUser(s.ctx, "bob", "pw")
			s.Require().NoError(err)

			match, err := app.LedgerService.RecordMatch(s.ctx, "alice", "bob", model.ResultAWin)
			s.Require().NoError(err)
			s.Equal(1516, match.RatingA)
		})
	}
}

func (s *IntegrationSuite) TestNewRejectsMissingBackendConfig() {
	for _, t := range []string{StorageTypeFile, StorageTypeRedis, StorageTypePostgres, StorageTypeSQLite} {
		_, err := New(Config{StorageType: t})
		s.Error(err, t)
	}

	_, err := New(Config{StorageType: "mongo"})
	s.Error(err)
}
