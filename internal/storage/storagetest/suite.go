// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

// Suite runs the shared storage tests. Embed it in a backend's suite and
// set NewStorage to return an empty store for each test.
type Suite struct {
	suite.Suite
	NewStorage func(t *testing.T) storage.Storage

	Storage storage.Storage
	Ctx     context.Context
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage(s.T())
	s.Ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
}

// CreateUser stores a user with the given rating and fails the test on error
func (s *Suite) CreateUser(username string, rating int) *model.User {
	user := &model.User{
		Username:     username,
		PasswordHash: "hash-" + username,
		Rating:       rating,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	s.Require().NoError(s.Storage.CreateUser(s.Ctx, user))
	return user
}

// NewMatch builds an uncommitted match played n minutes after the base time
func (s *Suite) NewMatch(id, a, b string, result model.Result, ratingA, ratingB, n int) *model.Match {
	return &model.Match{
		ID:       model.MatchID(id),
		PlayerA:  a,
		PlayerB:  b,
		Result:   result,
		RatingA:  ratingA,
		RatingB:  ratingB,
		PlayedAt: baseTime.Add(time.Duration(n) * time.Minute),
	}
}

func (s *Suite) commit(m *model.Match, fromA, fromB int) {
	err := s.Storage.CommitMatch(s.Ctx, m, []storage.RatingUpdate{
		{Username: m.PlayerA, From: fromA, To: m.RatingA},
		{Username: m.PlayerB, From: fromB, To: m.RatingB},
	})
	s.Require().NoError(err)
}

func (s *Suite) rating(username string) int {
	user, err := s.Storage.GetUser(s.Ctx, username)
	s.Require().NoError(err)
	return user.Rating
}

// User tests

func (s *Suite) TestCreateAndGetUser() {
	s.CreateUser("alice", model.InitialRating)

	user, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("alice", user.Username)
	s.Equal("hash-alice", user.PasswordHash)
	s.Equal(model.InitialRating, user.Rating)
	s.WithinDuration(baseTime, user.CreatedAt, time.Second)
}

func (s *Suite) TestCreateUserFailsIfUsernameExists() {
	s.CreateUser("alice", 1600)

	err := s.Storage.CreateUser(s.Ctx, &model.User{
		Username:     "alice",
		PasswordHash: "other",
		Rating:       model.InitialRating,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	})
	s.ErrorIs(err, model.ErrDuplicateUsername)

	user, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("hash-alice", user.PasswordHash)
	s.Equal(1600, user.Rating)
}

func (s *Suite) TestUsernamesAreCaseSensitive() {
	s.CreateUser("alice", model.InitialRating)
	s.CreateUser("Alice", model.InitialRating)

	users, err := s.Storage.ListUsers(s.Ctx)
	s.Require().NoError(err)
	s.Len(users, 2)
}

func (s *Suite) TestGetUserUnknown() {
	_, err := s.Storage.GetUser(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrUnknownPlayer)
}

func (s *Suite) TestListUsersOrderedByUsername() {
	s.CreateUser("carol", 1400)
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1600)

	users, err := s.Storage.ListUsers(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 3)
	s.Equal("alice", users[0].Username)
	s.Equal("bob", users[1].Username)
	s.Equal("carol", users[2].Username)
	s.Equal(1600, users[1].Rating)
}

func (s *Suite) TestListUsersEmpty() {
	users, err := s.Storage.ListUsers(s.Ctx)
	s.Require().NoError(err)
	s.Empty(users)
}

func (s *Suite) TestUpdatePasswordHash() {
	s.CreateUser("alice", model.InitialRating)

	s.Require().NoError(s.Storage.UpdatePasswordHash(s.Ctx, "alice", "new-hash"))

	user, err := s.Storage.GetUser(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("new-hash", user.PasswordHash)
	s.Equal(model.InitialRating, user.Rating)
}

func (s *Suite) TestUpdatePasswordHashUnknownUser() {
	err := s.Storage.UpdatePasswordHash(s.Ctx, "nobody", "hash")
	s.ErrorIs(err, model.ErrUnknownPlayer)
}

// Match tests

func (s *Suite) TestEmptyLedger() {
	matches, err := s.Storage.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Empty(matches)

	_, err = s.Storage.LastMatch(s.Ctx)
	s.ErrorIs(err, model.ErrEmptyLedger)
}

func (s *Suite) TestCommitMatchAppliesRatingsAndAppends() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)

	m := s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1)
	s.commit(m, 1500, 1500)
	s.Equal(int64(1), m.Sequence)

	s.Equal(1516, s.rating("alice"))
	s.Equal(1484, s.rating("bob"))

	matches, err := s.Storage.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	got := matches[0]
	s.Equal(model.MatchID("m1"), got.ID)
	s.Equal(int64(1), got.Sequence)
	s.Equal("alice", got.PlayerA)
	s.Equal("bob", got.PlayerB)
	s.Equal(model.ResultAWin, got.Result)
	s.Equal(1516, got.RatingA)
	s.Equal(1484, got.RatingB)
	s.WithinDuration(m.PlayedAt, got.PlayedAt, time.Millisecond)
}

func (s *Suite) TestCommitMatchPreservesAppendOrder() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)
	s.CreateUser("carol", 1500)

	s.commit(s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1), 1500, 1500)
	s.commit(s.NewMatch("m2", "carol", "bob", model.ResultDraw, 1499, 1485, 2), 1500, 1484)
	s.commit(s.NewMatch("m3", "alice", "carol", model.ResultBWin, 1499, 1516, 3), 1516, 1499)

	matches, err := s.Storage.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(matches, 3)
	for i, id := range []model.MatchID{"m1", "m2", "m3"} {
		s.Equal(id, matches[i].ID)
		s.Equal(int64(i+1), matches[i].Sequence)
	}
	s.Equal(model.ResultDraw, matches[1].Result)

	last, err := s.Storage.LastMatch(s.Ctx)
	s.Require().NoError(err)
	s.Equal(model.MatchID("m3"), last.ID)
}

func (s *Suite) TestCommitMatchConflictWritesNothing() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)

	m := s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1)
	err := s.Storage.CommitMatch(s.Ctx, m, []storage.RatingUpdate{
		{Username: "alice", From: 1500, To: 1516},
		{Username: "bob", From: 1490, To: 1484},
	})
	s.ErrorIs(err, model.ErrWriteConflict)

	s.Equal(1500, s.rating("alice"))
	s.Equal(1500, s.rating("bob"))
	_, err = s.Storage.LastMatch(s.Ctx)
	s.ErrorIs(err, model.ErrEmptyLedger)
}

func (s *Suite) TestCommitMatchUnknownUserWritesNothing() {
	s.CreateUser("alice", 1500)

	m := s.NewMatch("m1", "alice", "ghost", model.ResultAWin, 1516, 1484, 1)
	err := s.Storage.CommitMatch(s.Ctx, m, []storage.RatingUpdate{
		{Username: "alice", From: 1500, To: 1516},
		{Username: "ghost", From: 1500, To: 1484},
	})
	s.ErrorIs(err, model.ErrUnknownPlayer)

	s.Equal(1500, s.rating("alice"))
	_, err = s.Storage.LastMatch(s.Ctx)
	s.ErrorIs(err, model.ErrEmptyLedger)
}

func (s *Suite) TestRemoveLastMatch() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)
	s.commit(s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1), 1500, 1500)
	s.commit(s.NewMatch("m2", "alice", "bob", model.ResultBWin, 1498, 1502, 2), 1516, 1484)

	err := s.Storage.RemoveLastMatch(s.Ctx, "m2", []storage.RatingUpdate{
		{Username: "alice", From: 1498, To: 1516},
		{Username: "bob", From: 1502, To: 1484},
	})
	s.Require().NoError(err)

	s.Equal(1516, s.rating("alice"))
	s.Equal(1484, s.rating("bob"))

	last, err := s.Storage.LastMatch(s.Ctx)
	s.Require().NoError(err)
	s.Equal(model.MatchID("m1"), last.ID)

	matches, err := s.Storage.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Len(matches, 1)
}

func (s *Suite) TestRemoveLastMatchNeverReusesSequence() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)
	removed := s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1)
	s.commit(removed, 1500, 1500)
	s.Require().NoError(s.Storage.RemoveLastMatch(s.Ctx, "m1", []storage.RatingUpdate{
		{Username: "alice", From: 1516, To: 1500},
		{Username: "bob", From: 1484, To: 1500},
	}))

	m := s.NewMatch("m2", "alice", "bob", model.ResultDraw, 1500, 1500, 2)
	s.commit(m, 1500, 1500)
	s.Greater(m.Sequence, removed.Sequence)

	last, err := s.Storage.LastMatch(s.Ctx)
	s.Require().NoError(err)
	s.Equal(model.MatchID("m2"), last.ID)
	s.Equal(m.Sequence, last.Sequence)
}

func (s *Suite) TestRemoveLastMatchEmptyLedger() {
	err := s.Storage.RemoveLastMatch(s.Ctx, "m1", nil)
	s.ErrorIs(err, model.ErrEmptyLedger)
}

func (s *Suite) TestRemoveLastMatchFailsIfTailMoved() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)
	s.commit(s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1), 1500, 1500)
	s.commit(s.NewMatch("m2", "alice", "bob", model.ResultAWin, 1530, 1470, 2), 1516, 1484)

	err := s.Storage.RemoveLastMatch(s.Ctx, "m1", []storage.RatingUpdate{
		{Username: "alice", From: 1530, To: 1500},
	})
	s.ErrorIs(err, model.ErrWriteConflict)

	s.Equal(1530, s.rating("alice"))
	matches, err := s.Storage.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Len(matches, 2)
}

func (s *Suite) TestRemoveLastMatchRatingConflictWritesNothing() {
	s.CreateUser("alice", 1500)
	s.CreateUser("bob", 1500)
	s.commit(s.NewMatch("m1", "alice", "bob", model.ResultAWin, 1516, 1484, 1), 1500, 1500)

	err := s.Storage.RemoveLastMatch(s.Ctx, "m1", []storage.RatingUpdate{
		{Username: "alice", From: 1516, To: 1500},
		{Username: "bob", From: 1500, To: 1500},
	})
	s.ErrorIs(err, model.ErrWriteConflict)

	s.Equal(1516, s.rating("alice"))
	s.Equal(1484, s.rating("bob"))
	_, err = s.Storage.LastMatch(s.Ctx)
	s.NoError(err)
}
