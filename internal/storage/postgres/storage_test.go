package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
	"github.com/mcoot/pongladder/internal/storage/storagetest"
)

// Set PONG_TEST_DATABASE_URL to a disposable database to run these tests.
// Every test truncates both tables.
const testDatabaseEnv = "PONG_TEST_DATABASE_URL"

type StorageSuite struct {
	storagetest.Suite
}

func TestStorageSuite(t *testing.T) {
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	s := &StorageSuite{}
	s.NewStorage = func(t *testing.T) storage.Storage {
		st, err := New(Config{URL: url, MaxConns: 4})
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if _, err := st.pool.Exec(context.Background(), `TRUNCATE matches, users RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return st
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TestSchemaRejectsSelfMatch() {
	s.CreateUser("alice", 1500)

	m := s.NewMatch("m1", "alice", "alice", model.ResultAWin, 1516, 1484, 1)
	err := s.Storage.CommitMatch(s.Ctx, m, nil)
	s.ErrorIs(err, model.ErrStorageUnavailable)
}

func TestNewFailsOnBadURL(t *testing.T) {
	_, err := New(Config{URL: "postgres://%zz"})
	assert.Error(t, err)
}
