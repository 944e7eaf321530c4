package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pongladder/internal/api"
	"github.com/mcoot/pongladder/internal/factory"
	"github.com/mcoot/pongladder/internal/services/auth"
	sqlitestorage "github.com/mcoot/pongladder/internal/storage/sqlite"
	"github.com/mcoot/pongladder/internal/testutil"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	projectRoot := findProjectRoot(t)

	binaryPath := filepath.Join(t.TempDir(), "pongctl")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/pongctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "PONG_TOKEN=")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	output, err := r.run(args...)
	require.NoError(t, err, "output: %s", output)
	require.NoError(t, json.Unmarshal([]byte(output), v), "output: %s", output)
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer runs the real server on a free port, backed by a
// throwaway SQLite database, and returns its base URL.
func startTestServer(t *testing.T) string {
	t.Helper()

	logger := testutil.NopLogger()

	authCfg := auth.DefaultConfig()
	authCfg.BcryptCost = 4
	sqliteCfg := sqlitestorage.DefaultConfig()
	sqliteCfg.Path = filepath.Join(t.TempDir(), "pongladder.db")

	app, err := factory.New(factory.Config{
		AuthConfig:   authCfg,
		Logger:       logger,
		StorageType:  factory.StorageTypeSQLite,
		SQLiteConfig: &sqliteCfg,
	})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Logger:        logger,
		AuthService:   app.AuthService,
		LedgerService: app.LedgerService,
	})

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = "127.0.0.1"
	serverCfg.Port = 0
	server := api.NewServer(router, serverCfg, logger)
	require.NoError(t, server.Listen())

	go func() {
		if err := server.Start(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = app.Close()
	})

	serverURL := "http://" + server.Addr()
	waitForServer(t, serverURL+"/api/v1/health")
	return serverURL
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type userResponse struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	SessionToken string       `json:"session_token"`
}

type matchResponse struct {
	Sequence int64  `json:"sequence"`
	PlayerA  string `json:"player_a"`
	PlayerB  string `json:"player_b"`
	Result   string `json:"result"`
	RatingA  int    `json:"rating_a"`
	RatingB  int    `json:"rating_b"`
}

type rankingResponse struct {
	Entries []struct {
		Position int    `json:"position"`
		Username string `json:"username"`
		Rating   int    `json:"rating"`
	} `json:"entries"`
}

type statsResponse struct {
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	WinRate      float64 `json:"win_rate"`
	LossRate     float64 `json:"loss_rate"`
}

type historyResponse struct {
	Points []struct {
		Rating int `json:"rating"`
	} `json:"points"`
}

type verifyResponse struct {
	Consistent bool `json:"consistent"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	var resp healthResponse
	cli.runJSON(t, &resp, "health")
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_UserCommands(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	var registered userResponse
	cli.runJSON(t, &registered, "user", "register", "--user", "alice", "--pass", "secret123")
	assert.Equal(t, "alice", registered.Username)
	assert.Equal(t, 1500, registered.Rating)

	var login authResponse
	cli.runJSON(t, &login, "user", "login", "--user", "alice", "--pass", "secret123")
	assert.NotEmpty(t, login.SessionToken)

	// Token is read back from the token file
	var me userResponse
	cli.runJSON(t, &me, "user", "me")
	assert.Equal(t, "alice", me.Username)

	output, err := cli.run("user", "logout")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("user", "me")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")
}

func TestCLI_SeasonFlow(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := cli.run("user", "register", "--user", name, "--pass", "pw-"+name)
		require.NoError(t, err)
	}
	_, err := cli.run("user", "login", "--user", "carol", "--pass", "pw-carol")
	require.NoError(t, err)

	var m1 matchResponse
	cli.runJSON(t, &m1, "match", "record", "--a", "alice", "--b", "bob", "--winner", "alice")
	assert.Equal(t, int64(1), m1.Sequence)
	assert.Equal(t, 1516, m1.RatingA)
	assert.Equal(t, 1484, m1.RatingB)

	var m2 matchResponse
	cli.runJSON(t, &m2, "match", "record", "--a", "bob", "--b", "carol", "--draw")
	assert.Equal(t, "draw", m2.Result)

	var ranking rankingResponse
	cli.runJSON(t, &ranking, "ranking")
	require.Len(t, ranking.Entries, 3)
	assert.Equal(t, "alice", ranking.Entries[0].Username)
	assert.Equal(t, 1, ranking.Entries[0].Position)

	var stats statsResponse
	cli.runJSON(t, &stats, "stats", "bob")
	assert.Equal(t, 2, stats.TotalMatches)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.Draws)
	assert.Equal(t, 100.0, stats.LossRate)

	var history historyResponse
	cli.runJSON(t, &history, "history", "bob")
	require.Len(t, history.Points, 2)
	assert.Equal(t, 1484, history.Points[0].Rating)

	var verify verifyResponse
	cli.runJSON(t, &verify, "verify")
	assert.True(t, verify.Consistent)

	// Undo the draw; bob goes back to his post-loss rating
	var undone matchResponse
	cli.runJSON(t, &undone, "match", "undo")
	assert.Equal(t, m2.Sequence, undone.Sequence)

	cli.runJSON(t, &history, "history", "bob")
	require.Len(t, history.Points, 1)

	cli.runJSON(t, &ranking, "ranking")
	for _, e := range ranking.Entries {
		if e.Username == "bob" {
			assert.Equal(t, 1484, e.Rating)
		}
		if e.Username == "carol" {
			assert.Equal(t, 1500, e.Rating)
		}
	}
}

func TestCLI_ErrorHandling(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	// Recording requires a session
	output, err := cli.run("match", "record", "--a", "alice", "--b", "bob", "--winner", "alice")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")

	_, err = cli.run("user", "register", "--user", "alice", "--pass", "secret")
	require.NoError(t, err)
	_, err = cli.run("user", "login", "--user", "alice", "--pass", "secret")
	require.NoError(t, err)

	output, err = cli.run("match", "record", "--a", "alice", "--b", "nobody", "--winner", "alice")
	assert.Error(t, err)
	assert.Contains(t, output, "UNKNOWN_PLAYER")

	output, err = cli.run("match", "undo")
	assert.Error(t, err)
	assert.Contains(t, output, "EMPTY_LEDGER")

	output, err = cli.run("user", "register", "--user", "alice", "--pass", "again")
	assert.Error(t, err)
	assert.Contains(t, strings.ToLower(output), "already exists")
}
