package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pongladder/internal/api"
	"github.com/mcoot/pongladder/internal/api/apierr"
	"github.com/mcoot/pongladder/internal/api/response"
	"github.com/mcoot/pongladder/internal/factory"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/testutil"
)

type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	router := api.NewRouter(api.RouterConfig{
		Logger:        testutil.NopLogger(),
		AuthService:   app.AuthService,
		LedgerService: app.LedgerService,
	})

	return &testServer{
		handler: router,
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apierr.ErrorResponse](t, rr).Error.Code
}

// registerAndLogin registers a user and returns a session token for them
func registerAndLogin(t *testing.T, ts *testServer, username string) string {
	t.Helper()

	creds := map[string]string{"username": username, "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/users/register", creds, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPost, "/api/v1/users/login", creds, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[response.AuthResponse](t, rr).SessionToken
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	creds := map[string]string{"username": "alice", "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/users/register", creds, "")
	assert.Equal(t, http.StatusCreated, rr.Code)

	user := decode[response.User](t, rr)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, model.InitialRating, user.Rating)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = ts.request(http.MethodPost, "/api/v1/users/login", creds, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	loginResp := decode[response.AuthResponse](t, rr)
	assert.Equal(t, "alice", loginResp.User.Username)
	assert.NotEmpty(t, loginResp.SessionToken)
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts, "alice")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate username", map[string]string{"username": "alice", "password": "x"}, http.StatusConflict, apierr.CodeUsernameExists},
		{"blank username", map[string]string{"username": "  ", "password": "x"}, http.StatusBadRequest, apierr.CodeInvalidUsername},
		{"missing password", map[string]string{"username": "bob"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"malformed body", "not an object", http.StatusBadRequest, apierr.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/users/register", tt.body, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr))
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts, "alice")

	rr := ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "alice", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "ghost", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))
}

func TestGetMeAndLogout(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", decode[response.User](t, rr).Username)

	rr = ts.request(http.MethodPost, "/api/v1/users/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))
}

func TestSessionCookie(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoginSetsAndLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t)
	creds := map[string]string{"username": "alice", "password": "secret123"}
	require.Equal(t, http.StatusCreated, ts.request(http.MethodPost, "/api/v1/users/register", creds, "").Code)

	rr := ts.request(http.MethodPost, "/api/v1/users/login", creds, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	token := decode[response.AuthResponse](t, rr).SessionToken
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	rr = ts.request(http.MethodPost, "/api/v1/users/logout", nil, token)
	require.Equal(t, http.StatusNoContent, rr.Code)
	cookies = rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestExpiredSession(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	ts.app.MockClock.Advance(25 * time.Hour)

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/matches", map[string]string{"player_a": "a", "player_b": "b", "result": "draw"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/matches/last", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRecordMatchFlow(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	rr := ts.request(http.MethodPost, "/api/v1/matches", map[string]string{
		"player_a": "alice",
		"player_b": "bob",
		"winner":   "alice",
	}, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	match := decode[response.Match](t, rr)
	assert.Equal(t, "a_win", match.Result)
	assert.Equal(t, 1516, match.RatingA)
	assert.Equal(t, 1484, match.RatingB)
	assert.NotEmpty(t, match.ID)

	rr = ts.request(http.MethodGet, "/api/v1/ranking", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	ranking := decode[response.Ranking](t, rr)
	require.Len(t, ranking.Entries, 2)
	assert.Equal(t, response.RankingEntry{Position: 1, Username: "alice", Rating: 1516}, ranking.Entries[0])
	assert.Equal(t, response.RankingEntry{Position: 2, Username: "bob", Rating: 1484}, ranking.Entries[1])

	rr = ts.request(http.MethodGet, "/api/v1/users/bob/stats", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[response.UserStats](t, rr)
	assert.Equal(t, 1, stats.TotalMatches)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 0.0, stats.WinRate)
	assert.Equal(t, 100.0, stats.LossRate)

	rr = ts.request(http.MethodGet, "/api/v1/users/alice/history", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[response.RatingHistory](t, rr)
	require.Len(t, history.Points, 1)
	assert.Equal(t, 1516, history.Points[0].Rating)
	assert.Equal(t, match.ID, history.Points[0].MatchID)
}

func TestRecordMatchWithExplicitResult(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	rr := ts.request(http.MethodPost, "/api/v1/matches", map[string]string{
		"player_a": "alice",
		"player_b": "bob",
		"result":   "draw",
	}, token)
	require.Equal(t, http.StatusCreated, rr.Code)

	match := decode[response.Match](t, rr)
	assert.Equal(t, "draw", match.Result)
	assert.Equal(t, 1500, match.RatingA)
	assert.Equal(t, 1500, match.RatingB)
}

func TestRecordMatchErrors(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"unknown player", map[string]string{"player_a": "alice", "player_b": "ghost", "winner": "alice"}, http.StatusNotFound, apierr.CodeUnknownPlayer},
		{"same player", map[string]string{"player_a": "alice", "player_b": "alice", "result": "a_win"}, http.StatusBadRequest, apierr.CodeSamePlayer},
		{"invalid result", map[string]string{"player_a": "alice", "player_b": "bob", "result": "forfeit"}, http.StatusBadRequest, apierr.CodeInvalidResult},
		{"winner did not play", map[string]string{"player_a": "alice", "player_b": "bob", "winner": "carol"}, http.StatusBadRequest, apierr.CodeInvalidResult},
		{"missing result", map[string]string{"player_a": "alice", "player_b": "bob"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"result and winner", map[string]string{"player_a": "alice", "player_b": "bob", "result": "draw", "winner": "bob"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"missing player", map[string]string{"player_a": "alice", "result": "draw"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/matches", tt.body, token)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr))
		})
	}

	// Nothing was recorded
	rr := ts.request(http.MethodGet, "/api/v1/matches", nil, "")
	assert.Empty(t, decode[response.MatchList](t, rr).Matches)
}

func TestDeleteLastMatch(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	rr := ts.request(http.MethodDelete, "/api/v1/matches/last", nil, token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeEmptyLedger, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/matches", map[string]string{"player_a": "alice", "player_b": "bob", "winner": "bob"}, token)
	require.Equal(t, http.StatusCreated, rr.Code)
	recorded := decode[response.Match](t, rr)

	rr = ts.request(http.MethodDelete, "/api/v1/matches/last", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, recorded.ID, decode[response.Match](t, rr).ID)

	rr = ts.request(http.MethodGet, "/api/v1/ranking", nil, "")
	for _, e := range decode[response.Ranking](t, rr).Entries {
		assert.Equal(t, model.InitialRating, e.Rating, e.Username)
	}
}

func TestListMatchesNewestFirst(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	for _, winner := range []string{"alice", "bob", "alice"} {
		ts.app.MockClock.Advance(time.Minute)
		rr := ts.request(http.MethodPost, "/api/v1/matches", map[string]string{"player_a": "alice", "player_b": "bob", "winner": winner}, token)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := ts.request(http.MethodGet, "/api/v1/matches?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	matches := decode[response.MatchList](t, rr).Matches
	require.Len(t, matches, 2)
	assert.Equal(t, int64(3), matches[0].Sequence)
	assert.Equal(t, int64(2), matches[1].Sequence)

	rr = ts.request(http.MethodGet, "/api/v1/matches?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatsAndHistoryUnknownUser(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/users/ghost/stats", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeUnknownPlayer, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/users/ghost/history", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVerifyLedger(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")
	registerAndLogin(t, ts, "bob")

	rr := ts.request(http.MethodPost, "/api/v1/matches", map[string]string{"player_a": "alice", "player_b": "bob", "winner": "alice"}, token)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/ledger/verify", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[response.VerifyResult](t, rr)
	assert.True(t, result.Consistent)
	assert.Empty(t, result.Drifts)
}
