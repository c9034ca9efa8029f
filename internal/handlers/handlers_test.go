// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkiewka/countdown-service/internal/auth"
	"github.com/binkiewka/countdown-service/internal/config"
	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/metrics"
	"github.com/binkiewka/countdown-service/internal/models"
	"github.com/binkiewka/countdown-service/internal/store"
)

// newTestServer builds a Server on an in-memory store with auth disabled.
func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	manager := countdown.NewManager(st, config.DefaultRules())
	m := metrics.New()
	gs := NewGameServer(logger, manager, st, m)
	t.Cleanup(gs.Stop)

	return NewServer(logger, manager, gs, m, ""), st
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", target, bytes.NewReader(buf))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getReq(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// pinGame rewrites the stored game with a known target and number set so
// submissions can be asserted deterministically.
func pinGame(t *testing.T, st *store.MemoryStore, serverID, channelID string, target int, numbers []int) *models.GameState {
	t.Helper()
	ctx := context.Background()
	game, err := st.GetGame(ctx, serverID, channelID)
	require.NoError(t, err)
	require.NotNil(t, game)
	game.Target = target
	game.Numbers = numbers
	require.NoError(t, st.SaveGame(ctx, game, time.Minute))
	return game
}

func TestLobbyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, CreateLobbyHandler(srv), "/lobby/create",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var lobby models.GameLobby
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobby))
	assert.Equal(t, "host", lobby.HostID)
	assert.Equal(t, 3, lobby.Rounds)
	assert.Equal(t, 60, lobby.Duration)
	assert.True(t, lobby.Ready["host"])

	// second create in the same channel conflicts
	w = postJSON(t, CreateLobbyHandler(srv), "/lobby/create",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// user_id is mandatory
	w = postJSON(t, CreateLobbyHandler(srv), "/lobby/create",
		map[string]string{"server_id": "s1", "channel_id": "c9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = getReq(LobbyStateHandler(srv), "/lobby/state?server_id=s1&channel_id=c1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobby))
	assert.Equal(t, "host", lobby.HostID)

	w = getReq(LobbyStateHandler(srv), "/lobby/state?server_id=s1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, ToggleReadyHandler(srv), "/lobby/ready",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "p2"})
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Lobby models.GameLobby `json:"lobby"`
		Ready bool             `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.True(t, ready.Ready)
	assert.Equal(t, 2, ready.Lobby.ReadyCount())

	// settings are host-only and validated
	w = postJSON(t, UpdateLobbySettingsHandler(srv), "/lobby/settings",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "p2", "rounds": 2, "duration": 120})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, UpdateLobbySettingsHandler(srv), "/lobby/settings",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host", "rounds": 9, "duration": 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, UpdateLobbySettingsHandler(srv), "/lobby/settings",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host", "rounds": 2, "duration": 120})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobby))
	assert.Equal(t, 2, lobby.Rounds)
	assert.Equal(t, 120, lobby.Duration)

	w = postJSON(t, CancelLobbyHandler(srv), "/lobby/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "p2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, CancelLobbyHandler(srv), "/lobby/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)

	w = postJSON(t, CancelLobbyHandler(srv), "/lobby/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartGameEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, StartGameHandler(srv), "/game/start",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, CreateLobbyHandler(srv), "/lobby/create",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, StartGameHandler(srv), "/game/start",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "p2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, StartGameHandler(srv), "/game/start",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var game models.GameState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &game))
	assert.Equal(t, models.StatusActive, game.Status)
	assert.Equal(t, 1, game.CurrentRound)
	assert.Equal(t, 3, game.TotalRounds)
	assert.Len(t, game.Numbers, 5)
	assert.GreaterOrEqual(t, game.Target, 100)
	assert.LessOrEqual(t, game.Target, 999)

	// starting consumes the lobby
	w = getReq(LobbyStateHandler(srv), "/lobby/state?server_id=s1&channel_id=c1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = getReq(GameStateHandler(srv), "/game/state?server_id=s1&channel_id=c1")
	require.Equal(t, http.StatusOK, w.Code)
	var state gameStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.NotNil(t, state.Game)
	assert.Equal(t, game.ID, state.Game.ID)
	assert.Greater(t, state.TimeRemainingMS, int64(0))
	assert.LessOrEqual(t, state.TimeRemainingMS, int64(60_000))
}

func TestGameStateNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	w := getReq(GameStateHandler(srv), "/game/state?server_id=nope&channel_id=c1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateGameEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, CreateGameHandler(srv), "/game/create",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host", "rounds": 1, "duration": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var game models.GameState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &game))
	assert.Equal(t, 1, game.TotalRounds)
	assert.Equal(t, 30, game.RoundDuration)

	w = postJSON(t, CreateGameHandler(srv), "/game/create",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, CreateGameHandler(srv), "/game/create",
		map[string]interface{}{"server_id": "s1", "channel_id": "c2", "user_id": "host", "rounds": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	w := postJSON(t, SubmitAnswerHandler(srv), "/game/submit",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "alice", "expression": "1+1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, CreateGameHandler(srv), "/game/create",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code)
	pinGame(t, st, "s1", "c1", 100, []int{25, 50, 75, 3, 6})

	w = postJSON(t, SubmitAnswerHandler(srv), "/game/submit",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "alice", "expression": "25+75"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sub models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.True(t, sub.Valid)
	require.NotNil(t, sub.Result)
	assert.Equal(t, 100, *sub.Result)
	assert.Equal(t, 0, sub.Distance)

	// one submission per user per round
	w = postJSON(t, SubmitAnswerHandler(srv), "/game/submit",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "alice", "expression": "50+50"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// an invalid expression still records: 200 with valid=false
	w = postJSON(t, SubmitAnswerHandler(srv), "/game/submit",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "bob", "expression": "25+7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.False(t, sub.Valid)
	assert.Nil(t, sub.Result)
	assert.Equal(t, models.InvalidDistance, sub.Distance)
	assert.Contains(t, sub.Error, "not available")

	w = postJSON(t, SubmitAnswerHandler(srv), "/game/submit",
		map[string]string{"server_id": "s1", "channel_id": "c1", "expression": "25+75"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelGameEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, CreateGameHandler(srv), "/game/create",
		map[string]interface{}{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, CancelGameHandler(srv), "/game/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "p2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, CancelGameHandler(srv), "/game/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)

	w = postJSON(t, CancelGameHandler(srv), "/game/cancel",
		map[string]string{"server_id": "s1", "channel_id": "c1", "user_id": "host"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSolveEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := getReq(SolveHandler(srv), "/solve?target=100&numbers=25,75")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp solveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Target)
	assert.Equal(t, 100, resp.Value)
	assert.Equal(t, 0, resp.Distance)
	assert.NotEmpty(t, resp.Expression)

	w = getReq(SolveHandler(srv), "/solve?target=0&numbers=1,2")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = getReq(SolveHandler(srv), "/solve?target=100&numbers=1,2,3,4,5,6,7")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = getReq(SolveHandler(srv), "/solve?target=100&numbers=1,x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.AddScores(ctx, "s1", map[string]int{"alice": 10, "bob": 5}))

	w := getReq(LeaderboardHandler(srv), "/leaderboard?server_id=s1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp leaderboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "alice", resp.Entries[0].UserID)
	assert.Equal(t, 10, resp.Entries[0].Score)
	assert.Equal(t, "bob", resp.Entries[1].UserID)

	w = getReq(LeaderboardHandler(srv), "/leaderboard")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionEndpoint(t *testing.T) {
	require.NoError(t, auth.Init(time.Minute))
	srv, _ := newTestServer(t)

	w := postJSON(t, SessionHandler(srv), "/session", map[string]string{"user_id": "bot-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	sub, err := auth.AuthenticateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", sub)

	// anonymous callers get a spectator session
	w = postJSON(t, SessionHandler(srv), "/session", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	sub, err = auth.AuthenticateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "spectator", sub)
}

func TestAPIKeyRequired(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hash, err := auth.CreateHash("cd_live_3f9a", auth.Params)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	manager := countdown.NewManager(st, config.DefaultRules())
	m := metrics.New()
	gs := NewGameServer(logger, manager, st, m)
	t.Cleanup(gs.Stop)
	srv := NewServer(logger, manager, gs, m, hash)

	h := srv.requireAPIKey(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/lobby/state", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/lobby/state", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for i := 0; i < 2; i++ { // second pass exercises the proven-key fast path
		req = httptest.NewRequest("GET", "/lobby/state", nil)
		req.Header.Set("Authorization", "Bearer cd_live_3f9a")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestHistoryEndpointUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	w := getReq(HistoryHandler(srv), "/history?server_id=s1&channel_id=c1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/nope", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoundTimerConcludesGame(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	game, err := srv.Manager.CreateGame(ctx, "s-timer", "c1", "host", 1, 30)
	require.NoError(t, err)

	// Pull the deadline in so the test does not wait out a real round, and
	// pin the puzzle so the submission below is exact.
	game.EndTime = time.Now().Add(250 * time.Millisecond).UnixMilli()
	game.Target = 100
	game.Numbers = []int{25, 50, 75, 3, 6}
	require.NoError(t, st.SaveGame(ctx, game, time.Minute))

	srv.Games.AnnounceGame(game)
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics.ActiveGames))

	sub, err := srv.Manager.SubmitAnswer(ctx, "s-timer", "c1", "alice", "25+75")
	require.NoError(t, err)
	require.True(t, sub.Valid)

	require.Eventually(t, func() bool {
		g, gerr := st.GetGame(ctx, "s-timer", "c1")
		return gerr == nil && g == nil
	}, 3*time.Second, 20*time.Millisecond, "round deadline never concluded the game")

	assert.Equal(t, float64(0), testutil.ToFloat64(srv.Metrics.ActiveGames))

	// the exact answer banked its points on the server leaderboard
	entries, err := srv.Manager.Leaderboard(ctx, "s-timer", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, 10, entries[0].Score)
}

func TestSweepAdoptsOrphanedGame(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	game, err := srv.Manager.CreateGame(ctx, "s-sweep", "c1", "host", 1, 30)
	require.NoError(t, err)
	game.EndTime = time.Now().Add(30 * time.Millisecond).UnixMilli()
	require.NoError(t, st.SaveGame(ctx, game, time.Minute))

	// No AnnounceGame call: the game looks like one whose timer died with a
	// previous process. A sweep should adopt it and arm a fresh timer.
	srv.Games.sweep()

	require.Eventually(t, func() bool {
		g, gerr := st.GetGame(ctx, "s-sweep", "c1")
		return gerr == nil && g == nil
	}, 3*time.Second, 20*time.Millisecond, "sweeper never adopted the orphaned game")
}
