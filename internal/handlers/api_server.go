// internal/handlers/api_server.go
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/binkiewka/countdown-service/internal/auth"
	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/metrics"
	"github.com/binkiewka/countdown-service/internal/middleware"
)

// Server carries the shared dependencies for the HTTP handlers. Bot calls
// authenticate with an API key checked against an argon2id hash; an empty
// hash disables auth for local development.
type Server struct {
	Logger  *logrus.Logger
	Manager *countdown.Manager
	Games   *GameServer
	Metrics *metrics.Metrics

	apiKeyHash string

	// provenKey remembers the last key that passed the argon2id check.
	// argon2id is deliberately expensive; only the first request pays.
	keyMu     sync.Mutex
	provenKey string
}

func NewServer(logger *logrus.Logger, manager *countdown.Manager, games *GameServer, m *metrics.Metrics, apiKeyHash string) *Server {
	return &Server{
		Logger:     logger,
		Manager:    manager,
		Games:      games,
		Metrics:    m,
		apiKeyHash: apiKeyHash,
	}
}

// Routes assembles the full HTTP surface behind the request-logging
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", HealthHandler)

	mux.HandleFunc("/session", s.requireAPIKey(SessionHandler(s)))

	// lobby endpoints
	mux.HandleFunc("/lobby/create", s.requireAPIKey(CreateLobbyHandler(s)))
	mux.HandleFunc("/lobby/state", s.requireAPIKey(LobbyStateHandler(s)))
	mux.HandleFunc("/lobby/ready", s.requireAPIKey(ToggleReadyHandler(s)))
	mux.HandleFunc("/lobby/settings", s.requireAPIKey(UpdateLobbySettingsHandler(s)))
	mux.HandleFunc("/lobby/cancel", s.requireAPIKey(CancelLobbyHandler(s)))

	// game endpoints
	mux.HandleFunc("/game/start", s.requireAPIKey(StartGameHandler(s)))
	mux.HandleFunc("/game/create", s.requireAPIKey(CreateGameHandler(s)))
	mux.HandleFunc("/game/state", s.requireAPIKey(GameStateHandler(s)))
	mux.HandleFunc("/game/submit", s.requireAPIKey(SubmitAnswerHandler(s)))
	mux.HandleFunc("/game/cancel", s.requireAPIKey(CancelGameHandler(s)))

	mux.HandleFunc("/leaderboard", s.requireAPIKey(LeaderboardHandler(s)))
	mux.HandleFunc("/solve", s.requireAPIKey(SolveHandler(s)))
	mux.HandleFunc("/history", s.requireAPIKey(HistoryHandler(s)))

	mux.Handle("/metrics", s.Metrics.Handler())

	root := http.NewServeMux()
	// The websocket upgrade hijacks the connection, so the watch route skips
	// the status-recording wrapper; the handler logs connects itself. It also
	// authenticates with a session JWT rather than the API key.
	root.Handle("/game/watch/", WatchWSHandler(s.Logger, s))
	root.Handle("/", middleware.LogMiddleware(s.Logger)(mux))
	return root
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// requireAPIKey rejects requests whose bearer token does not match the
// configured API key hash.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyHash == "" {
			next(w, r)
			return
		}
		if !s.checkAPIKey(bearerToken(r)) {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkAPIKey(key string) bool {
	if key == "" {
		return false
	}
	s.keyMu.Lock()
	proven := s.provenKey
	s.keyMu.Unlock()
	if proven != "" && subtle.ConstantTimeCompare([]byte(proven), []byte(key)) == 1 {
		return true
	}

	ok, err := auth.CompareKeyAndHash(key, s.apiKeyHash)
	if err != nil {
		s.Logger.Warnf("api key hash check failed: %v", err)
		return false
	}
	if !ok {
		return false
	}
	s.keyMu.Lock()
	s.provenKey = key
	s.keyMu.Unlock()
	return true
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header,
// or returns empty if not present.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// channelRequest is the common body for channel-scoped bot calls.
type channelRequest struct {
	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

func decodeChannelRequest(w http.ResponseWriter, r *http.Request) (channelRequest, bool) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return req, false
	}
	if req.ServerID == "" || req.ChannelID == "" {
		http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeManagerError maps the countdown package's sentinel errors onto HTTP
// statuses; anything unrecognized is an internal error.
func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, countdown.ErrNoLobby), errors.Is(err, countdown.ErrNoActiveGame):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, countdown.ErrNotHost):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, countdown.ErrBadSettings):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, countdown.ErrLobbyExists),
		errors.Is(err, countdown.ErrGameActive),
		errors.Is(err, countdown.ErrTimeUp),
		errors.Is(err, countdown.ErrAlreadySubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.Logger.Errorf("handler error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
