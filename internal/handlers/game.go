// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/models"
)

// StartGameHandler converts the channel's lobby into a running game. Host
// only; the lobby's negotiated settings carry over.
func StartGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChannelRequest(w, r)
		if !ok {
			return
		}
		game, err := s.Manager.StartGameFromLobby(r.Context(), req.ServerID, req.ChannelID, req.UserID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		s.Metrics.GamesStarted.WithLabelValues("lobby").Inc()
		s.Games.AnnounceGame(game)
		writeJSON(w, game)
	}
}

type createGameRequest struct {
	channelRequest
	Rounds   int `json:"rounds"`
	Duration int `json:"duration"`
}

// CreateGameHandler starts a game directly, without lobby negotiation.
// Zero rounds or duration use the configured defaults.
func CreateGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		if req.ServerID == "" || req.ChannelID == "" {
			http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
			return
		}
		game, err := s.Manager.CreateGame(r.Context(), req.ServerID, req.ChannelID, req.UserID, req.Rounds, req.Duration)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		s.Metrics.GamesStarted.WithLabelValues("direct").Inc()
		s.Games.AnnounceGame(game)
		writeJSON(w, game)
	}
}

type gameStateResponse struct {
	Game            *models.GameState `json:"game"`
	TimeRemainingMS int64             `json:"time_remaining_ms"`
}

// GameStateHandler returns the channel's active game and the server-side
// clock's view of the remaining time.
func GameStateHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server_id")
		channelID := r.URL.Query().Get("channel_id")
		if serverID == "" || channelID == "" {
			http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
			return
		}
		game, err := s.Manager.GetActiveGame(r.Context(), serverID, channelID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		if game == nil {
			http.Error(w, countdown.ErrNoActiveGame.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, gameStateResponse{
			Game:            game,
			TimeRemainingMS: game.TimeRemaining().Milliseconds(),
		})
	}
}

type submitRequest struct {
	channelRequest
	Expression string `json:"expression"`
}

// SubmitAnswerHandler records the caller's answer for the current round.
// Invalid expressions are a 200 with valid=false; only precondition
// violations (no game, time up, already submitted) are HTTP errors.
func SubmitAnswerHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		if req.ServerID == "" || req.ChannelID == "" || req.UserID == "" {
			http.Error(w, "server_id, channel_id and user_id are required", http.StatusBadRequest)
			return
		}
		sub, err := s.Manager.SubmitAnswer(r.Context(), req.ServerID, req.ChannelID, req.UserID, req.Expression)
		if err != nil {
			if errors.Is(err, countdown.ErrTimeUp) || errors.Is(err, countdown.ErrAlreadySubmitted) {
				s.Metrics.Submissions.WithLabelValues("rejected").Inc()
			}
			s.writeManagerError(w, err)
			return
		}
		if sub.Valid {
			s.Metrics.Submissions.WithLabelValues("valid").Inc()
		} else {
			s.Metrics.Submissions.WithLabelValues("invalid").Inc()
		}
		s.Games.AnnounceSubmission(req.ServerID, req.ChannelID, sub)
		writeJSON(w, sub)
	}
}

// CancelGameHandler aborts the channel's active game. Only the user who
// started it may cancel.
func CancelGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChannelRequest(w, r)
		if !ok {
			return
		}
		found, err := s.Manager.CancelGame(r.Context(), req.ServerID, req.ChannelID, req.UserID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		if !found {
			http.Error(w, countdown.ErrNoActiveGame.Error(), http.StatusNotFound)
			return
		}
		s.Games.DropGame(req.ServerID, req.ChannelID)
		writeJSON(w, map[string]bool{"cancelled": true})
	}
}
