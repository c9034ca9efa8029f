// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/binkiewka/countdown-service/internal/auth"
)

type sessionRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// SessionHandler mints a short-lived watch token. The bot calls this with
// its API key and hands the token to the activity client, which presents it
// on the watch WebSocket.
func SessionHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			req.UserID = "spectator"
		}

		token, err := auth.CreateJWT(req.UserID)
		if err != nil {
			s.Logger.Errorf("failed to create session token: %v", err)
			http.Error(w, "failed to create session token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, sessionResponse{Token: token})
	}
}
