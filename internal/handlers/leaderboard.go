// internal/handlers/leaderboard.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/binkiewka/countdown-service/internal/models"
)

type leaderboardResponse struct {
	ServerID string                    `json:"server_id"`
	Entries  []models.LeaderboardEntry `json:"entries"`
}

// LeaderboardHandler returns the server's top scorers, best first.
func LeaderboardHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server_id")
		if serverID == "" {
			http.Error(w, "server_id is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		entries, err := s.Manager.Leaderboard(r.Context(), serverID, limit)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		writeJSON(w, leaderboardResponse{ServerID: serverID, Entries: entries})
	}
}
