// internal/handlers/history.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/binkiewka/countdown-service/internal/database"
	"github.com/binkiewka/countdown-service/internal/models"
)

type historyResponse struct {
	ServerID  string               `json:"server_id"`
	ChannelID string               `json:"channel_id"`
	Rounds    []models.RoundRecord `json:"rounds"`
}

// HistoryHandler returns the channel's archived rounds, newest first. The
// archive lives in PostgreSQL and is written by the historian; without a
// database connection the endpoint reports unavailable.
func HistoryHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database.DB == nil {
			http.Error(w, "round archive not configured", http.StatusServiceUnavailable)
			return
		}
		serverID := r.URL.Query().Get("server_id")
		channelID := r.URL.Query().Get("channel_id")
		if serverID == "" || channelID == "" {
			http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		rounds, err := database.RecentRounds(r.Context(), serverID, channelID, limit)
		if err != nil {
			s.Logger.Errorf("history query failed: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, historyResponse{ServerID: serverID, ChannelID: channelID, Rounds: rounds})
	}
}
