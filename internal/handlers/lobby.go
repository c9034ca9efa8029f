// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/models"
)

// CreateLobbyHandler opens a lobby for the channel with the caller as host.
func CreateLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChannelRequest(w, r)
		if !ok {
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		lobby, err := s.Manager.CreateLobby(r.Context(), req.ServerID, req.ChannelID, req.UserID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		writeJSON(w, lobby)
	}
}

// LobbyStateHandler returns the channel's open lobby.
func LobbyStateHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server_id")
		channelID := r.URL.Query().Get("channel_id")
		if serverID == "" || channelID == "" {
			http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
			return
		}
		lobby, err := s.Manager.GetLobby(r.Context(), serverID, channelID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		writeJSON(w, lobby)
	}
}

type readyResponse struct {
	Lobby *models.GameLobby `json:"lobby"`
	Ready bool              `json:"ready"`
}

// ToggleReadyHandler flips the caller's ready flag in the lobby.
func ToggleReadyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChannelRequest(w, r)
		if !ok {
			return
		}
		lobby, ready, err := s.Manager.ToggleReady(r.Context(), req.ServerID, req.ChannelID, req.UserID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		writeJSON(w, readyResponse{Lobby: lobby, Ready: ready})
	}
}

type settingsRequest struct {
	channelRequest
	Rounds   int `json:"rounds"`
	Duration int `json:"duration"`
}

// UpdateLobbySettingsHandler lets the host change round count and duration.
func UpdateLobbySettingsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		if req.ServerID == "" || req.ChannelID == "" {
			http.Error(w, "server_id and channel_id are required", http.StatusBadRequest)
			return
		}
		lobby, err := s.Manager.UpdateLobbySettings(r.Context(), req.ServerID, req.ChannelID, req.UserID, req.Rounds, req.Duration)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		writeJSON(w, lobby)
	}
}

// CancelLobbyHandler closes the lobby. Host only.
func CancelLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChannelRequest(w, r)
		if !ok {
			return
		}
		found, err := s.Manager.CancelLobby(r.Context(), req.ServerID, req.ChannelID, req.UserID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		if !found {
			http.Error(w, countdown.ErrNoLobby.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]bool{"cancelled": true})
	}
}
