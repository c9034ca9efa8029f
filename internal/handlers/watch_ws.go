// internal/handlers/watch_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/binkiewka/countdown-service/internal/auth"
	"github.com/binkiewka/countdown-service/internal/middleware"
	"github.com/binkiewka/countdown-service/internal/models"
)

// WatchEvent is the envelope for every message pushed to watch clients.
// Round results carry the full submissions; the in-round submission event
// only names the user so answers stay hidden until the deadline.
type WatchEvent struct {
	Type        string               `json:"type"`
	ServerID    string               `json:"server_id,omitempty"`
	ChannelID   string               `json:"channel_id,omitempty"`
	Game        *models.GameState    `json:"game,omitempty"`
	UserID      string               `json:"user_id,omitempty"`
	Results     []*models.Submission `json:"results,omitempty"`
	Points      map[string]int       `json:"points,omitempty"`
	BestExpr    string               `json:"best_expr,omitempty"`
	BestValue   int                  `json:"best_value,omitempty"`
	FinalScores map[string]int       `json:"final_scores,omitempty"`
}

// watchHub tracks spectator connections per channel.
type watchHub struct {
	mu       sync.Mutex
	channels map[string]map[*websocket.Conn]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{channels: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *watchHub) add(key string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.channels[key]
	if !ok {
		conns = make(map[*websocket.Conn]struct{})
		h.channels[key] = conns
	}
	conns[c] = struct{}{}
}

func (h *watchHub) remove(key string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[key]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.channels, key)
		}
	}
}

// broadcast sends the event to every watcher of the channel. Writes run
// asynchronously with their own timeout so a slow client cannot stall the
// round loop.
func (h *watchHub) broadcast(key string, ev WatchEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.channels[key]))
	for c := range h.channels[key] {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	go func() {
		for _, c := range conns {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = c.Write(ctx, websocket.MessageText, data)
			cancel()
		}
	}()
}

// WatchWSHandler upgrades spectators onto a channel's event feed at
// /game/watch/{server}/{channel}. Clients authenticate with a session JWT
// (?token=) minted by POST /session; the read loop only answers pings.
func WatchWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/game/watch/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			http.Error(w, "Missing channel in path (/game/watch/{server}/{channel})", http.StatusBadRequest)
			return
		}
		serverID, channelID := parts[0], parts[1]

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"watch"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for %s/%s: %v", serverID, channelID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "watch" {
			c.Close(websocket.StatusCode(BadSubprotocolError), "Client must use the 'watch' subprotocol.")
			return
		}
		if s.apiKeyHash != "" {
			if _, err := auth.AuthenticateJWT(r.URL.Query().Get("token")); err != nil {
				logger.Warnf("Watch auth failed for %s/%s: %v", serverID, channelID, err)
				c.Close(websocket.StatusCode(InvalidAuthTokenError), "Invalid or missing watch token.")
				return
			}
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		key := channelKey(serverID, channelID)
		s.Games.Hub.add(key, c)
		defer s.Games.Hub.remove(key, c)

		// Late joiners get the current round immediately.
		if game, err := s.Manager.GetActiveGame(r.Context(), serverID, channelID); err == nil && game != nil {
			sendWatchMessage(c, WatchEvent{
				Type:      "game_state",
				ServerID:  serverID,
				ChannelID: channelID,
				Game:      game,
			})
		}

		readWatchMessages(r.Context(), c, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readWatchMessages blocks reading from the spectator until disconnect.
// Watchers are read-only; pings are answered, everything else is ignored.
func readWatchMessages(ctx context.Context, c *websocket.Conn, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Debugf("watch read ended: %v", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			sendWatchMessage(c, WatchEvent{Type: "pong"})
		}
	}
}

// sendWatchMessage writes one event with its own timeout.
func sendWatchMessage(c *websocket.Conn, ev WatchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.Write(ctx, websocket.MessageText, data)
}
