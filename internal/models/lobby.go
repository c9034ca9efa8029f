// internal/models/lobby.go
package models

import "time"

// GameLobby is the pre-game negotiation state for a channel: the host picks
// the round count and round duration while players ready up. At most one
// lobby exists per (server, channel), and never alongside an active game.
type GameLobby struct {
	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`
	HostID    string `json:"host_id"`
	MessageID string `json:"message_id,omitempty"`

	Rounds   int `json:"rounds"`   // 1..5
	Duration int `json:"duration"` // seconds per round

	// Ready maps user id -> ready flag. The host is pre-marked on creation.
	Ready map[string]bool `json:"ready"`

	CreatedAt int64 `json:"created_at"` // unix millis
}

// IsHost reports whether userID opened this lobby.
func (l *GameLobby) IsHost(userID string) bool { return userID == l.HostID }

// ReadyCount counts users currently marked ready.
func (l *GameLobby) ReadyCount() int {
	n := 0
	for _, ok := range l.Ready {
		if ok {
			n++
		}
	}
	return n
}

// Age reports the time since the lobby was opened.
func (l *GameLobby) Age() time.Duration {
	return time.Since(time.UnixMilli(l.CreatedAt))
}
