// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus is the lifecycle state of a game record.
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusEnded     GameStatus = "ended"
	StatusCancelled GameStatus = "cancelled"
)

// GameState is one active Countdown numbers game in a channel. A multi-round
// game keeps a single GameState across rounds: Target and Numbers are
// regenerated on every round advance, and cumulative points live in GameScores.
type GameState struct {
	ID           uuid.UUID `json:"id"`
	Target       int       `json:"target"`
	Numbers      []int     `json:"numbers"`
	LargeNumbers []int     `json:"large_numbers"`
	SmallNumbers []int     `json:"small_numbers"`

	StartTime int64      `json:"start_time"` // unix millis
	EndTime   int64      `json:"end_time"`   // unix millis, the round deadline
	Status    GameStatus `json:"status"`

	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`
	StartedBy string `json:"started_by"`
	MessageID string `json:"message_id,omitempty"`

	CurrentRound  int `json:"current_round"`
	TotalRounds   int `json:"total_rounds"`
	RoundDuration int `json:"round_duration"` // seconds per round

	// GameScores accumulates points per user across the rounds of this game.
	GameScores map[string]int `json:"game_scores"`
}

// TimeRemaining reports how long until the round deadline, floored at zero.
func (g *GameState) TimeRemaining() time.Duration {
	rem := time.Until(time.UnixMilli(g.EndTime))
	if rem < 0 {
		return 0
	}
	return rem
}

// IsExpired reports whether the round deadline has passed. The deadline is
// always computed from the stored EndTime, never from anything client-supplied.
func (g *GameState) IsExpired() bool {
	return !time.Now().Before(time.UnixMilli(g.EndTime))
}

// FinalRound reports whether the game is on its last round.
func (g *GameState) FinalRound() bool {
	return g.CurrentRound >= g.TotalRounds
}
