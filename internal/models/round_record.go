// internal/models/round_record.go
package models

import "github.com/google/uuid"

// RoundRecord is the payload pushed onto the historian queue when a round
// closes. The historian drains the queue and archives finished rounds to
// Postgres in batches.
type RoundRecord struct {
	GameID      uuid.UUID      `json:"game_id"`
	ServerID    string         `json:"server_id"`
	ChannelID   string         `json:"channel_id"`
	Round       int            `json:"round"`
	TotalRounds int            `json:"total_rounds"`
	Target      int            `json:"target"`
	Numbers     []int          `json:"numbers"`
	BestExpr    string         `json:"best_expr,omitempty"`
	BestValue   int            `json:"best_value"`
	Submissions []Submission   `json:"submissions"`
	Points      map[string]int `json:"points"`
	Final       bool           `json:"final"`
	EndedAt     int64          `json:"ended_at"` // unix millis
}
