// internal/models/leaderboard.go
package models

// LeaderboardEntry is one row of a per-server all-time ranking.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}
