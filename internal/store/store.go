// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/binkiewka/countdown-service/internal/models"
)

// Store is the persistence contract the game engine requires: keyed records
// with TTLs, an atomic once-per-user submission write, and an atomically
// incremented per-server leaderboard. Get methods return (nil, nil) when no
// record exists; errors are reserved for storage failures.
type Store interface {
	SaveGame(ctx context.Context, game *models.GameState, ttl time.Duration) error
	GetGame(ctx context.Context, serverID, channelID string) (*models.GameState, error)
	DeleteGame(ctx context.Context, serverID, channelID string) (bool, error)

	// ListActiveGames returns every stored game still marked active, across
	// all servers and channels. Used by the deadline sweeper to adopt games
	// whose in-process timer was lost.
	ListActiveGames(ctx context.Context) ([]*models.GameState, error)

	// PutSubmission stores the submission keyed by user unless that user
	// already has one this round. Returns false when the slot was taken.
	PutSubmission(ctx context.Context, serverID, channelID string, sub *models.Submission, ttl time.Duration) (bool, error)
	GetSubmission(ctx context.Context, serverID, channelID, userID string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, serverID, channelID string) ([]*models.Submission, error)
	DeleteSubmissions(ctx context.Context, serverID, channelID string) error

	SaveLobby(ctx context.Context, lobby *models.GameLobby, ttl time.Duration) error
	GetLobby(ctx context.Context, serverID, channelID string) (*models.GameLobby, error)
	DeleteLobby(ctx context.Context, serverID, channelID string) (bool, error)

	// AddScores increments each user's all-time score for the server.
	AddScores(ctx context.Context, serverID string, points map[string]int) error
	Leaderboard(ctx context.Context, serverID string, limit int) ([]models.LeaderboardEntry, error)
}

func gameKey(serverID, channelID string) string {
	return fmt.Sprintf("countdown:game:%s:%s", serverID, channelID)
}

func submissionsKey(serverID, channelID string) string {
	return fmt.Sprintf("countdown:submissions:%s:%s", serverID, channelID)
}

func lobbyKey(serverID, channelID string) string {
	return fmt.Sprintf("countdown:lobby:%s:%s", serverID, channelID)
}

func leaderboardKey(serverID string) string {
	return fmt.Sprintf("countdown:leaderboard:%s", serverID)
}
