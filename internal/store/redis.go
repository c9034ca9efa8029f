// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/binkiewka/countdown-service/internal/models"
)

// RedisStore persists game state as JSON records in Redis. Submissions live
// in a hash keyed by user so HSetNX gives the once-per-user guarantee even
// under concurrent submits; leaderboards are sorted sets.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SaveGame(ctx context.Context, game *models.GameState, ttl time.Duration) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}
	key := gameKey(game.ServerID, game.ChannelID)
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save game %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetGame(ctx context.Context, serverID, channelID string) (*models.GameState, error) {
	data, err := s.rdb.Get(ctx, gameKey(serverID, channelID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	var game models.GameState
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
	}
	return &game, nil
}

func (s *RedisStore) DeleteGame(ctx context.Context, serverID, channelID string) (bool, error) {
	n, err := s.rdb.Del(ctx, gameKey(serverID, channelID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete game: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) ListActiveGames(ctx context.Context) ([]*models.GameState, error) {
	var games []*models.GameState
	iter := s.rdb.Scan(ctx, 0, gameKey("*", "*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			// Expired between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load game %s: %w", iter.Val(), err)
		}
		var game models.GameState
		if err := json.Unmarshal(data, &game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
		}
		if game.Status == models.StatusActive {
			games = append(games, &game)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan games: %w", err)
	}
	return games, nil
}

func (s *RedisStore) PutSubmission(ctx context.Context, serverID, channelID string, sub *models.Submission, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("failed to marshal submission: %w", err)
	}
	key := submissionsKey(serverID, channelID)
	stored, err := s.rdb.HSetNX(ctx, key, sub.UserID, data).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store submission: %w", err)
	}
	if stored && ttl > 0 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return stored, fmt.Errorf("failed to expire submissions %s: %w", key, err)
		}
	}
	return stored, nil
}

func (s *RedisStore) GetSubmission(ctx context.Context, serverID, channelID, userID string) (*models.Submission, error) {
	data, err := s.rdb.HGet(ctx, submissionsKey(serverID, channelID), userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	var sub models.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	return &sub, nil
}

func (s *RedisStore) ListSubmissions(ctx context.Context, serverID, channelID string) ([]*models.Submission, error) {
	fields, err := s.rdb.HGetAll(ctx, submissionsKey(serverID, channelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	subs := make([]*models.Submission, 0, len(fields))
	for user, raw := range fields {
		var sub models.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission for %s: %w", user, err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (s *RedisStore) DeleteSubmissions(ctx context.Context, serverID, channelID string) error {
	if err := s.rdb.Del(ctx, submissionsKey(serverID, channelID)).Err(); err != nil {
		return fmt.Errorf("failed to delete submissions: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveLobby(ctx context.Context, lobby *models.GameLobby, ttl time.Duration) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby: %w", err)
	}
	key := lobbyKey(lobby.ServerID, lobby.ChannelID)
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save lobby %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetLobby(ctx context.Context, serverID, channelID string) (*models.GameLobby, error) {
	data, err := s.rdb.Get(ctx, lobbyKey(serverID, channelID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lobby: %w", err)
	}
	var lobby models.GameLobby
	if err := json.Unmarshal(data, &lobby); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lobby: %w", err)
	}
	return &lobby, nil
}

func (s *RedisStore) DeleteLobby(ctx context.Context, serverID, channelID string) (bool, error) {
	n, err := s.rdb.Del(ctx, lobbyKey(serverID, channelID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete lobby: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) AddScores(ctx context.Context, serverID string, points map[string]int) error {
	key := leaderboardKey(serverID)
	for user, pts := range points {
		if pts <= 0 {
			continue
		}
		if err := s.rdb.ZIncrBy(ctx, key, float64(pts), user).Err(); err != nil {
			return fmt.Errorf("failed to increment score for %s: %w", user, err)
		}
	}
	return nil
}

func (s *RedisStore) Leaderboard(ctx context.Context, serverID string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return []models.LeaderboardEntry{}, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey(serverID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		user, _ := z.Member.(string)
		entries = append(entries, models.LeaderboardEntry{UserID: user, Score: int(z.Score)})
	}
	return entries, nil
}
