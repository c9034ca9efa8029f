// internal/store/memory.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/binkiewka/countdown-service/internal/models"
)

type record struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (r record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

type submissionSet struct {
	byUser    map[string][]byte
	order     []string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node development.
// Records round-trip through JSON exactly like the Redis implementation, so
// both backends honor the same serialization contract.
type MemoryStore struct {
	mu          sync.Mutex
	games       map[string]record
	lobbies     map[string]record
	submissions map[string]*submissionSet
	scores      map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:       make(map[string]record),
		lobbies:     make(map[string]record),
		submissions: make(map[string]*submissionSet),
		scores:      make(map[string]map[string]int),
	}
}

func (s *MemoryStore) SaveGame(ctx context.Context, game *models.GameState, ttl time.Duration) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[gameKey(game.ServerID, game.ChannelID)] = newRecord(data, ttl)
	return nil
}

func (s *MemoryStore) GetGame(ctx context.Context, serverID, channelID string) (*models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[gameKey(serverID, channelID)]
	if !ok || rec.expired(time.Now()) {
		delete(s.games, gameKey(serverID, channelID))
		return nil, nil
	}
	var game models.GameState
	if err := json.Unmarshal(rec.data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
	}
	return &game, nil
}

func (s *MemoryStore) DeleteGame(ctx context.Context, serverID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := gameKey(serverID, channelID)
	rec, ok := s.games[key]
	delete(s.games, key)
	return ok && !rec.expired(time.Now()), nil
}

func (s *MemoryStore) ListActiveGames(ctx context.Context) ([]*models.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var games []*models.GameState
	for key, rec := range s.games {
		if rec.expired(now) {
			delete(s.games, key)
			continue
		}
		var game models.GameState
		if err := json.Unmarshal(rec.data, &game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
		}
		if game.Status == models.StatusActive {
			games = append(games, &game)
		}
	}
	return games, nil
}

func (s *MemoryStore) PutSubmission(ctx context.Context, serverID, channelID string, sub *models.Submission, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("failed to marshal submission: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := submissionsKey(serverID, channelID)
	set, ok := s.submissions[key]
	if !ok || (!set.expiresAt.IsZero() && time.Now().After(set.expiresAt)) {
		set = &submissionSet{byUser: make(map[string][]byte)}
		s.submissions[key] = set
	}
	if _, taken := set.byUser[sub.UserID]; taken {
		return false, nil
	}
	set.byUser[sub.UserID] = data
	set.order = append(set.order, sub.UserID)
	if ttl > 0 {
		set.expiresAt = time.Now().Add(ttl)
	}
	return true, nil
}

func (s *MemoryStore) GetSubmission(ctx context.Context, serverID, channelID, userID string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.liveSubmissions(serverID, channelID)
	if !ok {
		return nil, nil
	}
	data, ok := set.byUser[userID]
	if !ok {
		return nil, nil
	}
	var sub models.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	return &sub, nil
}

func (s *MemoryStore) ListSubmissions(ctx context.Context, serverID, channelID string) ([]*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.liveSubmissions(serverID, channelID)
	if !ok {
		return []*models.Submission{}, nil
	}
	subs := make([]*models.Submission, 0, len(set.order))
	for _, user := range set.order {
		var sub models.Submission
		if err := json.Unmarshal(set.byUser[user], &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission for %s: %w", user, err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (s *MemoryStore) DeleteSubmissions(ctx context.Context, serverID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, submissionsKey(serverID, channelID))
	return nil
}

func (s *MemoryStore) SaveLobby(ctx context.Context, lobby *models.GameLobby, ttl time.Duration) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[lobbyKey(lobby.ServerID, lobby.ChannelID)] = newRecord(data, ttl)
	return nil
}

func (s *MemoryStore) GetLobby(ctx context.Context, serverID, channelID string) (*models.GameLobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lobbies[lobbyKey(serverID, channelID)]
	if !ok || rec.expired(time.Now()) {
		delete(s.lobbies, lobbyKey(serverID, channelID))
		return nil, nil
	}
	var lobby models.GameLobby
	if err := json.Unmarshal(rec.data, &lobby); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lobby: %w", err)
	}
	return &lobby, nil
}

func (s *MemoryStore) DeleteLobby(ctx context.Context, serverID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lobbyKey(serverID, channelID)
	rec, ok := s.lobbies[key]
	delete(s.lobbies, key)
	return ok && !rec.expired(time.Now()), nil
}

func (s *MemoryStore) AddScores(ctx context.Context, serverID string, points map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := s.scores[serverID]
	if board == nil {
		board = make(map[string]int)
		s.scores[serverID] = board
	}
	for user, pts := range points {
		if pts <= 0 {
			continue
		}
		board[user] += pts
	}
	return nil
}

func (s *MemoryStore) Leaderboard(ctx context.Context, serverID string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return []models.LeaderboardEntry{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	board := s.scores[serverID]
	entries := make([]models.LeaderboardEntry, 0, len(board))
	for user, score := range board {
		entries = append(entries, models.LeaderboardEntry{UserID: user, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// liveSubmissions returns the submission set unless it is absent or expired.
// Callers must hold s.mu.
func (s *MemoryStore) liveSubmissions(serverID, channelID string) (*submissionSet, bool) {
	key := submissionsKey(serverID, channelID)
	set, ok := s.submissions[key]
	if !ok {
		return nil, false
	}
	if !set.expiresAt.IsZero() && time.Now().After(set.expiresAt) {
		delete(s.submissions, key)
		return nil, false
	}
	return set, true
}

func newRecord(data []byte, ttl time.Duration) record {
	rec := record{data: data}
	if ttl > 0 {
		rec.expiresAt = time.Now().Add(ttl)
	}
	return rec
}
