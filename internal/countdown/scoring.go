// internal/countdown/scoring.go
package countdown

import (
	"context"

	"github.com/binkiewka/countdown-service/internal/models"
)

// PointsFor maps a submission's distance to points: exact hits score
// highest, then two near-miss bands, then nothing.
func (m *Manager) PointsFor(distance int) int {
	p := m.rules.Points
	switch {
	case distance == 0:
		return p.ExactPoints
	case distance <= p.NearDistance:
		return p.NearPoints
	case distance <= p.FarDistance:
		return p.FarPoints
	default:
		return 0
	}
}

// ScoreRound computes the points each user earned this round. Invalid
// submissions and zero-point distances earn no entry.
func (m *Manager) ScoreRound(submissions []*models.Submission) map[string]int {
	points := make(map[string]int)
	for _, s := range submissions {
		if !s.Valid {
			continue
		}
		if pts := m.PointsFor(s.Distance); pts > 0 {
			points[s.UserID] = pts
		}
	}
	return points
}

// UpdateScores awards round points and adds them to the server's all-time
// leaderboard. Returns the per-user awards.
func (m *Manager) UpdateScores(ctx context.Context, serverID string, submissions []*models.Submission) (map[string]int, error) {
	points := m.ScoreRound(submissions)
	if len(points) == 0 {
		return points, nil
	}
	if err := m.store.AddScores(ctx, serverID, points); err != nil {
		return nil, err
	}
	return points, nil
}

// Leaderboard returns the server's top scorers, defaulting to ten entries.
func (m *Manager) Leaderboard(ctx context.Context, serverID string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.store.Leaderboard(ctx, serverID, limit)
}
