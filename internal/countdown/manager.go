// internal/countdown/manager.go
package countdown

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/binkiewka/countdown-service/internal/config"
	"github.com/binkiewka/countdown-service/internal/expr"
	"github.com/binkiewka/countdown-service/internal/models"
	"github.com/binkiewka/countdown-service/internal/store"
)

// Manager owns the lobby and game lifecycle for every (server, channel)
// pair. All state lives in the injected Store; the Manager itself is
// stateless and safe for concurrent use. The once-per-user submission
// guarantee comes from the store's atomic PutSubmission, not from locking.
type Manager struct {
	store store.Store
	rules config.RulesConfig
}

func NewManager(st store.Store, rules config.RulesConfig) *Manager {
	return &Manager{store: st, rules: rules}
}

// Rules returns the game rules the manager was built with.
func (m *Manager) Rules() config.RulesConfig {
	return m.rules
}

// generateNumbers draws a fresh number set: LargeCount distinct values from
// the large set, SmallCount values from the small range with replacement.
func (m *Manager) generateNumbers() (all, large, small []int) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	perm := r.Perm(len(m.rules.LargeSet))
	large = make([]int, m.rules.LargeCount)
	for i := range large {
		large[i] = m.rules.LargeSet[perm[i]]
	}

	small = make([]int, m.rules.SmallCount)
	for i := range small {
		small[i] = m.rules.SmallMin + r.Intn(m.rules.SmallMax-m.rules.SmallMin+1)
	}

	all = make([]int, 0, len(large)+len(small))
	all = append(all, large...)
	all = append(all, small...)
	return all, large, small
}

func (m *Manager) generateTarget() int {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return m.rules.TargetMin + r.Intn(m.rules.TargetMax-m.rules.TargetMin+1)
}

// gameTTL is the persistence lifetime of game and submission records: the
// round length plus slack so results can still be read after the deadline.
func (m *Manager) gameTTL(duration int) time.Duration {
	return time.Duration(duration)*time.Second + m.rules.RecordGrace
}

// CreateLobby opens a lobby for the channel with the host pre-marked ready
// and default settings. Fails when a lobby or an active game already exists.
func (m *Manager) CreateLobby(ctx context.Context, serverID, channelID, hostID string) (*models.GameLobby, error) {
	existing, err := m.store.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrLobbyExists
	}
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if game != nil {
		return nil, ErrGameActive
	}

	lobby := &models.GameLobby{
		ServerID:  serverID,
		ChannelID: channelID,
		HostID:    hostID,
		Rounds:    m.rules.DefaultRounds,
		Duration:  m.rules.DefaultDuration,
		Ready:     map[string]bool{hostID: true},
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.SaveLobby(ctx, lobby, m.rules.LobbyTTL); err != nil {
		return nil, err
	}
	return lobby, nil
}

// GetLobby returns the channel's open lobby, or ErrNoLobby.
func (m *Manager) GetLobby(ctx context.Context, serverID, channelID string) (*models.GameLobby, error) {
	lobby, err := m.store.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if lobby == nil {
		return nil, ErrNoLobby
	}
	return lobby, nil
}

// ToggleReady flips the user's ready flag and reports the new value.
// Toggling is idempotent in the sense that repeated calls simply alternate.
func (m *Manager) ToggleReady(ctx context.Context, serverID, channelID, userID string) (*models.GameLobby, bool, error) {
	lobby, err := m.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, false, err
	}
	if lobby.Ready == nil {
		lobby.Ready = make(map[string]bool)
	}
	ready := !lobby.Ready[userID]
	if ready {
		lobby.Ready[userID] = true
	} else {
		delete(lobby.Ready, userID)
	}
	if err := m.store.SaveLobby(ctx, lobby, m.rules.LobbyTTL); err != nil {
		return nil, false, err
	}
	return lobby, ready, nil
}

// UpdateLobbySettings lets the host change round count and duration.
func (m *Manager) UpdateLobbySettings(ctx context.Context, serverID, channelID, userID string, rounds, duration int) (*models.GameLobby, error) {
	lobby, err := m.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if !lobby.IsHost(userID) {
		return nil, ErrNotHost
	}
	if !m.rules.ValidRounds(rounds) {
		return nil, fmt.Errorf("%w: rounds must be between 1 and %d", ErrBadSettings, m.rules.MaxRounds)
	}
	if !m.rules.ValidDuration(duration) {
		return nil, fmt.Errorf("%w: duration must be one of %v seconds", ErrBadSettings, m.rules.Durations)
	}
	lobby.Rounds = rounds
	lobby.Duration = duration
	if err := m.store.SaveLobby(ctx, lobby, m.rules.LobbyTTL); err != nil {
		return nil, err
	}
	return lobby, nil
}

// CancelLobby deletes the lobby. Only the host may cancel; cancelling when
// no lobby exists reports found=false rather than an error.
func (m *Manager) CancelLobby(ctx context.Context, serverID, channelID, userID string) (bool, error) {
	lobby, err := m.store.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return false, err
	}
	if lobby == nil {
		return false, nil
	}
	if !lobby.IsHost(userID) {
		return false, ErrNotHost
	}
	return m.store.DeleteLobby(ctx, serverID, channelID)
}

// StartGameFromLobby converts the lobby into an active game using its
// negotiated settings, deleting the lobby. Host only.
func (m *Manager) StartGameFromLobby(ctx context.Context, serverID, channelID, userID string) (*models.GameState, error) {
	lobby, err := m.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if !lobby.IsHost(userID) {
		return nil, ErrNotHost
	}
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if game != nil {
		return nil, ErrGameActive
	}
	if _, err := m.store.DeleteLobby(ctx, serverID, channelID); err != nil {
		return nil, err
	}
	return m.createGame(ctx, serverID, channelID, lobby.HostID, lobby.Rounds, lobby.Duration)
}

// CreateGame starts a game directly, bypassing the lobby. Zero rounds or
// duration fall back to the configured defaults.
func (m *Manager) CreateGame(ctx context.Context, serverID, channelID, startedBy string, rounds, duration int) (*models.GameState, error) {
	if rounds == 0 {
		rounds = m.rules.DefaultRounds
	}
	if duration == 0 {
		duration = m.rules.DefaultDuration
	}
	if !m.rules.ValidRounds(rounds) {
		return nil, fmt.Errorf("%w: rounds must be between 1 and %d", ErrBadSettings, m.rules.MaxRounds)
	}
	if !m.rules.ValidDuration(duration) {
		return nil, fmt.Errorf("%w: duration must be one of %v seconds", ErrBadSettings, m.rules.Durations)
	}

	lobby, err := m.store.GetLobby(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if lobby != nil {
		// A lobby never coexists with an active game; start it instead.
		return nil, ErrLobbyExists
	}
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if game != nil {
		return nil, ErrGameActive
	}
	return m.createGame(ctx, serverID, channelID, startedBy, rounds, duration)
}

func (m *Manager) createGame(ctx context.Context, serverID, channelID, startedBy string, rounds, duration int) (*models.GameState, error) {
	numbers, large, small := m.generateNumbers()
	now := time.Now()

	game := &models.GameState{
		ID:            uuid.New(),
		Target:        m.generateTarget(),
		Numbers:       numbers,
		LargeNumbers:  large,
		SmallNumbers:  small,
		StartTime:     now.UnixMilli(),
		EndTime:       now.Add(time.Duration(duration) * time.Second).UnixMilli(),
		Status:        models.StatusActive,
		ServerID:      serverID,
		ChannelID:     channelID,
		StartedBy:     startedBy,
		CurrentRound:  1,
		TotalRounds:   rounds,
		RoundDuration: duration,
		GameScores:    map[string]int{},
	}
	if err := m.store.SaveGame(ctx, game, m.gameTTL(duration)); err != nil {
		return nil, err
	}
	return game, nil
}

// GetActiveGame returns the channel's game if one is active, else nil.
func (m *Manager) GetActiveGame(ctx context.Context, serverID, channelID string) (*models.GameState, error) {
	game, err := m.store.GetGame(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if game == nil || game.Status != models.StatusActive {
		return nil, nil
	}
	return game, nil
}

// SubmitAnswer validates and records a player's answer for the current
// round. The deadline check uses the stored end time, never client input,
// and the store's atomic put rejects a second racing submission.
func (m *Manager) SubmitAnswer(ctx context.Context, serverID, channelID, userID, expression string) (*models.Submission, error) {
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrNoActiveGame
	}
	if game.IsExpired() {
		return nil, ErrTimeUp
	}

	res := expr.ParseAndValidate(expression, game.Numbers)
	sub := &models.Submission{
		UserID:      userID,
		Expression:  expression,
		SubmittedAt: time.Now().UnixMilli(),
	}
	if res.Valid {
		value := res.Int()
		sub.Result = &value
		// Distance is taken on the exact value, so a fractional result
		// rounds up and never scores as an exact hit.
		sub.Distance = res.DistanceTo(game.Target)
		sub.Valid = true
	} else {
		sub.Distance = models.InvalidDistance
		sub.Error = res.Error
	}

	stored, err := m.store.PutSubmission(ctx, serverID, channelID, sub, m.gameTTL(game.RoundDuration))
	if err != nil {
		return nil, err
	}
	if !stored {
		return nil, ErrAlreadySubmitted
	}
	return sub, nil
}

// EndRound collects and clears the round's submissions, keeping the game
// record for the next round. Scoring is the caller's concern.
func (m *Manager) EndRound(ctx context.Context, serverID, channelID string) (*models.GameState, []*models.Submission, error) {
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, nil, err
	}
	if game == nil {
		return nil, nil, ErrNoActiveGame
	}
	subs, err := m.store.ListSubmissions(ctx, serverID, channelID)
	if err != nil {
		return nil, nil, err
	}
	if err := m.store.DeleteSubmissions(ctx, serverID, channelID); err != nil {
		return nil, nil, err
	}
	return game, subs, nil
}

// AdvanceRound merges the round's points into the cumulative scores, then
// either starts the next round with fresh target and numbers or, after the
// final round, ends and deletes the game. finished reports which happened;
// the returned state is the new round, or the ended final state.
func (m *Manager) AdvanceRound(ctx context.Context, serverID, channelID string, roundPoints map[string]int) (*models.GameState, bool, error) {
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, false, err
	}
	if game == nil {
		return nil, false, ErrNoActiveGame
	}

	if game.GameScores == nil {
		game.GameScores = make(map[string]int)
	}
	for user, pts := range roundPoints {
		if pts > 0 {
			game.GameScores[user] += pts
		}
	}

	if game.FinalRound() {
		game.Status = models.StatusEnded
		if _, err := m.store.DeleteGame(ctx, serverID, channelID); err != nil {
			return nil, false, err
		}
		if err := m.store.DeleteSubmissions(ctx, serverID, channelID); err != nil {
			return nil, false, err
		}
		return game, true, nil
	}

	game.CurrentRound++
	game.Numbers, game.LargeNumbers, game.SmallNumbers = m.generateNumbers()
	game.Target = m.generateTarget()
	now := time.Now()
	game.StartTime = now.UnixMilli()
	game.EndTime = now.Add(time.Duration(game.RoundDuration) * time.Second).UnixMilli()
	if err := m.store.SaveGame(ctx, game, m.gameTTL(game.RoundDuration)); err != nil {
		return nil, false, err
	}
	return game, false, nil
}

// EndGame ends the game immediately, collecting any remaining submissions
// and deleting all records. Single-round flow; multi-round games normally
// finish through AdvanceRound.
func (m *Manager) EndGame(ctx context.Context, serverID, channelID string) (*models.GameState, []*models.Submission, error) {
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return nil, nil, err
	}
	if game == nil {
		return nil, nil, ErrNoActiveGame
	}
	subs, err := m.store.ListSubmissions(ctx, serverID, channelID)
	if err != nil {
		return nil, nil, err
	}
	game.Status = models.StatusEnded
	if _, err := m.store.DeleteGame(ctx, serverID, channelID); err != nil {
		return nil, nil, err
	}
	if err := m.store.DeleteSubmissions(ctx, serverID, channelID); err != nil {
		return nil, nil, err
	}
	return game, subs, nil
}

// CancelGame deletes the channel's active game. Only the user who started
// it may cancel. Cancelling when nothing is active reports found=false.
func (m *Manager) CancelGame(ctx context.Context, serverID, channelID, userID string) (bool, error) {
	game, err := m.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		return false, err
	}
	if game == nil {
		return false, nil
	}
	if game.StartedBy != userID {
		return false, ErrNotHost
	}
	if _, err := m.store.DeleteGame(ctx, serverID, channelID); err != nil {
		return false, err
	}
	if err := m.store.DeleteSubmissions(ctx, serverID, channelID); err != nil {
		return false, err
	}
	return true, nil
}

// DetermineWinners ranks valid submissions best first: smallest distance,
// ties broken by earliest submission.
func DetermineWinners(submissions []*models.Submission) []*models.Submission {
	valid := make([]*models.Submission, 0, len(submissions))
	for _, s := range submissions {
		if s.Valid {
			valid = append(valid, s)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Distance != valid[j].Distance {
			return valid[i].Distance < valid[j].Distance
		}
		return valid[i].SubmittedAt < valid[j].SubmittedAt
	})
	return valid
}
