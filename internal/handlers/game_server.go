// internal/handlers/game_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/binkiewka/countdown-service/internal/cache"
	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/metrics"
	"github.com/binkiewka/countdown-service/internal/models"
	"github.com/binkiewka/countdown-service/internal/solver"
	"github.com/binkiewka/countdown-service/internal/store"
)

// GameServer drives round deadlines for every active game: one timer per
// channel, a sweeper that adopts games whose timer was lost (e.g. after a
// restart), and the fan-out of round events to watchers and the historian
// queue. Game state itself always lives in the store; the timers are only
// an optimization over polling.
type GameServer struct {
	Mutex   sync.Mutex
	Logger  *logrus.Logger
	Manager *countdown.Manager
	Store   store.Store
	Metrics *metrics.Metrics
	Hub     *watchHub

	timers map[string]*roundTimer
	done   chan struct{}
}

// roundTimer remembers which game and round the pending callback belongs
// to, so a stale timer firing after the state moved on can detect it.
type roundTimer struct {
	timer  *time.Timer
	gameID uuid.UUID
	round  int
}

func NewGameServer(logger *logrus.Logger, manager *countdown.Manager, st store.Store, m *metrics.Metrics) *GameServer {
	return &GameServer{
		Logger:  logger,
		Manager: manager,
		Store:   st,
		Metrics: m,
		Hub:     newWatchHub(),
		timers:  make(map[string]*roundTimer),
		done:    make(chan struct{}),
	}
}

func channelKey(serverID, channelID string) string {
	return serverID + "/" + channelID
}

// AnnounceGame registers a newly created game: schedules its deadline and
// tells watchers the first round started.
func (gs *GameServer) AnnounceGame(game *models.GameState) {
	gs.Metrics.ActiveGames.Inc()
	gs.announceRound(game)
}

// announceRound schedules the round's deadline and broadcasts round_started.
func (gs *GameServer) announceRound(game *models.GameState) {
	gs.schedule(game)
	gs.Hub.broadcast(channelKey(game.ServerID, game.ChannelID), WatchEvent{
		Type:      "round_started",
		ServerID:  game.ServerID,
		ChannelID: game.ChannelID,
		Game:      game,
	})
}

// AnnounceSubmission tells watchers a user locked in an answer. The
// expression stays hidden until the round ends.
func (gs *GameServer) AnnounceSubmission(serverID, channelID string, sub *models.Submission) {
	gs.Hub.broadcast(channelKey(serverID, channelID), WatchEvent{
		Type:      "submission_received",
		ServerID:  serverID,
		ChannelID: channelID,
		UserID:    sub.UserID,
	})
}

// DropGame cancels deadline tracking for a cancelled game.
func (gs *GameServer) DropGame(serverID, channelID string) {
	if gs.removeTimer(channelKey(serverID, channelID)) {
		gs.Metrics.ActiveGames.Dec()
	}
	gs.Hub.broadcast(channelKey(serverID, channelID), WatchEvent{
		Type:      "game_cancelled",
		ServerID:  serverID,
		ChannelID: channelID,
	})
}

// schedule arms (or re-arms) the channel's deadline timer for the given
// round. The callback captures the game id and round so it can recognize
// staleness when it finally runs.
func (gs *GameServer) schedule(game *models.GameState) {
	key := channelKey(game.ServerID, game.ChannelID)
	wait := time.Until(time.UnixMilli(game.EndTime))
	if wait < 0 {
		wait = 0
	}

	gs.Mutex.Lock()
	defer gs.Mutex.Unlock()
	if old, ok := gs.timers[key]; ok {
		old.timer.Stop()
	}
	gameID, round := game.ID, game.CurrentRound
	gs.timers[key] = &roundTimer{
		timer: time.AfterFunc(wait, func() {
			gs.concludeRound(game.ServerID, game.ChannelID, gameID, round)
		}),
		gameID: gameID,
		round:  round,
	}
}

func (gs *GameServer) removeTimer(key string) bool {
	gs.Mutex.Lock()
	defer gs.Mutex.Unlock()
	rt, ok := gs.timers[key]
	if ok {
		rt.timer.Stop()
		delete(gs.timers, key)
	}
	return ok
}

// concludeRound runs when a round's deadline passes: it collects and scores
// submissions, finds the best possible solution, publishes the archive
// record, and either advances to the next round or finishes the game.
// The timer that fired may be stale (the game was cancelled, replaced, or
// already advanced), so everything is re-checked against the store first.
func (gs *GameServer) concludeRound(serverID, channelID string, gameID uuid.UUID, round int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := channelKey(serverID, channelID)

	game, err := gs.Manager.GetActiveGame(ctx, serverID, channelID)
	if err != nil {
		gs.Logger.Errorf("round conclude: load game %s: %v", key, err)
		return
	}
	if game == nil || game.ID != gameID || game.CurrentRound != round {
		// Stale timer; whatever owns the channel now has its own.
		return
	}
	if !game.IsExpired() {
		// Deadline moved; wait for the new one.
		gs.schedule(game)
		return
	}

	game, subs, err := gs.Manager.EndRound(ctx, serverID, channelID)
	if err != nil {
		gs.Logger.Errorf("round conclude: end round %s: %v", key, err)
		return
	}
	gs.Metrics.RoundsPlayed.Inc()

	points, err := gs.Manager.UpdateScores(ctx, serverID, subs)
	if err != nil {
		gs.Logger.Errorf("round conclude: update scores %s: %v", key, err)
		points = map[string]int{}
	}

	solveStart := time.Now()
	bestExpr, bestValue := solver.Solve(game.Target, game.Numbers)
	gs.Metrics.SolverDuration.Observe(time.Since(solveStart).Seconds())

	record := models.RoundRecord{
		GameID:      game.ID,
		ServerID:    serverID,
		ChannelID:   channelID,
		Round:       game.CurrentRound,
		TotalRounds: game.TotalRounds,
		Target:      game.Target,
		Numbers:     game.Numbers,
		BestExpr:    bestExpr,
		BestValue:   bestValue,
		Points:      points,
		Final:       game.FinalRound(),
		EndedAt:     time.Now().UnixMilli(),
	}
	record.Submissions = make([]models.Submission, 0, len(subs))
	for _, sub := range subs {
		record.Submissions = append(record.Submissions, *sub)
	}
	if cache.Rdb != nil {
		if err := cache.PublishRoundRecord(ctx, record); err != nil {
			gs.Logger.Warnf("round conclude: publish record %s: %v", key, err)
		}
	}

	next, finished, err := gs.Manager.AdvanceRound(ctx, serverID, channelID, points)
	if err != nil {
		gs.Logger.Errorf("round conclude: advance %s: %v", key, err)
		return
	}

	gs.Hub.broadcast(key, WatchEvent{
		Type:      "round_ended",
		ServerID:  serverID,
		ChannelID: channelID,
		Game:      game,
		Results:   countdown.DetermineWinners(subs),
		Points:    points,
		BestExpr:  bestExpr,
		BestValue: bestValue,
	})

	if finished {
		if gs.removeTimer(key) {
			gs.Metrics.ActiveGames.Dec()
		}
		gs.Hub.broadcast(key, WatchEvent{
			Type:        "game_ended",
			ServerID:    serverID,
			ChannelID:   channelID,
			FinalScores: next.GameScores,
		})
		return
	}
	gs.announceRound(next)
}

// Run blocks, sweeping for active games whose deadline timer is missing.
// The sweep also resynchronizes the active-games gauge.
func (gs *GameServer) Run(sweepEvery time.Duration) {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Second
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gs.done:
			return
		case <-ticker.C:
			gs.sweep()
		}
	}
}

func (gs *GameServer) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	games, err := gs.Store.ListActiveGames(ctx)
	if err != nil {
		gs.Logger.Errorf("sweep: list active games: %v", err)
		return
	}
	gs.Metrics.ActiveGames.Set(float64(len(games)))

	for _, game := range games {
		key := channelKey(game.ServerID, game.ChannelID)
		gs.Mutex.Lock()
		rt, tracked := gs.timers[key]
		current := tracked && rt.gameID == game.ID && rt.round == game.CurrentRound
		gs.Mutex.Unlock()
		if !current {
			gs.schedule(game)
		}
	}
}

// Stop halts the sweeper and every pending round timer.
func (gs *GameServer) Stop() {
	close(gs.done)
	gs.Mutex.Lock()
	defer gs.Mutex.Unlock()
	for key, rt := range gs.timers {
		rt.timer.Stop()
		delete(gs.timers, key)
	}
}
