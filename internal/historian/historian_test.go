// internal/historian/historian_test.go
package historian

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkiewka/countdown-service/internal/models"
)

func TestNewServiceDefaults(t *testing.T) {
	hs := NewService()
	defer hs.Stop()

	assert.Equal(t, 20, hs.batchSize)
	assert.Equal(t, 500*time.Millisecond, hs.flushDelay)
	assert.Equal(t, 10*time.Minute, hs.inactivity)
}

func TestNewServiceEnvOverrides(t *testing.T) {
	t.Setenv("HISTORIAN_BATCH_SIZE", "3")
	t.Setenv("HISTORIAN_FLUSH_MS", "50")
	t.Setenv("GAME_INACTIVITY_TIMEOUT_SEC", "60")

	hs := NewService()
	defer hs.Stop()

	assert.Equal(t, 3, hs.batchSize)
	assert.Equal(t, 50*time.Millisecond, hs.flushDelay)
	assert.Equal(t, time.Minute, hs.inactivity)
}

// Below the threshold nothing flushes; database.DB is nil here, so an
// attempted flush would panic.
func TestAppendBelowThresholdAccumulates(t *testing.T) {
	t.Setenv("HISTORIAN_BATCH_SIZE", "5")
	hs := NewService()
	defer hs.Stop()

	for i := 0; i < 4; i++ {
		hs.appendToBatch(models.RoundRecord{GameID: uuid.New(), Round: i + 1})
	}

	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	assert.Len(t, hs.batch, 4)
}

func TestActivityTracking(t *testing.T) {
	hs := NewService()
	defer hs.Stop()

	gameID := uuid.New()
	hs.noteActivity(models.RoundRecord{GameID: gameID, Round: 1})
	_, tracked := hs.lastActivity.Load(gameID)
	require.True(t, tracked, "non-final record should start the abandonment watch")

	// a final record ends the watch
	hs.noteActivity(models.RoundRecord{GameID: gameID, Round: 3, Final: true})
	_, tracked = hs.lastActivity.Load(gameID)
	assert.False(t, tracked)
}

func TestStaleGames(t *testing.T) {
	t.Setenv("GAME_INACTIVITY_TIMEOUT_SEC", "600")
	hs := NewService()
	defer hs.Stop()

	fresh, old := uuid.New(), uuid.New()
	now := time.Now()
	hs.lastActivity.Store(fresh, now.Add(-time.Minute))
	hs.lastActivity.Store(old, now.Add(-time.Hour))

	stale := hs.staleGames(now)
	require.Len(t, stale, 1)
	assert.Equal(t, old, stale[0])

	// stale entries are dropped from tracking; fresh ones persist
	_, tracked := hs.lastActivity.Load(old)
	assert.False(t, tracked)
	_, tracked = hs.lastActivity.Load(fresh)
	assert.True(t, tracked)

	assert.Empty(t, hs.staleGames(now))
}
