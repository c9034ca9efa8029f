// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/binkiewka/countdown-service/internal/cache"
	"github.com/binkiewka/countdown-service/internal/database"
	"github.com/binkiewka/countdown-service/internal/models"
)

// Service drains the round-record queue into Postgres in batches and marks
// games abandoned when no record has arrived for a while.
type Service struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration // duration until an in-progress game is marked "abandoned"
	lastActivity sync.Map      // map[uuid.UUID]time.Time, last record seen per game

	batchMu  sync.Mutex
	batch    []models.RoundRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewService constructs a Service from environment variables or defaults.
func NewService() *Service {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600) // default 10 min

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]models.RoundRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects to the database and starts the two main loops:
//  1. A loop that reads from the Redis queue, accumulates records in a batch, and flushes them to the DB.
//  2. A periodic check that marks games abandoned after prolonged inactivity.
//
// Run blocks until Stop is called; the final batch is flushed on the way out.
func (hs *Service) Run() {
	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if err := database.ConnectDB(dsn); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.EnsureSchema(hs.ctx); err != nil {
		log.Fatalf("failed to apply archive schema: %v", err)
	}

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("countdown-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("countdown-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve round records from the
// Redis queue.
func (hs *Service) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a 3-second timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if hs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				// No record popped.
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record models.RoundRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid round record: %v\n", err)
				continue
			}

			hs.noteActivity(record)
			hs.appendToBatch(record)
		}
	}
}

// noteActivity tracks the last record per game for the abandonment check. A
// final record ends the watch: the game completed normally.
func (hs *Service) noteActivity(record models.RoundRecord) {
	if record.Final {
		hs.lastActivity.Delete(record.GameID)
		return
	}
	hs.lastActivity.Store(record.GameID, time.Now())
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (hs *Service) appendToBatch(record models.RoundRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushLocked()
	}
}

// flushBatchToDB flushes the current batch to the database in a single
// transaction.
func (hs *Service) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushLocked()
}

// flushLocked expects batchMu to be held.
func (hs *Service) flushLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]models.RoundRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := database.InsertRoundRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert round record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d round records to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically marks games abandoned when no round record has
// arrived within the configured threshold. That happens when the game service
// dies mid-game and nothing re-adopts the channel.
func (hs *Service) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return
		case <-ticker.C:
			for _, gameID := range hs.staleGames(time.Now()) {
				hs.markGameAbandoned(gameID)
			}
		}
	}
}

// staleGames returns the games whose last record is older than the
// inactivity threshold and removes them from tracking.
func (hs *Service) staleGames(now time.Time) []uuid.UUID {
	var stale []uuid.UUID
	hs.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if ok1 && ok2 && now.Sub(last) > hs.inactivity {
			stale = append(stale, gameID)
			hs.lastActivity.Delete(gameID)
		}
		return true
	})
	return stale
}

// markGameAbandoned marks a game as 'abandoned' if it is still 'in_progress'.
func (hs *Service) markGameAbandoned(gameID uuid.UUID) {
	q := `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	if _, err := database.DB.Exec(context.Background(), q, gameID); err != nil {
		log.Printf("failed to mark game %v abandoned: %v", gameID, err)
	} else {
		log.Printf("Marked game %v as 'abandoned' due to inactivity.", gameID)
	}
}

// Stop gracefully stops the service.
func (hs *Service) Stop() {
	hs.cancelFn()
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or
// returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
