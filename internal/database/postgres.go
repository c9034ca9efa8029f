// internal/database/postgres.go
package database

import (
	"context"
	"fmt"
)

// schema is the idempotent DDL for the round archive. There is no migration
// tooling; writers apply this on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		server_id TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		total_rounds INT NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'in_progress',
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		round INT NOT NULL,
		target INT NOT NULL,
		numbers JSONB NOT NULL,
		best_expr TEXT NOT NULL DEFAULT '',
		best_value INT NOT NULL DEFAULT 0,
		points JSONB,
		ended_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (game_id, round)
	)`,
	`CREATE TABLE IF NOT EXISTS round_submissions (
		game_id UUID NOT NULL,
		round INT NOT NULL,
		user_id TEXT NOT NULL,
		expression TEXT NOT NULL DEFAULT '',
		result INT,
		distance INT NOT NULL,
		valid BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (game_id, round, user_id),
		FOREIGN KEY (game_id, round) REFERENCES rounds(game_id, round) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_channel ON games (server_id, channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rounds_ended_at ON rounds (ended_at DESC)`,
}

// EnsureSchema creates the archive tables when they do not exist yet.
func EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := DB.Exec(ctx, q); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
