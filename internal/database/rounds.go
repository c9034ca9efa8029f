// internal/database/rounds.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/binkiewka/countdown-service/internal/models"
)

// InsertRoundRecordTx writes one finished round plus its submissions within
// the given transaction. The parent game row is upserted so rounds arriving
// out of order still attach, and the game is finalized when the record is
// flagged as the last round.
func InsertRoundRecordTx(ctx context.Context, tx pgx.Tx, rec models.RoundRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, server_id, channel_id, total_rounds, status, start_time)
		VALUES ($1, $2, $3, $4, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID, rec.ServerID, rec.ChannelID, rec.TotalRounds); err != nil {
		return err
	}

	numbers, err := json.Marshal(rec.Numbers)
	if err != nil {
		return err
	}
	points, err := json.Marshal(rec.Points)
	if err != nil {
		return err
	}
	roundInsertQ := `
		INSERT INTO rounds (
			game_id, round, target, numbers, best_expr, best_value, points, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8 / 1000.0))
		ON CONFLICT (game_id, round) DO NOTHING
	`
	if _, err := tx.Exec(ctx, roundInsertQ,
		rec.GameID, rec.Round, rec.Target, numbers, rec.BestExpr, rec.BestValue, points, rec.EndedAt,
	); err != nil {
		return err
	}

	subInsertQ := `
		INSERT INTO round_submissions (
			game_id, round, user_id, expression, result, distance, valid, error, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9 / 1000.0))
		ON CONFLICT (game_id, round, user_id) DO NOTHING
	`
	for _, sub := range rec.Submissions {
		if _, err := tx.Exec(ctx, subInsertQ,
			rec.GameID, rec.Round, sub.UserID, sub.Expression, sub.Result,
			sub.Distance, sub.Valid, sub.Error, sub.SubmittedAt,
		); err != nil {
			return err
		}
	}

	if rec.Final {
		finalizeQ := `
			UPDATE games
			SET status = 'completed', end_time = to_timestamp($2 / 1000.0)
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.GameID, rec.EndedAt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRound persists a single round record in its own transaction.
func RecordRound(ctx context.Context, rec models.RoundRecord) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return InsertRoundRecordTx(ctx, tx, rec)
	})
	if err != nil {
		return fmt.Errorf("tx insert round record: %w", err)
	}
	return nil
}

// RecentRounds returns the latest archived rounds for a channel, newest
// first. Submissions are not loaded; the archive view only needs the round
// outcome.
func RecentRounds(ctx context.Context, serverID, channelID string, limit int) ([]models.RoundRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
		SELECT g.id, r.round, g.total_rounds, r.target, r.numbers, r.best_expr, r.best_value, r.points,
		       (EXTRACT(EPOCH FROM r.ended_at) * 1000)::bigint
		FROM rounds r
		JOIN games g ON g.id = r.game_id
		WHERE g.server_id = $1 AND g.channel_id = $2
		ORDER BY r.ended_at DESC
		LIMIT $3
	`
	rows, err := DB.Query(ctx, q, serverID, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent rounds: %w", err)
	}
	defer rows.Close()

	var recs []models.RoundRecord
	for rows.Next() {
		var rec models.RoundRecord
		var numbers, points []byte
		if err := rows.Scan(&rec.GameID, &rec.Round, &rec.TotalRounds, &rec.Target,
			&numbers, &rec.BestExpr, &rec.BestValue, &points, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("scan round row: %w", err)
		}
		if err := json.Unmarshal(numbers, &rec.Numbers); err != nil {
			return nil, fmt.Errorf("decode round numbers: %w", err)
		}
		if len(points) > 0 {
			if err := json.Unmarshal(points, &rec.Points); err != nil {
				return nil, fmt.Errorf("decode round points: %w", err)
			}
		}
		rec.ServerID = serverID
		rec.ChannelID = channelID
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
