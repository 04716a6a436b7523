package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quizlive-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultArchiver writes the final outcome of an ended session to the
// session_results table for reporting and anomaly analysis downstream.
type ResultArchiver struct {
	pool *pgxpool.Pool
}

func NewResultArchiver(pool *pgxpool.Pool) *ResultArchiver {
	return &ResultArchiver{pool: pool}
}

func (a *ResultArchiver) ArchiveResult(ctx context.Context, result domain.SessionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO session_results (session_id, data, ended_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, ended_at = EXCLUDED.ended_at`,
		result.SessionID, raw, result.EndedAt)
	if err != nil {
		return fmt.Errorf("archive session result: %w", err)
	}
	return nil
}
