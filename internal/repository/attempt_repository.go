package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloktest/session-backend/internal/model"
)

// Attempt is one row of the local attempt history: a scored submission or a
// failed one parked for retry.
type Attempt struct {
	ID         uuid.UUID           `json:"id"`
	UserID     string              `json:"user_id"`
	BlockID    string              `json:"block_id"`
	Status     model.AttemptStatus `json:"status"`
	TotalScore *float64            `json:"total_score"`
	Cause      *string             `json:"cause,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// AttemptRepository handles attempt history and the failed-submission outbox.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Park stores a submission payload that never reached the scoring server,
// together with the failure cause. The payload stays queryable until a
// retry succeeds.
func (r *AttemptRepository) Park(ctx context.Context, userID string, payload model.ResultPayload, cause string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal parked payload: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempts (user_id, block_id, status, payload, cause)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, payload.Block, model.AttemptStatusFailed, raw, cause,
	)
	if err != nil {
		return fmt.Errorf("park failed submission: %w", err)
	}
	return nil
}

// Resolve marks all parked submissions of a user for a block as resolved
// after a later retry succeeded.
func (r *AttemptRepository) Resolve(ctx context.Context, userID, blockID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, payload = NULL
		 WHERE user_id = $2 AND block_id = $3 AND status = $4`,
		model.AttemptStatusResolved, userID, blockID, model.AttemptStatusFailed,
	)
	return err
}

// ListByUser returns the attempt history for one user, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, block_id, status, total_score, cause, created_at
		 FROM attempts
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.BlockID, &a.Status, &a.TotalScore, &a.Cause, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
