package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/model"
)

const (
	AttemptBatchSize    = 50
	AttemptBatchTimeout = 2 * time.Second
	AttemptPollTimeout  = 1 * time.Second
)

type attemptJob struct {
	UserID     string    `json:"user_id"`
	BlockID    string    `json:"block_id"`
	TotalScore float64   `json:"total_score"`
	FinishedAt time.Time `json:"finished_at"`
}

// RedisAttemptRecorder pushes scored attempts onto the recording queue so
// the HTTP path never waits on PostgreSQL.
type RedisAttemptRecorder struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisAttemptRecorder creates a Redis-backed attempt recorder.
func NewRedisAttemptRecorder(rdb *redis.Client, log zerolog.Logger) *RedisAttemptRecorder {
	return &RedisAttemptRecorder{
		rdb: rdb,
		log: log.With().Str("component", "attempt_recorder").Logger(),
	}
}

func (r *RedisAttemptRecorder) Record(ctx context.Context, userID, blockID string, summary *model.ResultSummary) {
	job := attemptJob{
		UserID:     userID,
		BlockID:    blockID,
		FinishedAt: time.Now(),
	}
	if summary != nil {
		job.TotalScore = summary.TotalScore
	}

	raw, err := json.Marshal(job)
	if err != nil {
		r.log.Error().Err(err).Msg("Marshal attempt job failed")
		return
	}

	if err := r.rdb.RPush(ctx, config.WorkerKey.RecordAttemptsQueue, raw).Err(); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("Enqueue attempt failed")
	}
}

// AttemptWorker consumes record_attempts_queue and inserts attempt rows in
// batches.
type AttemptWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAttemptWorker creates a new AttemptWorker.
func NewAttemptWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_worker").Logger(),
	}
}

func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")

	batch := make([]*attemptJob, 0, AttemptBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AttemptBatchSize || time.Since(lastFlush) >= AttemptBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AttemptPollTimeout, config.WorkerKey.RecordAttemptsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var j attemptJob
			if err := json.Unmarshal([]byte(item[1]), &j); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &j)
		}
	}
}

func (w *AttemptWorker) flushSafe(ctx context.Context, batch []*attemptJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk attempt insert failed, using fallback")

		for _, j := range batch {
			if err := w.persistSingle(ctx, j); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(j)
				w.rdb.RPush(ctx, config.WorkerKey.RecordAttemptsQueue, raw)
			}
		}
	}
}

// bulkInsert writes the whole batch with one UNNEST insert.
func (w *AttemptWorker) bulkInsert(ctx context.Context, batch []*attemptJob) error {
	n := len(batch)

	userIDs := make([]string, 0, n)
	blockIDs := make([]string, 0, n)
	scores := make([]float64, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, j := range batch {
		userIDs = append(userIDs, j.UserID)
		blockIDs = append(blockIDs, j.BlockID)
		scores = append(scores, j.TotalScore)
		finishedAts = append(finishedAts, j.FinishedAt)
	}

	query := `
		INSERT INTO attempts (user_id, block_id, status, total_score, created_at)
		SELECT
			u.user_id,
			u.block_id,
			$5,
			u.total_score,
			u.created_at
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::float8[],
			$4::timestamptz[]
		) AS u (user_id, block_id, total_score, created_at)
	`

	_, err := w.pool.Exec(ctx, query, userIDs, blockIDs, scores, finishedAts, model.AttemptStatusSubmitted)
	return err
}

func (w *AttemptWorker) persistSingle(ctx context.Context, j *attemptJob) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO attempts (user_id, block_id, status, total_score, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		j.UserID, j.BlockID, model.AttemptStatusSubmitted, j.TotalScore, j.FinishedAt,
	)
	return err
}
