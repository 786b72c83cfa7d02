package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/model"
)

const progressPollTimeout = 1 * time.Second

type progressJob struct {
	UserID   string                 `json:"user_id"`
	Token    string                 `json:"token"`
	Snapshot model.ProgressSnapshot `json:"snapshot"`
}

// RedisProgressQueue pushes partial-progress snapshots onto the autosave
// queue. Enqueue is fire-and-forget: a push failure is logged and the
// snapshot dropped, because a fresher one follows within a minute.
type RedisProgressQueue struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisProgressQueue creates a Redis-backed progress queue.
func NewRedisProgressQueue(rdb *redis.Client, log zerolog.Logger) *RedisProgressQueue {
	return &RedisProgressQueue{
		rdb: rdb,
		log: log.With().Str("component", "progress_queue").Logger(),
	}
}

func (q *RedisProgressQueue) Enqueue(ctx context.Context, userID, token string, snap model.ProgressSnapshot) {
	raw, err := json.Marshal(progressJob{UserID: userID, Token: token, Snapshot: snap})
	if err != nil {
		q.log.Error().Err(err).Msg("Marshal progress job failed")
		return
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PushProgressQueue, raw).Err(); err != nil {
		q.log.Error().Err(err).Str("user_id", userID).Msg("Enqueue progress failed")
	}
}

// ProgressWorker consumes push_progress_queue and forwards snapshots to the
// remote quiz gateway. Delivery is best-effort: a failed push is logged and
// dropped, never retried, since the next cadence overwrites it anyway.
type ProgressWorker struct {
	rdb *redis.Client
	gw  gateway.Client
	log zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(rdb *redis.Client, gw gateway.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		rdb: rdb,
		gw:  gw,
		log: log.With().Str("component", "progress_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProgressWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, progressPollTimeout, config.WorkerKey.PushProgressQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	w.push(ctx, []byte(result[1]))
}

func (w *ProgressWorker) push(ctx context.Context, raw []byte) {
	var job progressJob
	if err := json.Unmarshal(raw, &job); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.gw.Autosave(ctx, job.Token, job.Snapshot); err != nil {
		// Intentionally dropped: the snapshot is stale a minute later.
		w.log.Warn().Err(err).
			Str("user_id", job.UserID).
			Str("block_id", job.Snapshot.BlockID).
			Msg("Autosave push failed, dropping")
	}
}

// drain forwards all remaining snapshots before shutdown.
func (w *ProgressWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PushProgressQueue).Result()
		if err != nil {
			break
		}
		w.push(ctx, []byte(result))
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
