package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/bloktest/session-backend/internal/config"
)

// RedisSnapshotStore keeps attempt snapshots in Redis: a string key for the
// remaining seconds, a hash for the answers map and a string key for the
// active block id.
type RedisSnapshotStore struct {
	rdb *redis.Client
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store.
func NewRedisSnapshotStore(rdb *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb}
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

func (s *RedisSnapshotStore) Reset(ctx context.Context, userID, blockID string, remaining int) error {
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizRemainingKey(userID), remaining, 0)
	pipe.Del(ctx, config.CacheKey.QuizAnswersKey(userID))
	pipe.Set(ctx, config.CacheKey.QuizActiveBlockKey(userID), blockID, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) SaveRemaining(ctx context.Context, userID string, remaining int) error {
	return s.rdb.Set(ctx, config.CacheKey.QuizRemainingKey(userID), remaining, 0).Err()
}

func (s *RedisSnapshotStore) SaveAnswers(ctx context.Context, userID string, answers map[string]string) error {
	key := config.CacheKey.QuizAnswersKey(userID)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(answers) > 0 {
		flat := make(map[string]interface{}, len(answers))
		for q, o := range answers {
			flat[q] = o
		}
		pipe.HSet(ctx, key, flat)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, userID string) (*Snapshot, error) {
	blockID, err := s.rdb.Get(ctx, config.CacheKey.QuizActiveBlockKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("load active block: %w", err)
	}

	remainingStr, err := s.rdb.Get(ctx, config.CacheKey.QuizRemainingKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("load remaining: %w", err)
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remaining format in store: %w", err)
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.QuizAnswersKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	return &Snapshot{
		BlockID:   blockID,
		Answers:   answers,
		Remaining: remaining,
	}, nil
}

func (s *RedisSnapshotStore) Clear(ctx context.Context, userID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.QuizRemainingKey(userID))
	pipe.Del(ctx, config.CacheKey.QuizAnswersKey(userID))
	pipe.Del(ctx, config.CacheKey.QuizActiveBlockKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
