package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "replay:"

// RedisReplayStore shares the replay set across replicas. Expiry is left to
// Redis.
type RedisReplayStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisReplayStore {
	return &RedisReplayStore{client: client}
}

func (s *RedisReplayStore) Remember(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, replayKeyPrefix+requestID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("remember request id: %w", err)
	}
	return ok, nil
}
