package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

const (
	intentKeyPrefix = "pi:"
	userKeyPrefix   = "user:"
	userKeySuffix   = ":intent"
)

// RedisStore is the production correlation store. Records are JSON under
// pi:<intentID> with the configured TTL; expiry is how abandoned checkouts
// get cleaned up.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, record purchase.CorrelationRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal correlation record: %w", err)
	}
	if err := s.client.Set(ctx, intentKeyPrefix+record.IntentID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("put correlation record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, intentID string) (purchase.CorrelationRecord, error) {
	payload, err := s.client.Get(ctx, intentKeyPrefix+intentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return purchase.CorrelationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return purchase.CorrelationRecord{}, fmt.Errorf("get correlation record: %w", err)
	}

	var record purchase.CorrelationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return purchase.CorrelationRecord{}, fmt.Errorf("unmarshal correlation record: %w", err)
	}
	record.IntentID = intentID
	return record, nil
}

func (s *RedisStore) Delete(ctx context.Context, intentID string) error {
	if err := s.client.Del(ctx, intentKeyPrefix+intentID).Err(); err != nil {
		return fmt.Errorf("delete correlation record: %w", err)
	}
	return nil
}

func (s *RedisStore) PutUserIntent(ctx context.Context, userID, intentID string, ttl time.Duration) error {
	key := userKeyPrefix + userID + userKeySuffix
	if err := s.client.Set(ctx, key, intentID, ttl).Err(); err != nil {
		return fmt.Errorf("put user intent: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUserIntent(ctx context.Context, userID string) (string, error) {
	intentID, err := s.client.Get(ctx, userKeyPrefix+userID+userKeySuffix).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user intent: %w", err)
	}
	return intentID, nil
}
