package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is the notification idempotency barrier. Acquire returns true
// exactly once per key per TTL window; a false return means someone already
// sent this email. Deliberately distinct from the ledger upsert: emailing is
// not transactionally tied to the database write.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisGuard implements Guard with SET NX.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire notification guard: %w", err)
	}
	return ok, nil
}

// InMemoryGuard mirrors the redis semantics for unit tests.
type InMemoryGuard struct {
	mu    sync.Mutex
	taken map[string]time.Time
	now   func() time.Time
}

func NewInMemoryGuard() *InMemoryGuard {
	return &InMemoryGuard{taken: make(map[string]time.Time), now: time.Now}
}

func (g *InMemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if expiry, ok := g.taken[key]; ok && g.now().Before(expiry) {
		return false, nil
	}
	g.taken[key] = g.now().Add(ttl)
	return true, nil
}
