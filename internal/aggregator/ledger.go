package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmailLedger remembers which notification ids have had their email
// attempt. Claim is atomic: exactly one caller gets true per id.
type EmailLedger interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// MemoryLedger is a process-local ledger.
type MemoryLedger struct {
	mu   sync.Mutex
	sent map[string]struct{}
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sent: make(map[string]struct{})}
}

// Claim implements EmailLedger.
func (l *MemoryLedger) Claim(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[id]; ok {
		return false, nil
	}
	l.sent[id] = struct{}{}
	return true, nil
}

// SetNXer is the slice of the redis client used by RedisLedger.
type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLedger persists claims in redis so restarts and parallel sessions of
// the same recipient do not email twice.
type RedisLedger struct {
	client SetNXer
	prefix string
	ttl    time.Duration
}

// NewRedisLedger builds a ledger keyed under prefix. Claims expire after ttl.
func NewRedisLedger(client SetNXer, prefix string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

// Claim implements EmailLedger.
func (l *RedisLedger) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+id, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim email %s: %w", id, err)
	}
	return ok, nil
}
