package common

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StripeEventPrefix = "stripe_event:"
	StripeEventTTL    = 24 * time.Hour
	RedeemLockPrefix  = "nft_redeem:"
	RedeemLockTTL     = 10 * time.Minute

	// DistributeLock guards the on-chain send of one payment reference.
	DistributeLockPrefix = "nft_distribute:"
	DistributeLockTTL    = 30 * time.Minute
)

// SeenStore is an atomic check-and-set of ids. MarkSeen is true only for
// the first caller; Forget lets a failed attempt be retried.
type SeenStore interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type RedisSeenStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSeenStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSeenStore {
	return &RedisSeenStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSeenStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	return s.rdb.SetNX(ctx, s.prefix+id, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

func (s *RedisSeenStore) Forget(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.prefix+id).Err()
}

type MemorySeenStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func NewMemorySeenStore(ttl time.Duration) *MemorySeenStore {
	return &MemorySeenStore{ttl: ttl, seen: map[string]time.Time{}}
}

func (s *MemorySeenStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[id] = now.Add(s.ttl)
	return true, nil
}

func (s *MemorySeenStore) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
	return nil
}
