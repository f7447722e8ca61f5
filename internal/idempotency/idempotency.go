// Package idempotency remembers which bid an Idempotency-Key produced.
// The bid ledger stays the source of truth; a cache hit only saves the ledger scan.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-backend/internal/clock"

	"github.com/redis/go-redis/v9"
)

// KeyBid is the redis key layout: idem:bid:{scope}:{key} -> bid id
const KeyBid = "idem:bid:%s:%s"

// DefaultTTL is how long a remembered key stays valid.
const DefaultTTL = 24 * time.Hour

// Cache maps (scope, key) to the id of the bid committed under it.
type Cache interface {
	Lookup(ctx context.Context, scope, key string) (bidID string, ok bool, err error)
	Remember(ctx context.Context, scope, key, bidID string) error
}

// Scope builds the cache scope for a bidder on a listing.
func Scope(listingID, bidderID string) string {
	return listingID + ":" + bidderID
}

// RedisCache keeps keys in redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient opens a client and verifies the server answers.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("idempotency: ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *RedisCache) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	bidID, err := c.rdb.Get(ctx, fmt.Sprintf(KeyBid, scope, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency: lookup %s: %w", key, err)
	}
	return bidID, true, nil
}

// Remember stores bidID only if the key is not yet taken.
func (c *RedisCache) Remember(ctx context.Context, scope, key, bidID string) error {
	if err := c.rdb.SetNX(ctx, fmt.Sprintf(KeyBid, scope, key), bidID, c.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: remember %s: %w", key, err)
	}
	return nil
}

type memoryEntry struct {
	bidID     string
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clock.Clock
}

// NewMemoryCache creates a MemoryCache. A nil clock uses the system clock.
func NewMemoryCache(ttl time.Duration, clk clock.Clock) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), ttl: ttl, clock: clk}
}

func (c *MemoryCache) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := fmt.Sprintf(KeyBid, scope, key)
	e, ok := c.entries[k]
	if !ok {
		return "", false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, k)
		return "", false, nil
	}
	return e.bidID, true, nil
}

func (c *MemoryCache) Remember(ctx context.Context, scope, key, bidID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	k := fmt.Sprintf(KeyBid, scope, key)
	if e, ok := c.entries[k]; ok && now.Before(e.expiresAt) {
		return nil
	}
	c.entries[k] = memoryEntry{bidID: bidID, expiresAt: now.Add(c.ttl)}
	return nil
}
