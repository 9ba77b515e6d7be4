package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// RedisConfig holds connection parameters for the Redis-backed cache.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
}

// RedisClient wraps a go-redis client shared by the scan cache and guard.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects and pings Redis, returning an error when the server
// is unreachable so the caller can fall back to the in-process cache.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisClient{rdb: rdb}, nil
}

// Close closes the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

const lastScanKey = "scan:last"

// RedisCache stores the last scan as a JSON blob in Redis and keeps an
// in-process mirror so reads survive a Redis hiccup.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration

	mu     sync.RWMutex
	mirror domain.ScanResult
	set    bool
}

// NewRedisCache creates a scan cache over the given client. Entries expire
// after ttl; zero means no expiry.
func NewRedisCache(c *RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: c.rdb, ttl: ttl}
}

// SetLastScan publishes the scan to Redis and the local mirror. A Redis write
// failure is returned, but the mirror is updated first so local readers keep
// working.
func (c *RedisCache) SetLastScan(ctx context.Context, scan domain.ScanResult) error {
	c.mu.Lock()
	c.mirror = scan
	c.set = true
	c.mu.Unlock()

	payload, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("redis: marshal scan %s: %w", scan.ID, err)
	}
	if err := c.rdb.Set(ctx, lastScanKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set last scan: %w", err)
	}
	return nil
}

// LastScan reads the cached scan from Redis, falling back to the in-process
// mirror when Redis is unreachable. domain.ErrNotFound is returned before the
// first completed scan.
func (c *RedisCache) LastScan(ctx context.Context) (domain.ScanResult, error) {
	payload, err := c.rdb.Get(ctx, lastScanKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ScanResult{}, domain.ErrNotFound
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.set {
			return c.mirror, nil
		}
		return domain.ScanResult{}, fmt.Errorf("redis: get last scan: %w", err)
	}

	var scan domain.ScanResult
	if err := json.Unmarshal(payload, &scan); err != nil {
		return domain.ScanResult{}, fmt.Errorf("redis: decode last scan: %w", err)
	}
	return scan, nil
}

// unlockLua deletes the guard key only when it still holds the caller's
// token, so an expired holder cannot release a successor's guard.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const scanGuardKey = "lock:scan"

// RedisGuard is a Redis-backed scan guard usable across processes.
type RedisGuard struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRedisGuard creates a guard over the given client.
func NewRedisGuard(c *RedisClient) *RedisGuard {
	return &RedisGuard{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// TryAcquire claims the scan guard with SETNX and a TTL. It returns
// domain.ErrScanInFlight when another scan holds it. The release func is safe
// to call more than once.
func (g *RedisGuard) TryAcquire(ctx context.Context, ttl time.Duration) (func(), error) {
	token := uuid.New().String()

	ok, err := g.rdb.SetNX(ctx, scanGuardKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire scan guard: %w", err)
	}
	if !ok {
		return nil, domain.ErrScanInFlight
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Background context so release works even after the scan's
			// context is cancelled.
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = g.unlockSc.Run(relCtx, g.rdb, []string{scanGuardKey}, token).Err()
		})
	}
	return release, nil
}

// Compile-time interface checks.
var (
	_ domain.ScanCache = (*RedisCache)(nil)
	_ domain.ScanGuard = (*RedisGuard)(nil)
)
