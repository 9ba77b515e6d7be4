// Package cache provides the last-scan state object and the in-flight scan
// guard, with Redis-backed and in-process implementations. The scanner is the
// single designated writer for the scan cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// MemoryCache is the in-process scan cache used when Redis is not configured.
type MemoryCache struct {
	mu   sync.RWMutex
	last domain.ScanResult
	set  bool
}

// NewMemoryCache creates an empty in-process scan cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// SetLastScan replaces the cached scan.
func (c *MemoryCache) SetLastScan(_ context.Context, scan domain.ScanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = scan
	c.set = true
	return nil
}

// LastScan returns the cached scan, or domain.ErrNotFound before the first
// completed scan.
func (c *MemoryCache) LastScan(_ context.Context) (domain.ScanResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return domain.ScanResult{}, domain.ErrNotFound
	}
	return c.last, nil
}

// MemoryGuard is a process-local scan guard. TryAcquire fails while a prior
// acquisition has not been released.
type MemoryGuard struct {
	mu   sync.Mutex
	held bool
}

// NewMemoryGuard creates an unheld guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{}
}

// TryAcquire claims the guard. The ttl is ignored: a process-local guard
// cannot leak past the process.
func (g *MemoryGuard) TryAcquire(_ context.Context, _ time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, domain.ErrScanInFlight
	}
	g.held = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.held = false
			g.mu.Unlock()
		})
	}
	return release, nil
}

// Compile-time interface checks.
var (
	_ domain.ScanCache = (*MemoryCache)(nil)
	_ domain.ScanGuard = (*MemoryGuard)(nil)
)
