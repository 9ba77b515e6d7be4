package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

func TestMemoryCacheLifecycle(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.LastScan(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	first := domain.ScanResult{ID: "scan-1", CompletedAt: time.Now().UTC()}
	require.NoError(t, c.SetLastScan(ctx, first))

	got, err := c.LastScan(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-1", got.ID)

	require.NoError(t, c.SetLastScan(ctx, domain.ScanResult{ID: "scan-2"}))
	got, err = c.LastScan(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-2", got.ID)
}

func TestMemoryGuardSerializes(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	release, err := g.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)

	_, err = g.TryAcquire(ctx, time.Minute)
	require.ErrorIs(t, err, domain.ErrScanInFlight)

	release()
	// Release is idempotent.
	release()

	release2, err := g.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	release2()
}
