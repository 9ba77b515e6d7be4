package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/scanner/cache"
)

type failingArchiver struct{ calls int }

func (a *failingArchiver) ArchiveScan(context.Context, domain.ScanResult) error {
	a.calls++
	return errors.New("bucket gone")
}

func newTestScanner(t *testing.T, archiver domain.SnapshotArchiver) (*Scanner, *cache.MemoryCache) {
	t.Helper()
	src := newFakeSource(
		&fakeAdapter{name: "hyperliquid", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "hyperliquid", Rate1h: 0.0001, MaxLeverage: 20},
		}},
		&fakeAdapter{name: "paradex", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "paradex", Rate1h: 0.0004, MaxLeverage: 10},
		}},
	)
	c := cache.NewMemoryCache()
	s := New(NewAggregator(src, testLogger()), cache.NewMemoryGuard(), c, archiver, testLogger())
	return s, c
}

func TestScanPublishesToCache(t *testing.T) {
	s, c := newTestScanner(t, nil)

	result, err := s.Scan(context.Background(), nil, DefaultThresholds())
	require.NoError(t, err)
	require.NotEmpty(t, result.ID)
	require.Len(t, result.Snapshots, 2)
	require.Len(t, result.Opportunities, 1)
	require.ElementsMatch(t, []string{"hyperliquid", "paradex"}, result.Venues)
	require.False(t, result.CompletedAt.Before(result.StartedAt))

	cached, err := c.LastScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, result.ID, cached.ID)

	viaScanner, err := s.LastScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, result.ID, viaScanner.ID)
}

func TestScanRejectsWhenGuardHeld(t *testing.T) {
	s, _ := newTestScanner(t, nil)

	guard := cache.NewMemoryGuard()
	s.guard = guard

	release, err := guard.TryAcquire(context.Background(), time.Minute)
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), nil, DefaultThresholds())
	require.ErrorIs(t, err, domain.ErrScanInFlight)

	release()
	_, err = s.Scan(context.Background(), nil, DefaultThresholds())
	require.NoError(t, err)
}

func TestScanSurvivesArchiverFailure(t *testing.T) {
	archiver := &failingArchiver{}
	s, c := newTestScanner(t, archiver)

	result, err := s.Scan(context.Background(), nil, DefaultThresholds())
	require.NoError(t, err)
	require.Equal(t, 1, archiver.calls)

	// The cache still got the scan even though archiving failed.
	cached, err := c.LastScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, result.ID, cached.ID)
}
