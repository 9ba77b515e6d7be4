package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// guardTTL bounds how long one scan may hold the in-flight guard before a
// crashed scanner stops blocking new scans.
const guardTTL = 2 * time.Minute

// Scanner runs full aggregation cycles: acquire the in-flight guard, collect
// snapshots from every venue, rank them, publish the result to the scan
// cache, and optionally archive the raw batch.
type Scanner struct {
	agg      *Aggregator
	guard    domain.ScanGuard
	cache    domain.ScanCache
	archiver domain.SnapshotArchiver // optional
	logger   *slog.Logger
}

// New creates a Scanner. archiver may be nil to disable snapshot archiving.
func New(
	agg *Aggregator,
	guard domain.ScanGuard,
	cache domain.ScanCache,
	archiver domain.SnapshotArchiver,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		agg:      agg,
		guard:    guard,
		cache:    cache,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// Scan performs one full scan cycle and returns the ranked opportunities.
// When another scan is already in flight it returns domain.ErrScanInFlight
// without touching the cache.
func (s *Scanner) Scan(ctx context.Context, venueNames []string, th Thresholds) (domain.ScanResult, error) {
	release, err := s.guard.TryAcquire(ctx, guardTTL)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("scanner: %w", err)
	}
	defer release()

	started := time.Now().UTC()
	snapshots := s.agg.Collect(ctx, venueNames)
	opps := Rank(snapshots, th)

	seen := make(map[string]bool)
	var venues []string
	for _, snap := range snapshots {
		if !seen[snap.Venue] {
			seen[snap.Venue] = true
			venues = append(venues, snap.Venue)
		}
	}

	result := domain.ScanResult{
		ID:            uuid.New().String(),
		Snapshots:     snapshots,
		Opportunities: opps,
		Venues:        venues,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
	}

	if err := s.cache.SetLastScan(ctx, result); err != nil {
		// Cache publication is best effort; the caller still gets the scan.
		s.logger.Warn("scan cache update failed", slog.String("error", err.Error()))
	}

	if s.archiver != nil {
		archiveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := s.archiver.ArchiveScan(archiveCtx, result); err != nil {
			s.logger.Warn("scan archive failed",
				slog.String("scan_id", result.ID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	s.logger.Info("scan complete",
		slog.String("scan_id", result.ID),
		slog.Int("snapshots", len(result.Snapshots)),
		slog.Int("opportunities", len(result.Opportunities)),
		slog.Duration("elapsed", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// LastScan returns the most recent completed scan from the cache.
func (s *Scanner) LastScan(ctx context.Context) (domain.ScanResult, error) {
	return s.cache.LastScan(ctx)
}

// RunLoop re-scans on a fixed interval until the context is cancelled. Each
// completed scan is passed to onScan when the callback is non-nil.
func (s *Scanner) RunLoop(ctx context.Context, interval time.Duration, th Thresholds, onScan func(domain.ScanResult)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := s.Scan(ctx, nil, th)
		switch {
		case err == nil:
			if onScan != nil {
				onScan(result)
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.logger.Warn("scan cycle failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
