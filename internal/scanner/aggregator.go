// Package scanner gathers funding-rate snapshots from every registered venue
// and ranks the cross-venue delta-neutral opportunities they imply.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/pairs"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

// defaultFetchTimeout bounds one venue's funding fetch. Expiry yields zero
// snapshots for that venue only.
const defaultFetchTimeout = 10 * time.Second

// AdapterSource resolves venue adapters by name. Implemented by
// *venue.Registry.
type AdapterSource interface {
	Get(name string) (venue.Adapter, error)
	Names() []string
}

// Aggregator fans one funding fetch out per venue and merges the results.
// A venue's failure or timeout is logged and degrades data completeness; it
// never aborts the aggregate call.
type Aggregator struct {
	venues       AdapterSource
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// NewAggregator creates an Aggregator over the given adapter source.
func NewAggregator(venues AdapterSource, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		venues:       venues,
		fetchTimeout: defaultFetchTimeout,
		logger:       logger.With(slog.String("component", "aggregator")),
	}
}

// SetFetchTimeout overrides the per-venue fetch timeout. Must be called
// before Collect.
func (a *Aggregator) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		a.fetchTimeout = d
	}
}

// Collect fetches funding rates from the named venues concurrently and waits
// for all fetches to complete or time out. Snapshots are normalized and
// deduplicated by (asset, venue), keeping the first occurrence. Venue names
// that resolve to no adapter are skipped with a log line.
func (a *Aggregator) Collect(ctx context.Context, venueNames []string) []domain.FundingSnapshot {
	if len(venueNames) == 0 {
		venueNames = a.venues.Names()
	}

	// One result slot per venue so the merge below preserves venue order
	// regardless of which fetch finishes first.
	results := make([][]domain.FundingSnapshot, len(venueNames))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range venueNames {
		i, name := i, name
		adapter, err := a.venues.Get(name)
		if err != nil {
			a.logger.Warn("skipping unregistered venue", slog.String("venue", name))
			continue
		}

		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, a.fetchTimeout)
			defer cancel()

			snaps, err := adapter.GetFundingRates(fetchCtx)
			if err != nil {
				// Isolated per-venue failure: log and contribute nothing.
				a.logger.Warn("funding fetch failed",
					slog.String("venue", name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = snaps
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[[2]string]bool)
	var merged []domain.FundingSnapshot
	for i, snaps := range results {
		venueName := venueNames[i]
		for _, s := range snaps {
			s.Asset = pairs.Normalize(s.Asset)
			if s.Asset == "" {
				continue
			}
			if s.Venue == "" {
				s.Venue = venueName
			}
			if s.MaxLeverage < 1 {
				s.MaxLeverage = 1
			}
			key := [2]string{s.Asset, s.Venue}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, s)
		}
	}

	a.logger.Info("aggregation complete",
		slog.Int("venues", len(venueNames)),
		slog.Int("snapshots", len(merged)),
	)
	return merged
}
