package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

// fakeAdapter is a scriptable venue.Adapter for scanner tests.
type fakeAdapter struct {
	name     string
	rates    []domain.FundingSnapshot
	ratesErr error
	delay    time.Duration
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.rates, f.ratesErr
}

func (f *fakeAdapter) GetPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (f *fakeAdapter) PlaceMarketOrder(context.Context, string, domain.Side, float64, int) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}
func (f *fakeAdapter) ClosePosition(context.Context, string) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}
func (f *fakeAdapter) SetLeverage(context.Context, string, int) error { return nil }

// fakeSource resolves adapters from a fixed ordered list.
type fakeSource struct {
	order    []string
	adapters map[string]venue.Adapter
}

func newFakeSource(adapters ...*fakeAdapter) *fakeSource {
	s := &fakeSource{adapters: make(map[string]venue.Adapter)}
	for _, a := range adapters {
		s.order = append(s.order, a.name)
		s.adapters[a.name] = a
	}
	return s
}

func (s *fakeSource) Get(name string) (venue.Adapter, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, domain.ErrAdapterMissing
	}
	return a, nil
}

func (s *fakeSource) Names() []string { return s.order }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollectMergesAllVenues(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "hyperliquid", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "hyperliquid", Rate1h: 0.0001, MaxLeverage: 20},
		}},
		&fakeAdapter{name: "paradex", rates: []domain.FundingSnapshot{
			{Asset: "BTC-USD-PERP", Venue: "paradex", Rate1h: 0.0004, MaxLeverage: 10},
		}},
	)

	agg := NewAggregator(src, testLogger())
	snaps := agg.Collect(context.Background(), nil)

	require.Len(t, snaps, 2)
	// Symbols come back normalized regardless of venue convention.
	for _, s := range snaps {
		require.Equal(t, "BTC", s.Asset)
	}
}

func TestCollectIsolatesVenueFailure(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "hyperliquid", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "hyperliquid", Rate1h: 0.0001, MaxLeverage: 20},
		}},
		&fakeAdapter{name: "paradex", ratesErr: errors.New("boom")},
	)

	agg := NewAggregator(src, testLogger())
	snaps := agg.Collect(context.Background(), nil)

	require.Len(t, snaps, 1)
	require.Equal(t, "hyperliquid", snaps[0].Venue)
}

func TestCollectTimesOutSlowVenue(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "fast", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "fast", Rate1h: 0.0001, MaxLeverage: 20},
		}},
		&fakeAdapter{name: "slow", delay: time.Second, rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "slow", Rate1h: 0.0009, MaxLeverage: 20},
		}},
	)

	agg := NewAggregator(src, testLogger())
	agg.SetFetchTimeout(20 * time.Millisecond)
	snaps := agg.Collect(context.Background(), nil)

	require.Len(t, snaps, 1)
	require.Equal(t, "fast", snaps[0].Venue)
}

func TestCollectDeduplicatesFirstWins(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "hyperliquid", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "hyperliquid", Rate1h: 0.0001, MaxLeverage: 20},
			{Asset: "BTC-PERP", Venue: "hyperliquid", Rate1h: 0.0007, MaxLeverage: 20},
		}},
	)

	agg := NewAggregator(src, testLogger())
	snaps := agg.Collect(context.Background(), nil)

	require.Len(t, snaps, 1)
	require.InDelta(t, 0.0001, snaps[0].Rate1h, 1e-12)
}

func TestCollectSkipsUnknownVenueNames(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "hyperliquid", rates: []domain.FundingSnapshot{
			{Asset: "BTC", Venue: "hyperliquid", Rate1h: 0.0001, MaxLeverage: 20},
		}},
	)

	agg := NewAggregator(src, testLogger())
	snaps := agg.Collect(context.Background(), []string{"hyperliquid", "ghost"})

	require.Len(t, snaps, 1)
}

func TestCollectFillsVenueAndClampsLeverage(t *testing.T) {
	src := newFakeSource(
		&fakeAdapter{name: "lighter", rates: []domain.FundingSnapshot{
			{Asset: "SOL", Rate1h: 0.0002, MaxLeverage: 0},
		}},
	)

	agg := NewAggregator(src, testLogger())
	snaps := agg.Collect(context.Background(), nil)

	require.Len(t, snaps, 1)
	require.Equal(t, "lighter", snaps[0].Venue)
	require.Equal(t, 1, snaps[0].MaxLeverage)
}
