package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

func snap(asset, venue string, rate float64, lev int) domain.FundingSnapshot {
	return domain.FundingSnapshot{
		Asset:       asset,
		Venue:       venue,
		Rate1h:      rate,
		MaxLeverage: lev,
		Timestamp:   time.Now().UTC(),
	}
}

func TestRankPicksExtremeVenues(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "paradex", 0.0004, 10),
		snap("BTC", "lighter", 0.0002, 5),
	}

	opps := Rank(snapshots, DefaultThresholds())
	require.Len(t, opps, 1)

	opp := opps[0]
	require.Equal(t, "BTC", opp.Asset)
	require.Equal(t, "hyperliquid", opp.LongVenue)
	require.Equal(t, "paradex", opp.ShortVenue)
	require.InDelta(t, 0.0003, opp.Spread1h, 1e-12)
	require.InDelta(t, 0.0024, opp.Spread8h, 1e-12)
	require.Equal(t, 10, opp.MinLeverage)
	require.InDelta(t, 0.3, opp.Score1h, 1e-9)
}

func TestRankSkipsSingleVenueAssets(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "paradex", 0.0004, 10),
		snap("XRP", "hyperliquid", 0.0009, 20),
	}

	opps := Rank(snapshots, DefaultThresholds())
	require.Len(t, opps, 1)
	require.Equal(t, "BTC", opps[0].Asset)
}

func TestRankNeverEmitsNonPositiveSpread(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("ETH", "hyperliquid", 0.0002, 20),
		snap("ETH", "paradex", 0.0002, 10),
	}

	opps := Rank(snapshots, DefaultThresholds())
	require.Empty(t, opps)
}

func TestRankMinSpreadThreshold(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "paradex", 0.0002, 10),
	}

	th := DefaultThresholds()
	th.MinSpread = 0.0005
	require.Empty(t, Rank(snapshots, th))

	th.MinSpread = 0
	require.Len(t, Rank(snapshots, th), 1)
}

func TestRankMinLeverageThreshold(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "paradex", 0.0004, 3),
	}

	th := DefaultThresholds()
	th.MinLeverage = 5
	require.Empty(t, Rank(snapshots, th))
}

func TestRankSortsByScoreAndTruncates(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "a", 0.0001, 10),
		snap("BTC", "b", 0.0002, 10), // spread 0.0001, score 0.1
		snap("ETH", "a", 0.0001, 10),
		snap("ETH", "b", 0.0005, 10), // spread 0.0004, score 0.4
		snap("SOL", "a", 0.0001, 10),
		snap("SOL", "b", 0.0003, 10), // spread 0.0002, score 0.2
	}

	th := DefaultThresholds()
	opps := Rank(snapshots, th)
	require.Len(t, opps, 3)
	require.Equal(t, "ETH", opps[0].Asset)
	require.Equal(t, "SOL", opps[1].Asset)
	require.Equal(t, "BTC", opps[2].Asset)

	th.TopN = 2
	opps = Rank(snapshots, th)
	require.Len(t, opps, 2)
	require.Equal(t, "ETH", opps[0].Asset)
}

func TestRankDeduplicatesVenueQuotes(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "hyperliquid", 0.0009, 20), // dup, first wins
		snap("BTC", "paradex", 0.0004, 10),
	}

	opps := Rank(snapshots, DefaultThresholds())
	require.Len(t, opps, 1)
	require.Equal(t, "hyperliquid", opps[0].LongVenue)
	require.InDelta(t, 0.0001, opps[0].LongRate1h, 1e-12)
}

func TestRankNetSpreadBelowGross(t *testing.T) {
	snapshots := []domain.FundingSnapshot{
		snap("BTC", "hyperliquid", 0.0001, 20),
		snap("BTC", "paradex", 0.0040, 10),
	}

	th := DefaultThresholds()
	th.IncludeNetSpread = true
	opps := Rank(snapshots, th)
	require.Len(t, opps, 1)

	opp := opps[0]
	require.NotNil(t, opp.NetSpread1h)
	require.NotNil(t, opp.EntryCostPct)
	require.Less(t, *opp.NetSpread1h, opp.Spread1h)
	require.Greater(t, *opp.EntryCostPct, 0.0)

	th.IncludeNetSpread = false
	opps = Rank(snapshots, th)
	require.Len(t, opps, 1)
	require.Nil(t, opps[0].NetSpread1h)
	require.Nil(t, opps[0].EntryCostPct)
}

func TestNetSpreadCostScalesWithLeverage(t *testing.T) {
	lowLev := netSpread(0.01, "hyperliquid", "paradex", 1, 24)
	highLev := netSpread(0.01, "hyperliquid", "paradex", 10, 24)
	require.Greater(t, lowLev, highLev)

	// Longer holds amortize the same entry cost over more hours.
	shortHold := netSpread(0.01, "hyperliquid", "paradex", 5, 8)
	longHold := netSpread(0.01, "hyperliquid", "paradex", 5, 48)
	require.Greater(t, longHold, shortHold)
}

func TestEntryCostCoversBothLegsRoundTrip(t *testing.T) {
	cost := entryCost("hyperliquid", "paradex")
	want := (0.0003*2 + 0.0010) + (0.0005*2 + 0.0015)
	require.InDelta(t, want, cost, 1e-12)

	// Unknown venues fall back to defaults rather than zero cost.
	require.Greater(t, entryCost("unknown", "alsounknown"), 0.0)
}
