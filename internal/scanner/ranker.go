package scanner

import (
	"sort"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// Thresholds are the ranker's filter and sizing parameters.
type Thresholds struct {
	// MinSpread drops opportunities whose gross hourly spread is at or
	// below this decimal value.
	MinSpread float64
	// MinLeverage drops opportunities whose usable leverage is below it.
	MinLeverage int
	// TopN truncates the ranked list.
	TopN int
	// IncludeNetSpread enables fee/slippage-adjusted metrics.
	IncludeNetSpread bool
	// HoldHours is the assumed hold period for cost amortization.
	HoldHours int
}

// DefaultThresholds returns the standard scan parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSpread:        0,
		MinLeverage:      1,
		TopN:             25,
		IncludeNetSpread: true,
		HoldHours:        defaultHoldHours,
	}
}

type venueQuote struct {
	rate     float64
	leverage int
}

// Rank pivots one aggregation cycle's snapshots per asset, selects the
// minimum-rate venue as the long leg and the maximum-rate venue as the short
// leg, scores the spread, and returns the top opportunities sorted by Score1h
// descending.
//
// Assets quoted on fewer than two venues are silently omitted. When two
// venues quote an identical extremal rate the first venue encountered wins;
// venues are iterated in the order snapshots arrived, which the aggregator
// keeps stable, so the pick is deterministic but deliberately unspecified.
func Rank(snapshots []domain.FundingSnapshot, th Thresholds) []domain.Opportunity {
	if len(snapshots) == 0 {
		return nil
	}
	if th.TopN <= 0 {
		th.TopN = 25
	}
	if th.MinLeverage < 1 {
		th.MinLeverage = 1
	}

	// Pivot: asset -> ordered venue quotes. First occurrence per
	// (asset, venue) wins; the aggregator already deduplicates, this is a
	// second line of defense for direct callers.
	byAsset := make(map[string][]string)             // asset -> venue order
	quotes := make(map[string]map[string]venueQuote) // asset -> venue -> quote
	var assetOrder []string

	for _, s := range snapshots {
		if quotes[s.Asset] == nil {
			quotes[s.Asset] = make(map[string]venueQuote)
			assetOrder = append(assetOrder, s.Asset)
		}
		if _, dup := quotes[s.Asset][s.Venue]; dup {
			continue
		}
		quotes[s.Asset][s.Venue] = venueQuote{rate: s.Rate1h, leverage: s.MaxLeverage}
		byAsset[s.Asset] = append(byAsset[s.Asset], s.Venue)
	}

	now := time.Now().UTC()
	var opps []domain.Opportunity

	for _, asset := range assetOrder {
		venueOrder := byAsset[asset]
		if len(venueOrder) < 2 {
			// Fewer than two quotes: no arbitrage, not an error.
			continue
		}

		longVenue, shortVenue := venueOrder[0], venueOrder[0]
		minRate := quotes[asset][longVenue].rate
		maxRate := minRate
		for _, v := range venueOrder[1:] {
			r := quotes[asset][v].rate
			if r < minRate {
				minRate, longVenue = r, v
			}
			if r > maxRate {
				maxRate, shortVenue = r, v
			}
		}
		if longVenue == shortVenue {
			continue
		}

		spread1h := maxRate - minRate
		if spread1h <= th.MinSpread {
			continue
		}

		longLev := quotes[asset][longVenue].leverage
		shortLev := quotes[asset][shortVenue].leverage
		if longLev < 1 {
			longLev = 1
		}
		if shortLev < 1 {
			shortLev = 1
		}
		minLev := longLev
		if shortLev < minLev {
			minLev = shortLev
		}
		if minLev < th.MinLeverage {
			continue
		}

		spread8h := spread1h * 8
		opp := domain.Opportunity{
			Asset:         asset,
			LongVenue:     longVenue,
			LongRate1h:    minRate,
			LongLeverage:  longLev,
			ShortVenue:    shortVenue,
			ShortRate1h:   maxRate,
			ShortLeverage: shortLev,
			Spread1h:      spread1h,
			Spread8h:      spread8h,
			MinLeverage:   minLev,
			Score1h:       spread1h * float64(minLev) * 100,
			Score8h:       spread8h * float64(minLev) * 100,
			Timestamp:     now,
		}

		if th.IncludeNetSpread {
			net := netSpread(spread1h, longVenue, shortVenue, minLev, th.HoldHours)
			cost := entryCost(longVenue, shortVenue)
			opp.NetSpread1h = &net
			opp.EntryCostPct = &cost
		}

		opps = append(opps, opp)
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score1h > opps[j].Score1h
	})
	if len(opps) > th.TopN {
		opps = opps[:th.TopN]
	}
	return opps
}
