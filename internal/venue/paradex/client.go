// Package paradex implements the venue adapter for the Paradex perpetuals
// exchange. Market data is public; account and order endpoints authenticate
// with a bearer JWT.
package paradex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/pairs"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

const (
	// DefaultBaseURL is the Paradex production API root.
	DefaultBaseURL = "https://api.prod.paradex.trade/v1"

	venueName = "paradex"
)

// marketSymbol maps a canonical asset ticker to the venue market key.
// Paradex keys perp markets as "BTC-USD-PERP"; position symbols are
// normalized back to the ticker on the way out.
func marketSymbol(asset string) string {
	return asset + "-USD-PERP"
}

var _ venue.Adapter = (*Client)(nil)

// Client is the Paradex venue adapter.
type Client struct {
	baseURL    string
	wallet     string
	jwtToken   string
	httpClient *http.Client
}

// New creates a Client. Both the wallet address and JWT token are required.
func New(baseURL, wallet, jwtToken string) (*Client, error) {
	if wallet == "" || jwtToken == "" {
		return nil, fmt.Errorf("paradex: %w: wallet address and jwt token required", domain.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		wallet:     wallet,
		jwtToken:   jwtToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Name returns the canonical venue name.
func (c *Client) Name() string { return venueName }

// marketDetail carries the per-market funding period and max leverage derived
// from /markets metadata.
type marketDetail struct {
	PeriodHours int
	MaxLeverage int
}

// GetFundingRates joins /markets metadata with /markets/summary quotes.
// Paradex reports the rate for the market's funding period; dividing by the
// period in hours yields the hourly rate.
func (c *Client) GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error) {
	details, err := c.marketDetails(ctx)
	if err != nil {
		return nil, err
	}

	var summary struct {
		Results []struct {
			Symbol      string `json:"symbol"`
			FundingRate string `json:"funding_rate"`
			Volume24h   string `json:"volume_24h"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/markets/summary", url.Values{"market": {"ALL"}}, false, &summary); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshots := make([]domain.FundingSnapshot, 0, len(summary.Results))
	for _, m := range summary.Results {
		detail, ok := details[m.Symbol]
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(m.FundingRate, 64)
		if err != nil {
			continue
		}
		volume, _ := strconv.ParseFloat(m.Volume24h, 64)
		snapshots = append(snapshots, domain.FundingSnapshot{
			Asset:       m.Symbol,
			Venue:       venueName,
			Rate1h:      rate / float64(detail.PeriodHours),
			MaxLeverage: detail.MaxLeverage,
			Volume24h:   volume,
			Timestamp:   now,
		})
	}
	return snapshots, nil
}

// marketDetails fetches perp market metadata. Max leverage is the reciprocal
// of the initial margin fraction.
func (c *Client) marketDetails(ctx context.Context) (map[string]marketDetail, error) {
	var resp struct {
		Results []struct {
			Symbol             string `json:"symbol"`
			AssetKind          string `json:"asset_kind"`
			FundingPeriodHours int    `json:"funding_period_hours"`
			CrossMarginParams  struct {
				IMFBase string `json:"imf_base"`
			} `json:"delta1_cross_margin_params"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/markets", nil, false, &resp); err != nil {
		return nil, err
	}

	details := make(map[string]marketDetail, len(resp.Results))
	for _, m := range resp.Results {
		if m.AssetKind != "PERP" {
			continue
		}
		period := m.FundingPeriodHours
		if period == 0 {
			period = 1
		}
		leverage := 1
		if imf, err := strconv.ParseFloat(m.CrossMarginParams.IMFBase, 64); err == nil && imf > 0 {
			leverage = int(1 / imf)
		}
		details[m.Symbol] = marketDetail{PeriodHours: period, MaxLeverage: leverage}
	}
	return details, nil
}

// GetPositions fetches the account's open positions. Signed size convention:
// positive is long, negative is short.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var resp struct {
		Results []struct {
			Market        string `json:"market"`
			Size          string `json:"size"`
			AvgEntryPrice string `json:"average_entry_price"`
			UnrealizedPnL string `json:"unrealized_pnl"`
			Leverage      string `json:"leverage"`
			LiquidationPx string `json:"liquidation_price"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/positions", nil, true, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var positions []domain.Position
	for _, p := range resp.Results {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil || size == 0 {
			continue
		}
		side := domain.SideLong
		if size < 0 {
			side = domain.SideShort
		}
		entry, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealizedPnL, 64)
		liq, _ := strconv.ParseFloat(p.LiquidationPx, 64)
		leverage := 1
		if lv, err := strconv.ParseFloat(p.Leverage, 64); err == nil && lv >= 1 {
			leverage = int(lv)
		}
		positions = append(positions, domain.Position{
			Venue:            venueName,
			Asset:            pairs.Normalize(p.Market),
			Side:             side,
			SizeUSD:          math.Abs(size) * entry,
			Leverage:         leverage,
			EntryPrice:       entry,
			CurrentPrice:     entry,
			UnrealizedPnL:    pnl,
			LiquidationPrice: liq,
			UpdatedAt:        now,
		})
	}
	return positions, nil
}

// GetBalance fetches the account equity summary.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	var resp struct {
		Equity           string `json:"equity"`
		AvailableBalance string `json:"available_balance"`
		MarginUsed       string `json:"margin_used"`
	}
	if err := c.get(ctx, "/account", nil, true, &resp); err != nil {
		return domain.Balance{}, err
	}
	equity, _ := strconv.ParseFloat(resp.Equity, 64)
	avail, _ := strconv.ParseFloat(resp.AvailableBalance, 64)
	margin, _ := strconv.ParseFloat(resp.MarginUsed, 64)
	return domain.Balance{
		Venue:        venueName,
		EquityUSD:    equity,
		AvailableUSD: avail,
		MarginUSD:    margin,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// PlaceMarketOrder converts the notional to base size at the current mark
// price and submits a MARKET order.
func (c *Client) PlaceMarketOrder(ctx context.Context, asset string, side domain.Side, sizeUSD float64, leverage int) (domain.OrderResult, error) {
	fail := func(msg string) domain.OrderResult {
		return domain.OrderResult{
			Venue: venueName, Asset: asset, Side: side,
			Error: msg, Timestamp: time.Now().UTC(),
		}
	}

	market := marketSymbol(asset)
	mark, err := c.markPrice(ctx, market)
	if err != nil {
		return domain.OrderResult{}, err
	}
	size := sizeUSD / mark

	// Paradex has no explicit leverage endpoint; margin is assigned per
	// order from account settings.
	orderSide := "BUY"
	if side == domain.SideShort {
		orderSide = "SELL"
	}
	payload := map[string]any{
		"market":    market,
		"side":      orderSide,
		"type":      "MARKET",
		"size":      strconv.FormatFloat(size, 'f', -1, 64),
		"client_id": fmt.Sprintf("fundingbot-%d", time.Now().UnixMilli()),
	}

	var resp struct {
		ID string `json:"id"`
	}
	status, raw, err := c.post(ctx, "/orders", payload, &resp)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fail(fmt.Sprintf("order rejected: HTTP %d: %s", status, raw)), nil
	}
	return domain.OrderResult{
		Success:       true,
		Venue:         venueName,
		Asset:         asset,
		Side:          side,
		OrderID:       resp.ID,
		FilledSizeUSD: sizeUSD,
		FilledPrice:   mark,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ClosePosition closes the open position by placing the opposite market
// order at the position's full notional.
func (c *Client) ClosePosition(ctx context.Context, asset string) (domain.OrderResult, error) {
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return domain.OrderResult{}, err
	}
	for _, p := range positions {
		if p.Asset != asset {
			continue
		}
		opposite := domain.SideShort
		if p.Side == domain.SideShort {
			opposite = domain.SideLong
		}
		return c.PlaceMarketOrder(ctx, asset, opposite, p.SizeUSD, p.Leverage)
	}
	return domain.OrderResult{
		Venue:     venueName,
		Asset:     asset,
		Error:     "no open position for " + asset,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SetLeverage is a no-op: Paradex assigns margin per order.
func (c *Client) SetLeverage(ctx context.Context, asset string, leverage int) error {
	return nil
}

// markPrice fetches the current mark price for one market, keyed by the
// venue market symbol.
func (c *Client) markPrice(ctx context.Context, market string) (float64, error) {
	var resp struct {
		Results []struct {
			MarkPrice string `json:"mark_price"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/markets/summary", url.Values{"market": {market}}, false, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("paradex: market %q not found", market)
	}
	mark, err := strconv.ParseFloat(resp.Results[0].MarkPrice, 64)
	if err != nil || mark <= 0 {
		return 0, fmt.Errorf("paradex: bad mark price for %s", market)
	}
	return mark, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, auth bool, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("paradex: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.jwtToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paradex: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("paradex: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paradex: %s returned %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paradex: decode %s response: %w", path, err)
	}
	return nil
}

// post returns the HTTP status and raw body so callers can report venue
// rejections as order failures rather than transport errors.
func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("paradex: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("paradex: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwtToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("paradex: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, "", fmt.Errorf("paradex: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("paradex: decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, truncate(raw, 256), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
