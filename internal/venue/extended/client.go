// Package extended implements the venue adapter for the Extended (X10)
// perpetuals exchange on Starknet. Market metadata is public; account and
// order endpoints take an HMAC-SHA256 signature over the query string plus a
// server-synchronized timestamp.
package extended

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/pairs"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

const (
	// DefaultBaseURL is the Extended mainnet API root.
	DefaultBaseURL = "https://api.extended.exchange"

	venueName  = "extended"
	recvWindow = 5000
)

// marketSymbol maps a canonical asset ticker to the venue market key.
// Extended keys markets as "BTC-USD-PERP"; position symbols are normalized
// back to the ticker on the way out.
func marketSymbol(asset string) string {
	return asset + "-USD-PERP"
}

var _ venue.Adapter = (*Client)(nil)

// Client is the Extended venue adapter.
type Client struct {
	baseURL    string
	apiKey     string
	secret     []byte
	vaultID    int64
	httpClient *http.Client

	// Server clock minus local clock, in milliseconds. Signed requests use
	// it to avoid timestamp-expired rejections.
	timeOffset int64
}

// New creates a Client. The secret signs requests; the vault id selects the
// Starknet perpetual account.
func New(baseURL, apiKey, secret string, vaultID int64) (*Client, error) {
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("extended: %w: api key and secret required", domain.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secret:     []byte(secret),
		vaultID:    vaultID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Name returns the canonical venue name.
func (c *Client) Name() string { return venueName }

// SyncClock fetches the server time and records the offset from the local
// clock. Call once after construction; signed requests still work without it
// when the local clock is accurate.
func (c *Client) SyncClock(ctx context.Context) error {
	var resp struct {
		Data struct {
			ServerTime int64 `json:"serverTime"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/info/time", &resp); err != nil {
		return err
	}
	c.timeOffset = resp.Data.ServerTime - time.Now().UnixMilli()
	return nil
}

type marketInfo struct {
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	VisibleOnUI bool   `json:"visibleOnUi"`
	MarketStats struct {
		FundingRate json.Number `json:"fundingRate"`
		MarkPrice   json.Number `json:"markPrice"`
		DailyVolume json.Number `json:"dailyVolume"`
	} `json:"marketStats"`
	TradingConfig struct {
		MaxLeverage json.Number `json:"maxLeverage"`
	} `json:"tradingConfig"`
}

// GetFundingRates fetches /info/markets. Extended quotes the funding rate
// hourly already; inactive or hidden markets are skipped.
func (c *Client) GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error) {
	markets, err := c.markets(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshots := make([]domain.FundingSnapshot, 0, len(markets))
	for _, m := range markets {
		if !m.Active || !m.VisibleOnUI {
			continue
		}
		rate, err := m.MarketStats.FundingRate.Float64()
		if err != nil {
			continue
		}
		maxLev, err := m.TradingConfig.MaxLeverage.Float64()
		if err != nil {
			continue
		}
		volume, _ := m.MarketStats.DailyVolume.Float64()
		snapshots = append(snapshots, domain.FundingSnapshot{
			Asset:       m.Name,
			Venue:       venueName,
			Rate1h:      rate,
			MaxLeverage: int(maxLev),
			Volume24h:   volume,
			Timestamp:   now,
		})
	}
	return snapshots, nil
}

func (c *Client) markets(ctx context.Context) ([]marketInfo, error) {
	var resp struct {
		Status string       `json:"status"`
		Data   []marketInfo `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/info/markets", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("extended: info/markets status %q", resp.Status)
	}
	return resp.Data, nil
}

// GetPositions fetches the account's open positions. Signed size convention:
// positive is long, negative is short.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var resp struct {
		Data []struct {
			Market        string      `json:"market"`
			Size          json.Number `json:"size"`
			AvgEntryPrice json.Number `json:"averageEntryPrice"`
			MarkPrice     json.Number `json:"markPrice"`
			UnrealisedPnL json.Number `json:"unrealisedPnl"`
			Leverage      json.Number `json:"leverage"`
			LiquidationPx json.Number `json:"liquidationPrice"`
		} `json:"data"`
	}
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v1/user/positions", nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var positions []domain.Position
	for _, p := range resp.Data {
		size, err := p.Size.Float64()
		if err != nil || size == 0 {
			continue
		}
		side := domain.SideLong
		if size < 0 {
			side = domain.SideShort
		}
		entry, _ := p.AvgEntryPrice.Float64()
		mark, _ := p.MarkPrice.Float64()
		if mark == 0 {
			mark = entry
		}
		pnl, _ := p.UnrealisedPnL.Float64()
		liq, _ := p.LiquidationPx.Float64()
		leverage := 1
		if lv, err := p.Leverage.Float64(); err == nil && lv >= 1 {
			leverage = int(lv)
		}
		positions = append(positions, domain.Position{
			Venue:            venueName,
			Asset:            pairs.Normalize(p.Market),
			Side:             side,
			SizeUSD:          math.Abs(size) * entry,
			Leverage:         leverage,
			EntryPrice:       entry,
			CurrentPrice:     mark,
			UnrealizedPnL:    pnl,
			LiquidationPrice: liq,
			UpdatedAt:        now,
		})
	}
	return positions, nil
}

// GetBalance fetches the collateral balance of the vault.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	var resp struct {
		Data struct {
			Equity            json.Number `json:"equity"`
			Balance           json.Number `json:"balance"`
			AvailableForTrade json.Number `json:"availableForTrade"`
			InitialMargin     json.Number `json:"initialMargin"`
		} `json:"data"`
	}
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v1/user/balance", nil, &resp); err != nil {
		return domain.Balance{}, err
	}
	equity, _ := resp.Data.Equity.Float64()
	avail, _ := resp.Data.AvailableForTrade.Float64()
	margin, _ := resp.Data.InitialMargin.Float64()
	return domain.Balance{
		Venue:        venueName,
		EquityUSD:    equity,
		AvailableUSD: avail,
		MarginUSD:    margin,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// PlaceMarketOrder converts the notional to base size at mark price and
// submits a MARKET order against the vault.
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

	orderSide := "BUY"
	if side == domain.SideShort {
		orderSide = "SELL"
	}
	params := url.Values{
		"market":   {market},
		"side":     {orderSide},
		"type":     {"MARKET"},
		"qty":      {strconv.FormatFloat(size, 'f', -1, 64)},
		"vaultId":  {strconv.FormatInt(c.vaultID, 10)},
		"leverage": {strconv.Itoa(leverage)},
	}

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
		Data struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := c.signedRequest(ctx, http.MethodPost, "/api/v1/user/order", params, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	if resp.Status != "OK" {
		msg := resp.Error.Message
		if msg == "" {
			msg = "order rejected: status " + resp.Status
		}
		return fail(msg), nil
	}
	return domain.OrderResult{
		Success:       true,
		Venue:         venueName,
		Asset:         asset,
		Side:          side,
		OrderID:       resp.Data.ID.String(),
		FilledSizeUSD: sizeUSD,
		FilledPrice:   mark,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ClosePosition closes the open position by submitting the opposite market
// order at its full notional.
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

// SetLeverage is a no-op: Extended takes leverage per order.
func (c *Client) SetLeverage(ctx context.Context, asset string, leverage int) error {
	return nil
}

// markPrice looks the venue market symbol up in info/markets.
func (c *Client) markPrice(ctx context.Context, market string) (float64, error) {
	markets, err := c.markets(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range markets {
		if m.Name != market {
			continue
		}
		mark, err := m.MarketStats.MarkPrice.Float64()
		if err != nil || mark <= 0 {
			return 0, fmt.Errorf("extended: bad mark price for %s", market)
		}
		return mark, nil
	}
	return 0, fmt.Errorf("extended: market %q not found", market)
}

// signedRequest appends timestamp and recvWindow to the query, signs it with
// HMAC-SHA256 and sends the request with the API key header.
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli()+c.timeOffset, 10))
	params.Set("recvWindow", strconv.Itoa(recvWindow))

	query := params.Encode()
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader("{}")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, body)
	if err != nil {
		return fmt.Errorf("extended: create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("extended: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extended: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("extended: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extended: %s returned %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("extended: decode %s response: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
