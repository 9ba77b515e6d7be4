// Package hyperliquid implements the venue adapter for the Hyperliquid
// perpetuals DEX. Market data comes from the public /info endpoint; order
// actions are signed with the account's secp256k1 key and posted to
// /exchange.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

var (
	_ venue.Adapter       = (*Client)(nil)
	_ venue.HealthChecker = (*Client)(nil)
)

const (
	// DefaultBaseURL is the Hyperliquid mainnet API root.
	DefaultBaseURL = "https://api.hyperliquid.xyz"

	venueName = "hyperliquid"
)

// Client is the Hyperliquid venue adapter.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
}

// New creates a Client trading with the given hex-encoded private key. An
// empty key yields a read-only client: market data works, order actions fail.
func New(baseURL, privateKeyHex string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	if privateKeyHex != "" {
		signer, err := NewSigner(privateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// Name returns the canonical venue name.
func (c *Client) Name() string { return venueName }

// assetMeta is one entry of the /info universe.
type assetMeta struct {
	Name        string `json:"name"`
	MaxLeverage int    `json:"maxLeverage"`
}

// assetCtx is the per-asset market context parallel to the universe.
type assetCtx struct {
	Funding      string `json:"funding"`
	MarkPx       string `json:"markPx"`
	DayNtlVlm    string `json:"dayNtlVlm"`
	OpenInterest string `json:"openInterest"`
}

// GetFundingRates fetches the metaAndAssetCtxs payload: a universe of asset
// metadata and a parallel array of market contexts carrying the hourly
// funding rate.
func (c *Client) GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error) {
	var raw []json.RawMessage
	if err := c.info(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("hyperliquid: malformed metaAndAssetCtxs response")
	}

	var meta struct {
		Universe []assetMeta `json:"universe"`
	}
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode universe: %w", err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode asset contexts: %w", err)
	}

	now := time.Now().UTC()
	snapshots := make([]domain.FundingSnapshot, 0, len(meta.Universe))
	for i, m := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		rate, err := strconv.ParseFloat(ctxs[i].Funding, 64)
		if err != nil {
			continue
		}
		volume, _ := strconv.ParseFloat(ctxs[i].DayNtlVlm, 64)
		snapshots = append(snapshots, domain.FundingSnapshot{
			Asset:       m.Name,
			Venue:       venueName,
			Rate1h:      rate,
			MaxLeverage: m.MaxLeverage,
			Volume24h:   volume,
			Timestamp:   now,
		})
	}
	return snapshots, nil
}

// GetPositions fetches the account's clearinghouse state and converts each
// open asset position to a domain Position. Signed size convention: positive
// is long, negative is short.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("hyperliquid: %w: no account key configured", domain.ErrConfiguration)
	}

	var state struct {
		AssetPositions []struct {
			Position struct {
				Coin     string `json:"coin"`
				Szi      string `json:"szi"`
				EntryPx  string `json:"entryPx"`
				PosValue string `json:"positionValue"`
				UnrlPnl  string `json:"unrealizedPnl"`
				LiqPx    string `json:"liquidationPx"`
				Leverage struct {
					Value int `json:"value"`
				} `json:"leverage"`
				CumFunding struct {
					SinceOpen string `json:"sinceOpen"`
				} `json:"cumFunding"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	if err := c.info(ctx, map[string]any{
		"type": "clearinghouseState",
		"user": c.signer.Address(),
	}, &state); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var positions []domain.Position
	for _, ap := range state.AssetPositions {
		p := ap.Position
		size, err := strconv.ParseFloat(p.Szi, 64)
		if err != nil || size == 0 {
			continue
		}
		side := domain.SideLong
		if size < 0 {
			side = domain.SideShort
		}
		entry, _ := strconv.ParseFloat(p.EntryPx, 64)
		notional, _ := strconv.ParseFloat(p.PosValue, 64)
		pnl, _ := strconv.ParseFloat(p.UnrlPnl, 64)
		liq, _ := strconv.ParseFloat(p.LiqPx, 64)
		// Funding accrued is reported from the position's perspective as a
		// cumulative payment; negate so positive means earned.
		funding, _ := strconv.ParseFloat(p.CumFunding.SinceOpen, 64)

		current := entry
		if entry > 0 && notional > 0 {
			current = notional / math.Abs(size)
		}

		positions = append(positions, domain.Position{
			Venue:            venueName,
			Asset:            p.Coin,
			Side:             side,
			SizeUSD:          notional,
			Leverage:         p.Leverage.Value,
			EntryPrice:       entry,
			CurrentPrice:     current,
			UnrealizedPnL:    pnl,
			FundingAccrued:   -funding,
			LiquidationPrice: liq,
			UpdatedAt:        now,
		})
	}
	return positions, nil
}

// GetBalance fetches the account's margin summary.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	if c.signer == nil {
		return domain.Balance{}, fmt.Errorf("hyperliquid: %w: no account key configured", domain.ErrConfiguration)
	}

	var state struct {
		MarginSummary struct {
			AccountValue string `json:"accountValue"`
			TotalMargin  string `json:"totalMarginUsed"`
		} `json:"marginSummary"`
		Withdrawable string `json:"withdrawable"`
	}
	if err := c.info(ctx, map[string]any{
		"type": "clearinghouseState",
		"user": c.signer.Address(),
	}, &state); err != nil {
		return domain.Balance{}, err
	}

	equity, _ := strconv.ParseFloat(state.MarginSummary.AccountValue, 64)
	margin, _ := strconv.ParseFloat(state.MarginSummary.TotalMargin, 64)
	avail, _ := strconv.ParseFloat(state.Withdrawable, 64)
	return domain.Balance{
		Venue:        venueName,
		EquityUSD:    equity,
		AvailableUSD: avail,
		MarginUSD:    margin,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// PlaceMarketOrder converts the USD notional to base-asset size at the
// current mid and submits an aggressive IoC order, which is Hyperliquid's
// market-order form.
func (c *Client) PlaceMarketOrder(ctx context.Context, asset string, side domain.Side, sizeUSD float64, leverage int) (domain.OrderResult, error) {
	fail := func(msg string) domain.OrderResult {
		return domain.OrderResult{
			Venue: venueName, Asset: asset, Side: side,
			Error: msg, Timestamp: time.Now().UTC(),
		}
	}
	if c.signer == nil {
		return fail("no account key configured"), nil
	}

	mid, err := c.midPrice(ctx, asset)
	if err != nil {
		return domain.OrderResult{}, err
	}
	size := math.Round(sizeUSD/mid*1e6) / 1e6
	if size == 0 {
		return fail("order size too small, rounds to zero"), nil
	}

	if err := c.SetLeverage(ctx, asset, leverage); err != nil {
		return fail(fmt.Sprintf("set leverage: %v", err)), nil
	}

	isBuy := side == domain.SideLong
	// 5% price collar; IoC fills at market inside it or cancels.
	limitPx := mid * 1.05
	if !isBuy {
		limitPx = mid * 0.95
	}

	action := map[string]any{
		"type": "order",
		"orders": []map[string]any{{
			"a": asset,
			"b": isBuy,
			"p": strconv.FormatFloat(limitPx, 'f', -1, 64),
			"s": strconv.FormatFloat(size, 'f', -1, 64),
			"r": false,
			"t": map[string]any{"limit": map[string]any{"tif": "Ioc"}},
		}},
		"grouping": "na",
	}

	var resp exchangeResponse
	if err := c.exchange(ctx, action, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	filled, oid, avgPx, errMsg := resp.firstFill()
	if !filled {
		return fail(errMsg), nil
	}
	return domain.OrderResult{
		Success:       true,
		Venue:         venueName,
		Asset:         asset,
		Side:          side,
		OrderID:       oid,
		FilledSizeUSD: sizeUSD,
		FilledPrice:   avgPx,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ClosePosition fully closes the asset's open position with a reduce-only
// market order in the opposite direction.
func (c *Client) ClosePosition(ctx context.Context, asset string) (domain.OrderResult, error) {
	fail := func(msg string) domain.OrderResult {
		return domain.OrderResult{Venue: venueName, Asset: asset, Error: msg, Timestamp: time.Now().UTC()}
	}
	if c.signer == nil {
		return fail("no account key configured"), nil
	}

	positions, err := c.GetPositions(ctx)
	if err != nil {
		return domain.OrderResult{}, err
	}
	var open *domain.Position
	for i := range positions {
		if positions[i].Asset == asset {
			open = &positions[i]
			break
		}
	}
	if open == nil {
		return fail("no open position for " + asset), nil
	}

	mid, err := c.midPrice(ctx, asset)
	if err != nil {
		return domain.OrderResult{}, err
	}
	size := math.Round(open.SizeUSD/mid*1e6) / 1e6
	isBuy := open.Side == domain.SideShort
	limitPx := mid * 1.05
	if !isBuy {
		limitPx = mid * 0.95
	}

	action := map[string]any{
		"type": "order",
		"orders": []map[string]any{{
			"a": asset,
			"b": isBuy,
			"p": strconv.FormatFloat(limitPx, 'f', -1, 64),
			"s": strconv.FormatFloat(size, 'f', -1, 64),
			"r": true,
			"t": map[string]any{"limit": map[string]any{"tif": "Ioc"}},
		}},
		"grouping": "na",
	}

	var resp exchangeResponse
	if err := c.exchange(ctx, action, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	filled, oid, avgPx, errMsg := resp.firstFill()
	if !filled {
		return fail(errMsg), nil
	}
	return domain.OrderResult{
		Success:     true,
		Venue:       venueName,
		Asset:       asset,
		Side:        open.Side,
		OrderID:     oid,
		FilledPrice: avgPx,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// SetLeverage updates the asset's cross-margin leverage.
func (c *Client) SetLeverage(ctx context.Context, asset string, leverage int) error {
	if c.signer == nil {
		return fmt.Errorf("hyperliquid: %w: no account key configured", domain.ErrConfiguration)
	}
	action := map[string]any{
		"type":     "updateLeverage",
		"asset":    asset,
		"isCross":  true,
		"leverage": leverage,
	}
	var resp exchangeResponse
	if err := c.exchange(ctx, action, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("hyperliquid: update leverage: %s", resp.Status)
	}
	return nil
}

// HealthCheck probes the public info endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var mids map[string]string
	return c.info(ctx, map[string]any{"type": "allMids"}, &mids)
}

// midPrice returns the current mid for an asset from allMids.
func (c *Client) midPrice(ctx context.Context, asset string) (float64, error) {
	var mids map[string]string
	if err := c.info(ctx, map[string]any{"type": "allMids"}, &mids); err != nil {
		return 0, err
	}
	raw, ok := mids[asset]
	if !ok {
		return 0, fmt.Errorf("hyperliquid: asset %q not listed", asset)
	}
	mid, err := strconv.ParseFloat(raw, 64)
	if err != nil || mid <= 0 {
		return 0, fmt.Errorf("hyperliquid: bad mid price %q for %s", raw, asset)
	}
	return mid, nil
}

// info posts a query to the public /info endpoint and decodes the response.
func (c *Client) info(ctx context.Context, payload map[string]any, out any) error {
	return c.post(ctx, "/info", payload, out)
}

// exchangeResponse is the common order-action response shape.
type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Filled *struct {
					Oid   json.Number `json:"oid"`
					AvgPx string      `json:"avgPx"`
				} `json:"filled"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// firstFill extracts the first order status from an exchange response.
func (r exchangeResponse) firstFill() (filled bool, oid string, avgPx float64, errMsg string) {
	if r.Status != "ok" {
		return false, "", 0, "exchange status: " + r.Status
	}
	statuses := r.Response.Data.Statuses
	if len(statuses) == 0 {
		return false, "", 0, "no order status in response"
	}
	st := statuses[0]
	if st.Filled == nil {
		if st.Error != "" {
			return false, "", 0, st.Error
		}
		return false, "", 0, "order not filled"
	}
	px, _ := strconv.ParseFloat(st.Filled.AvgPx, 64)
	return true, st.Filled.Oid.String(), px, ""
}

// exchange signs an action and posts it to /exchange.
func (c *Client) exchange(ctx context.Context, action map[string]any, out any) error {
	nonce := time.Now().UnixMilli()
	sig, err := c.signer.SignAction(action, nonce)
	if err != nil {
		return fmt.Errorf("hyperliquid: sign action: %w", err)
	}
	payload := map[string]any{
		"action":    action,
		"nonce":     nonce,
		"signature": sig,
	}
	return c.post(ctx, "/exchange", payload, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hyperliquid: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hyperliquid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hyperliquid: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("hyperliquid: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hyperliquid: %s returned %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("hyperliquid: decode %s response: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
