// Package lighter implements the venue adapter for the Lighter zk perps
// exchange. Funding and order-book metadata are public REST endpoints;
// account and order calls authenticate with an HMAC token derived from the
// account's API private key.
package lighter

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

const (
	// DefaultBaseURL is the Lighter mainnet API root.
	DefaultBaseURL = "https://mainnet.zklighter.elliot.ai"

	venueName = "lighter"
)

var _ venue.Adapter = (*Client)(nil)

// Client is the Lighter venue adapter.
type Client struct {
	baseURL      string
	apiKey       []byte
	accountIndex int
	apiKeyIndex  int
	httpClient   *http.Client

	// symbol -> order book id, populated lazily from orderBookDetails.
	books map[string]int
}

// New creates a Client. The API key is the hex-encoded account key; account
// and API key indexes select the sub-account.
func New(baseURL, apiKeyHex string, accountIndex, apiKeyIndex int) (*Client, error) {
	if apiKeyHex == "" {
		return nil, fmt.Errorf("lighter: %w: api key required", domain.ErrConfiguration)
	}
	key, err := hex.DecodeString(trimHexPrefix(apiKeyHex))
	if err != nil {
		return nil, fmt.Errorf("lighter: %w: api key is not valid hex", domain.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       key,
		accountIndex: accountIndex,
		apiKeyIndex:  apiKeyIndex,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Name returns the canonical venue name.
func (c *Client) Name() string { return venueName }

// GetFundingRates joins the public funding-rates feed with orderBookDetails
// leverage metadata. Lighter publishes the 8-hour rate; dividing by 8 yields
// the hourly rate. Markets whose max leverage resolves to 1 are skipped, they
// are delisted or untradeable.
func (c *Client) GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error) {
	leverage, err := c.leverageDetails(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FundingRates []struct {
			Exchange string      `json:"exchange"`
			Symbol   string      `json:"symbol"`
			Rate     json.Number `json:"rate"`
		} `json:"funding_rates"`
	}
	if err := c.get(ctx, "/api/v1/funding-rates", &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshots := make([]domain.FundingSnapshot, 0, len(resp.FundingRates))
	for _, fr := range resp.FundingRates {
		if fr.Exchange != "lighter" {
			continue
		}
		maxLev, ok := leverage[fr.Symbol]
		if !ok || maxLev <= 1 {
			continue
		}
		eightHour, err := fr.Rate.Float64()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, domain.FundingSnapshot{
			Asset:       fr.Symbol,
			Venue:       venueName,
			Rate1h:      eightHour / 8,
			MaxLeverage: maxLev,
			Timestamp:   now,
		})
	}
	return snapshots, nil
}

// leverageDetails fetches orderBookDetails and derives max leverage from the
// minimum initial margin fraction, reported in basis points. It also refreshes
// the symbol to order-book-id mapping used by order placement.
func (c *Client) leverageDetails(ctx context.Context) (map[string]int, error) {
	var resp struct {
		OrderBookDetails []struct {
			Symbol      string      `json:"symbol"`
			OrderBookID int         `json:"order_book_id"`
			MinIM       json.Number `json:"min_initial_margin_fraction"`
		} `json:"order_book_details"`
	}
	if err := c.get(ctx, "/api/v1/orderBookDetails", &resp); err != nil {
		return nil, err
	}

	details := make(map[string]int, len(resp.OrderBookDetails))
	books := make(map[string]int, len(resp.OrderBookDetails))
	for _, ob := range resp.OrderBookDetails {
		maxLev := 1
		if imf, err := ob.MinIM.Float64(); err == nil && imf > 0 {
			maxLev = int(10000 / imf)
		}
		details[ob.Symbol] = maxLev
		books[ob.Symbol] = ob.OrderBookID
	}
	c.books = books
	return details, nil
}

// orderBook resolves a symbol to its order book id, refreshing the mapping
// on first use.
func (c *Client) orderBook(ctx context.Context, asset string) (int, error) {
	if c.books == nil {
		if _, err := c.leverageDetails(ctx); err != nil {
			return 0, err
		}
	}
	id, ok := c.books[asset]
	if !ok {
		return 0, fmt.Errorf("lighter: asset %q not listed", asset)
	}
	return id, nil
}

// GetPositions reads the sub-account's positions from the account endpoint.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var positions []domain.Position
	for _, p := range acct.Positions {
		size, err := p.Size.Float64()
		if err != nil || size == 0 {
			continue
		}
		side := domain.SideLong
		if size < 0 {
			side = domain.SideShort
			size = -size
		}
		entry, _ := p.AvgEntryPrice.Float64()
		pnl, _ := p.UnrealizedPnL.Float64()
		positions = append(positions, domain.Position{
			Venue:          venueName,
			Asset:          p.Symbol,
			Side:           side,
			SizeUSD:        size * entry,
			Leverage:       1, // not reported per position
			EntryPrice:     entry,
			CurrentPrice:   entry,
			UnrealizedPnL:  pnl,
			FundingAccrued: 0,
			UpdatedAt:      now,
		})
	}
	return positions, nil
}

// GetBalance reads the sub-account's portfolio value. Margin breakdown is not
// reported, so the full equity is treated as available.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	equity, _ := acct.PortfolioValue.Float64()
	return domain.Balance{
		Venue:        venueName,
		EquityUSD:    equity,
		AvailableUSD: equity,
		Timestamp:    time.Now().UTC(),
	}, nil
}

type accountState struct {
	PortfolioValue json.Number `json:"portfolio_value"`
	Positions      []struct {
		Symbol        string      `json:"symbol"`
		Size          json.Number `json:"size"`
		AvgEntryPrice json.Number `json:"avg_entry_price"`
		UnrealizedPnL json.Number `json:"unrealized_pnl"`
	} `json:"positions"`
}

// account fetches the configured sub-account by index.
func (c *Client) account(ctx context.Context) (*accountState, error) {
	path := fmt.Sprintf("/api/v1/account?by=index&value=%d", c.accountIndex)
	var resp struct {
		Accounts []accountState `json:"accounts"`
	}
	if err := c.getAuth(ctx, path, &resp); err != nil {
		return nil, err
	}
	if len(resp.Accounts) == 0 {
		return nil, fmt.Errorf("lighter: account index %d not found", c.accountIndex)
	}
	return &resp.Accounts[0], nil
}

// PlaceMarketOrder submits a market order on the asset's order book. Lighter
// expects the size as whole USD notional.
func (c *Client) PlaceMarketOrder(ctx context.Context, asset string, side domain.Side, sizeUSD float64, leverage int) (domain.OrderResult, error) {
	fail := func(msg string) domain.OrderResult {
		return domain.OrderResult{
			Venue: venueName, Asset: asset, Side: side,
			Error: msg, Timestamp: time.Now().UTC(),
		}
	}

	bookID, err := c.orderBook(ctx, asset)
	if err != nil {
		return domain.OrderResult{}, err
	}

	orderSide := "LONG"
	if side == domain.SideShort {
		orderSide = "SHORT"
	}
	payload := map[string]any{
		"account_index": c.accountIndex,
		"api_key_index": c.apiKeyIndex,
		"order_book_id": bookID,
		"type":          "MARKET",
		"side":          orderSide,
		"size":          strconv.Itoa(int(sizeUSD)),
	}

	var resp struct {
		OrderID json.Number `json:"order_id"`
		Code    int         `json:"code"`
		Message string      `json:"message"`
	}
	status, raw, err := c.postAuth(ctx, "/api/v1/order", payload, &resp)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if status < 200 || status >= 300 {
		return fail(fmt.Sprintf("order rejected: HTTP %d: %s", status, raw)), nil
	}
	if resp.Code != 0 && resp.Message != "" {
		return fail(resp.Message), nil
	}
	return domain.OrderResult{
		Success:       true,
		Venue:         venueName,
		Asset:         asset,
		Side:          side,
		OrderID:       resp.OrderID.String(),
		FilledSizeUSD: sizeUSD,
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

// SetLeverage is a no-op: Lighter derives margin from per-market fractions.
func (c *Client) SetLeverage(ctx context.Context, asset string, leverage int) error {
	return nil
}

// authToken signs the request body and a millisecond timestamp with the API
// key. The token is "<timestamp>:<hex hmac>".
func (c *Client) authToken(body []byte) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, c.apiKey)
	mac.Write([]byte(ts))
	mac.Write(body)
	return ts + ":" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) getAuth(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, c.authToken(nil), out)
}

func (c *Client) postAuth(ctx context.Context, path string, payload any, out any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("lighter: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("lighter: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authToken(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("lighter: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, "", fmt.Errorf("lighter: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("lighter: decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, truncate(raw, 256), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, auth string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("lighter: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lighter: %w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("lighter: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lighter: %s returned %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("lighter: decode %s response: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
