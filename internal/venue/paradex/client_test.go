package paradex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// paradexServer fakes the venue API for one BTC perp market and records the
// last order payload.
type paradexServer struct {
	*httptest.Server
	lastOrder map[string]any
}

func newParadexServer(t *testing.T) *paradexServer {
	t.Helper()
	ps := &paradexServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"symbol":                     "BTC-USD-PERP",
					"asset_kind":                 "PERP",
					"funding_period_hours":       8,
					"delta1_cross_margin_params": map[string]any{"imf_base": "0.05"},
				}},
			})
		case "/markets/summary":
			require.Equal(t, "BTC-USD-PERP", r.URL.Query().Get("market"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"symbol":       "BTC-USD-PERP",
					"mark_price":   "50000",
					"funding_rate": "0.0008",
					"volume_24h":   "1000000",
				}},
			})
		case "/positions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"market":              "BTC-USD-PERP",
					"size":                "0.5",
					"average_entry_price": "50000",
					"unrealized_pnl":      "10",
					"leverage":            "10",
					"liquidation_price":   "43000",
				}},
			})
		case "/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ps.lastOrder))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "ord-1"})
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		}
	}))
	return ps
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(baseURL, "0xwallet", "jwt")
	require.NoError(t, err)
	return c
}

func TestGetPositionsNormalizesVenueSymbol(t *testing.T) {
	srv := newParadexServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)

	// The venue reports "BTC-USD-PERP"; callers track the plain ticker.
	require.Equal(t, "BTC", positions[0].Asset)
	require.Equal(t, domain.SideLong, positions[0].Side)
	require.InDelta(t, 25000, positions[0].SizeUSD, 1e-9)
}

func TestPlaceMarketOrderTargetsVenueMarketKey(t *testing.T) {
	srv := newParadexServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res, err := c.PlaceMarketOrder(context.Background(), "BTC", domain.SideLong, 1000, 5)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "BTC", res.Asset)

	require.Equal(t, "BTC-USD-PERP", srv.lastOrder["market"])
	require.Equal(t, "BUY", srv.lastOrder["side"])
}

func TestClosePositionMatchesNormalizedAsset(t *testing.T) {
	srv := newParadexServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res, err := c.ClosePosition(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, res.Success)

	// The long position closes with the opposite side on the venue key.
	require.Equal(t, "BTC-USD-PERP", srv.lastOrder["market"])
	require.Equal(t, "SELL", srv.lastOrder["side"])
}

func TestClosePositionWithoutPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res, err := c.ClosePosition(context.Background(), "BTC")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "no open position")
}
