package venue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) GetFundingRates(context.Context) ([]domain.FundingSnapshot, error) {
	return nil, nil
}
func (s *stubAdapter) GetPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (s *stubAdapter) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (s *stubAdapter) PlaceMarketOrder(context.Context, string, domain.Side, float64, int) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}
func (s *stubAdapter) ClosePosition(context.Context, string) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}
func (s *stubAdapter) SetLeverage(context.Context, string, int) error { return nil }

func stubFactory(name string) Factory {
	return func() (Adapter, error) { return &stubAdapter{name: name}, nil }
}

func TestRegistryExcludesFailedFactories(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(map[string]Factory{
		"hyperliquid": stubFactory("hyperliquid"),
		"paradex": func() (Adapter, error) {
			return nil, fmt.Errorf("paradex: missing wallet: %w", domain.ErrConfiguration)
		},
		"lighter": stubFactory("lighter"),
	}, logger)

	require.Equal(t, []string{"hyperliquid", "lighter"}, r.Names())

	_, err := r.Get("paradex")
	require.ErrorIs(t, err, domain.ErrAdapterMissing)
}

func TestRegistryGetIsCaseInsensitive(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(map[string]Factory{"Hyperliquid": stubFactory("Hyperliquid")}, logger)

	a, err := r.Get("HYPERLIQUID")
	require.NoError(t, err)
	require.Equal(t, "Hyperliquid", a.Name())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(nil, logger)

	_, err := r.Get("extended")
	require.True(t, errors.Is(err, domain.ErrAdapterMissing))

	r.Register(&stubAdapter{name: "extended"})
	a, err := r.Get("extended")
	require.NoError(t, err)
	require.Equal(t, "extended", a.Name())
}
