package executor

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

// fakeAdapter scripts order outcomes and counts calls.
type fakeAdapter struct {
	name string

	orderResult domain.OrderResult
	orderErr    error
	orderCalls  int

	closeResult domain.OrderResult
	closeErr    error
	closeCalls  int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) PlaceMarketOrder(_ context.Context, asset string, side domain.Side, sizeUSD float64, leverage int) (domain.OrderResult, error) {
	f.orderCalls++
	if f.orderErr != nil {
		return domain.OrderResult{}, f.orderErr
	}
	r := f.orderResult
	r.Venue = f.name
	r.Asset = asset
	r.Side = side
	if r.FilledSizeUSD == 0 {
		r.FilledSizeUSD = sizeUSD
	}
	r.Timestamp = time.Now().UTC()
	return r, nil
}

func (f *fakeAdapter) ClosePosition(_ context.Context, asset string) (domain.OrderResult, error) {
	f.closeCalls++
	if f.closeErr != nil {
		return domain.OrderResult{}, f.closeErr
	}
	r := f.closeResult
	r.Venue = f.name
	r.Asset = asset
	r.Timestamp = time.Now().UTC()
	return r, nil
}

func (f *fakeAdapter) GetFundingRates(context.Context) ([]domain.FundingSnapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) GetPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (f *fakeAdapter) SetLeverage(context.Context, string, int) error { return nil }

type fakeSource map[string]venue.Adapter

func (s fakeSource) Get(name string) (venue.Adapter, error) {
	a, ok := s[name]
	if !ok {
		return nil, domain.ErrAdapterMissing
	}
	return a, nil
}

type fakeExecStore struct {
	records []domain.ExecutionRecord
}

func (s *fakeExecStore) Create(_ context.Context, rec domain.ExecutionRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		Asset:       "BTC",
		LongVenue:   "hyperliquid",
		ShortVenue:  "paradex",
		LongRate1h:  0.0001,
		ShortRate1h: 0.0004,
		Spread1h:    0.0003,
		MinLeverage: 10,
	}
}

func testParams() Params {
	return Params{StakeUSD: 100, TargetLeverage: 3}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func filled() domain.OrderResult {
	return domain.OrderResult{Success: true, OrderID: "1", FilledPrice: 50000}
}

func rejected(msg string) domain.OrderResult {
	return domain.OrderResult{Success: false, Error: msg}
}

func TestExecuteBothLegsFilled(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderResult: filled()}
	short := &fakeAdapter{name: "paradex", orderResult: filled()}
	store := &fakeExecStore{}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, store, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecFilled, res.Status)
	require.Equal(t, 1, long.orderCalls)
	require.Equal(t, 1, short.orderCalls)
	require.Zero(t, long.closeCalls)

	require.NotEmpty(t, res.Strategy.ID)
	require.NotNil(t, res.Strategy.LongPosition)
	require.NotNil(t, res.Strategy.ShortPosition)
	require.Equal(t, domain.SideLong, res.Strategy.LongPosition.Side)
	require.Equal(t, domain.SideShort, res.Strategy.ShortPosition.Side)
	require.Equal(t, 100.0, res.Strategy.LongPosition.SizeUSD)

	require.Len(t, store.records, 1)
	require.Equal(t, domain.ExecFilled, store.records[0].Status)
}

func TestExecuteAbortsOnMissingAdapter(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderResult: filled()}
	e := New(fakeSource{"hyperliquid": long}, nil, nil, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecAborted, res.Status)
	// No order is ever placed when a venue is unresolvable.
	require.Zero(t, long.orderCalls)
}

func TestExecuteLongRejectionNeverTouchesShortVenue(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderResult: rejected("insufficient margin")}
	short := &fakeAdapter{name: "paradex", orderResult: filled()}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecAborted, res.Status)
	require.Equal(t, 1, long.orderCalls)
	require.Zero(t, short.orderCalls)
	require.Zero(t, long.closeCalls)
	require.Contains(t, res.Message, "insufficient margin")
}

func TestExecuteShortFailureRollsBackLongLeg(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderResult: filled(), closeResult: filled()}
	short := &fakeAdapter{name: "paradex", orderResult: rejected("post only")}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecRolledBack, res.Status)
	require.Equal(t, 1, long.closeCalls)
	require.True(t, res.LongOrder.Success)
	require.False(t, res.ShortOrder.Success)
}

func TestExecuteRollbackFailureIsDistinguishable(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderResult: filled(), closeErr: errors.New("venue down")}
	short := &fakeAdapter{name: "paradex", orderErr: errors.New("timeout")}
	store := &fakeExecStore{}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, store, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecRollbackFailed, res.Status)
	require.Equal(t, 1, long.closeCalls)
	require.Contains(t, res.Message, "hyperliquid")

	require.Len(t, store.records, 1)
	require.Equal(t, domain.ExecRollbackFailed, store.records[0].Status)
}

func TestExecuteTransportErrorBecomesFailedOrder(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", orderErr: errors.New("connection refused")}
	short := &fakeAdapter{name: "paradex", orderResult: filled()}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res := e.Execute(context.Background(), testOpportunity(), testParams())

	require.Equal(t, domain.ExecAborted, res.Status)
	require.Contains(t, res.LongOrder.Error, "connection refused")
	require.Zero(t, short.orderCalls)
}

func openStrategy() *domain.Strategy {
	now := time.Now().UTC()
	return &domain.Strategy{
		ID:          "strat-1",
		Opportunity: testOpportunity(),
		LongPosition: &domain.Position{
			Venue: "hyperliquid", Asset: "BTC", Side: domain.SideLong, OpenedAt: now,
		},
		ShortPosition: &domain.Position{
			Venue: "paradex", Asset: "BTC", Side: domain.SideShort, OpenedAt: now,
		},
		CreatedAt: now,
	}
}

func TestCloseStrategyBothLegs(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", closeResult: filled()}
	short := &fakeAdapter{name: "paradex", closeResult: filled()}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res, err := e.CloseStrategy(context.Background(), openStrategy())

	require.NoError(t, err)
	require.Equal(t, domain.CloseStatusClosed, res.Status)
	require.Equal(t, 1, long.closeCalls)
	require.Equal(t, 1, short.closeCalls)
}

func TestCloseStrategyPartialNamesRemainingLeg(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", closeResult: filled()}
	short := &fakeAdapter{name: "paradex", closeErr: errors.New("maintenance")}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res, err := e.CloseStrategy(context.Background(), openStrategy())

	require.NoError(t, err)
	require.Equal(t, domain.CloseStatusPartial, res.Status)
	require.Equal(t, domain.SideShort, res.RemainingSide)
	// Both closes were still attempted.
	require.Equal(t, 1, long.closeCalls)
	require.Equal(t, 1, short.closeCalls)
}

func TestCloseStrategyBothFail(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", closeErr: errors.New("down")}
	short := &fakeAdapter{name: "paradex", closeErr: errors.New("down")}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	res, err := e.CloseStrategy(context.Background(), openStrategy())
	require.NoError(t, err)
	require.Equal(t, domain.CloseStatusFailed, res.Status)
}

func TestCloseStrategyWithoutPositions(t *testing.T) {
	e := New(fakeSource{}, nil, nil, testLogger())

	res, err := e.CloseStrategy(context.Background(), &domain.Strategy{ID: "empty"})
	require.NoError(t, err)
	require.Equal(t, domain.CloseStatusFailed, res.Status)
}

func TestCloseStrategyStandsDownWhenAutoCloseHoldsLatch(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", closeResult: filled()}
	short := &fakeAdapter{name: "paradex", closeResult: filled()}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	strat := openStrategy()
	// The monitor's auto-close trigger claimed the strategy first.
	require.True(t, strat.BeginClose())

	_, err := e.CloseStrategy(context.Background(), strat)
	require.ErrorIs(t, err, domain.ErrCloseInProgress)
	require.Zero(t, long.closeCalls)
	require.Zero(t, short.closeCalls)

	// The latch holder still closes through CloseClaimed.
	res := e.CloseClaimed(context.Background(), strat)
	require.Equal(t, domain.CloseStatusClosed, res.Status)
	require.Equal(t, 1, long.closeCalls)
	require.Equal(t, 1, short.closeCalls)
}

func TestCloseStrategyBlocksLateAutoCloseTrigger(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", closeResult: filled()}
	short := &fakeAdapter{name: "paradex", closeResult: filled()}
	e := New(fakeSource{"hyperliquid": long, "paradex": short}, nil, nil, testLogger())

	strat := openStrategy()
	res, err := e.CloseStrategy(context.Background(), strat)
	require.NoError(t, err)
	require.Equal(t, domain.CloseStatusClosed, res.Status)

	// An auto-close trigger firing after the manual close must lose the latch
	// race and never double the close.
	require.False(t, strat.BeginClose())
	require.Equal(t, 1, long.closeCalls)
	require.Equal(t, 1, short.closeCalls)
}
