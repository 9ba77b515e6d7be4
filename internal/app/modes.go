package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/executor"
	"github.com/fundingfarm/fundingbot/internal/monitor"
	"github.com/fundingfarm/fundingbot/internal/scanner"
)

// summaryLogInterval paces the portfolio rollup log line in monitor mode.
const summaryLogInterval = 30 * time.Second

// ScanMode runs the scan loop and serves results over the event surface. No
// orders are ever placed in this mode.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("scan mode", slog.Duration("interval", a.cfg.Scanner.Interval.Duration))

	g, ctx := errgroup.WithContext(ctx)
	a.startEventSurface(ctx, g, deps)

	g.Go(func() error {
		return deps.Scanner.RunLoop(ctx, a.cfg.Scanner.Interval.Duration, a.thresholds(), func(scan domain.ScanResult) {
			if deps.Hub != nil {
				deps.Hub.PublishScan(scan)
			}
		})
	})

	return g.Wait()
}

// TradeMode performs one scan, opens the best opportunity, and monitors it
// until shutdown or auto-close.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("trade mode",
		slog.Float64("stake_usd", a.cfg.Executor.StakeUSD),
		slog.Int("leverage", a.cfg.Executor.TargetLeverage),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startEventSurface(ctx, g, deps)

	g.Go(func() error {
		scan, err := deps.Scanner.Scan(ctx, nil, a.thresholds())
		if err != nil {
			return fmt.Errorf("trade mode: scan: %w", err)
		}
		if deps.Hub != nil {
			deps.Hub.PublishScan(scan)
		}
		if len(scan.Opportunities) == 0 {
			return errors.New("trade mode: no opportunities found")
		}

		best := scan.Opportunities[0]
		res := deps.Executor.Execute(ctx, best, a.execParams())
		a.logger.Info("execution finished",
			slog.String("status", string(res.Status)),
			slog.String("asset", best.Asset),
			slog.String("message", res.Message),
		)
		if res.Status != domain.ExecFilled {
			return fmt.Errorf("trade mode: execution %s: %s", res.Status, res.Message)
		}

		return a.watchStrategy(ctx, deps, res.Strategy)
	})

	return g.Wait()
}

// MonitorMode rebuilds monitors for every open strategy in the archive and
// watches them until shutdown. Requires the PostgreSQL archive.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	if deps.Strategies == nil {
		return errors.New("monitor mode: postgres archive must be enabled to recover open strategies")
	}

	records, err := deps.Strategies.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("monitor mode: load open strategies: %w", err)
	}
	a.logger.Info("monitor mode", slog.Int("open_strategies", len(records)))

	g, ctx := errgroup.WithContext(ctx)
	a.startEventSurface(ctx, g, deps)

	for _, rec := range records {
		strat := &domain.Strategy{
			ID: rec.ID,
			Opportunity: domain.Opportunity{
				Asset:      rec.Asset,
				LongVenue:  rec.LongVenue,
				ShortVenue: rec.ShortVenue,
				Spread1h:   rec.Spread1h,
			},
			StakeUSD:       rec.StakeUSD,
			TargetLeverage: rec.TargetLeverage,
			CreatedAt:      rec.CreatedAt,
		}
		if err := a.attachMonitor(ctx, deps, strat); err != nil {
			a.logger.Warn("monitor not started",
				slog.String("strategy_id", strat.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(summaryLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sum := deps.Portfolio.Summarize()
				a.logger.Info("portfolio",
					slog.Int("strategies", sum.NumStrategies),
					slog.Int("at_risk", sum.NumAtRisk),
					slog.Float64("total_pnl_usd", sum.TotalPnLUSD),
					slog.Float64("funding_usd", sum.TotalFundingUSD),
				)
			}
		}
	})

	return g.Wait()
}

// FullMode runs the scan loop and opens the best opportunity whenever no
// strategy is active, monitoring each position through its lifecycle.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("full mode",
		slog.Duration("scan_interval", a.cfg.Scanner.Interval.Duration),
		slog.Float64("stake_usd", a.cfg.Executor.StakeUSD),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startEventSurface(ctx, g, deps)

	g.Go(func() error {
		return deps.Scanner.RunLoop(ctx, a.cfg.Scanner.Interval.Duration, a.thresholds(), func(scan domain.ScanResult) {
			if deps.Hub != nil {
				deps.Hub.PublishScan(scan)
			}
			if len(scan.Opportunities) == 0 {
				return
			}
			// One strategy at a time; the scan keeps running regardless.
			if deps.Portfolio.Summarize().NumStrategies > 0 {
				return
			}

			best := scan.Opportunities[0]
			res := deps.Executor.Execute(ctx, best, a.execParams())
			a.logger.Info("execution finished",
				slog.String("status", string(res.Status)),
				slog.String("asset", best.Asset),
				slog.String("message", res.Message),
			)
			if res.Status != domain.ExecFilled {
				return
			}
			if err := a.attachMonitor(ctx, deps, res.Strategy); err != nil {
				a.logger.Error("monitor not started",
					slog.String("strategy_id", res.Strategy.ID),
					slog.String("error", err.Error()),
				)
			}
		})
	})

	return g.Wait()
}

// watchStrategy attaches a monitor and blocks until the context ends.
func (a *App) watchStrategy(ctx context.Context, deps *Dependencies, strat *domain.Strategy) error {
	if err := a.attachMonitor(ctx, deps, strat); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// attachMonitor starts a monitor for the strategy with callbacks fanning out
// to the event hub, the notifier, and the auto-close path.
func (a *App) attachMonitor(ctx context.Context, deps *Dependencies, strat *domain.Strategy) error {
	long, err := deps.Registry.Get(strat.Opportunity.LongVenue)
	if err != nil {
		return err
	}
	short, err := deps.Registry.Get(strat.Opportunity.ShortVenue)
	if err != nil {
		return err
	}

	m := monitor.New(strat, long, short, a.monitorConfig(), a.logger)

	m.OnUpdate(func(update domain.PositionUpdate) {
		if deps.Hub != nil {
			deps.Hub.PublishUpdate(update)
		}
	})
	m.OnAlert(func(alert domain.Alert) {
		if deps.Hub != nil {
			deps.Hub.PublishAlert(alert)
		}
		if deps.Notifier != nil {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := deps.Notifier.NotifyAlert(notifyCtx, alert); err != nil {
				a.logger.Warn("alert notification failed", slog.String("error", err.Error()))
			}
			cancel()
		}
		if alert.Type == domain.AlertAutoClose {
			// The monitor already claimed the close; this path owns it now.
			go a.closeStrategy(deps, strat)
		}
	})

	deps.Portfolio.Add(ctx, m)
	return nil
}

// closeStrategy closes both legs after an auto-close trigger. Runs off the
// monitor goroutine; its own timeout bounds the venue calls.
func (a *App) closeStrategy(deps *Dependencies, strat *domain.Strategy) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := deps.Executor.CloseClaimed(ctx, strat)
	a.logger.Info("auto-close finished",
		slog.String("strategy_id", strat.ID),
		slog.String("status", string(res.Status)),
		slog.String("message", res.Message),
	)
	deps.Portfolio.Remove(strat.ID)
}

// startEventSurface starts the WebSocket hub and HTTP server when enabled.
func (a *App) startEventSurface(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Hub == nil {
		return
	}

	g.Go(func() error {
		err := deps.Hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", deps.Hub.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/scans/last", func(w http.ResponseWriter, r *http.Request) {
		scan, err := deps.Scanner.LastScan(r.Context())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "no scan completed yet", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scan)
	})
	mux.HandleFunc("/api/portfolio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(deps.Portfolio.Summarize())
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("event server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("event server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})
}

// thresholds converts the scanner config section into ranking thresholds.
func (a *App) thresholds() scanner.Thresholds {
	return scanner.Thresholds{
		MinSpread:        a.cfg.Scanner.MinSpread,
		MinLeverage:      a.cfg.Scanner.MinLeverage,
		TopN:             a.cfg.Scanner.TopN,
		IncludeNetSpread: a.cfg.Scanner.IncludeNetSpread,
		HoldHours:        a.cfg.Scanner.HoldHours,
	}
}

// execParams converts the executor config section into execution parameters.
// Zero thresholds disable the corresponding auto-close trigger.
func (a *App) execParams() executor.Params {
	p := executor.Params{
		StakeUSD:            a.cfg.Executor.StakeUSD,
		TargetLeverage:      a.cfg.Executor.TargetLeverage,
		AutoCloseOnReversal: a.cfg.Executor.AutoCloseOnReversal,
	}
	if tp := a.cfg.Executor.TakeProfitUSD; tp > 0 {
		p.TakeProfitUSD = &tp
	}
	if sl := a.cfg.Executor.StopLossUSD; sl < 0 {
		p.StopLossUSD = &sl
	}
	if mh := a.cfg.Executor.MaxHoldHours; mh > 0 {
		p.MaxHoldHours = &mh
	}
	return p
}

func (a *App) monitorConfig() monitor.Config {
	return monitor.Config{
		Interval:           a.cfg.Monitor.Interval.Duration,
		FetchTimeout:       a.cfg.Monitor.FetchTimeout.Duration,
		AlertOnProfit:      a.cfg.Monitor.AlertOnProfit,
		ProfitThresholdUSD: a.cfg.Monitor.ProfitThresholdUSD,
		AlertOnLoss:        a.cfg.Monitor.AlertOnLoss,
		LossThresholdUSD:   a.cfg.Monitor.LossThresholdUSD,
		AlertOnLiquidation: a.cfg.Monitor.AlertOnLiquidation,
		LiquidationRiskPct: a.cfg.Monitor.LiquidationRiskPct,
		AlertOnReversal:    a.cfg.Monitor.AlertOnReversal,
	}
}
