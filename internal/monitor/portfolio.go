package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Summary is the read-side rollup across all active monitors.
type Summary struct {
	TotalPnLUSD     float64
	TotalFundingUSD float64
	NumStrategies   int
	NumAtRisk       int
	Active          []string // strategy IDs, sorted
}

// Portfolio owns the set of active monitors. Add and Remove start and stop
// the underlying loops; the rollup is purely read-side with no state machine
// of its own.
type Portfolio struct {
	mu       sync.Mutex
	monitors map[string]*Monitor
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio(logger *slog.Logger) *Portfolio {
	return &Portfolio{
		monitors: make(map[string]*Monitor),
		cancels:  make(map[string]context.CancelFunc),
		logger:   logger.With(slog.String("component", "portfolio")),
	}
}

// Add registers a monitor under its strategy ID and starts its loop. Adding
// an ID that is already present replaces and stops the previous monitor.
func (p *Portfolio) Add(ctx context.Context, m *Monitor) {
	id := m.Strategy().ID

	p.mu.Lock()
	if prev, ok := p.monitors[id]; ok {
		prev.Stop()
		p.cancels[id]()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.monitors[id] = m
	p.cancels[id] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		m.Run(runCtx)
	}()

	p.logger.Info("monitor added", slog.String("strategy_id", id))
}

// Remove stops and forgets the monitor for the given strategy ID. Removing an
// unknown ID is a no-op.
func (p *Portfolio) Remove(id string) {
	p.mu.Lock()
	m, ok := p.monitors[id]
	if ok {
		m.Stop()
		p.cancels[id]()
		delete(p.monitors, id)
		delete(p.cancels, id)
	}
	p.mu.Unlock()

	if ok {
		p.logger.Info("monitor removed", slog.String("strategy_id", id))
	}
}

// Get returns the monitor for a strategy ID, or nil.
func (p *Portfolio) Get(id string) *Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitors[id]
}

// Summarize aggregates total PnL, total accrued funding, and the count of
// at-risk strategies across all active monitors. Monitors that have not yet
// produced an update contribute only to the strategy count.
func (p *Portfolio) Summarize() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Summary{NumStrategies: len(p.monitors)}
	for id, m := range p.monitors {
		s.Active = append(s.Active, id)
		update := m.LastUpdate()
		if update == nil {
			continue
		}
		s.TotalPnLUSD += update.TotalPnL
		s.TotalFundingUSD += update.FundingAccrued
		if update.IsAtRisk {
			s.NumAtRisk++
		}
	}
	sort.Strings(s.Active)
	return s
}

// StopAll stops every monitor and waits for the loops to finish.
func (p *Portfolio) StopAll() {
	p.mu.Lock()
	for id, m := range p.monitors {
		m.Stop()
		p.cancels[id]()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
