package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

var _ domain.StrategyStore = (*StrategyStore)(nil)

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Create inserts a strategy record.
func (s *StrategyStore) Create(ctx context.Context, st *domain.Strategy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategies (id, asset, long_venue, short_venue, stake_usd, target_leverage, spread_1h, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.ID, st.Opportunity.Asset, st.Opportunity.LongVenue, st.Opportunity.ShortVenue,
		st.StakeUSD, st.TargetLeverage, st.Opportunity.Spread1h, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert strategy: %w", err)
	}
	return nil
}

// MarkClosed records the final PnL and close time of a strategy.
func (s *StrategyStore) MarkClosed(ctx context.Context, id string, finalPnL float64, closedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE strategies SET closed = TRUE, final_pnl = $2, closed_at = $3 WHERE id = $1`,
		id, finalPnL, closedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark strategy closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetOpen returns all strategies not yet closed, newest first.
func (s *StrategyStore) GetOpen(ctx context.Context) ([]domain.StrategyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, asset, long_venue, short_venue, stake_usd, target_leverage, spread_1h, final_pnl, closed, created_at, closed_at
		FROM strategies WHERE NOT closed ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open strategies: %w", err)
	}
	defer rows.Close()

	var list []domain.StrategyRecord
	for rows.Next() {
		var rec domain.StrategyRecord
		if err := rows.Scan(&rec.ID, &rec.Asset, &rec.LongVenue, &rec.ShortVenue,
			&rec.StakeUSD, &rec.TargetLeverage, &rec.Spread1h, &rec.FinalPnL,
			&rec.Closed, &rec.CreatedAt, &rec.ClosedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
