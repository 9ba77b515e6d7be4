package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record, flattening both order legs.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, strategy_id, asset, status,
			long_venue, long_order_id, long_success, long_error,
			short_venue, short_order_id, short_success, short_error,
			message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.StrategyID, rec.Asset, string(rec.Status),
		rec.LongOrder.Venue, rec.LongOrder.OrderID, rec.LongOrder.Success, rec.LongOrder.Error,
		rec.ShortOrder.Venue, rec.ShortOrder.OrderID, rec.ShortOrder.Success, rec.ShortOrder.Error,
		rec.Message, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}
	return nil
}
