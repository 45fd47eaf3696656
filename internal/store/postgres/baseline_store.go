package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ladderbot/internal/domain"
)

// BaselineStore implements domain.BaselineStore using PostgreSQL. There is one
// row per pair.
type BaselineStore struct {
	pool *pgxpool.Pool
}

// NewBaselineStore creates a new BaselineStore backed by the given connection pool.
func NewBaselineStore(pool *pgxpool.Pool) *BaselineStore {
	return &BaselineStore{pool: pool}
}

// Get returns the persisted baseline for pair, or ErrNotFound when none has
// been recorded yet.
func (s *BaselineStore) Get(ctx context.Context, pair string) (domain.Baseline, error) {
	var b domain.Baseline
	err := s.pool.QueryRow(ctx,
		`SELECT pair, value, updated_at FROM risk_baselines WHERE pair = $1`, pair,
	).Scan(&b.Pair, &b.Value, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Baseline{}, domain.ErrNotFound
		}
		return domain.Baseline{}, fmt.Errorf("postgres: get baseline %s: %w", pair, err)
	}
	return b, nil
}

// Upsert writes the baseline, replacing any existing row for the pair.
func (s *BaselineStore) Upsert(ctx context.Context, b domain.Baseline) error {
	const query = `
		INSERT INTO risk_baselines (pair, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (pair) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, b.Pair, b.Value, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert baseline %s: %w", b.Pair, err)
	}
	return nil
}
