package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ladderbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, pair, entry_price, notional_amount, asset_amount,
	usdt_value, leverage, fees, status, opened_at, tx_ref,
	exit_price, exit_fees, realized_profit, exit_usdt_value, closed_at, exit_tx_ref`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	var txRef, exitTxRef *string
	var exitPrice, exitFees, realizedProfit, exitUSDTValue *float64
	var closedAt *time.Time

	err := row.Scan(
		&p.ID, &p.Pair, &p.EntryPrice, &p.NotionalAmount, &p.AssetAmount,
		&p.USDTValue, &p.Leverage, &p.Fees, &status, &p.OpenedAt, &txRef,
		&exitPrice, &exitFees, &realizedProfit, &exitUSDTValue, &closedAt, &exitTxRef,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Status = domain.PositionStatus(status)
	if txRef != nil {
		p.TxRef = *txRef
	}
	if closedAt != nil {
		exit := &domain.PositionExit{ClosedAt: *closedAt}
		if exitPrice != nil {
			exit.ExitPrice = *exitPrice
		}
		if exitFees != nil {
			exit.ExitFees = *exitFees
		}
		if realizedProfit != nil {
			exit.RealizedProfit = *realizedProfit
		}
		if exitUSDTValue != nil {
			exit.ExitUSDTValue = *exitUSDTValue
		}
		if exitTxRef != nil {
			exit.TxRef = *exitTxRef
		}
		p.Exit = exit
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a newly opened position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, pair, entry_price, notional_amount, asset_amount,
			usdt_value, leverage, fees, status, opened_at, tx_ref, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Pair, p.EntryPrice, p.NotionalAmount, p.AssetAmount,
		p.USDTValue, p.Leverage, p.Fees, string(p.Status), p.OpenedAt, nullable(p.TxRef),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Close records the exit of an open position. A position can only be closed
// once; closing an unknown or already-closed position returns ErrNotFound.
func (s *PositionStore) Close(ctx context.Context, id string, exit domain.PositionExit) error {
	const query = `
		UPDATE positions SET
			status          = 'closed',
			exit_price      = $2,
			exit_fees       = $3,
			realized_profit = $4,
			exit_usdt_value = $5,
			closed_at       = $6,
			exit_tx_ref     = $7,
			updated_at      = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		id, exit.ExitPrice, exit.ExitFees, exit.RealizedProfit,
		exit.ExitUSDTValue, exit.ClosedAt, nullable(exit.TxRef),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetOpen returns all open positions for the given pair, oldest first so the
// in-memory ladder is rebuilt in entry order.
func (s *PositionStore) GetOpen(ctx context.Context, pair string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE pair = $1 AND status = 'open'
		 ORDER BY opened_at ASC`, pair)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListHistory returns positions for the given pair with pagination and
// optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE pair = $1`
	args := []any{pair}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns up to limit positions closed before cutoff, oldest
// first. Used by the archiver.
func (s *PositionStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
