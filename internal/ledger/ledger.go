// Package ledger owns the ordered collection of positions for one trading
// pair and the aggregates derived from it. Aggregates are always recomputed
// from the open set; nothing is double-booked.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ladderbot/internal/domain"
)

// Ledger holds every position ever opened for a single pair, open and closed.
// It is owned by one trading loop; the mutex only guards against concurrent
// reads from the HTTP status path.
type Ledger struct {
	mu        sync.RWMutex
	pair      string
	positions []domain.Position

	journal domain.PositionStore // optional durable log
	logger  *slog.Logger
}

// New creates an empty Ledger for pair. journal may be nil; when set, every
// open and close is appended to it best-effort.
func New(pair string, journal domain.PositionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		pair:    pair,
		journal: journal,
		logger:  logger.With(slog.String("component", "ledger"), slog.String("pair", pair)),
	}
}

// Restore seeds the ledger with previously persisted positions. It is called
// once at startup, before the trading loop starts.
func (l *Ledger) Restore(positions []domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = append([]domain.Position(nil), positions...)
}

// OpenPositions returns the open positions in insertion order. The returned
// slice is a copy; mutating it does not affect the ledger.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var open []domain.Position
	for _, p := range l.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

// LastOpen returns the most recently opened position that is still open, and
// false when there is none.
func (l *Ledger) LastOpen() (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.positions) - 1; i >= 0; i-- {
		if l.positions[i].IsOpen() {
			return l.positions[i], true
		}
	}
	return domain.Position{}, false
}

// AddPosition appends a new open position with a freshly generated ID and
// returns it. It fails with ErrInvalidPosition when assetAmount or
// notionalAmount is not positive.
func (l *Ledger) AddPosition(ctx context.Context, entryPrice, notionalAmount, assetAmount, usdtValue, leverage, fees float64, openedAt time.Time, txRef string) (domain.Position, error) {
	if assetAmount <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: asset amount %.8f: %w", assetAmount, domain.ErrInvalidPosition)
	}
	if notionalAmount <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: notional amount %.8f: %w", notionalAmount, domain.ErrInvalidPosition)
	}

	pos := domain.Position{
		ID:             uuid.New().String(),
		Pair:           l.pair,
		EntryPrice:     entryPrice,
		NotionalAmount: notionalAmount,
		AssetAmount:    assetAmount,
		USDTValue:      usdtValue,
		Leverage:       leverage,
		Fees:           fees,
		Status:         domain.PositionStatusOpen,
		OpenedAt:       openedAt,
		TxRef:          txRef,
	}

	l.mu.Lock()
	l.positions = append(l.positions, pos)
	l.mu.Unlock()

	if l.journal != nil {
		if err := l.journal.Create(ctx, pos); err != nil {
			l.logger.Warn("position journal write failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return pos, nil
}

// ClosePosition marks the identified position closed, stamping the exit
// record with realizedProfit = (exitPrice-entryPrice)*assetAmount - exitFees.
// Closing an already-closed position fails with ErrPositionClosed.
func (l *Ledger) ClosePosition(ctx context.Context, id string, exitPrice, exitFees float64, closedAt time.Time, txRef string) (domain.Position, error) {
	l.mu.Lock()
	idx := -1
	for i := range l.positions {
		if l.positions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return domain.Position{}, fmt.Errorf("ledger: close position %s: %w", id, domain.ErrNotFound)
	}
	if !l.positions[idx].IsOpen() {
		l.mu.Unlock()
		return domain.Position{}, fmt.Errorf("ledger: close position %s: %w", id, domain.ErrPositionClosed)
	}

	p := &l.positions[idx]
	exit := domain.PositionExit{
		ExitPrice:      exitPrice,
		ExitFees:       exitFees,
		RealizedProfit: (exitPrice-p.EntryPrice)*p.AssetAmount - exitFees,
		ExitUSDTValue:  exitPrice*p.AssetAmount - exitFees,
		ClosedAt:       closedAt,
		TxRef:          txRef,
	}
	p.Exit = &exit
	p.Status = domain.PositionStatusClosed
	closed := *p
	l.mu.Unlock()

	if l.journal != nil {
		if err := l.journal.Close(ctx, id, exit); err != nil {
			l.logger.Warn("position journal close failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return closed, nil
}

// CloseAll closes every open position at exitPrice, charging each one
// exitFeesPerPosition, and returns the newly closed positions. With no open
// positions it is a no-op returning an empty slice.
func (l *Ledger) CloseAll(ctx context.Context, exitPrice, exitFeesPerPosition float64, closedAt time.Time) []domain.Position {
	open := l.OpenPositions()
	closed := make([]domain.Position, 0, len(open))
	for _, p := range open {
		c, err := l.ClosePosition(ctx, p.ID, exitPrice, exitFeesPerPosition, closedAt, "")
		if err != nil {
			// Raced with a concurrent close; already-closed positions are
			// not reported again.
			continue
		}
		closed = append(closed, c)
	}
	return closed
}

// AverageEntryPrice returns the asset-amount-weighted mean entry price over
// the open positions, and 0 when none are open.
func (l *Ledger) AverageEntryPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var totalValue, totalAmount float64
	for _, p := range l.positions {
		if !p.IsOpen() {
			continue
		}
		totalValue += p.EntryPrice * p.AssetAmount
		totalAmount += p.AssetAmount
	}
	if totalAmount == 0 {
		return 0
	}
	return totalValue / totalAmount
}

// NetProfitRatio returns blended net profit across the open positions at
// currentPrice, after the round-trip cost estimate (feeRate+slippage on the
// deployed notional) and the entry fees already paid. It is 0 when no
// positions are open. The entry-value basis is NotionalAmount, the capital
// that actually went through the entry swap.
func (l *Ledger) NetProfitRatio(currentPrice, feeRate, slippage float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var totalEntryValue, totalCurrentValue, totalFees float64
	n := 0
	for _, p := range l.positions {
		if !p.IsOpen() {
			continue
		}
		totalEntryValue += p.NotionalAmount
		totalCurrentValue += currentPrice * p.AssetAmount
		totalFees += p.Fees
		n++
	}
	if n == 0 || totalEntryValue == 0 {
		return 0
	}
	grossProfit := totalCurrentValue - totalEntryValue
	netProfit := grossProfit - totalEntryValue*(feeRate+slippage) - totalFees
	return netProfit / totalEntryValue
}

// Pair returns the trading pair this ledger belongs to.
func (l *Ledger) Pair() string {
	return l.pair
}
