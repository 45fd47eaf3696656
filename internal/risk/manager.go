// Package risk gates every entry and exit the strategy engine proposes. The
// manager holds the static limits plus the rolling daily baseline used for
// the daily-loss limit; everything else is recomputed per check.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ladderbot/internal/domain"
)

// Manager evaluates whether opening or closing positions is permitted given
// current positions, price, gas, and liquidity. One Manager serves exactly
// one trading pair; the daily baseline is never shared across pairs.
type Manager struct {
	limits Limits
	pair   string

	gas       domain.GasOracle
	liquidity domain.LiquiditySource
	baselines domain.BaselineStore // optional persistence
	logger    *slog.Logger

	now func() time.Time

	dailyBaselineValue float64
	dailyBaselineAt    time.Time
}

// NewManager creates a Manager for pair with the given immutable limits.
// baselines may be nil; when set, baseline updates are persisted through it.
func NewManager(pair string, limits Limits, gas domain.GasOracle, liquidity domain.LiquiditySource, baselines domain.BaselineStore, logger *slog.Logger) *Manager {
	return &Manager{
		limits:    limits,
		pair:      pair,
		gas:       gas,
		liquidity: liquidity,
		baselines: baselines,
		logger:    logger.With(slog.String("component", "risk_manager"), slog.String("pair", pair)),
		now:       time.Now,
	}
}

// Restore seeds the daily baseline from a persisted record, typically at
// process start.
func (m *Manager) Restore(b domain.Baseline) {
	m.dailyBaselineValue = b.Value
	m.dailyBaselineAt = b.UpdatedAt
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// CanOpenPosition decides whether a new position of the given leverage and
// pre-leverage amount may be opened. Checks run in a fixed order and the
// first failing check wins:
//
//  1. open position count vs MaxPositions
//  2. leverage vs MaxLeverage
//  3. projected total exposure vs MaxDrawdown * daily baseline
//  4. gas price vs MaxGasPriceGwei
//  5. liquidity vs MinLiquidity
func (m *Manager) CanOpenPosition(ctx context.Context, positions []domain.Position, leverage, amount, currentPrice float64) (Decision, error) {
	if len(positions) >= m.limits.MaxPositions {
		return Decision{Allowed: false, Reason: "max positions reached"}, nil
	}

	if leverage > m.limits.MaxLeverage {
		return Decision{Allowed: false, Reason: "leverage exceeds maximum"}, nil
	}

	// Exposure guard. The comparison of an absolute exposure figure against
	// MaxDrawdown * dailyBaseline is a deliberate cross-limit guard carried
	// over from the deployed controller; changing the formula changes which
	// ladders are allowed to grow.
	exposure := m.projectedExposure(positions, amount, leverage)
	if exposure > m.limits.MaxDrawdown*m.dailyBaselineValue {
		return Decision{Allowed: false, Reason: "total exposure exceeds maximum"}, nil
	}

	gasPrice, err := m.gas.GetGasPrice(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: gas price: %w", err)
	}
	if gasPrice > m.limits.MaxGasPriceGwei {
		return Decision{Allowed: false, Reason: "gas price too high"}, nil
	}

	liquidity, err := m.liquidity.GetLiquidity(ctx, m.pair)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: liquidity: %w", err)
	}
	if liquidity < m.limits.MinLiquidity {
		return Decision{Allowed: false, Reason: "insufficient liquidity"}, nil
	}

	return Decision{Allowed: true}, nil
}

// ShouldClosePositions computes a fresh Metrics snapshot and decides whether
// the open positions must be unwound. Checks run in first-match order:
// stop loss, take profit, daily loss limit. Boundaries are inclusive.
func (m *Manager) ShouldClosePositions(ctx context.Context, positions []domain.Position, currentPrice float64) (CloseDecision, error) {
	metrics, err := m.ComputeMetrics(ctx, positions, currentPrice)
	if err != nil {
		return CloseDecision{}, err
	}

	if metrics.CurrentDrawdown <= -m.limits.StopLossPercentage {
		return CloseDecision{ShouldClose: true, Reason: "stop loss"}, nil
	}
	if metrics.CurrentDrawdown >= m.limits.TakeProfitPercentage {
		return CloseDecision{ShouldClose: true, Reason: "take profit"}, nil
	}
	if metrics.DailyPnL <= -m.limits.MaxDailyLoss {
		return CloseDecision{ShouldClose: true, Reason: "daily loss limit"}, nil
	}

	return CloseDecision{}, nil
}

// ComputeMetrics builds a point-in-time risk snapshot over the given
// positions. CurrentDrawdown here is (currentValue-entryValue)/entryValue
// with the leveraged notional as entry value and no fee adjustment; it is a
// different quantity from the ledger's net profit ratio.
func (m *Manager) ComputeMetrics(ctx context.Context, positions []domain.Position, currentPrice float64) (Metrics, error) {
	var totalExposure, totalEntryValue, totalCurrentValue, leverageSum float64
	for _, p := range positions {
		totalExposure += p.USDTValue * p.Leverage
		totalEntryValue += p.NotionalAmount
		totalCurrentValue += currentPrice * p.AssetAmount
		leverageSum += p.Leverage
	}

	var drawdown, avgLeverage float64
	if totalEntryValue > 0 {
		drawdown = (totalCurrentValue - totalEntryValue) / totalEntryValue
	}
	if len(positions) > 0 {
		avgLeverage = leverageSum / float64(len(positions))
	}

	gasPrice, err := m.gas.GetGasPrice(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("risk: gas price: %w", err)
	}
	liquidity, err := m.liquidity.GetLiquidity(ctx, m.pair)
	if err != nil {
		return Metrics{}, fmt.Errorf("risk: liquidity: %w", err)
	}

	return Metrics{
		TotalExposure:   totalExposure,
		CurrentDrawdown: drawdown,
		DailyPnL:        m.dailyPnL(ctx, totalCurrentValue),
		OpenPositions:   len(positions),
		AverageLeverage: avgLeverage,
		GasPriceGwei:    gasPrice,
		Liquidity:       liquidity,
	}, nil
}

// UpdateDailyBaseline overrides the rolling daily baseline, e.g. after a
// realized close, and persists the new record.
func (m *Manager) UpdateDailyBaseline(ctx context.Context, value float64) {
	m.dailyBaselineValue = value
	m.dailyBaselineAt = m.now()
	m.persistBaseline(ctx)
}

// Baseline returns the current daily baseline value and its timestamp.
func (m *Manager) Baseline() (float64, time.Time) {
	return m.dailyBaselineValue, m.dailyBaselineAt
}

// projectedExposure sums the leveraged notional of the existing positions
// plus the proposed entry.
func (m *Manager) projectedExposure(positions []domain.Position, newAmount, newLeverage float64) float64 {
	var exposure float64
	for _, p := range positions {
		exposure += p.USDTValue * p.Leverage
	}
	return exposure + newAmount*newLeverage
}

// dailyPnL returns portfolio value change relative to the daily baseline. If
// more than 24h have passed since the last baseline update, the baseline is
// reset to the current value first; yesterday's unrealized gain becomes
// today's zero.
func (m *Manager) dailyPnL(ctx context.Context, currentValue float64) float64 {
	if m.now().Sub(m.dailyBaselineAt) > 24*time.Hour {
		m.dailyBaselineValue = currentValue
		m.dailyBaselineAt = m.now()
		m.logger.Info("daily baseline rolled over",
			slog.Float64("baseline", currentValue),
		)
		m.persistBaseline(ctx)
	}
	if m.dailyBaselineValue == 0 {
		return 0
	}
	return (currentValue - m.dailyBaselineValue) / m.dailyBaselineValue
}

func (m *Manager) persistBaseline(ctx context.Context) {
	if m.baselines == nil {
		return
	}
	err := m.baselines.Upsert(ctx, domain.Baseline{
		Pair:      m.pair,
		Value:     m.dailyBaselineValue,
		UpdatedAt: m.dailyBaselineAt,
	})
	if err != nil {
		m.logger.Warn("baseline persist failed", slog.String("error", err.Error()))
	}
}
