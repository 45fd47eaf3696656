package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderbot/internal/domain"
)

type stubGas struct {
	gwei float64
	err  error
}

func (s stubGas) GetGasPrice(context.Context) (float64, error) { return s.gwei, s.err }

type stubLiquidity struct {
	amount float64
	err    error
}

func (s stubLiquidity) GetLiquidity(context.Context, string) (float64, error) {
	return s.amount, s.err
}

type memBaselines struct {
	last domain.Baseline
	ups  int
}

func (m *memBaselines) Get(context.Context, string) (domain.Baseline, error) {
	return domain.Baseline{}, domain.ErrNotFound
}

func (m *memBaselines) Upsert(_ context.Context, b domain.Baseline) error {
	m.last = b
	m.ups++
	return nil
}

func testLimits() Limits {
	return Limits{
		MaxPositions:         4,
		MaxLeverage:          5,
		MaxDrawdown:          0.1,
		MaxDailyLoss:         0.05,
		StopLossPercentage:   0.03,
		TakeProfitPercentage: 0.02,
		MaxGasPriceGwei:      50,
		MinLiquidity:         100000,
	}
}

func newTestManager(t *testing.T, gas domain.GasOracle, liq domain.LiquiditySource) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager("BTCB/USDT", testLimits(), gas, liq, nil, logger)
	m.UpdateDailyBaseline(context.Background(), 100000)
	return m
}

func positionsWithExposure(count int, usdtValue, leverage float64) []domain.Position {
	out := make([]domain.Position, count)
	for i := range out {
		out[i] = domain.Position{
			EntryPrice:     50000,
			USDTValue:      usdtValue,
			Leverage:       leverage,
			NotionalAmount: usdtValue * leverage,
			AssetAmount:    usdtValue * leverage / 50000,
			Status:         domain.PositionStatusOpen,
		}
	}
	return out
}

func TestCanOpenPositionAllowed(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})

	d, err := m.CanOpenPosition(context.Background(), nil, 2, 1000, 50000)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestCanOpenPositionMaxPositions(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})

	d, err := m.CanOpenPosition(context.Background(), positionsWithExposure(4, 1000, 2), 2, 1000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "max positions reached", d.Reason)
}

// The position-count check runs before the leverage check, so a request that
// would trip both reports only the count denial.
func TestCanOpenPositionCheckOrder(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})

	d, err := m.CanOpenPosition(context.Background(), positionsWithExposure(4, 1000, 2), 10, 1000, 50000)
	require.NoError(t, err)
	assert.Equal(t, "max positions reached", d.Reason)
}

func TestCanOpenPositionLeverage(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})

	d, err := m.CanOpenPosition(context.Background(), nil, 5.5, 1000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "leverage exceeds maximum", d.Reason)
}

// Baseline 100000 with MaxDrawdown 0.1 caps projected exposure at 10000.
// Three open positions at 2000 leveraged exposure each plus a 2x5000 entry
// projects 16000 and must be denied; a 2x1000 entry projects 8000 and passes.
func TestCanOpenPositionExposureCap(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})
	open := positionsWithExposure(3, 1000, 2)

	d, err := m.CanOpenPosition(context.Background(), open, 2, 5000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "total exposure exceeds maximum", d.Reason)

	d, err = m.CanOpenPosition(context.Background(), open, 2, 1000, 50000)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// A zero baseline makes the exposure cap zero, denying every entry. The
// manager must be seeded before it can approve anything.
func TestCanOpenPositionZeroBaselineDeniesAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager("BTCB/USDT", testLimits(), stubGas{gwei: 5}, stubLiquidity{amount: 500000}, nil, logger)

	d, err := m.CanOpenPosition(context.Background(), nil, 2, 1000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "total exposure exceeds maximum", d.Reason)
}

func TestCanOpenPositionGasPrice(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 51}, stubLiquidity{amount: 500000})

	d, err := m.CanOpenPosition(context.Background(), nil, 2, 1000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "gas price too high", d.Reason)
}

func TestCanOpenPositionLiquidity(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 99999})

	d, err := m.CanOpenPosition(context.Background(), nil, 2, 1000, 50000)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "insufficient liquidity", d.Reason)
}

func TestCanOpenPositionGasError(t *testing.T) {
	gasErr := errors.New("rpc down")
	m := newTestManager(t, stubGas{err: gasErr}, stubLiquidity{amount: 500000})

	_, err := m.CanOpenPosition(context.Background(), nil, 2, 1000, 50000)
	require.Error(t, err)
	assert.ErrorIs(t, err, gasErr)
}

// Stop loss triggers at exactly the configured drawdown, boundary inclusive.
// One position: notional 2000, asset 0.04 at entry 50000. At 48500 the
// current value is 1940 for a drawdown of exactly -3%.
func TestShouldCloseStopLossBoundary(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})
	open := positionsWithExposure(1, 1000, 2)
	m.UpdateDailyBaseline(context.Background(), 2000)

	d, err := m.ShouldClosePositions(context.Background(), open, 48500)
	require.NoError(t, err)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, "stop loss", d.Reason)

	// One tick above the boundary holds.
	d, err = m.ShouldClosePositions(context.Background(), open, 48501)
	require.NoError(t, err)
	assert.False(t, d.ShouldClose)
}

func TestShouldCloseTakeProfit(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})
	open := positionsWithExposure(1, 1000, 2)

	// 51000/50000 = +2% drawdown, meeting TakeProfitPercentage exactly.
	d, err := m.ShouldClosePositions(context.Background(), open, 51000)
	require.NoError(t, err)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, "take profit", d.Reason)
}

func TestShouldCloseDailyLossLimit(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})
	open := positionsWithExposure(1, 1000, 2)

	// Portfolio value 2000*49500/50000 = 1980; baseline 2000 puts daily PnL
	// at -1%, within the 5% limit. Re-seed the baseline so the same price is
	// a -6% day while the position drawdown stays inside stop loss.
	m.UpdateDailyBaseline(context.Background(), 2106.4)
	d, err := m.ShouldClosePositions(context.Background(), open, 49500)
	require.NoError(t, err)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, "daily loss limit", d.Reason)
}

func TestDailyBaselineRollsOverAfter24h(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 5}, stubLiquidity{amount: 500000})
	open := positionsWithExposure(1, 1000, 2)

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	metrics, err := m.ComputeMetrics(context.Background(), open, 49000)
	require.NoError(t, err)

	// Baseline resets to the current portfolio value, so the day starts flat.
	assert.InDelta(t, 0, metrics.DailyPnL, 1e-9)
	value, at := m.Baseline()
	assert.InDelta(t, 2000*49000/50000.0, value, 1e-9)
	assert.WithinDuration(t, time.Now().Add(25*time.Hour), at, time.Minute)
}

func TestComputeMetrics(t *testing.T) {
	m := newTestManager(t, stubGas{gwei: 12}, stubLiquidity{amount: 250000})
	open := []domain.Position{
		{EntryPrice: 50000, USDTValue: 1000, Leverage: 2, NotionalAmount: 2000, AssetAmount: 0.04},
		{EntryPrice: 48000, USDTValue: 1000, Leverage: 4, NotionalAmount: 4000, AssetAmount: 4000.0 / 48000},
	}

	metrics, err := m.ComputeMetrics(context.Background(), open, 49000)
	require.NoError(t, err)

	assert.InDelta(t, 6000, metrics.TotalExposure, 1e-9)
	assert.Equal(t, 2, metrics.OpenPositions)
	assert.InDelta(t, 3, metrics.AverageLeverage, 1e-9)
	assert.InDelta(t, 12, metrics.GasPriceGwei, 1e-9)
	assert.InDelta(t, 250000, metrics.Liquidity, 1e-9)

	currentValue := 49000*0.04 + 49000*(4000.0/48000)
	wantDrawdown := (currentValue - 6000) / 6000
	assert.InDelta(t, wantDrawdown, metrics.CurrentDrawdown, 1e-9)
}

func TestUpdateDailyBaselinePersists(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &memBaselines{}
	m := NewManager("BTCB/USDT", testLimits(), stubGas{gwei: 5}, stubLiquidity{amount: 500000}, store, logger)

	m.UpdateDailyBaseline(context.Background(), 42000)

	require.Equal(t, 1, store.ups)
	assert.Equal(t, "BTCB/USDT", store.last.Pair)
	assert.InDelta(t, 42000, store.last.Value, 1e-9)
}

func TestRestoreSeedsBaseline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager("BTCB/USDT", testLimits(), stubGas{gwei: 5}, stubLiquidity{amount: 500000}, nil, logger)

	at := time.Now().Add(-time.Hour)
	m.Restore(domain.Baseline{Pair: "BTCB/USDT", Value: 90000, UpdatedAt: at})

	value, gotAt := m.Baseline()
	assert.InDelta(t, 90000, value, 1e-9)
	assert.Equal(t, at, gotAt)
}
