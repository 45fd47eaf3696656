package paper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderbot/internal/domain"
)

type fixedOracle struct {
	price float64
	err   error
}

func (o fixedOracle) GetPrice(context.Context, string) (float64, error) {
	return o.price, o.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSwapQuoteToBase(t *testing.T) {
	e := NewExecutor(fixedOracle{price: 50000}, "USDT", 0.0025, testLogger())

	res, err := e.Swap(context.Background(), domain.SwapRequest{
		Pair:     "BTCB/USDT",
		TokenIn:  "USDT",
		TokenOut: "BTCB",
		AmountIn: 2000,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 2000/50000.0, res.ExpectedOutput, 1e-12)
	assert.InDelta(t, (2000/50000.0)*0.9975, res.ActualOutput, 1e-12)
	assert.InDelta(t, res.ExpectedOutput-res.ActualOutput, res.Fees, 1e-12)
	assert.NotEmpty(t, res.TxRef)
}

func TestSwapBaseToQuote(t *testing.T) {
	e := NewExecutor(fixedOracle{price: 50000}, "USDT", 0.0025, testLogger())

	res, err := e.Swap(context.Background(), domain.SwapRequest{
		Pair:     "BTCB/USDT",
		TokenIn:  "BTCB",
		TokenOut: "USDT",
		AmountIn: 0.04,
	})
	require.NoError(t, err)
	assert.InDelta(t, 2000, res.ExpectedOutput, 1e-9)
	assert.InDelta(t, 2000*0.9975, res.ActualOutput, 1e-9)
}

// Token comparison is case-insensitive, matching how addresses and symbols
// arrive from config.
func TestSwapQuoteTokenCaseInsensitive(t *testing.T) {
	e := NewExecutor(fixedOracle{price: 50000}, "usdt", 0.0025, testLogger())

	res, err := e.Swap(context.Background(), domain.SwapRequest{
		Pair:     "BTCB/USDT",
		TokenIn:  "USDT",
		TokenOut: "BTCB",
		AmountIn: 1000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1000/50000.0, res.ExpectedOutput, 1e-12)
}

func TestSwapRejectsNonPositiveAmount(t *testing.T) {
	e := NewExecutor(fixedOracle{price: 50000}, "USDT", 0.0025, testLogger())

	_, err := e.Swap(context.Background(), domain.SwapRequest{
		Pair: "BTCB/USDT", TokenIn: "USDT", TokenOut: "BTCB", AmountIn: 0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSwapFailed)
}

func TestSwapOracleFailure(t *testing.T) {
	e := NewExecutor(fixedOracle{err: errors.New("feed down")}, "USDT", 0.0025, testLogger())

	_, err := e.Swap(context.Background(), domain.SwapRequest{
		Pair: "BTCB/USDT", TokenIn: "USDT", TokenOut: "BTCB", AmountIn: 1000,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSwapFailed)
}

func TestSwapRefsAreUnique(t *testing.T) {
	e := NewExecutor(fixedOracle{price: 50000}, "USDT", 0.0025, testLogger())

	seen := map[string]bool{}
	for range 5 {
		res, err := e.Swap(context.Background(), domain.SwapRequest{
			Pair: "BTCB/USDT", TokenIn: "USDT", TokenOut: "BTCB", AmountIn: 1000,
		})
		require.NoError(t, err)
		assert.False(t, seen[res.TxRef])
		seen[res.TxRef] = true
	}
}

func TestFixedGasAndLiquidity(t *testing.T) {
	gwei, err := Gas{Gwei: 3}.GetGasPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3, gwei, 1e-12)

	liq, err := Liquidity{Amount: 1000000}.GetLiquidity(context.Background(), "BTCB/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000000, liq, 1e-12)
}
