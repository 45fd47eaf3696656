// Package paper provides a simulated trading backend for dry runs: swaps are
// filled at the oracle price minus the pool fee, and gas and liquidity
// queries return fixed values.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"ladderbot/internal/domain"
)

// Executor simulates swaps against the oracle price. It implements
// domain.SwapExecutor.
type Executor struct {
	oracle     domain.PriceOracle
	quoteToken string
	feeRate    float64
	logger     *slog.Logger
	fills      atomic.Int64
}

// NewExecutor creates a simulated executor. quoteToken identifies which side
// of a request is the quote currency; feeRate is the pool fee applied to
// every fill (e.g. 0.0025).
func NewExecutor(oracle domain.PriceOracle, quoteToken string, feeRate float64, logger *slog.Logger) *Executor {
	return &Executor{
		oracle:     oracle,
		quoteToken: strings.ToLower(quoteToken),
		feeRate:    feeRate,
		logger:     logger.With(slog.String("component", "paper_executor")),
	}
}

// Swap fills the request at the current oracle price. Quote-to-base requests
// receive amountIn/price of the base token; base-to-quote requests receive
// amountIn*price, each reduced by the pool fee.
func (e *Executor) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	if req.AmountIn <= 0 {
		return domain.SwapResult{}, fmt.Errorf("paper: %w: non-positive input amount", domain.ErrSwapFailed)
	}

	price, err := e.oracle.GetPrice(ctx, req.Pair)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("paper: %w: %v", domain.ErrSwapFailed, err)
	}

	var expected float64
	if strings.ToLower(req.TokenIn) == e.quoteToken {
		expected = req.AmountIn / price
	} else {
		expected = req.AmountIn * price
	}
	actual := expected * (1 - e.feeRate)
	fees := expected - actual

	ref := fmt.Sprintf("paper-%d-%s", e.fills.Add(1), uuid.NewString()[:8])
	e.logger.Info("paper fill",
		slog.String("pair", req.Pair),
		slog.Float64("amount_in", req.AmountIn),
		slog.Float64("price", price),
		slog.Float64("actual_out", actual),
		slog.String("ref", ref))

	return domain.SwapResult{
		Success:        true,
		ActualOutput:   actual,
		ExpectedOutput: expected,
		Fees:           fees,
		TxRef:          ref,
	}, nil
}

// Gas returns a fixed gas price. It implements domain.GasOracle.
type Gas struct {
	Gwei float64
}

func (g Gas) GetGasPrice(ctx context.Context) (float64, error) {
	return g.Gwei, nil
}

// Liquidity returns a fixed pool depth. It implements domain.LiquiditySource.
type Liquidity struct {
	Amount float64
}

func (l Liquidity) GetLiquidity(ctx context.Context, pair string) (float64, error) {
	return l.Amount, nil
}
