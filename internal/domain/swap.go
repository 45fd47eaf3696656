package domain

import (
	"context"
	"time"
)

// SwapRequest asks the executor to exchange AmountIn units of TokenIn for
// TokenOut. Amounts are denominated in whole token units (not wei); the
// executor handles decimal scaling, balance checks, and allowance approval.
type SwapRequest struct {
	Pair      string
	TokenIn   string
	TokenOut  string
	AmountIn  float64
	Deadline  time.Duration
}

// SwapResult reports the outcome of an executed swap. ActualOutput and Fees
// are denominated in whole units of the output token.
type SwapResult struct {
	Success        bool
	ActualOutput   float64
	ExpectedOutput float64
	Fees           float64
	TxRef          string
	TxURL          string
}

// SwapExecutor performs a token exchange. Implementations must treat
// allowance and approval as an internal precondition; callers only see the
// final fill or an error wrapping ErrSwapFailed.
type SwapExecutor interface {
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// PriceOracle supplies the current reference price for a trading pair.
// Errors wrap ErrPriceFetch.
type PriceOracle interface {
	GetPrice(ctx context.Context, pair string) (float64, error)
}

// GasOracle supplies the current gas price in gwei.
type GasOracle interface {
	GetGasPrice(ctx context.Context) (float64, error)
}

// LiquiditySource reports available pool liquidity for a pair, denominated in
// the quote token.
type LiquiditySource interface {
	GetLiquidity(ctx context.Context, pair string) (float64, error)
}
