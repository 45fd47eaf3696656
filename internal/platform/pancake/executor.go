package pancake

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ladderbot/internal/domain"
)

const defaultSwapDeadline = 20 * time.Minute

// Executor performs token swaps through the PancakeSwap v2 router. It
// implements domain.SwapExecutor.
type Executor struct {
	client   *Client
	router   common.Address
	slippage float64
	logger   *slog.Logger
}

// NewExecutor creates an executor that routes swaps through routerAddress,
// protecting each fill with the given slippage tolerance (fraction, e.g.
// 0.005).
func NewExecutor(client *Client, routerAddress string, slippage float64, logger *slog.Logger) *Executor {
	return &Executor{
		client:   client,
		router:   common.HexToAddress(routerAddress),
		slippage: slippage,
		logger:   logger.With(slog.String("component", "pancake_executor")),
	}
}

// Swap exchanges req.AmountIn of TokenIn for TokenOut: it verifies the wallet
// balance, approves the router when the allowance is short, quotes the
// expected output, and submits swapExactTokensForTokens with a slippage-
// protected minimum. Fees are reported as expected minus actual output.
func (e *Executor) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	tokenIn := common.HexToAddress(req.TokenIn)
	tokenOut := common.HexToAddress(req.TokenOut)

	decIn, err := e.client.tokenDecimals(ctx, tokenIn)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}
	decOut, err := e.client.tokenDecimals(ctx, tokenOut)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}

	amountIn := toUnits(req.AmountIn, decIn)
	if amountIn.Sign() <= 0 {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: non-positive input amount", domain.ErrSwapFailed)
	}

	balance, err := e.client.tokenBalance(ctx, tokenIn, e.client.from)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}
	if balance.Cmp(amountIn) < 0 {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: insufficient balance: have %s, need %s",
			domain.ErrSwapFailed, balance.String(), amountIn.String())
	}

	if err := e.ensureAllowance(ctx, tokenIn, amountIn); err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}

	path := []common.Address{tokenIn, tokenOut}
	expectedOut, err := e.quote(ctx, amountIn, path)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}

	minOut := applySlippage(expectedOut, e.slippage)
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = defaultSwapDeadline
	}
	deadlineTS := big.NewInt(time.Now().Add(deadline).Unix())

	data, err := routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, e.client.from, deadlineTS)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: pack swap: %v", domain.ErrSwapFailed, err)
	}

	receipt, hash, err := e.client.sendTx(ctx, e.router, data)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("pancake: %w: %v", domain.ErrSwapFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.SwapResult{
			TxRef: hash.Hex(),
			TxURL: e.client.txURL(hash),
		}, fmt.Errorf("pancake: %w: transaction reverted: %s", domain.ErrSwapFailed, hash.Hex())
	}

	actualOut := e.actualOutput(receipt, tokenOut)
	if actualOut == nil {
		// Output transfer not found in the logs; fall back to the quote.
		actualOut = expectedOut
	}

	expected := fromUnits(expectedOut, decOut)
	actual := fromUnits(actualOut, decOut)
	fees := expected - actual
	if fees < 0 {
		fees = 0
	}

	e.logger.Info("swap executed",
		slog.String("pair", req.Pair),
		slog.Float64("amount_in", req.AmountIn),
		slog.Float64("expected_out", expected),
		slog.Float64("actual_out", actual),
		slog.String("tx", hash.Hex()))

	return domain.SwapResult{
		Success:        true,
		ActualOutput:   actual,
		ExpectedOutput: expected,
		Fees:           fees,
		TxRef:          hash.Hex(),
		TxURL:          e.client.txURL(hash),
	}, nil
}

// ensureAllowance approves the router for amount when the current allowance
// falls short.
func (e *Executor) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	out, err := e.client.call(ctx, token, erc20ABI, "allowance", e.client.from, e.router)
	if err != nil {
		return err
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("allowance: unexpected type %T", out[0])
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err := erc20ABI.Pack("approve", e.router, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	receipt, hash, err := e.client.sendTx(ctx, token, data)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve reverted: %s", hash.Hex())
	}
	e.logger.Info("router approved",
		slog.String("token", token.Hex()),
		slog.String("tx", hash.Hex()))
	return nil
}

// quote returns the router's expected output for amountIn along path.
func (e *Executor) quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	out, err := e.client.call(ctx, e.router, routerABI, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("getAmountsOut: unexpected result %T", out[0])
	}
	return amounts[len(amounts)-1], nil
}

// actualOutput scans the receipt for the Transfer of tokenOut into the
// trading wallet and returns its value, or nil when no matching log exists.
func (e *Executor) actualOutput(receipt *types.Receipt, tokenOut common.Address) *big.Int {
	transferSig := erc20ABI.Events["Transfer"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != tokenOut || len(lg.Topics) != 3 || lg.Topics[0] != transferSig {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != e.client.from {
			continue
		}
		return new(big.Int).SetBytes(lg.Data)
	}
	return nil
}

// applySlippage reduces amount by the tolerance fraction using basis-point
// integer math.
func applySlippage(amount *big.Int, tolerance float64) *big.Int {
	bps := int64(tolerance * 10_000)
	if bps <= 0 {
		return new(big.Int).Set(amount)
	}
	out := new(big.Int).Mul(amount, big.NewInt(10_000-bps))
	return out.Div(out, big.NewInt(10_000))
}
