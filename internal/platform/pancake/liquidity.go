package pancake

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Liquidity reports pool depth for the configured pair contract, denominated
// in the quote token. It implements domain.LiquiditySource.
type Liquidity struct {
	client     *Client
	pairAddr   common.Address
	quoteToken common.Address
	logger     *slog.Logger

	mu     sync.Mutex
	token0 common.Address
	cached bool
}

// NewLiquidity creates a liquidity source for the v2 pair contract at
// pairAddress. quoteToken selects which reserve is reported.
func NewLiquidity(client *Client, pairAddress, quoteToken string, logger *slog.Logger) *Liquidity {
	return &Liquidity{
		client:     client,
		pairAddr:   common.HexToAddress(pairAddress),
		quoteToken: common.HexToAddress(quoteToken),
		logger:     logger.With(slog.String("component", "pancake_liquidity")),
	}
}

// GetLiquidity returns the pair's quote-token reserve in whole token units.
func (l *Liquidity) GetLiquidity(ctx context.Context, pair string) (float64, error) {
	token0, err := l.fetchToken0(ctx)
	if err != nil {
		return 0, fmt.Errorf("pancake: token0: %w", err)
	}

	out, err := l.client.call(ctx, l.pairAddr, pairABI, "getReserves")
	if err != nil {
		return 0, fmt.Errorf("pancake: getReserves: %w", err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return 0, fmt.Errorf("pancake: getReserves: unexpected types %T, %T", out[0], out[1])
	}

	quoteReserve := reserve1
	if token0 == l.quoteToken {
		quoteReserve = reserve0
	}

	decimals, err := l.client.tokenDecimals(ctx, l.quoteToken)
	if err != nil {
		return 0, fmt.Errorf("pancake: quote decimals: %w", err)
	}

	liquidity := fromUnits(quoteReserve, decimals)
	l.logger.Debug("pool reserves read",
		slog.String("pair", pair),
		slog.Float64("quote_reserve", liquidity))
	return liquidity, nil
}

// fetchToken0 resolves the pair's token0 address, caching it after the first
// successful lookup. The contract value is immutable.
func (l *Liquidity) fetchToken0(ctx context.Context) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached {
		return l.token0, nil
	}

	out, err := l.client.call(ctx, l.pairAddr, pairABI, "token0")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected type %T", out[0])
	}
	l.token0 = addr
	l.cached = true
	return addr, nil
}
