// Package oracle provides market price sources for the trading loop: a
// Binance REST client for on-demand quotes and a WebSocket feed that keeps
// the shared price cache warm.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ladderbot/internal/domain"
)

// BinanceOracle fetches spot prices from the Binance REST API. It implements
// domain.PriceOracle.
type BinanceOracle struct {
	baseURL string
	symbol  string
	client  *http.Client
	logger  *slog.Logger
}

// NewBinanceOracle creates an oracle that queries baseURL for the given
// exchange symbol (e.g. "BTCUSDT").
func NewBinanceOracle(baseURL, symbol string, logger *slog.Logger) *BinanceOracle {
	return &BinanceOracle{
		baseURL: baseURL,
		symbol:  symbol,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "binance_oracle")),
	}
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice returns the latest spot price for the configured symbol. The pair
// argument identifies the trading pair for logging; the exchange symbol is
// fixed at construction. Errors wrap domain.ErrPriceFetch so callers can
// classify them.
func (o *BinanceOracle) GetPrice(ctx context.Context, pair string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", o.baseURL, o.symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w: %v", domain.ErrPriceFetch, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w: %v", domain.ErrPriceFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("oracle: %w: status %d: %s", domain.ErrPriceFetch, resp.StatusCode, string(body))
	}

	var ticker tickerPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("oracle: %w: decode: %v", domain.ErrPriceFetch, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w: parse price %q: %v", domain.ErrPriceFetch, ticker.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("oracle: %w: non-positive price %f", domain.ErrPriceFetch, price)
	}

	o.logger.Debug("price fetched",
		slog.String("pair", pair),
		slog.Float64("price", price))
	return price, nil
}
