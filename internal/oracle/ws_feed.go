package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ladderbot/internal/domain"
)

// BinanceWSFeed connects to the Binance market stream, subscribes to the
// mini-ticker for one symbol, and writes each price into the shared cache so
// loop ticks can read a warm quote without a REST round trip. It reconnects
// on disconnect.
type BinanceWSFeed struct {
	wsURL     string
	symbol    string
	pair      string
	cache     domain.PriceCache
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBinanceWSFeed creates a feed for the given exchange symbol. Prices are
// stored in cache under the pair name used by the rest of the system.
func NewBinanceWSFeed(wsURL, symbol, pair string, cache domain.PriceCache, logger *slog.Logger) *BinanceWSFeed {
	return &BinanceWSFeed{
		wsURL:  wsURL,
		symbol: symbol,
		pair:   pair,
		cache:  cache,
		logger: logger.With(slog.String("component", "binance_ws_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and streams prices until ctx is cancelled or Close is called.
// Reconnects with a short delay on disconnect.
func (f *BinanceWSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

// miniTickerEvent is the subset of the Binance <symbol>@miniTicker payload we
// use; "c" is the close (last) price.
type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (f *BinanceWSFeed) runConnection(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s@miniTicker", strings.TrimRight(f.wsURL, "/"), strings.ToLower(f.symbol))

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("oracle: ws dial: %w", err)
	}
	defer conn.Close()

	f.logger.Info("binance ws connected", slog.String("stream", streamURL))

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return fmt.Errorf("oracle: ws deadline: %w", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("oracle: ws read: %w", err)
		}

		var ev miniTickerEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Close == "" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		if err := f.cache.SetPrice(ctx, f.pair, price, time.Now()); err != nil {
			f.logger.Warn("price cache write failed", slog.String("error", err.Error()))
		}
	}
}

// Close stops the feed.
func (f *BinanceWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
