package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ladderbot/internal/domain"
	"ladderbot/internal/ledger"
	"ladderbot/internal/oracle"
	"ladderbot/internal/risk"
	"ladderbot/internal/server"
	"ladderbot/internal/server/handler"
	"ladderbot/internal/strategy"
	"ladderbot/internal/trader"
)

// tradeLockTTL bounds how long a crashed instance can hold the pair lock
// before another instance may take over.
const tradeLockTTL = 10 * time.Minute

// TradingMode rehydrates the ladder from the stores, starts the tick loop,
// the price feed, the archiver, and the HTTP control surface, and blocks
// until the context is cancelled.
func (a *App) TradingMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	pair := cfg.Pair.Name

	// Single trading instance per pair.
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "trader:"+pair, tradeLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance is already trading %s", pair)
			}
			return fmt.Errorf("app: acquire trade lock: %w", err)
		}
		a.closers = append(a.closers, unlock)
	}

	lad := strategy.NewLadder(strategy.Config{
		BaseLeverage: cfg.Strategy.BaseLeverage,
		EntryAmount:  cfg.Strategy.EntryAmount,
		ProfitTarget: cfg.Strategy.ProfitTarget,
		SwapFeeRate:  cfg.Strategy.SwapFeeRate,
		Slippage:     cfg.Strategy.Slippage,
		Thresholds: strategy.Thresholds{
			Step2:    cfg.Strategy.Step2,
			Step3:    cfg.Strategy.Step3,
			Step4:    cfg.Strategy.Step4,
			Recovery: cfg.Strategy.Recovery,
		},
	})

	led := ledger.New(pair, deps.PositionStore, a.logger)
	open, err := deps.PositionStore.GetOpen(ctx, pair)
	if err != nil {
		return fmt.Errorf("app: rehydrate positions: %w", err)
	}
	led.Restore(open)
	if len(open) > 0 {
		a.logger.InfoContext(ctx, "ladder rehydrated", slog.Int("open_positions", len(open)))
	}

	riskMgr := risk.NewManager(pair, risk.Limits{
		MaxPositions:         cfg.Risk.MaxPositions,
		MaxLeverage:          cfg.Risk.MaxLeverage,
		MaxDrawdown:          cfg.Risk.MaxDrawdown,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		StopLossPercentage:   cfg.Risk.StopLoss,
		TakeProfitPercentage: cfg.Risk.TakeProfit,
		MaxGasPriceGwei:      cfg.Risk.MaxGasPriceGwei,
		MinLiquidity:         cfg.Risk.MinLiquidity,
	}, deps.Gas, deps.Liquidity, deps.BaselineStore, a.logger)

	baseline, err := deps.BaselineStore.Get(ctx, pair)
	switch {
	case err == nil:
		riskMgr.Restore(baseline)
	case errors.Is(err, domain.ErrNotFound):
		// First run for this pair: seed the daily baseline from config so
		// the exposure guard has a non-zero denominator.
		riskMgr.UpdateDailyBaseline(ctx, cfg.Risk.InitialBaseline)
		a.logger.InfoContext(ctx, "baseline seeded",
			slog.Float64("value", cfg.Risk.InitialBaseline))
	default:
		return fmt.Errorf("app: rehydrate baseline: %w", err)
	}

	bot := trader.New(
		trader.PairConfig{
			Pair:       pair,
			BaseToken:  cfg.Pair.BaseToken,
			QuoteToken: cfg.Pair.QuoteToken,
		},
		lad, led, riskMgr,
		deps.Oracle, deps.Swapper, deps.PriceCache, deps.Notifier,
		a.logger,
	)
	loop := trader.NewLoop(bot, cfg.Strategy.TickInterval.Duration, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loop.Start(ctx); err != nil {
			return fmt.Errorf("app: start loop: %w", err)
		}
		<-ctx.Done()
		loop.Stop()
		return ctx.Err()
	})

	// WebSocket price feed keeps the shared cache warm between ticks.
	if deps.PriceCache != nil && cfg.Oracle.WSURL != "" {
		feed := oracle.NewBinanceWSFeed(
			cfg.Oracle.WSURL, cfg.Oracle.Symbol, pair, deps.PriceCache, a.logger)
		g.Go(func() error {
			defer feed.Close()
			return feed.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if cfg.Server.Enabled {
		a.startServer(ctx, g, loop, deps)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loopControl adapts the trading loop to the HTTP control surface. Restarts
// requested over HTTP reuse the mode's root context so a restarted loop still
// dies with the application.
type loopControl struct {
	ctx  context.Context
	loop *trader.Loop
}

func (c *loopControl) StartBot() error {
	return c.loop.Start(c.ctx)
}

func (c *loopControl) StopBot() error {
	c.loop.Stop()
	return nil
}

func (c *loopControl) Status() domain.BotStatus {
	return c.loop.Status()
}

// startServer registers the HTTP control surface on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, loop *trader.Loop, deps *Dependencies) {
	control := &loopControl{ctx: ctx, loop: loop}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Status:    handler.NewStatusHandler(control, a.cfg.Mode),
			Positions: handler.NewPositionHandler(deps.PositionStore, a.cfg.Pair.Name, a.logger),
			Control:   handler.NewControlHandler(control, a.logger),
		},
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
