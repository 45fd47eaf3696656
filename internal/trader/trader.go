// Package trader runs the strategy over live collaborators: it owns the
// per-pair tick (fetch price, decide, gate through risk, execute swaps,
// mutate the ledger) and the periodic loop driving it.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ladderbot/internal/domain"
	"ladderbot/internal/ledger"
	"ladderbot/internal/notify"
	"ladderbot/internal/risk"
	"ladderbot/internal/strategy"
)

// PairConfig identifies the traded pair and its token legs.
type PairConfig struct {
	Pair       string // e.g. "BTCB/USDT"
	BaseToken  string // asset being accumulated, e.g. BTCB address or symbol
	QuoteToken string // capital token, e.g. USDT
}

// Trader executes one strategy tick at a time for a single pair. It is not
// safe for concurrent Tick calls; the Loop guarantees single-flight.
type Trader struct {
	pair     PairConfig
	ladder   *strategy.Ladder
	ledger   *ledger.Ledger
	riskMgr  *risk.Manager
	oracle   domain.PriceOracle
	swapper  domain.SwapExecutor
	prices   domain.PriceCache // optional
	notifier *notify.Notifier  // optional
	logger   *slog.Logger

	// unwindProceeds accumulates exit proceeds across ticks while a
	// partially failed unwind is being retried, so the baseline reset on
	// final settlement covers the whole ladder.
	unwindProceeds float64

	mu         sync.RWMutex
	lastPrice  float64
	lastTickAt time.Time
}

// New wires a Trader. prices and notifier may be nil.
func New(
	pair PairConfig,
	lad *strategy.Ladder,
	led *ledger.Ledger,
	riskMgr *risk.Manager,
	oracle domain.PriceOracle,
	swapper domain.SwapExecutor,
	prices domain.PriceCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Trader {
	return &Trader{
		pair:     pair,
		ladder:   lad,
		ledger:   led,
		riskMgr:  riskMgr,
		oracle:   oracle,
		swapper:  swapper,
		prices:   prices,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trader"), slog.String("pair", pair.Pair)),
	}
}

// Tick runs one full decision cycle. A price-fetch failure aborts the tick;
// every other failure is contained to the action it belongs to. The ledger
// snapshot is taken once at tick start and risk checks are evaluated against
// it, so the tick behaves as a single logical transaction.
func (t *Trader) Tick(ctx context.Context) error {
	price, err := t.oracle.GetPrice(ctx, t.pair.Pair)
	if err != nil {
		return fmt.Errorf("trader: %w: %v", domain.ErrPriceFetch, err)
	}
	t.observePrice(ctx, price)

	open := t.ledger.OpenPositions()
	snap := strategy.Snapshot{
		CurrentPrice:  price,
		OpenPositions: open,
	}
	if last, ok := t.ledger.LastOpen(); ok {
		snap.LastEntryPrice = last.EntryPrice
	}
	if len(open) > 0 {
		cfg := t.ladder.Config()
		snap.NetProfitRatio = t.ledger.NetProfitRatio(price, cfg.SwapFeeRate, cfg.Slippage)

		closeDec, riskErr := t.riskMgr.ShouldClosePositions(ctx, open, price)
		if riskErr != nil {
			// Fail-open on the close side: a gas or liquidity outage must
			// not force-liquidate the ladder.
			t.logger.Warn("risk close evaluation failed, holding",
				slog.String("error", riskErr.Error()),
			)
		} else {
			snap.RiskClose = closeDec.ShouldClose
			snap.RiskReason = closeDec.Reason
		}
	}

	action := t.ladder.Decide(snap)
	t.logger.Debug("tick decided",
		slog.Float64("price", price),
		slog.Int("open_positions", len(open)),
		slog.String("action", action.Kind.String()),
		slog.String("reason", action.Reason),
	)

	switch action.Kind {
	case strategy.ActionEnter, strategy.ActionAddStep:
		return t.enter(ctx, snap, action)
	case strategy.ActionExitAll:
		return t.exitAll(ctx, snap, action)
	default:
		return nil
	}
}

// enter opens one staged position, gated by the risk manager. A denial or a
// failed swap leaves the ledger unchanged; the next tick retries naturally.
func (t *Trader) enter(ctx context.Context, snap strategy.Snapshot, action strategy.Action) error {
	dec, err := t.riskMgr.CanOpenPosition(ctx, snap.OpenPositions, action.Leverage, action.Amount, snap.CurrentPrice)
	if err != nil {
		return fmt.Errorf("trader: risk gate: %w", err)
	}
	if !dec.Allowed {
		t.logger.Info("entry denied by risk manager",
			slog.String("reason", dec.Reason),
			slog.Float64("price", snap.CurrentPrice),
		)
		t.notify(ctx, notify.EventRiskDenied, "Entry denied",
			fmt.Sprintf("%s: %s at price %.2f", t.pair.Pair, dec.Reason, snap.CurrentPrice))
		return nil
	}

	notional := action.Amount * action.Leverage
	res, err := t.swapper.Swap(ctx, domain.SwapRequest{
		Pair:     t.pair.Pair,
		TokenIn:  t.pair.QuoteToken,
		TokenOut: t.pair.BaseToken,
		AmountIn: notional,
	})
	if err != nil || !res.Success {
		if err == nil {
			err = domain.ErrSwapFailed
		}
		t.logger.Error("entry swap failed",
			slog.Float64("amount_in", notional),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("trader: entry swap: %w", err)
	}

	// Effective fee-adjusted entry price: quote in over post-fee asset out.
	entryPrice := notional / res.ActualOutput
	entryFees := res.Fees * entryPrice // fee was charged in the asset leg

	pos, err := t.ledger.AddPosition(ctx, entryPrice, notional, res.ActualOutput, action.Amount, action.Leverage, entryFees, time.Now().UTC(), res.TxRef)
	if err != nil {
		return fmt.Errorf("trader: record entry: %w", err)
	}

	t.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("notional", pos.NotionalAmount),
		slog.Float64("asset_amount", pos.AssetAmount),
		slog.Float64("leverage", pos.Leverage),
		slog.String("tx", res.TxURL),
	)
	t.notify(ctx, notify.EventPositionOpened, "Position opened",
		fmt.Sprintf("%s: %.2f %s at %.2f (%.0fx, %s)",
			t.pair.Pair, pos.NotionalAmount, t.pair.QuoteToken, pos.EntryPrice, pos.Leverage, action.Reason))
	return nil
}

// exitAll unwinds every open position best-effort: a failed close is logged
// and the loop continues with the next position. Successfully closed
// positions stay closed; failed ones stay open for a future attempt.
func (t *Trader) exitAll(ctx context.Context, snap strategy.Snapshot, action strategy.Action) error {
	t.ladder.MarkExiting()

	var (
		closedCount   int
		totalProceeds float64
		errs          []error
	)
	for _, pos := range snap.OpenPositions {
		res, err := t.swapper.Swap(ctx, domain.SwapRequest{
			Pair:     t.pair.Pair,
			TokenIn:  t.pair.BaseToken,
			TokenOut: t.pair.QuoteToken,
			AmountIn: pos.AssetAmount,
		})
		if err != nil || !res.Success {
			if err == nil {
				err = domain.ErrSwapFailed
			}
			t.logger.Error("exit swap failed, position stays open",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}

		// Effective pre-fee exit price so realized profit nets out to
		// actual proceeds minus entry cost.
		exitPrice := (res.ActualOutput + res.Fees) / pos.AssetAmount
		closed, err := t.ledger.ClosePosition(ctx, pos.ID, exitPrice, res.Fees, time.Now().UTC(), res.TxRef)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		closedCount++
		totalProceeds += closed.Exit.ExitUSDTValue

		t.logger.Info("position closed",
			slog.String("position_id", closed.ID),
			slog.Float64("exit_price", closed.Exit.ExitPrice),
			slog.Float64("realized_profit", closed.Exit.RealizedProfit),
			slog.String("reason", action.Reason),
		)
	}

	remaining := t.ledger.OpenCount()
	t.ladder.MarkExited(remaining, snap.CurrentPrice, action.RiskForced)
	t.unwindProceeds += totalProceeds

	if closedCount > 0 {
		t.notify(ctx, notify.EventPositionClosed, "Positions closed",
			fmt.Sprintf("%s: closed %d position(s), %.2f %s proceeds (%s)",
				t.pair.Pair, closedCount, totalProceeds, t.pair.QuoteToken, action.Reason))
	}
	if remaining == 0 && t.unwindProceeds > 0 {
		// Realization resets the daily baseline to the settled balance of
		// the whole unwind, including passes that partially failed earlier.
		t.riskMgr.UpdateDailyBaseline(ctx, t.unwindProceeds)
		t.unwindProceeds = 0
	}
	if len(errs) > 0 {
		return fmt.Errorf("trader: exit incomplete, %d position(s) still open: %w", remaining, errors.Join(errs...))
	}
	return nil
}

// Status reports the pair's controller state at the last observed price.
func (t *Trader) Status() domain.BotStatus {
	t.mu.RLock()
	price := t.lastPrice
	tickAt := t.lastTickAt
	t.mu.RUnlock()

	cfg := t.ladder.Config()
	return domain.BotStatus{
		Pair:           t.pair.Pair,
		State:          t.ladder.State(),
		OpenPositions:  t.ledger.OpenCount(),
		NetProfitRatio: t.ledger.NetProfitRatio(price, cfg.SwapFeeRate, cfg.Slippage),
		LastPrice:      price,
		LastTickAt:     tickAt,
	}
}

func (t *Trader) observePrice(ctx context.Context, price float64) {
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastPrice = price
	t.lastTickAt = now
	t.mu.Unlock()

	if t.prices != nil {
		if err := t.prices.SetPrice(ctx, t.pair.Pair, price, now); err != nil {
			t.logger.Debug("price cache write failed", slog.String("error", err.Error()))
		}
	}
}

func (t *Trader) notify(ctx context.Context, event, title, message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, event, title, message); err != nil {
		t.logger.Debug("notification failed", slog.String("error", err.Error()))
	}
}
