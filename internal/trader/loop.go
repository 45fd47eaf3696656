package trader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ladderbot/internal/domain"
)

const (
	// backoffCap bounds the exponential backoff applied after consecutive
	// price-fetch failures, as a multiple of the tick interval.
	backoffCap = 8
)

// Loop schedules strategy ticks at a fixed interval with a single-flight
// guarantee: one goroutine runs ticks sequentially, so a tick always
// completes (or fails) before the next is considered. Start is idempotent
// while running and Stop is idempotent when stopped.
type Loop struct {
	trader   *Trader
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	startedAt time.Time
}

// NewLoop creates a stopped Loop around the given trader.
func NewLoop(t *Trader, interval time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		trader:   t,
		interval: interval,
		logger:   logger.With(slog.String("component", "trade_loop"), slog.String("pair", t.pair.Pair)),
	}
}

// Start begins the periodic tick loop. Calling Start while the loop is
// already running returns ErrAlreadyRunning and does not double-schedule.
// The loop stops when Stop is called or ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return domain.ErrAlreadyRunning
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.startedAt = time.Now().UTC()

	go l.run(ctx, l.stop, l.done)
	l.logger.Info("trade loop started", slog.Duration("interval", l.interval))
	return nil
}

// Stop halts future ticks. The stop signal is only observed between ticks,
// so an in-flight tick runs to completion with its context intact before
// Stop returns; already-submitted swaps are never interrupted. Hard
// cancellation remains the parent context's job (process shutdown). Stopping
// a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop := l.stop
	done := l.done
	l.stop = nil
	l.done = nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	l.logger.Info("trade loop stopped")
}

// Running reports whether the loop is currently scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// Status returns the trader status annotated with loop lifecycle fields.
func (l *Loop) Status() domain.BotStatus {
	st := l.trader.Status()
	l.mu.Lock()
	running := l.stop != nil
	startedAt := l.startedAt
	l.mu.Unlock()
	st.Running = running
	if running {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// run executes the first tick immediately, then once per interval. Price
// fetch failures stretch the wait with bounded exponential backoff instead
// of hammering a dead oracle at the base interval.
func (l *Loop) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	failures := 0
	tick := func() {
		err := l.trader.Tick(ctx)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, context.Canceled):
			// Shutdown mid-tick; nothing to report.
		case errors.Is(err, domain.ErrPriceFetch):
			failures++
			l.logger.Warn("tick aborted, price fetch failed",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
		default:
			failures = 0
			l.logger.Error("tick failed", slog.String("error", err.Error()))
		}
	}

	tick()
	timer := time.NewTimer(l.nextDelay(failures))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-timer.C:
			tick()
			timer.Reset(l.nextDelay(failures))
		}
	}
}

// nextDelay doubles the base interval per consecutive price-fetch failure,
// capped at backoffCap times the interval.
func (l *Loop) nextDelay(failures int) time.Duration {
	if failures == 0 {
		return l.interval
	}
	mult := 1 << failures
	if mult > backoffCap {
		mult = backoffCap
	}
	return l.interval * time.Duration(mult)
}
