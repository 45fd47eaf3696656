package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderbot/internal/domain"
)

func TestLoopStartIsIdempotent(t *testing.T) {
	oracle := &stubOracle{err: errors.New("offline")}
	tr, _, _ := newTestTrader(t, oracle, &scriptedSwapper{})
	loop := NewLoop(tr, time.Hour, discardLogger())

	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	err := loop.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.True(t, loop.Running())
}

func TestLoopStopTwiceIsSafe(t *testing.T) {
	oracle := &stubOracle{err: errors.New("offline")}
	tr, _, _ := newTestTrader(t, oracle, &scriptedSwapper{})
	loop := NewLoop(tr, time.Hour, discardLogger())

	require.NoError(t, loop.Start(context.Background()))
	loop.Stop()
	loop.Stop()
	assert.False(t, loop.Running())
}

func TestLoopRunsFirstTickImmediately(t *testing.T) {
	oracle := &stubOracle{err: errors.New("offline")}
	tr, _, _ := newTestTrader(t, oracle, &scriptedSwapper{})
	loop := NewLoop(tr, time.Hour, discardLogger())

	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for oracle.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, oracle.callCount(), 1)
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	oracle := &stubOracle{err: errors.New("offline")}
	tr, _, _ := newTestTrader(t, oracle, &scriptedSwapper{})
	loop := NewLoop(tr, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, loop.Start(ctx))
	cancel()

	// The run goroutine exits on cancel; Stop afterwards must not hang.
	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

// blockingSwapper holds the first Swap call open until released and records
// whether its context was cancelled while blocked.
type blockingSwapper struct {
	started   chan struct{}
	release   chan struct{}
	cancelled bool
}

func (s *blockingSwapper) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	close(s.started)
	<-s.release
	select {
	case <-ctx.Done():
		s.cancelled = true
	default:
	}
	return domain.SwapResult{Success: true, ActualOutput: 0.04, TxRef: "0xheld"}, nil
}

// Stop must not cancel the tick that is already executing: a submitted swap
// runs to completion and its fill is recorded before the loop shuts down.
func TestLoopStopWaitsForInFlightTick(t *testing.T) {
	oracle := &stubOracle{price: 50000}
	swapper := &blockingSwapper{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	tr, led, _ := newTestTrader(t, oracle, swapper)
	loop := NewLoop(tr, time.Hour, discardLogger())

	require.NoError(t, loop.Start(context.Background()))

	select {
	case <-swapper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached the swap")
	}

	stopped := make(chan struct{})
	go func() {
		loop.Stop()
		close(stopped)
	}()

	// Give Stop time to take effect, then let the swap finish.
	time.Sleep(50 * time.Millisecond)
	close(swapper.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick completed")
	}

	assert.False(t, swapper.cancelled, "in-flight swap context was cancelled by Stop")
	assert.Equal(t, 1, led.OpenCount(), "completed fill was not recorded")
	assert.False(t, loop.Running())
}

func TestLoopStatusLifecycleFields(t *testing.T) {
	oracle := &stubOracle{err: errors.New("offline")}
	tr, _, _ := newTestTrader(t, oracle, &scriptedSwapper{})
	loop := NewLoop(tr, time.Hour, discardLogger())

	st := loop.Status()
	assert.False(t, st.Running)

	require.NoError(t, loop.Start(context.Background()))
	st = loop.Status()
	assert.True(t, st.Running)
	loop.Stop()

	st = loop.Status()
	assert.False(t, st.Running)
}

func TestNextDelayBackoff(t *testing.T) {
	tr, _, _ := newTestTrader(t, &stubOracle{price: 1}, &scriptedSwapper{})
	loop := NewLoop(tr, 10*time.Second, discardLogger())

	assert.Equal(t, 10*time.Second, loop.nextDelay(0))
	assert.Equal(t, 20*time.Second, loop.nextDelay(1))
	assert.Equal(t, 40*time.Second, loop.nextDelay(2))
	assert.Equal(t, 80*time.Second, loop.nextDelay(3))
	// Capped at 8x the interval.
	assert.Equal(t, 80*time.Second, loop.nextDelay(4))
	assert.Equal(t, 80*time.Second, loop.nextDelay(10))
}
