package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"ladderbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger() *Ledger {
	return New("BTCB/USDT", nil, testLogger())
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAddPositionComputesNotional(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// 1000 USDT at 2x leverage buys 2000 notional of asset at 50000.
	pos, err := l.AddPosition(ctx, 50000, 2000, 2000.0/50000, 1000, 2, 5, time.Now(), "0xabc")
	if err != nil {
		t.Fatalf("AddPosition() error = %v", err)
	}
	if pos.ID == "" {
		t.Error("AddPosition() returned empty ID")
	}
	if !almostEqual(pos.NotionalAmount, pos.USDTValue*pos.Leverage) {
		t.Errorf("notional %f != usdtValue*leverage %f", pos.NotionalAmount, pos.USDTValue*pos.Leverage)
	}
	if !pos.IsOpen() {
		t.Error("new position is not open")
	}
	if got := l.OpenCount(); got != 1 {
		t.Errorf("OpenCount() = %d, want 1", got)
	}
}

func TestAddPositionRejectsInvalid(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	if _, err := l.AddPosition(ctx, 50000, 2000, 0, 1000, 2, 0, time.Now(), ""); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Errorf("zero asset amount: error = %v, want ErrInvalidPosition", err)
	}
	if _, err := l.AddPosition(ctx, 50000, -1, 0.04, 1000, 2, 0, time.Now(), ""); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Errorf("negative notional: error = %v, want ErrInvalidPosition", err)
	}
	if got := l.OpenCount(); got != 0 {
		t.Errorf("OpenCount() after rejects = %d, want 0", got)
	}
}

func TestAverageEntryPriceWeighted(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// Equal asset amounts at 50000 and 45000 average to 47500.
	l.AddPosition(ctx, 50000, 1000, 0.02, 500, 2, 0, time.Now(), "")
	l.AddPosition(ctx, 45000, 900, 0.02, 450, 2, 0, time.Now(), "")

	if got := l.AverageEntryPrice(); !almostEqual(got, 47500) {
		t.Errorf("AverageEntryPrice() = %f, want 47500", got)
	}
}

func TestAverageEntryPriceEmpty(t *testing.T) {
	l := newTestLedger()
	if got := l.AverageEntryPrice(); got != 0 {
		t.Errorf("AverageEntryPrice() on empty ledger = %f, want 0", got)
	}
}

func TestNetProfitRatio(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// 2000 notional at 50000 entry, no entry fees.
	l.AddPosition(ctx, 50000, 2000, 0.04, 1000, 2, 0, time.Now(), "")

	// At 52500 (+5%) gross profit is 100; costs are 2000*(0.0025+0.005)=15.
	got := l.NetProfitRatio(52500, 0.0025, 0.005)
	want := (100.0 - 15.0) / 2000.0
	if !almostEqual(got, want) {
		t.Errorf("NetProfitRatio() = %f, want %f", got, want)
	}
}

func TestNetProfitRatioSubtractsEntryFees(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.AddPosition(ctx, 50000, 2000, 0.04, 1000, 2, 10, time.Now(), "")

	got := l.NetProfitRatio(52500, 0.0025, 0.005)
	want := (100.0 - 15.0 - 10.0) / 2000.0
	if !almostEqual(got, want) {
		t.Errorf("NetProfitRatio() = %f, want %f", got, want)
	}
}

func TestNetProfitRatioEmpty(t *testing.T) {
	l := newTestLedger()
	if got := l.NetProfitRatio(50000, 0.0025, 0.005); got != 0 {
		t.Errorf("NetProfitRatio() on empty ledger = %f, want 0", got)
	}
}

func TestClosePosition(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	pos, _ := l.AddPosition(ctx, 50000, 2000, 0.04, 1000, 2, 0, time.Now(), "")

	closed, err := l.ClosePosition(ctx, pos.ID, 52000, 4, time.Now(), "0xdef")
	if err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	wantProfit := (52000.0-50000.0)*0.04 - 4
	if !almostEqual(closed.Exit.RealizedProfit, wantProfit) {
		t.Errorf("RealizedProfit = %f, want %f", closed.Exit.RealizedProfit, wantProfit)
	}
	wantValue := 52000.0*0.04 - 4
	if !almostEqual(closed.Exit.ExitUSDTValue, wantValue) {
		t.Errorf("ExitUSDTValue = %f, want %f", closed.Exit.ExitUSDTValue, wantValue)
	}
	if l.OpenCount() != 0 {
		t.Errorf("OpenCount() after close = %d, want 0", l.OpenCount())
	}

	// Closing twice fails and leaves the record untouched.
	if _, err := l.ClosePosition(ctx, pos.ID, 60000, 0, time.Now(), ""); !errors.Is(err, domain.ErrPositionClosed) {
		t.Errorf("second close: error = %v, want ErrPositionClosed", err)
	}
}

func TestClosePositionUnknownID(t *testing.T) {
	l := newTestLedger()
	if _, err := l.ClosePosition(context.Background(), "missing", 50000, 0, time.Now(), ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ClosePosition(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCloseAll(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.AddPosition(ctx, 50000, 2000, 0.04, 1000, 2, 0, time.Now(), "")
	l.AddPosition(ctx, 49000, 2000, 0.0408, 1000, 2, 0, time.Now(), "")

	closed := l.CloseAll(ctx, 51000, 2, time.Now())
	if len(closed) != 2 {
		t.Fatalf("CloseAll() closed %d, want 2", len(closed))
	}
	if l.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0", l.OpenCount())
	}

	// Second pass reports nothing: closed positions are never re-closed.
	again := l.CloseAll(ctx, 51000, 2, time.Now())
	if len(again) != 0 {
		t.Errorf("second CloseAll() closed %d, want 0", len(again))
	}
}

func TestLastOpenSkipsClosed(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	first, _ := l.AddPosition(ctx, 50000, 2000, 0.04, 1000, 2, 0, time.Now(), "")
	second, _ := l.AddPosition(ctx, 49000, 2000, 0.0408, 1000, 2, 0, time.Now(), "")

	last, ok := l.LastOpen()
	if !ok || last.ID != second.ID {
		t.Fatalf("LastOpen() = %v, %v, want second position", last.ID, ok)
	}

	l.ClosePosition(ctx, second.ID, 50000, 0, time.Now(), "")
	last, ok = l.LastOpen()
	if !ok || last.ID != first.ID {
		t.Errorf("LastOpen() after close = %v, %v, want first position", last.ID, ok)
	}

	l.ClosePosition(ctx, first.ID, 50000, 0, time.Now(), "")
	if _, ok := l.LastOpen(); ok {
		t.Error("LastOpen() = true on fully closed ledger")
	}
}

func TestRestoreRebuildsOpenSet(t *testing.T) {
	l := newTestLedger()

	closedAt := time.Now()
	l.Restore([]domain.Position{
		{ID: "a", Pair: "BTCB/USDT", EntryPrice: 50000, NotionalAmount: 2000, AssetAmount: 0.04, USDTValue: 1000, Leverage: 2, Status: domain.PositionStatusOpen},
		{ID: "b", Pair: "BTCB/USDT", EntryPrice: 49000, NotionalAmount: 2000, AssetAmount: 0.0408, USDTValue: 1000, Leverage: 2, Status: domain.PositionStatusClosed,
			Exit: &domain.PositionExit{ExitPrice: 50000, ClosedAt: closedAt}},
	})

	if got := l.OpenCount(); got != 1 {
		t.Errorf("OpenCount() = %d, want 1", got)
	}
	last, ok := l.LastOpen()
	if !ok || last.ID != "a" {
		t.Errorf("LastOpen() = %v, %v, want position a", last.ID, ok)
	}
}
