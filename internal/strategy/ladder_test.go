package strategy

import (
	"testing"

	"ladderbot/internal/domain"
)

func testConfig() Config {
	return Config{
		BaseLeverage: 2,
		EntryAmount:  1000,
		ProfitTarget: 0.01,
		SwapFeeRate:  0.0025,
		Slippage:     0.005,
		Thresholds: Thresholds{
			Step2:    0.02,
			Step3:    0.04,
			Step4:    0.06,
			Recovery: 0.015,
		},
	}
}

func openPositions(entryPrices ...float64) []domain.Position {
	positions := make([]domain.Position, 0, len(entryPrices))
	for _, p := range entryPrices {
		positions = append(positions, domain.Position{
			EntryPrice:     p,
			NotionalAmount: 2000,
			AssetAmount:    2000 / p,
			USDTValue:      1000,
			Leverage:       2,
			Status:         domain.PositionStatusOpen,
		})
	}
	return positions
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"valid", Thresholds{0.02, 0.04, 0.06, 0.015}, false},
		{"unset step", Thresholds{0, 0.04, 0.06, 0.015}, true},
		{"not increasing", Thresholds{0.04, 0.04, 0.06, 0.015}, true},
		{"decreasing", Thresholds{0.06, 0.04, 0.02, 0.015}, true},
		{"unset recovery", Thresholds{0.02, 0.04, 0.06, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinimumProfitThreshold(t *testing.T) {
	got := testConfig().MinimumProfitThreshold()
	want := 0.01 + 0.0025 + 0.005
	if got != want {
		t.Errorf("MinimumProfitThreshold() = %f, want %f", got, want)
	}
}

func TestDecideInitialEntry(t *testing.T) {
	lad := NewLadder(testConfig())

	action := lad.Decide(Snapshot{CurrentPrice: 50000})
	if action.Kind != ActionEnter {
		t.Fatalf("Decide() = %s, want enter", action.Kind)
	}
	if action.Leverage != 2 || action.Amount != 1000 {
		t.Errorf("enter action leverage=%f amount=%f, want 2, 1000", action.Leverage, action.Amount)
	}
	if lad.State() != domain.StateIdle {
		t.Errorf("state = %s, want idle", lad.State())
	}
}

func TestDecideStepThresholdBoundary(t *testing.T) {
	// One open position consumes step2 (0.02). A 1.9% drop holds; exactly
	// 2.0% stages the next entry.
	lad := NewLadder(testConfig())

	hold := lad.Decide(Snapshot{
		CurrentPrice:   50000 * (1 - 0.019),
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
	})
	if hold.Kind != ActionHold {
		t.Errorf("1.9%% drop: Decide() = %s, want hold", hold.Kind)
	}

	add := lad.Decide(Snapshot{
		CurrentPrice:   50000 * (1 - 0.020),
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
	})
	if add.Kind != ActionAddStep {
		t.Errorf("2.0%% drop: Decide() = %s, want add_step", add.Kind)
	}
}

func TestDecideLadderWalk(t *testing.T) {
	// Each step consumes the next threshold, measured from the latest entry.
	lad := NewLadder(testConfig())

	tests := []struct {
		open      int
		lastEntry float64
		price     float64
		want      ActionKind
	}{
		{1, 50000, 49000, ActionAddStep},  // 2% drop vs step2
		{2, 49000, 47500, ActionHold},     // 3.06% drop vs step3=4%
		{2, 49000, 47000, ActionAddStep},  // 4.08% drop
		{3, 47000, 44500, ActionHold},     // 5.3% drop vs step4=6%
		{3, 47000, 44000, ActionAddStep},  // 6.4% drop
		{4, 44000, 30000, ActionHold},     // ladder exhausted
	}
	for _, tt := range tests {
		entries := make([]float64, tt.open)
		for i := range entries {
			entries[i] = tt.lastEntry
		}
		action := lad.Decide(Snapshot{
			CurrentPrice:   tt.price,
			OpenPositions:  openPositions(entries...),
			LastEntryPrice: tt.lastEntry,
		})
		if action.Kind != tt.want {
			t.Errorf("open=%d last=%f price=%f: Decide() = %s, want %s",
				tt.open, tt.lastEntry, tt.price, action.Kind, tt.want)
		}
	}
}

func TestDecideProfitExitBeforeAdd(t *testing.T) {
	// When the profit bar and a step threshold would both fire, the exit wins.
	lad := NewLadder(testConfig())

	action := lad.Decide(Snapshot{
		CurrentPrice:   49000,
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
		NetProfitRatio: 0.02, // above 0.0175 minimum
	})
	if action.Kind != ActionExitAll {
		t.Fatalf("Decide() = %s, want exit_all", action.Kind)
	}
	if action.Reason != "profit target reached" {
		t.Errorf("reason = %q, want profit target reached", action.Reason)
	}
	if action.RiskForced {
		t.Error("profit exit must not be marked risk-forced")
	}
}

func TestDecideProfitBelowMinimumHolds(t *testing.T) {
	lad := NewLadder(testConfig())

	action := lad.Decide(Snapshot{
		CurrentPrice:   50500,
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
		NetProfitRatio: 0.017, // below 0.0175 minimum
	})
	if action.Kind != ActionHold {
		t.Errorf("Decide() = %s, want hold", action.Kind)
	}
}

func TestDecideRiskExit(t *testing.T) {
	lad := NewLadder(testConfig())

	action := lad.Decide(Snapshot{
		CurrentPrice:   48000,
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
		RiskClose:      true,
		RiskReason:     "stop loss",
	})
	if action.Kind != ActionExitAll {
		t.Fatalf("Decide() = %s, want exit_all", action.Kind)
	}
	if action.Reason != "stop loss" {
		t.Errorf("reason = %q, want stop loss", action.Reason)
	}
	if !action.RiskForced {
		t.Error("risk exit must be marked risk-forced")
	}
}

func TestRecoveryGateAfterRiskForcedExit(t *testing.T) {
	lad := NewLadder(testConfig())

	lad.MarkExiting()
	lad.MarkExited(0, 48000, true)
	if lad.State() != domain.StateIdle {
		t.Fatalf("state = %s, want idle", lad.State())
	}

	// Below the 1.5% rebound the ladder stays out of the market.
	hold := lad.Decide(Snapshot{CurrentPrice: 48500})
	if hold.Kind != ActionHold {
		t.Errorf("rebound 1.04%%: Decide() = %s, want hold", hold.Kind)
	}

	// At 1.5% rebound entries re-arm.
	enter := lad.Decide(Snapshot{CurrentPrice: 48000 * 1.015})
	if enter.Kind != ActionEnter {
		t.Errorf("rebound 1.5%%: Decide() = %s, want enter", enter.Kind)
	}

	// The gate is consumed; dropping back below does not re-arm it.
	again := lad.Decide(Snapshot{CurrentPrice: 48000})
	if again.Kind != ActionEnter {
		t.Errorf("after re-arm: Decide() = %s, want enter", again.Kind)
	}
}

func TestProfitExitDoesNotArmRecoveryGate(t *testing.T) {
	lad := NewLadder(testConfig())

	lad.MarkExiting()
	lad.MarkExited(0, 51000, false)

	action := lad.Decide(Snapshot{CurrentPrice: 50000})
	if action.Kind != ActionEnter {
		t.Errorf("after profit exit: Decide() = %s, want enter", action.Kind)
	}
}

func TestMarkExitedPartialCloseKeepsLaddering(t *testing.T) {
	lad := NewLadder(testConfig())

	lad.Decide(Snapshot{
		CurrentPrice:   49000,
		OpenPositions:  openPositions(50000),
		LastEntryPrice: 50000,
	})
	lad.MarkExiting()
	if lad.State() != domain.StateExiting {
		t.Fatalf("state = %s, want exiting", lad.State())
	}

	lad.MarkExited(2, 49000, true)
	if lad.State() != domain.StateLaddering {
		t.Errorf("state = %s, want laddering", lad.State())
	}

	// A later complete exit still arms the gate.
	lad.MarkExiting()
	lad.MarkExited(0, 49000, true)
	hold := lad.Decide(Snapshot{CurrentPrice: 49100})
	if hold.Kind != ActionHold {
		t.Errorf("Decide() = %s, want hold while awaiting rebound", hold.Kind)
	}
}
