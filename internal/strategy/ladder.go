// Package strategy holds the ladder decision core: given a price observation
// and a snapshot of the ledger, it decides whether to open the first
// position, stage another entry one step deeper, exit everything, or hold.
// It performs no I/O; risk gating and swap execution belong to the trader.
package strategy

import (
	"fmt"

	"ladderbot/internal/domain"
)

// ActionKind enumerates the decisions a tick can produce.
type ActionKind int

const (
	ActionHold ActionKind = iota
	ActionEnter
	ActionAddStep
	ActionExitAll
)

// String returns the action name for logs.
func (k ActionKind) String() string {
	switch k {
	case ActionEnter:
		return "enter"
	case ActionAddStep:
		return "add_step"
	case ActionExitAll:
		return "exit_all"
	default:
		return "hold"
	}
}

// Thresholds are the ladder's fractional price-drop steps plus the rebound
// fraction that re-arms entries after a risk-forced exit. They are required
// deployment configuration; there are no safe defaults.
type Thresholds struct {
	Step2    float64
	Step3    float64
	Step4    float64
	Recovery float64
}

// Validate rejects unset or non-increasing step thresholds.
func (t Thresholds) Validate() error {
	if t.Step2 <= 0 || t.Step3 <= 0 || t.Step4 <= 0 {
		return fmt.Errorf("strategy: ladder thresholds must all be set and positive (step2=%.4f step3=%.4f step4=%.4f)", t.Step2, t.Step3, t.Step4)
	}
	if !(t.Step2 < t.Step3 && t.Step3 < t.Step4) {
		return fmt.Errorf("strategy: ladder thresholds must be strictly increasing (step2=%.4f step3=%.4f step4=%.4f)", t.Step2, t.Step3, t.Step4)
	}
	if t.Recovery <= 0 {
		return fmt.Errorf("strategy: recovery threshold must be set and positive (got %.4f)", t.Recovery)
	}
	return nil
}

// Config holds the ladder parameters for one pair.
type Config struct {
	BaseLeverage float64
	EntryAmount  float64 // pre-leverage USDT committed per entry
	ProfitTarget float64
	SwapFeeRate  float64
	Slippage     float64
	Thresholds   Thresholds
}

// MinimumProfitThreshold is the bar net profit must clear before a
// profit-taking exit: the target plus the round-trip cost.
func (c Config) MinimumProfitThreshold() float64 {
	return c.ProfitTarget + c.SwapFeeRate + c.Slippage
}

// Snapshot is the tick-start view of the ledger the decision is made
// against.
type Snapshot struct {
	CurrentPrice   float64
	OpenPositions  []domain.Position
	LastEntryPrice float64 // entry price of the most recently opened position
	NetProfitRatio float64 // ledger.NetProfitRatio at CurrentPrice
	RiskClose      bool    // RiskManager.ShouldClosePositions outcome
	RiskReason     string
}

// Action is the engine's decision for one tick. RiskForced marks an exit
// demanded by the risk manager rather than profit-taking; such exits arm the
// recovery gate.
type Action struct {
	Kind       ActionKind
	Leverage   float64
	Amount     float64 // pre-leverage USDT for entries
	Reason     string
	RiskForced bool
}

// Ladder is the staged-entry state machine. It is single-owner state: one
// instance per trading pair, touched only by that pair's tick loop.
type Ladder struct {
	cfg   Config
	state domain.EngineState

	// rearmPrice is set after a risk-forced exit; while non-zero, new
	// ladders may not start until price rebounds Recovery above it.
	rearmPrice float64
}

// NewLadder creates the decision core. The config must already be validated.
func NewLadder(cfg Config) *Ladder {
	return &Ladder{cfg: cfg, state: domain.StateIdle}
}

// State returns the current machine state.
func (s *Ladder) State() domain.EngineState {
	return s.state
}

// Config returns the ladder configuration.
func (s *Ladder) Config() Config {
	return s.cfg
}

// Decide maps a tick snapshot to an action. Exit evaluation runs before
// ladder-add evaluation, so a single tick never both stages an entry and
// exits.
func (s *Ladder) Decide(snap Snapshot) Action {
	open := len(snap.OpenPositions)

	if open == 0 {
		s.state = domain.StateIdle
		if s.rearmPrice > 0 {
			rebound := (snap.CurrentPrice - s.rearmPrice) / s.rearmPrice
			if rebound < s.cfg.Thresholds.Recovery {
				return Action{Kind: ActionHold, Reason: "awaiting recovery rebound"}
			}
			s.rearmPrice = 0
		}
		return Action{
			Kind:     ActionEnter,
			Leverage: s.cfg.BaseLeverage,
			Amount:   s.cfg.EntryAmount,
			Reason:   "initial entry",
		}
	}

	s.state = domain.StateLaddering

	// Exit first: profit target cleared or risk manager forcing out.
	if snap.NetProfitRatio >= s.cfg.MinimumProfitThreshold() {
		return Action{Kind: ActionExitAll, Reason: "profit target reached"}
	}
	if snap.RiskClose {
		return Action{Kind: ActionExitAll, Reason: snap.RiskReason, RiskForced: true}
	}

	// Stage deeper when the drop from the last entry crosses the next
	// unconsumed threshold. The drop is a plain fraction of the last entry
	// price; the threshold boundary is inclusive.
	if threshold, ok := s.nextThreshold(open); ok && snap.LastEntryPrice > 0 {
		priceDrop := (snap.LastEntryPrice - snap.CurrentPrice) / snap.LastEntryPrice
		if priceDrop >= threshold {
			return Action{
				Kind:     ActionAddStep,
				Leverage: s.cfg.BaseLeverage,
				Amount:   s.cfg.EntryAmount,
				Reason:   fmt.Sprintf("price drop %.4f crossed step threshold %.4f", priceDrop, threshold),
			}
		}
	}

	return Action{Kind: ActionHold}
}

// MarkExiting moves the machine to the exiting state while closes are being
// executed.
func (s *Ladder) MarkExiting() {
	s.state = domain.StateExiting
}

// MarkExited records the outcome of an exit pass. With no positions left the
// machine returns to idle; a risk-forced exit additionally arms the recovery
// gate at exitPrice. Remaining open positions (partial close) keep the
// machine laddering.
func (s *Ladder) MarkExited(remaining int, exitPrice float64, riskForced bool) {
	if remaining > 0 {
		s.state = domain.StateLaddering
		return
	}
	if riskForced {
		s.rearmPrice = exitPrice
	}
	s.state = domain.StateIdle
}

// nextThreshold returns the drop threshold guarding the next ladder step for
// the given open-position count. The ladder is bounded both here and by the
// risk manager's max-positions check.
func (s *Ladder) nextThreshold(openCount int) (float64, bool) {
	switch openCount {
	case 1:
		return s.cfg.Thresholds.Step2, true
	case 2:
		return s.cfg.Thresholds.Step3, true
	case 3:
		return s.cfg.Thresholds.Step4, true
	default:
		return 0, false
	}
}
