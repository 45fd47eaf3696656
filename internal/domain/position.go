package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is one leveraged staged entry. USDTValue is the pre-leverage
// capital committed to the entry; NotionalAmount is the leveraged size that
// was actually swapped, so NotionalAmount = USDTValue * Leverage for every
// open position. AssetAmount is the post-fee asset output of the entry swap.
type Position struct {
	ID             string         `json:"id"`
	Pair           string         `json:"pair"`
	EntryPrice     float64        `json:"entry_price"`
	NotionalAmount float64        `json:"notional_amount"`
	AssetAmount    float64        `json:"asset_amount"`
	USDTValue      float64        `json:"usdt_value"`
	Leverage       float64        `json:"leverage"`
	Fees           float64        `json:"fees"`
	Status         PositionStatus `json:"status"`
	OpenedAt       time.Time      `json:"opened_at"`
	TxRef          string         `json:"tx_ref,omitempty"`

	// Exit is nil while the position is open. Once set the position is
	// closed and all fields, Exit included, are frozen.
	Exit *PositionExit `json:"exit,omitempty"`
}

// PositionExit holds the exit-only fields of a closed position.
type PositionExit struct {
	ExitPrice      float64   `json:"exit_price"`
	ExitFees       float64   `json:"exit_fees"`
	RealizedProfit float64   `json:"realized_profit"`
	ExitUSDTValue  float64   `json:"exit_usdt_value"`
	ClosedAt       time.Time `json:"closed_at"`
	TxRef          string    `json:"tx_ref,omitempty"`
}

// IsOpen reports whether the position has not been closed yet.
func (p Position) IsOpen() bool {
	return p.Exit == nil
}
