package domain

import "time"

// EngineState is the ladder strategy state machine position.
type EngineState string

const (
	StateIdle      EngineState = "idle"
	StateLaddering EngineState = "laddering"
	StateExiting   EngineState = "exiting"
)

// BotStatus is a summary of one trading pair's controller state, served by
// the HTTP status endpoint.
type BotStatus struct {
	Pair           string      `json:"pair"`
	Running        bool        `json:"running"`
	State          EngineState `json:"state"`
	OpenPositions  int         `json:"open_positions"`
	NetProfitRatio float64     `json:"net_profit_ratio"`
	LastPrice      float64     `json:"last_price"`
	LastTickAt     time.Time   `json:"last_tick_at"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
}
