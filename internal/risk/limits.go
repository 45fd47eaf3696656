package risk

// Limits is the immutable risk configuration for one trading pair.
type Limits struct {
	MaxPositions         int
	MaxLeverage          float64
	MaxDrawdown          float64
	MaxDailyLoss         float64
	StopLossPercentage   float64
	TakeProfitPercentage float64
	MaxGasPriceGwei      float64
	MinLiquidity         float64
}

// Metrics is a point-in-time snapshot of exposure and PnL. It is recomputed
// on every risk check and never cached across ticks.
type Metrics struct {
	TotalExposure   float64
	CurrentDrawdown float64
	DailyPnL        float64
	OpenPositions   int
	AverageLeverage float64
	GasPriceGwei    float64
	Liquidity       float64
}

// Decision is the outcome of a risk gate. A denial is a normal decision
// outcome, not an error; Reason is human-readable and set only on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

// CloseDecision is the outcome of the position-close risk evaluation.
type CloseDecision struct {
	ShouldClose bool
	Reason      string
}
