package domain

import "time"

// EquityPoint is one observation of total portfolio equity. The strategy
// collaborator produces exactly one per MetricsTracker.Update call.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// TradeRecord is a closed trade with its realized profit or loss, inserted by
// the owning strategy component.
type TradeRecord struct {
	ID        string            `json:"id"`
	PnL       float64           `json:"pnl"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PerformanceSnapshot is an immutable point-in-time view of all derived
// performance and risk metrics. Drawdown values are expressed as fractions
// <= 0 (e.g. -0.05 for a 5% decline from the running peak).
type PerformanceSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	Equity           float64   `json:"equity"`
	RunningMax       float64   `json:"running_max"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	PeriodReturn     float64   `json:"period_return"`
	Volatility       float64   `json:"volatility"`
	CurrentDrawdown  float64   `json:"current_drawdown"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	VaR              float64   `json:"var"`
	CVaR             float64   `json:"cvar"`
	Sharpe           float64   `json:"sharpe"`
	Sortino          float64   `json:"sortino"`
	Calmar           float64   `json:"calmar"`
	TradeCount       int       `json:"trade_count"`
	WinRate          float64   `json:"win_rate"`
	ProfitFactor     float64   `json:"profit_factor"`
	AvgWin           float64   `json:"avg_win"`
	AvgLoss          float64   `json:"avg_loss"`
	Exposure         float64   `json:"exposure"`
}

// Summary returns the snapshot as a flat key/value map. The key names form the
// stable contract consumed by dashboard and report collaborators.
func (s PerformanceSnapshot) Summary() map[string]any {
	return map[string]any{
		"timestamp":         s.Timestamp,
		"equity":            s.Equity,
		"running_max":       s.RunningMax,
		"total_return":      s.TotalReturn,
		"annualized_return": s.AnnualizedReturn,
		"period_return":     s.PeriodReturn,
		"volatility":        s.Volatility,
		"current_drawdown":  s.CurrentDrawdown,
		"max_drawdown":      s.MaxDrawdown,
		"var":               s.VaR,
		"cvar":              s.CVaR,
		"sharpe":            s.Sharpe,
		"sortino":           s.Sortino,
		"calmar":            s.Calmar,
		"trade_count":       s.TradeCount,
		"win_rate":          s.WinRate,
		"profit_factor":     s.ProfitFactor,
		"avg_win":           s.AvgWin,
		"avg_loss":          s.AvgLoss,
		"exposure":          s.Exposure,
	}
}
