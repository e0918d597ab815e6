package domain

import "time"

// AlertLevel is the severity of an alert. Levels are ordered: info < warning
// < error < critical.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// levelWeights orders levels for comparison.
var levelWeights = map[AlertLevel]int{
	AlertInfo:     0,
	AlertWarning:  1,
	AlertError:    2,
	AlertCritical: 3,
}

// AtLeast reports whether l is at least as severe as min. Unknown levels
// compare as info.
func (l AlertLevel) AtLeast(min AlertLevel) bool {
	return levelWeights[l] >= levelWeights[min]
}

// CooldownMultiplier scales a rule's base cooldown by severity: low-severity
// alerts may repeat less urgently, while critical conditions re-alert sooner.
func (l AlertLevel) CooldownMultiplier() float64 {
	switch l {
	case AlertCritical:
		return 0.5
	case AlertError:
		return 1.0
	case AlertWarning:
		return 2.0
	default:
		return 3.0
	}
}

// AlertType categorizes what condition produced an alert. Types double as
// aggregation-bucket keys together with the level.
type AlertType string

const (
	AlertTypeDrawdown   AlertType = "drawdown"
	AlertTypeVolatility AlertType = "volatility"
	AlertTypeLossLimit  AlertType = "loss_limit"
	AlertTypeVaRBreach  AlertType = "var_breach"
	AlertTypeWinRate    AlertType = "win_rate"
	AlertTypeResource   AlertType = "resource"
	AlertTypeAggregate  AlertType = "aggregate"
)

// Alert is a single operator-facing notification. It is immutable once
// constructed and flows through the engine's priority queue exactly once.
type Alert struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     AlertLevel     `json:"level"`
	Type      AlertType      `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  int            `json:"priority"`
	Data      map[string]any `json:"data,omitempty"`
}

// AlertHandler is the delivery integration point: each registered handler is
// invoked once per dispatched alert, independently of the others.
type AlertHandler func(Alert)
