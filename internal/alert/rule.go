// Package alert implements the adaptive alerting engine: rule evaluation
// against performance snapshots, smart per-rule cooldowns, a priority
// dispatch queue with global rate limiting, and time-windowed aggregation of
// low-urgency alerts.
package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
	"github.com/alanyoungcy/tradesentry/internal/stats"
)

const (
	defaultBaseCooldown   = 5 * time.Minute
	triggerHistorySize    = 50
	consecutiveBackoffFac = 1.5
)

// Predicate decides whether a rule is breached for the given snapshot.
type Predicate func(domain.PerformanceSnapshot) bool

// MessageFunc renders the alert message for a breached rule.
type MessageFunc func(domain.PerformanceSnapshot) string

// Rule pairs a predicate with its alert configuration and trigger state. All
// mutable fields are written only by the engine's evaluation path under the
// engine's rule-set lock; rules need no locking of their own.
type Rule struct {
	Name               string
	Type               domain.AlertType
	Level              domain.AlertLevel
	Priority           int
	Predicate          Predicate
	Message            MessageFunc
	BaseCooldown       time.Duration
	CooldownMultiplier float64
	Threshold          float64

	lastTriggered time.Time
	triggerCount  int64
	consecutive   int
	triggerTimes  *stats.RingBuffer[time.Time]
}

func (r *Rule) init() {
	if r.BaseCooldown <= 0 {
		r.BaseCooldown = defaultBaseCooldown
	}
	if r.CooldownMultiplier <= 0 {
		r.CooldownMultiplier = 1
	}
	if r.triggerTimes == nil {
		r.triggerTimes = stats.NewRingBuffer[time.Time](triggerHistorySize)
	}
}

// cooldown returns the rule's current re-alert suppression window: the base
// cooldown scaled by the rule multiplier, the severity multiplier, and
// exponential backoff when the condition has triggered consecutively.
func (r *Rule) cooldown() time.Duration {
	d := time.Duration(float64(r.BaseCooldown) * r.CooldownMultiplier * r.Level.CooldownMultiplier())
	if r.consecutive > 1 {
		d = time.Duration(float64(d) * math.Pow(consecutiveBackoffFac, float64(r.consecutive-1)))
	}
	return d
}

// inCooldown reports whether the rule is still inside its suppression window.
func (r *Rule) inCooldown(now time.Time) bool {
	if r.lastTriggered.IsZero() {
		return false
	}
	return now.Sub(r.lastTriggered) < r.cooldown()
}

// recordTrigger updates the rule's trigger state for a breach at now.
func (r *Rule) recordTrigger(now time.Time) {
	r.consecutive++
	r.triggerCount++
	r.lastTriggered = now
	r.triggerTimes.Append(now)
}

// TriggerCount returns how many times the rule has fired.
func (r *Rule) TriggerCount() int64 { return r.triggerCount }

// Thresholds holds the breach levels the default rule set is built from.
type Thresholds struct {
	// MaxDrawdown is the drawdown fraction (positive, e.g. 0.10) beyond which
	// a critical alert fires.
	MaxDrawdown float64
	// LossLimit is the per-period mean loss fraction that fires an error alert.
	LossLimit float64
	// VolatilityLimit is the annualized volatility ceiling.
	VolatilityLimit float64
	// VaRLimit is the per-period loss fraction (positive) whose breach by VaR
	// fires an error alert.
	VaRLimit float64
	// MinWinRate fires an informational alert when the win rate over at least
	// ten trades falls below it.
	MinWinRate float64
	// BaseCooldown applies to every default rule.
	BaseCooldown time.Duration
}

// DefaultRules builds the standard rule set from the given thresholds. Rules
// with a zero threshold are omitted.
func DefaultRules(th Thresholds) []*Rule {
	if th.BaseCooldown <= 0 {
		th.BaseCooldown = defaultBaseCooldown
	}
	var rules []*Rule

	if th.MaxDrawdown > 0 {
		limit := th.MaxDrawdown
		rules = append(rules, &Rule{
			Name:     "max_drawdown",
			Type:     domain.AlertTypeDrawdown,
			Level:    domain.AlertCritical,
			Priority: 90,
			Predicate: func(s domain.PerformanceSnapshot) bool {
				return s.CurrentDrawdown < -limit
			},
			Message: func(s domain.PerformanceSnapshot) string {
				return fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", s.CurrentDrawdown*100, -limit*100)
			},
			BaseCooldown: th.BaseCooldown,
			Threshold:    limit,
		})
	}

	if th.LossLimit > 0 {
		limit := th.LossLimit
		rules = append(rules, &Rule{
			Name:     "loss_limit",
			Type:     domain.AlertTypeLossLimit,
			Level:    domain.AlertError,
			Priority: 75,
			Predicate: func(s domain.PerformanceSnapshot) bool {
				return s.PeriodReturn < -limit
			},
			Message: func(s domain.PerformanceSnapshot) string {
				return fmt.Sprintf("mean period return %.4f%% breached loss limit %.4f%%", s.PeriodReturn*100, -limit*100)
			},
			BaseCooldown: th.BaseCooldown,
			Threshold:    limit,
		})
	}

	if th.VaRLimit > 0 {
		limit := th.VaRLimit
		rules = append(rules, &Rule{
			Name:     "var_breach",
			Type:     domain.AlertTypeVaRBreach,
			Level:    domain.AlertError,
			Priority: 70,
			Predicate: func(s domain.PerformanceSnapshot) bool {
				return s.VaR < -limit
			},
			Message: func(s domain.PerformanceSnapshot) string {
				return fmt.Sprintf("VaR %.4f breached limit %.4f", s.VaR, -limit)
			},
			BaseCooldown: th.BaseCooldown,
			Threshold:    limit,
		})
	}

	if th.VolatilityLimit > 0 {
		limit := th.VolatilityLimit
		rules = append(rules, &Rule{
			Name:     "volatility_spike",
			Type:     domain.AlertTypeVolatility,
			Level:    domain.AlertWarning,
			Priority: 50,
			Predicate: func(s domain.PerformanceSnapshot) bool {
				return s.Volatility > limit
			},
			Message: func(s domain.PerformanceSnapshot) string {
				return fmt.Sprintf("annualized volatility %.2f%% above limit %.2f%%", s.Volatility*100, limit*100)
			},
			BaseCooldown: th.BaseCooldown,
			Threshold:    limit,
		})
	}

	if th.MinWinRate > 0 {
		limit := th.MinWinRate
		rules = append(rules, &Rule{
			Name:     "low_win_rate",
			Type:     domain.AlertTypeWinRate,
			Level:    domain.AlertInfo,
			Priority: 20,
			Predicate: func(s domain.PerformanceSnapshot) bool {
				return s.TradeCount >= 10 && s.WinRate < limit
			},
			Message: func(s domain.PerformanceSnapshot) string {
				return fmt.Sprintf("win rate %.1f%% below %.1f%% over %d trades", s.WinRate*100, limit*100, s.TradeCount)
			},
			BaseCooldown: th.BaseCooldown,
			Threshold:    limit,
		})
	}

	return rules
}
