package alert

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capture records handler invocations so tests can assert on dispatch order
// and payloads.
type capture struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (c *capture) handler() domain.AlertHandler {
	return func(a domain.Alert) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.alerts = append(c.alerts, a)
	}
}

func (c *capture) received() []domain.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func TestEngineDispatchesRuleBreach(t *testing.T) {
	rules := DefaultRules(Thresholds{MaxDrawdown: 0.10})
	require.Len(t, rules, 1)

	e := NewEngine(Config{}, rules, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.CheckMetrics(domain.PerformanceSnapshot{CurrentDrawdown: -0.12})
	e.drain()

	got := c.received()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertCritical, got[0].Level)
	assert.Equal(t, domain.AlertTypeDrawdown, got[0].Type)
	assert.Equal(t, "max drawdown", got[0].Title)
	assert.Equal(t, 90, got[0].Priority)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "max_drawdown", got[0].Data["rule"])

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Triggered)
	assert.Equal(t, uint64(1), stats.Dispatched)
}

func TestEngineCooldownSuppressesRepeat(t *testing.T) {
	rules := DefaultRules(Thresholds{MaxDrawdown: 0.10, BaseCooldown: time.Hour})
	e := NewEngine(Config{}, rules, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	breach := domain.PerformanceSnapshot{CurrentDrawdown: -0.15}
	e.CheckMetrics(breach)
	e.CheckMetrics(breach)
	e.CheckMetrics(breach)
	e.drain()

	assert.Len(t, c.received(), 1, "repeats inside the cooldown window must not re-alert")
	assert.Equal(t, uint64(1), e.Stats().Triggered)
	assert.Equal(t, uint64(3), e.Stats().Evaluations)
}

func TestEngineConsecutiveResetsOnRecovery(t *testing.T) {
	rules := DefaultRules(Thresholds{MaxDrawdown: 0.10})
	e := NewEngine(Config{}, rules, testLogger())
	r := rules[0]

	e.CheckMetrics(domain.PerformanceSnapshot{CurrentDrawdown: -0.15})
	assert.Equal(t, 1, r.consecutive)

	// Recovery clears the backoff state even while the cooldown is running.
	e.CheckMetrics(domain.PerformanceSnapshot{CurrentDrawdown: -0.01})
	assert.Zero(t, r.consecutive)
	assert.Equal(t, int64(1), r.TriggerCount())
}

func TestEnginePriorityOrderWithFIFOTies(t *testing.T) {
	e := NewEngine(Config{AggregateLevels: []domain.AlertLevel{}}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertWarning, Type: domain.AlertTypeVolatility, Title: "low", Priority: 10})
	e.Raise(domain.Alert{Level: domain.AlertCritical, Type: domain.AlertTypeDrawdown, Title: "high", Priority: 90})
	e.Raise(domain.Alert{Level: domain.AlertWarning, Type: domain.AlertTypeResource, Title: "mid-a", Priority: 40})
	e.Raise(domain.Alert{Level: domain.AlertWarning, Type: domain.AlertTypeResource, Title: "mid-b", Priority: 40})
	e.drain()

	got := c.received()
	require.Len(t, got, 4)
	assert.Equal(t, "high", got[0].Title)
	assert.Equal(t, "mid-a", got[1].Title, "equal priorities dispatch in enqueue order")
	assert.Equal(t, "mid-b", got[2].Title)
	assert.Equal(t, "low", got[3].Title)
}

func TestEngineRateLimitSuppresses(t *testing.T) {
	e := NewEngine(Config{MaxPerMinute: 3}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	for i := 0; i < 8; i++ {
		e.Raise(domain.Alert{Level: domain.AlertCritical, Type: domain.AlertTypeDrawdown, Title: "dd", Priority: 90})
	}
	e.drain()

	assert.Len(t, c.received(), 3)
	stats := e.Stats()
	assert.Equal(t, uint64(3), stats.Dispatched)
	assert.Equal(t, uint64(5), stats.Suppressed)
}

func TestEngineAggregatesInfoAlerts(t *testing.T) {
	e := NewEngine(Config{AggregationWindow: time.Minute}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	for i := 0; i < 3; i++ {
		e.Raise(domain.Alert{Level: domain.AlertInfo, Type: domain.AlertTypeWinRate, Title: "low win rate", Priority: 20})
	}
	e.drain()

	assert.Empty(t, c.received(), "info alerts buffer until the window closes")
	assert.Equal(t, uint64(3), e.Stats().Aggregated)
	assert.Zero(t, e.Stats().Dispatched)

	e.flushBuckets(true)
	got := c.received()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertTypeAggregate, got[0].Type)
	assert.Equal(t, domain.AlertInfo, got[0].Level)
	assert.Equal(t, "low win rate", got[0].Title)
	assert.Equal(t, 3, got[0].Data["aggregated_count"])
	assert.Equal(t, string(domain.AlertTypeWinRate), got[0].Data["source_type"])
}

func TestEngineAggregateKeepsMaxPriority(t *testing.T) {
	e := NewEngine(Config{}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertInfo, Type: domain.AlertTypeWinRate, Title: "a", Priority: 20})
	e.Raise(domain.Alert{Level: domain.AlertInfo, Type: domain.AlertTypeWinRate, Title: "b", Priority: 35})
	e.drain()
	e.flushBuckets(true)

	got := c.received()
	require.Len(t, got, 1)
	assert.Equal(t, 35, got[0].Priority)
	// The queue drains "b" first because of its higher priority.
	assert.Equal(t, "b; a", got[0].Message)
}

func TestEngineSingleAlertBucketFlushesOriginal(t *testing.T) {
	e := NewEngine(Config{}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertInfo, Type: domain.AlertTypeWinRate, Title: "solo", Priority: 20})
	e.drain()
	e.flushBuckets(true)

	got := c.received()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertTypeWinRate, got[0].Type, "a bucket of one delivers the original alert")
	assert.Equal(t, "solo", got[0].Title)
}

func TestEngineCriticalBypassesAggregation(t *testing.T) {
	e := NewEngine(Config{AggregateLevels: []domain.AlertLevel{domain.AlertInfo, domain.AlertCritical}}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertCritical, Type: domain.AlertTypeDrawdown, Title: "dd", Priority: 90})
	e.drain()

	got := c.received()
	require.Len(t, got, 1, "critical alerts dispatch immediately even when listed as aggregatable")
	assert.Equal(t, domain.AlertTypeDrawdown, got[0].Type)
}

func TestEngineBucketsFlushAfterWindow(t *testing.T) {
	e := NewEngine(Config{AggregationWindow: time.Minute}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	old := domain.Alert{
		Level:     domain.AlertInfo,
		Type:      domain.AlertTypeWinRate,
		Title:     "stale",
		Priority:  20,
		Timestamp: time.Now().UTC().Add(-2 * time.Minute),
	}
	e.Raise(old)
	e.drain()

	// Not forced: the bucket is due because its oldest member predates the window.
	e.flushBuckets(false)
	assert.Len(t, c.received(), 1)
}

func TestEngineHandlerPanicIsContained(t *testing.T) {
	e := NewEngine(Config{}, nil, testLogger())
	var c capture
	e.RegisterHandler(func(domain.Alert) { panic("boom") })
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertError, Type: domain.AlertTypeVaRBreach, Title: "var", Priority: 70})
	e.drain()

	assert.Len(t, c.received(), 1, "a panicking handler must not starve the others")
	assert.Equal(t, uint64(1), e.Stats().HandlerErrors)
	assert.Equal(t, uint64(1), e.Stats().Dispatched)
}

func TestEngineRaiseFillsIdentity(t *testing.T) {
	e := NewEngine(Config{}, nil, testLogger())
	var c capture
	e.RegisterHandler(c.handler())

	e.Raise(domain.Alert{Level: domain.AlertError, Type: domain.AlertTypeResource, Title: "cpu", Priority: 65})
	e.drain()

	got := c.received()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestDefaultRulesOmitZeroThresholds(t *testing.T) {
	rules := DefaultRules(Thresholds{MaxDrawdown: 0.1, VolatilityLimit: 0.4})
	require.Len(t, rules, 2)

	names := []string{rules[0].Name, rules[1].Name}
	assert.Contains(t, names, "max_drawdown")
	assert.Contains(t, names, "volatility_spike")
}

func TestDefaultRulePredicates(t *testing.T) {
	rules := DefaultRules(Thresholds{
		MaxDrawdown:     0.10,
		LossLimit:       0.05,
		VolatilityLimit: 0.40,
		VaRLimit:        0.03,
		MinWinRate:      0.35,
	})
	require.Len(t, rules, 5)
	byName := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}

	assert.True(t, byName["max_drawdown"].Predicate(domain.PerformanceSnapshot{CurrentDrawdown: -0.11}))
	assert.False(t, byName["max_drawdown"].Predicate(domain.PerformanceSnapshot{CurrentDrawdown: -0.10}))

	assert.True(t, byName["loss_limit"].Predicate(domain.PerformanceSnapshot{PeriodReturn: -0.06}))
	assert.False(t, byName["loss_limit"].Predicate(domain.PerformanceSnapshot{PeriodReturn: -0.04}))

	assert.True(t, byName["var_breach"].Predicate(domain.PerformanceSnapshot{VaR: -0.04}))
	assert.False(t, byName["var_breach"].Predicate(domain.PerformanceSnapshot{VaR: -0.02}))

	assert.True(t, byName["volatility_spike"].Predicate(domain.PerformanceSnapshot{Volatility: 0.45}))
	assert.False(t, byName["volatility_spike"].Predicate(domain.PerformanceSnapshot{Volatility: 0.35}))

	assert.True(t, byName["low_win_rate"].Predicate(domain.PerformanceSnapshot{TradeCount: 10, WinRate: 0.30}))
	assert.False(t, byName["low_win_rate"].Predicate(domain.PerformanceSnapshot{TradeCount: 5, WinRate: 0.10}),
		"win-rate rule needs at least ten trades")
}

func TestRuleCooldownScaling(t *testing.T) {
	critical := &Rule{Level: domain.AlertCritical, BaseCooldown: 10 * time.Minute}
	critical.init()
	assert.Equal(t, 5*time.Minute, critical.cooldown())

	info := &Rule{Level: domain.AlertInfo, BaseCooldown: 10 * time.Minute}
	info.init()
	assert.Equal(t, 30*time.Minute, info.cooldown())

	scaled := &Rule{Level: domain.AlertError, BaseCooldown: 10 * time.Minute, CooldownMultiplier: 2}
	scaled.init()
	assert.Equal(t, 20*time.Minute, scaled.cooldown())
}

func TestRuleConsecutiveBackoff(t *testing.T) {
	r := &Rule{Level: domain.AlertError, BaseCooldown: 10 * time.Minute}
	r.init()

	now := time.Now().UTC()
	r.recordTrigger(now)
	first := r.cooldown()
	r.recordTrigger(now)
	second := r.cooldown()
	r.recordTrigger(now)
	third := r.cooldown()

	assert.Equal(t, 10*time.Minute, first)
	assert.Equal(t, 15*time.Minute, second)
	assert.InDelta(t, float64(22*time.Minute+30*time.Second), float64(third), float64(time.Second))
}

func TestWindowLimiterSlidesForward(t *testing.T) {
	l := newWindowLimiter(2, time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow(base))
	assert.True(t, l.allow(base.Add(time.Second)))
	assert.False(t, l.allow(base.Add(2*time.Second)))

	// The first event falls out of the window; one slot opens.
	assert.True(t, l.allow(base.Add(61*time.Second)))
	assert.False(t, l.allow(base.Add(61*time.Second)))
}
