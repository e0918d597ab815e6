// Package metrics implements the performance tracker: it consumes equity and
// trade updates from the strategy collaborator and derives return, drawdown,
// and risk statistics incrementally, serving them through a TTL-cached
// snapshot.
package metrics

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
	"github.com/alanyoungcy/tradesentry/internal/stats"
)

const (
	defaultEquityCapacity = 10_000
	defaultReturnWindow   = 250
	defaultTradeCapacity  = 1_000
	defaultCacheTTL       = time.Second
	defaultVaRConfidence  = 0.95
	defaultPeriodsPerYear = 252
)

// Config holds the tracker's parameters.
type Config struct {
	// EquityCapacity bounds the retained equity history.
	EquityCapacity int
	// ReturnWindow bounds the ordered per-period return sample used for
	// VaR/CVaR; percentile statistics need an ordered sample, unlike the
	// incremental accumulators.
	ReturnWindow int
	// TradeCapacity bounds the trade map; the oldest record is evicted first.
	TradeCapacity int
	// CacheTTL bounds snapshot staleness: reads within the TTL return the
	// cached snapshot unchanged.
	CacheTTL time.Duration
	// VaRConfidence is the VaR/CVaR confidence level, e.g. 0.95.
	VaRConfidence float64
	// RiskFreeRate is the annualized risk-free rate used by Sharpe.
	RiskFreeRate float64
	// PeriodsPerYear annualizes per-period returns and volatility.
	PeriodsPerYear float64
}

func (c *Config) applyDefaults() {
	if c.EquityCapacity <= 0 {
		c.EquityCapacity = defaultEquityCapacity
	}
	if c.ReturnWindow <= 0 {
		c.ReturnWindow = defaultReturnWindow
	}
	if c.TradeCapacity <= 0 {
		c.TradeCapacity = defaultTradeCapacity
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		c.VaRConfidence = defaultVaRConfidence
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = defaultPeriodsPerYear
	}
}

// MetricsTracker owns the equity history, trade records, and all derived
// statistics. It never mutates anything outside itself; the alert engine only
// reads the snapshots it produces.
type MetricsTracker struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex

	equity      *stats.RingBuffer[domain.EquityPoint]
	firstEquity float64
	prevEquity  float64
	points      int64

	runningMax      float64
	currentDrawdown float64
	maxDrawdown     float64

	returns       stats.IncrementalStatistics
	downside      stats.IncrementalStatistics
	recentReturns *stats.RingBuffer[float64]

	trades     map[string]domain.TradeRecord
	tradeOrder []string

	exposure float64

	cached     domain.PerformanceSnapshot
	cachedAt   time.Time
	cacheValid bool
}

// New creates a MetricsTracker.
func New(cfg Config, logger *slog.Logger) *MetricsTracker {
	cfg.applyDefaults()
	return &MetricsTracker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "metrics")),
		equity: stats.NewTimedRingBuffer(cfg.EquityCapacity, func(p domain.EquityPoint) time.Time {
			return p.Timestamp
		}),
		recentReturns: stats.NewRingBuffer[float64](cfg.ReturnWindow),
		trades:        make(map[string]domain.TradeRecord),
	}
}

// Update appends one equity observation and advances the running-max/drawdown
// and return accumulators. The returned snapshot is served from the TTL cache
// when it is still fresh: the accumulators always advance, but derived ratios
// recompute at most once per TTL so high-frequency callers pay a bounded cost.
func (t *MetricsTracker) Update(equity float64) domain.PerformanceSnapshot {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.equity.Append(domain.EquityPoint{Timestamp: now, Equity: equity})
	t.points++

	if t.points == 1 {
		t.firstEquity = equity
		t.prevEquity = equity
		t.runningMax = equity
		return t.snapshotLocked(now, equity)
	}

	if t.prevEquity != 0 {
		r := (equity - t.prevEquity) / t.prevEquity
		t.returns.Update(r)
		if r < 0 {
			t.downside.Update(r)
		}
		t.recentReturns.Append(r)
	}
	t.prevEquity = equity

	if equity > t.runningMax {
		t.runningMax = equity
		t.currentDrawdown = 0
	} else if t.runningMax != 0 {
		t.currentDrawdown = (equity - t.runningMax) / t.runningMax
	}
	if t.currentDrawdown < t.maxDrawdown {
		t.maxDrawdown = t.currentDrawdown
	}

	return t.snapshotLocked(now, equity)
}

// AddTrade inserts a closed trade. When the bounded trade map is full the
// oldest record is evicted. Inserting invalidates the cached snapshot so the
// next read recomputes the trade-derived statistics; the incremental
// return/drawdown accumulators are untouched.
func (t *MetricsTracker) AddTrade(id string, trade domain.TradeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trade.ID = id
	if _, exists := t.trades[id]; !exists {
		t.tradeOrder = append(t.tradeOrder, id)
		if len(t.tradeOrder) > t.cfg.TradeCapacity {
			oldest := t.tradeOrder[0]
			t.tradeOrder = t.tradeOrder[1:]
			delete(t.trades, oldest)
		}
	}
	t.trades[id] = trade
	t.cacheValid = false
}

// SetExposure records the current open-position exposure reported by the
// strategy collaborator.
func (t *MetricsTracker) SetExposure(exposure float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exposure = exposure
	t.cacheValid = false
}

// Snapshot returns the current performance snapshot, recomputing only when
// the cached one has aged past the TTL or was explicitly invalidated.
func (t *MetricsTracker) Snapshot() domain.PerformanceSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(time.Now().UTC(), t.prevEquity)
}

// Summary returns the snapshot as a flat serializable map for dashboard and
// report collaborators.
func (t *MetricsTracker) Summary() map[string]any {
	return t.Snapshot().Summary()
}

// EquitySince returns a copy of the retained equity points newer than the
// given duration.
func (t *MetricsTracker) EquitySince(within time.Duration) []domain.EquityPoint {
	return t.equity.Since(time.Now().Add(-within))
}

// snapshotLocked serves the cached snapshot while it is fresh, otherwise
// recomputes. Caller must hold t.mu.
func (t *MetricsTracker) snapshotLocked(now time.Time, equity float64) domain.PerformanceSnapshot {
	if t.cacheValid && now.Sub(t.cachedAt) < t.cfg.CacheTTL {
		return t.cached
	}

	snap := t.computeLocked(now, equity)
	t.cached = snap
	t.cachedAt = now
	t.cacheValid = true
	return snap
}

// computeLocked derives every snapshot field from the accumulated state.
// Insufficient data resolves to zero values, never NaN or Inf.
func (t *MetricsTracker) computeLocked(now time.Time, equity float64) domain.PerformanceSnapshot {
	snap := domain.PerformanceSnapshot{
		Timestamp:  now,
		Equity:     equity,
		RunningMax: t.runningMax,
		Exposure:   t.exposure,
	}

	if t.points >= 2 && t.firstEquity != 0 {
		snap.TotalReturn = (equity - t.firstEquity) / t.firstEquity
		snap.CurrentDrawdown = t.currentDrawdown
		snap.MaxDrawdown = t.maxDrawdown
	}

	periods := t.cfg.PeriodsPerYear
	meanReturn := t.returns.Mean()
	snap.PeriodReturn = meanReturn
	snap.AnnualizedReturn = meanReturn * periods
	snap.Volatility = t.returns.StdDev() * math.Sqrt(periods)

	if snap.Volatility > 0 {
		snap.Sharpe = (snap.AnnualizedReturn - t.cfg.RiskFreeRate) / snap.Volatility
	}
	if downsideVol := t.downside.StdDev() * math.Sqrt(periods); downsideVol > 0 {
		snap.Sortino = (snap.AnnualizedReturn - t.cfg.RiskFreeRate) / downsideVol
	}
	if snap.MaxDrawdown < 0 {
		snap.Calmar = snap.AnnualizedReturn / math.Abs(snap.MaxDrawdown)
	}

	snap.VaR, snap.CVaR = t.tailRiskLocked()
	t.tradeStatsLocked(&snap)

	return snap
}

// tailRiskLocked computes VaR and CVaR from the bounded window of recent
// per-period returns. VaR is the value at the (1-confidence) percentile of
// the ascending-sorted sample; CVaR is the mean of the returns at or below
// VaR.
func (t *MetricsTracker) tailRiskLocked() (float64, float64) {
	returns := t.recentReturns.Snapshot()
	if len(returns) == 0 {
		return 0, 0
	}

	sort.Float64s(returns)
	idx := int(math.Floor((1 - t.cfg.VaRConfidence) * float64(len(returns))))
	if idx >= len(returns) {
		idx = len(returns) - 1
	}
	vaR := returns[idx]

	var tailSum float64
	for i := 0; i <= idx; i++ {
		tailSum += returns[i]
	}
	cVaR := tailSum / float64(idx+1)

	return vaR, cVaR
}

// tradeStatsLocked fills the trade-derived fields from the bounded trade map.
func (t *MetricsTracker) tradeStatsLocked(snap *domain.PerformanceSnapshot) {
	snap.TradeCount = len(t.trades)
	if snap.TradeCount == 0 {
		return
	}

	var wins, losses int
	var grossProfit, grossLoss float64
	for _, id := range t.tradeOrder {
		trade := t.trades[id]
		if trade.PnL > 0 {
			wins++
			grossProfit += trade.PnL
		} else if trade.PnL < 0 {
			losses++
			grossLoss += -trade.PnL
		}
	}

	snap.WinRate = float64(wins) / float64(snap.TradeCount)
	if grossLoss > 0 {
		snap.ProfitFactor = grossProfit / grossLoss
	}
	if wins > 0 {
		snap.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		snap.AvgLoss = -grossLoss / float64(losses)
	}
}
