package alert

import (
	"container/heap"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

const (
	defaultMaxPerMinute      = 30
	defaultRateWindow        = time.Minute
	defaultAggregationWindow = time.Minute
	minSweepInterval         = time.Second
)

// Config holds the engine's dispatch parameters.
type Config struct {
	// MaxPerMinute caps dispatched alerts per RateWindow; excess alerts are
	// dropped and counted as suppressed, never replayed.
	MaxPerMinute int
	// RateWindow is the sliding rate-limit window.
	RateWindow time.Duration
	// AggregationWindow is how long same-kind, non-critical alerts are
	// batched before flushing as one summarized alert.
	AggregationWindow time.Duration
	// AggregateLevels lists the severities subject to aggregation. Critical
	// alerts always bypass aggregation. Defaults to info only.
	AggregateLevels []domain.AlertLevel
}

func (c *Config) applyDefaults() {
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = defaultMaxPerMinute
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.AggregationWindow <= 0 {
		c.AggregationWindow = defaultAggregationWindow
	}
	if len(c.AggregateLevels) == 0 {
		c.AggregateLevels = []domain.AlertLevel{domain.AlertInfo}
	}
}

// Stats are the engine's running counters. Suppressed counts true rate-limit
// drops; aggregated alerts are never lost, they surface in a summary.
type Stats struct {
	Evaluations   uint64
	Triggered     uint64
	Dispatched    uint64
	Aggregated    uint64
	Suppressed    uint64
	HandlerErrors uint64
}

type bucketKey struct {
	Type  domain.AlertType
	Level domain.AlertLevel
}

type bucket struct {
	alerts      []domain.Alert
	oldest      time.Time
	maxPriority int
}

// Engine evaluates rules against performance snapshots and dispatches the
// resulting alerts through a priority queue on a background worker, so slow
// handler I/O never blocks metric updates. The engine exclusively owns its
// rule set, queue, and aggregation buckets.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	limiter *windowLimiter

	mu        sync.Mutex
	rules     []*Rule
	queue     alertQueue
	seq       uint64
	buckets   map[bucketKey]*bucket
	handlers  []domain.AlertHandler
	aggregate map[domain.AlertLevel]bool

	wake chan struct{}

	evaluations   atomic.Uint64
	triggered     atomic.Uint64
	dispatched    atomic.Uint64
	aggregatedN   atomic.Uint64
	suppressed    atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewEngine creates an Engine with the given rule set.
func NewEngine(cfg Config, rules []*Rule, logger *slog.Logger) *Engine {
	cfg.applyDefaults()

	aggregate := make(map[domain.AlertLevel]bool, len(cfg.AggregateLevels))
	for _, lvl := range cfg.AggregateLevels {
		if lvl != domain.AlertCritical {
			aggregate[lvl] = true
		}
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "alert_engine")),
		limiter:   newWindowLimiter(cfg.MaxPerMinute, cfg.RateWindow),
		buckets:   make(map[bucketKey]*bucket),
		aggregate: aggregate,
		wake:      make(chan struct{}, 1),
	}
	for _, r := range rules {
		r.init()
		e.rules = append(e.rules, r)
	}
	return e
}

// AddRule attaches an additional rule to the evaluation set.
func (e *Engine) AddRule(r *Rule) {
	r.init()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// RegisterHandler registers a delivery handler. Each dispatched alert is
// passed to every handler; a failing handler never affects the others.
func (e *Engine) RegisterHandler(h domain.AlertHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// CheckMetrics evaluates every rule against the snapshot, converting breaches
// outside their cooldown window into queued alerts. It only enqueues; the
// background worker performs delivery.
func (e *Engine) CheckMetrics(snap domain.PerformanceSnapshot) {
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		e.evaluations.Add(1)

		if !r.Predicate(snap) {
			// A fresh incident must not inherit stale backoff.
			r.consecutive = 0
			continue
		}
		if r.inCooldown(now) {
			continue
		}
		r.recordTrigger(now)
		e.triggered.Add(1)

		alert := domain.Alert{
			ID:        uuid.NewString(),
			Timestamp: now,
			Level:     r.Level,
			Type:      r.Type,
			Title:     strings.ReplaceAll(r.Name, "_", " "),
			Message:   r.Message(snap),
			Priority:  r.Priority,
			Data: map[string]any{
				"rule":        r.Name,
				"threshold":   r.Threshold,
				"consecutive": r.consecutive,
			},
		}
		e.enqueueLocked(alert)
	}
}

// Raise enqueues an externally produced alert (for example from the resource
// monitor) into the same dispatch path as rule breaches.
func (e *Engine) Raise(alert domain.Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	e.enqueueLocked(alert)
	e.mu.Unlock()
}

// enqueueLocked pushes onto the priority queue and wakes the worker. Caller
// must hold e.mu.
func (e *Engine) enqueueLocked(alert domain.Alert) {
	heap.Push(&e.queue, queueItem{alert: alert, seq: e.seq})
	e.seq++
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run is the dispatch worker. It drains the queue as alerts arrive, sweeps
// aggregation buckets on a timer, and on shutdown flushes everything that is
// still buffered.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "alert engine starting",
		slog.Int("rules", len(e.rules)),
		slog.Int("max_per_minute", e.cfg.MaxPerMinute),
		slog.Duration("aggregation_window", e.cfg.AggregationWindow),
	)

	sweepEvery := e.cfg.AggregationWindow / 4
	if sweepEvery < minSweepInterval {
		sweepEvery = minSweepInterval
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.flushBuckets(true)
			e.logger.Info("alert engine stopped")
			return ctx.Err()
		case <-e.wake:
			e.drain()
		case <-ticker.C:
			e.flushBuckets(false)
		}
	}
}

// Stats returns a copy of the running counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Evaluations:   e.evaluations.Load(),
		Triggered:     e.triggered.Load(),
		Dispatched:    e.dispatched.Load(),
		Aggregated:    e.aggregatedN.Load(),
		Suppressed:    e.suppressed.Load(),
		HandlerErrors: e.handlerErrors.Load(),
	}
}

// drain pops queued alerts one at a time, highest priority first, and routes
// each to aggregation or direct delivery. The lock is never held across
// handler I/O.
func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		item := heap.Pop(&e.queue).(queueItem)
		e.mu.Unlock()

		e.route(item.alert)
	}
}

// route sends critical and non-aggregatable alerts immediately; aggregatable
// levels are buffered into their (type, level) bucket instead.
func (e *Engine) route(alert domain.Alert) {
	if alert.Level != domain.AlertCritical && e.aggregate[alert.Level] && alert.Type != domain.AlertTypeAggregate {
		e.bucketize(alert)
		return
	}
	e.send(alert)
}

// bucketize appends the alert to its aggregation bucket.
func (e *Engine) bucketize(alert domain.Alert) {
	key := bucketKey{Type: alert.Type, Level: alert.Level}

	e.mu.Lock()
	b, ok := e.buckets[key]
	if !ok {
		b = &bucket{oldest: alert.Timestamp, maxPriority: alert.Priority}
		e.buckets[key] = b
	}
	b.alerts = append(b.alerts, alert)
	if alert.Priority > b.maxPriority {
		b.maxPriority = alert.Priority
	}
	e.mu.Unlock()

	e.aggregatedN.Add(1)
}

// flushBuckets delivers every bucket whose oldest member has aged past the
// aggregation window (inclusive at the edge), or all buckets when force is
// true. Buckets of size one flush as the original alert; larger buckets
// flush as one summary preserving the highest member priority.
func (e *Engine) flushBuckets(force bool) {
	now := time.Now().UTC()

	e.mu.Lock()
	var due []struct {
		key bucketKey
		b   *bucket
	}
	for key, b := range e.buckets {
		if force || now.Sub(b.oldest) >= e.cfg.AggregationWindow {
			due = append(due, struct {
				key bucketKey
				b   *bucket
			}{key, b})
			delete(e.buckets, key)
		}
	}
	e.mu.Unlock()

	for _, d := range due {
		if len(d.b.alerts) == 1 {
			e.send(d.b.alerts[0])
			continue
		}
		e.send(summarize(d.key, d.b, now))
	}
}

// summarize collapses a bucket into one synthetic alert.
func summarize(key bucketKey, b *bucket, now time.Time) domain.Alert {
	first := b.alerts[0]
	var titles []string
	seen := make(map[string]bool)
	for _, a := range b.alerts {
		if !seen[a.Title] {
			seen[a.Title] = true
			titles = append(titles, a.Title)
		}
	}

	return domain.Alert{
		ID:        uuid.NewString(),
		Timestamp: now,
		Level:     key.Level,
		Type:      domain.AlertTypeAggregate,
		Title:     first.Title,
		Message:   strings.Join(titles, "; "),
		Priority:  b.maxPriority,
		Data: map[string]any{
			"aggregated_count": len(b.alerts),
			"source_type":      string(key.Type),
			"window_start":     b.oldest,
		},
	}
}

// send delivers one alert to every registered handler, subject to the global
// rate limiter. Rate-limited alerts are dropped and counted, never queued
// for replay.
func (e *Engine) send(alert domain.Alert) {
	if !e.limiter.allow(time.Now().UTC()) {
		e.suppressed.Add(1)
		e.logger.Warn("alert suppressed by rate limit",
			slog.String("type", string(alert.Type)),
			slog.String("level", string(alert.Level)),
			slog.String("title", alert.Title),
		)
		return
	}

	e.dispatched.Add(1)
	e.logger.Info("dispatching alert",
		slog.String("id", alert.ID),
		slog.String("type", string(alert.Type)),
		slog.String("level", string(alert.Level)),
		slog.Int("priority", alert.Priority),
		slog.String("title", alert.Title),
	)

	e.mu.Lock()
	handlers := make([]domain.AlertHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		e.invoke(h, alert)
	}
}

// invoke calls one handler, containing panics so a broken handler can never
// stop the dispatch loop or starve other handlers.
func (e *Engine) invoke(h domain.AlertHandler, alert domain.Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			e.handlerErrors.Add(1)
			e.logger.Error("alert handler panicked",
				slog.String("alert_id", alert.ID),
				slog.Any("panic", rec),
			)
		}
	}()
	h(alert)
}
