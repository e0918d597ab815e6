// Package collector implements the market data collector: a ticker-driven
// fan-out that samples every configured instrument concurrently, maintains a
// latest-value cache plus a bounded per-instrument history, and flushes
// batches to the configured append sink.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesentry/internal/domain"
	"github.com/alanyoungcy/tradesentry/internal/stats"
)

const (
	defaultHistorySize  = 1000
	defaultBatchSize    = 50
	defaultFetchTimeout = 5 * time.Second
	defaultFlushRetries = 3
	flushBackoffBase    = 100 * time.Millisecond
)

// Config holds the collector's operating parameters.
type Config struct {
	// Instruments is the set of instrument identifiers sampled each tick.
	Instruments []string
	// TickInterval is the sampling period; it also bounds how long one tick's
	// fetches may run in total.
	TickInterval time.Duration
	// FetchTimeout is the per-instrument fetch deadline.
	FetchTimeout time.Duration
	// HistorySize bounds the per-instrument in-memory history.
	HistorySize int
	// BatchSize is the pending-sample count that triggers a sink flush.
	BatchSize int
	// FlushRetries bounds how many times a failed flush is retried before the
	// batch is dropped.
	FlushRetries int
}

// Stats are the collector's running counters.
type Stats struct {
	Ticks       uint64
	Fetches     uint64
	FetchErrors uint64
	Flushes     uint64
	FlushErrors uint64
	Dropped     uint64
}

// MarketCollector samples instruments on a fixed tick and owns the resulting
// latest-value cache, history buffers, and pending sink batch.
type MarketCollector struct {
	cfg     Config
	fetcher domain.SampleFetcher
	sink    domain.SampleSink
	mirror  domain.SampleCache // optional; best-effort writes
	logger  *slog.Logger

	mu      sync.RWMutex
	latest  map[string]domain.MarketSample
	history map[string]*stats.RingBuffer[domain.MarketSample]
	pending []domain.MarketSample

	ticks       atomic.Uint64
	fetches     atomic.Uint64
	fetchErrors atomic.Uint64
	flushes     atomic.Uint64
	flushErrors atomic.Uint64
	dropped     atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a MarketCollector. The sink is required; mirror may be nil to
// disable the shared latest-sample cache.
func New(cfg Config, fetcher domain.SampleFetcher, sink domain.SampleSink, mirror domain.SampleCache, logger *slog.Logger) *MarketCollector {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 || cfg.FetchTimeout > cfg.TickInterval {
		cfg.FetchTimeout = min(defaultFetchTimeout, cfg.TickInterval)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushRetries <= 0 {
		cfg.FlushRetries = defaultFlushRetries
	}

	history := make(map[string]*stats.RingBuffer[domain.MarketSample], len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		history[inst] = stats.NewTimedRingBuffer(cfg.HistorySize, func(s domain.MarketSample) time.Time {
			return s.Timestamp
		})
	}

	return &MarketCollector{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		mirror:  mirror,
		logger:  logger.With(slog.String("component", "collector")),
		latest:  make(map[string]domain.MarketSample, len(cfg.Instruments)),
		history: history,
	}
}

// Run executes the sampling loop until the context is cancelled. A tick that
// is already in flight when cancellation arrives completes under its own
// deadline; pending samples are flushed before Run returns.
func (c *MarketCollector) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "collector starting",
		slog.Int("instruments", len(c.cfg.Instruments)),
		slog.Duration("tick_interval", c.cfg.TickInterval),
	)

	// First tick immediately, then on the ticker.
	c.tick(ctx)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finalFlush()
			c.logger.Info("collector stopped")
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Start launches Run on its own goroutine. Use Stop to shut down.
func (c *MarketCollector) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		_ = c.Run(runCtx)
	}()
}

// Stop signals the loop started by Start to exit after the current tick and
// waits for the final flush to complete, or for ctx to expire.
func (c *MarketCollector) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick fetches every instrument concurrently. The tick carries its own
// deadline detached from the run context so an in-flight tick finishes
// cleanly during shutdown.
func (c *MarketCollector) tick(ctx context.Context) {
	c.ticks.Add(1)

	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TickInterval)
	defer cancel()

	g, fetchCtx := errgroup.WithContext(tickCtx)
	for _, inst := range c.cfg.Instruments {
		inst := inst
		g.Go(func() error {
			c.fetchOne(fetchCtx, inst)
			return nil // per-instrument failures never abort the tick
		})
	}
	_ = g.Wait()

	if batch := c.takeBatch(false); len(batch) > 0 {
		c.flush(tickCtx, batch)
	}
}

// fetchOne samples a single instrument with its own deadline and applies the
// result to the cache, history, and pending batch.
func (c *MarketCollector) fetchOne(ctx context.Context, instrument string) {
	c.fetches.Add(1)

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	sample, err := c.fetcher.Fetch(fetchCtx, instrument)
	if err != nil {
		c.fetchErrors.Add(1)
		c.logger.WarnContext(ctx, "fetch failed",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	sample.Instrument = instrument

	c.mu.Lock()
	c.latest[instrument] = sample
	ring, ok := c.history[instrument]
	if !ok {
		ring = stats.NewTimedRingBuffer(c.cfg.HistorySize, func(s domain.MarketSample) time.Time {
			return s.Timestamp
		})
		c.history[instrument] = ring
	}
	c.pending = append(c.pending, sample)
	c.mu.Unlock()

	ring.Append(sample)

	if c.mirror != nil {
		if err := c.mirror.SetLatest(ctx, sample); err != nil {
			c.logger.DebugContext(ctx, "mirror write failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}
}

// LatestFor returns the most recently successfully fetched sample for the
// instrument. It never blocks on in-flight fetches.
func (c *MarketCollector) LatestFor(instrument string) (domain.MarketSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sample, ok := c.latest[instrument]
	return sample, ok
}

// HistorySince returns a copy of the instrument's retained samples no older
// than the given duration. It returns an empty slice when there is no data.
func (c *MarketCollector) HistorySince(instrument string, within time.Duration) []domain.MarketSample {
	c.mu.RLock()
	ring, ok := c.history[instrument]
	c.mu.RUnlock()
	if !ok {
		return []domain.MarketSample{}
	}
	return ring.Since(time.Now().Add(-within))
}

// Stats returns a copy of the running counters.
func (c *MarketCollector) Stats() Stats {
	return Stats{
		Ticks:       c.ticks.Load(),
		Fetches:     c.fetches.Load(),
		FetchErrors: c.fetchErrors.Load(),
		Flushes:     c.flushes.Load(),
		FlushErrors: c.flushErrors.Load(),
		Dropped:     c.dropped.Load(),
	}
}

// takeBatch removes and returns the pending samples when the batch threshold
// is met, or unconditionally when force is true. The lock is never held
// across sink I/O.
func (c *MarketCollector) takeBatch(force bool) []domain.MarketSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 || (!force && len(c.pending) < c.cfg.BatchSize) {
		return nil
	}
	batch := c.pending
	c.pending = nil
	return batch
}

// flush writes one batch to the sink with bounded retries and doubling
// backoff. After the final failed attempt the batch is dropped and counted.
func (c *MarketCollector) flush(ctx context.Context, batch []domain.MarketSample) {
	backoff := flushBackoffBase
	for attempt := 1; ; attempt++ {
		err := c.sink.Flush(ctx, batch)
		if err == nil {
			c.flushes.Add(1)
			c.logger.DebugContext(ctx, "flushed batch", slog.Int("samples", len(batch)))
			return
		}

		c.flushErrors.Add(1)
		c.logger.ErrorContext(ctx, "flush failed",
			slog.Int("attempt", attempt),
			slog.Int("samples", len(batch)),
			slog.String("error", err.Error()),
		)
		if attempt >= c.cfg.FlushRetries {
			c.dropped.Add(uint64(len(batch)))
			c.logger.ErrorContext(ctx, "dropping batch after retries", slog.Int("samples", len(batch)))
			return
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.dropped.Add(uint64(len(batch)))
			return
		case <-timer.C:
		}
		backoff *= 2
	}
}

// finalFlush drains whatever is pending during shutdown under a short,
// detached deadline.
func (c *MarketCollector) finalFlush() {
	batch := c.takeBatch(true)
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}
