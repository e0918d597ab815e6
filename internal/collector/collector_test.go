package collector

import (
	"context"
	"errors"
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

// fakeSink records flushed batches and can be scripted to fail a number of
// times before succeeding.
type fakeSink struct {
	mu       sync.Mutex
	batches  [][]domain.MarketSample
	failures int
	calls    int
}

func (s *fakeSink) Flush(ctx context.Context, samples []domain.MarketSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	batch := make([]domain.MarketSample, len(samples))
	copy(batch, samples)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeSink) flushed() [][]domain.MarketSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.MarketSample, len(s.batches))
	copy(out, s.batches)
	return out
}

func priceFetcher(prices map[string]float64) domain.FetcherFunc {
	return func(_ context.Context, instrument string) (domain.MarketSample, error) {
		price, ok := prices[instrument]
		if !ok {
			return domain.MarketSample{}, domain.ErrNotFound
		}
		return domain.MarketSample{Price: price, Volume: 10}, nil
	}
}

func newTestCollector(cfg Config, fetcher domain.SampleFetcher, sink domain.SampleSink) *MarketCollector {
	return New(cfg, fetcher, sink, nil, testLogger())
}

func TestCollectorTickSamplesAllInstruments(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000, "ETHUSDT": 3_200})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT", "ETHUSDT"},
		BatchSize:   100,
	}, fetcher, sink)

	c.tick(context.Background())

	btc, ok := c.LatestFor("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 64_000.0, btc.Price)
	assert.Equal(t, "BTCUSDT", btc.Instrument)
	assert.False(t, btc.Timestamp.IsZero(), "the collector stamps samples the fetcher left unstamped")

	eth, ok := c.LatestFor("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 3_200.0, eth.Price)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Equal(t, uint64(2), stats.Fetches)
	assert.Zero(t, stats.FetchErrors)
}

func TestCollectorPartialFailureDoesNotAbortTick(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT", "BROKEN"},
		BatchSize:   100,
	}, fetcher, sink)

	c.tick(context.Background())

	_, ok := c.LatestFor("BTCUSDT")
	assert.True(t, ok, "a failing instrument must not block the others")
	_, ok = c.LatestFor("BROKEN")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Fetches)
	assert.Equal(t, uint64(1), stats.FetchErrors)
}

func TestCollectorFlushesAtBatchThreshold(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000, "ETHUSDT": 3_200})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT", "ETHUSDT"},
		BatchSize:   2,
	}, fetcher, sink)

	c.tick(context.Background())

	batches := sink.flushed()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, uint64(1), c.Stats().Flushes)
}

func TestCollectorHoldsBatchBelowThreshold(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT"},
		BatchSize:   10,
	}, fetcher, sink)

	c.tick(context.Background())
	assert.Empty(t, sink.flushed())

	// A forced take drains the held samples.
	batch := c.takeBatch(true)
	assert.Len(t, batch, 1)
}

func TestCollectorFlushRetriesThenSucceeds(t *testing.T) {
	sink := &fakeSink{failures: 2}
	c := newTestCollector(Config{
		Instruments:  []string{"BTCUSDT"},
		FlushRetries: 3,
	}, priceFetcher(nil), sink)

	c.flush(context.Background(), []domain.MarketSample{{Instrument: "BTCUSDT", Price: 1}})

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Equal(t, uint64(2), stats.FlushErrors)
	assert.Zero(t, stats.Dropped)
	require.Len(t, sink.flushed(), 1)
}

func TestCollectorDropsBatchAfterRetriesExhausted(t *testing.T) {
	sink := &fakeSink{failures: 10}
	c := newTestCollector(Config{
		Instruments:  []string{"BTCUSDT"},
		FlushRetries: 2,
	}, priceFetcher(nil), sink)

	batch := []domain.MarketSample{
		{Instrument: "BTCUSDT", Price: 1},
		{Instrument: "BTCUSDT", Price: 2},
	}
	c.flush(context.Background(), batch)

	stats := c.Stats()
	assert.Zero(t, stats.Flushes)
	assert.Equal(t, uint64(2), stats.FlushErrors)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestCollectorHistorySince(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT"},
		HistorySize: 10,
		BatchSize:   100,
	}, fetcher, &fakeSink{})

	for i := 0; i < 3; i++ {
		c.tick(context.Background())
	}

	got := c.HistorySince("BTCUSDT", time.Minute)
	assert.Len(t, got, 3)

	assert.Empty(t, c.HistorySince("BTCUSDT", -time.Minute))
	assert.Empty(t, c.HistorySince("UNKNOWN", time.Minute))
	assert.NotNil(t, c.HistorySince("UNKNOWN", time.Minute))
}

func TestCollectorHistoryIsBounded(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT"},
		HistorySize: 2,
		BatchSize:   100,
	}, fetcher, &fakeSink{})

	for i := 0; i < 5; i++ {
		c.tick(context.Background())
	}

	assert.Len(t, c.HistorySince("BTCUSDT", time.Hour), 2)
}

func TestCollectorFinalFlushDrainsPending(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments: []string{"BTCUSDT"},
		BatchSize:   100,
	}, fetcher, sink)

	c.tick(context.Background())
	require.Empty(t, sink.flushed())

	c.finalFlush()
	batches := sink.flushed()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestCollectorStartStop(t *testing.T) {
	fetcher := priceFetcher(map[string]float64{"BTCUSDT": 64_000})
	sink := &fakeSink{}
	c := newTestCollector(Config{
		Instruments:  []string{"BTCUSDT"},
		TickInterval: time.Hour, // only the immediate first tick runs
		BatchSize:    100,
	}, fetcher, sink)

	c.Start(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))

	assert.Equal(t, uint64(1), c.Stats().Ticks)
	// Shutdown flushed the sample from the first tick.
	require.Len(t, sink.flushed(), 1)
}

func TestCollectorStopWithoutStart(t *testing.T) {
	c := newTestCollector(Config{Instruments: []string{"BTCUSDT"}}, priceFetcher(nil), &fakeSink{})
	assert.NoError(t, c.Stop(context.Background()))
}

func TestCollectorFetchTimeoutApplies(t *testing.T) {
	block := make(chan struct{})
	fetcher := domain.FetcherFunc(func(ctx context.Context, _ string) (domain.MarketSample, error) {
		select {
		case <-ctx.Done():
			return domain.MarketSample{}, ctx.Err()
		case <-block:
			return domain.MarketSample{Price: 1}, nil
		}
	})

	c := newTestCollector(Config{
		Instruments:  []string{"BTCUSDT"},
		TickInterval: time.Second,
		FetchTimeout: 20 * time.Millisecond,
		BatchSize:    100,
	}, fetcher, &fakeSink{})

	c.tick(context.Background())
	close(block)

	assert.Equal(t, uint64(1), c.Stats().FetchErrors)
	_, ok := c.LatestFor("BTCUSDT")
	assert.False(t, ok)
}
