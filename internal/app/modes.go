package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesentry/internal/alert"
	"github.com/alanyoungcy/tradesentry/internal/collector"
	"github.com/alanyoungcy/tradesentry/internal/domain"
	"github.com/alanyoungcy/tradesentry/internal/feed"
	"github.com/alanyoungcy/tradesentry/internal/metrics"
	"github.com/alanyoungcy/tradesentry/internal/monitor"
)

// alertPersistTimeout bounds one audit insert or stream publish per alert.
const alertPersistTimeout = 5 * time.Second

// CollectMode runs only the market collector and the sample archiver. It is
// meant for deployments where a separate watcher process handles alerting.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode",
		slog.Any("instruments", a.cfg.Collector.Instruments),
	)

	g, ctx := errgroup.WithContext(ctx)

	coll := a.buildCollector(deps)
	g.Go(func() error {
		return coll.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// WatchMode runs the full monitoring stack: the collector, the performance
// tracker fed from the shared equity feed, the alert engine with its default
// rule set, and the process resource monitor.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Any("instruments", a.cfg.Collector.Instruments),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Market data collection.
	coll := a.buildCollector(deps)
	g.Go(func() error {
		return coll.Run(ctx)
	})

	// Performance tracking.
	tracker := metrics.New(metrics.Config{
		EquityCapacity: a.cfg.Metrics.EquityCapacity,
		ReturnWindow:   a.cfg.Metrics.ReturnWindow,
		TradeCapacity:  a.cfg.Metrics.TradeCapacity,
		CacheTTL:       a.cfg.Metrics.CacheTTL.Duration,
		VaRConfidence:  a.cfg.Metrics.VaRConfidence,
		RiskFreeRate:   a.cfg.Metrics.RiskFreeRate,
		PeriodsPerYear: a.cfg.Metrics.PeriodsPerYear,
	}, a.logger)

	// Alert engine.
	engine := a.buildEngine(deps)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	// Resource monitor.
	if a.cfg.Resource.Enabled {
		mon, err := monitor.New(monitor.Config{
			Interval:         a.cfg.Resource.Interval.Duration,
			MaxCPUPercent:    a.cfg.Resource.MaxCPUPercent,
			MaxMemoryPercent: a.cfg.Resource.MaxMemoryPercent,
			MaxThreads:       a.cfg.Resource.MaxThreads,
		}, engine, a.logger)
		if err != nil {
			a.logger.WarnContext(ctx, "resource monitor disabled",
				slog.String("error", err.Error()),
			)
		} else {
			g.Go(func() error {
				return mon.Run(ctx)
			})
		}
	}

	// Equity polling: read the equity published by the strategy process, fold
	// it into the tracker, and re-evaluate the rules on every new snapshot.
	if deps.EquityFeed != nil {
		g.Go(func() error {
			return a.runEquityPoller(ctx, deps.EquityFeed, tracker, engine)
		})
	} else {
		a.logger.WarnContext(ctx, "equity feed unavailable (redis disabled), performance rules will not fire")
	}

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// buildCollector assembles the market collector against the HTTP quote feed,
// the sample store sink, and the optional Redis mirror.
func (a *App) buildCollector(deps *Dependencies) *collector.MarketCollector {
	fetcher := feed.NewHTTPFetcher(a.cfg.Collector.QuoteURL)
	return collector.New(collector.Config{
		Instruments:  a.cfg.Collector.Instruments,
		TickInterval: a.cfg.Collector.TickInterval.Duration,
		FetchTimeout: a.cfg.Collector.FetchTimeout.Duration,
		HistorySize:  a.cfg.Collector.HistorySize,
		BatchSize:    a.cfg.Collector.BatchSize,
		FlushRetries: a.cfg.Collector.FlushRetries,
	}, fetcher, deps.SampleStore, deps.SampleCache, a.logger)
}

// buildEngine assembles the alert engine with the configured rule set and
// registers the delivery handlers: operator notifications, the audit store,
// and the shared alert stream.
func (a *App) buildEngine(deps *Dependencies) *alert.Engine {
	rules := alert.DefaultRules(alert.Thresholds{
		MaxDrawdown:     a.cfg.Alerts.MaxDrawdown,
		LossLimit:       a.cfg.Alerts.LossLimit,
		VolatilityLimit: a.cfg.Alerts.VolatilityLimit,
		VaRLimit:        a.cfg.Alerts.VaRLimit,
		MinWinRate:      a.cfg.Alerts.MinWinRate,
		BaseCooldown:    a.cfg.Alerts.BaseCooldown.Duration,
	})

	aggLevels := make([]domain.AlertLevel, 0, len(a.cfg.Alerts.AggregateLevels))
	for _, lvl := range a.cfg.Alerts.AggregateLevels {
		aggLevels = append(aggLevels, domain.AlertLevel(strings.ToLower(lvl)))
	}

	engine := alert.NewEngine(alert.Config{
		MaxPerMinute:      a.cfg.Alerts.MaxPerMinute,
		AggregationWindow: a.cfg.Alerts.AggregationWindow.Duration,
		AggregateLevels:   aggLevels,
	}, rules, a.logger)

	engine.RegisterHandler(deps.Notifier.Handler())

	if deps.AlertStore != nil {
		store := deps.AlertStore
		logger := a.logger
		engine.RegisterHandler(func(al domain.Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), alertPersistTimeout)
			defer cancel()
			if err := store.Insert(ctx, al); err != nil {
				logger.Error("alert audit insert failed",
					slog.String("alert_id", al.ID),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	if deps.AlertBus != nil {
		bus := deps.AlertBus
		logger := a.logger
		engine.RegisterHandler(func(al domain.Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), alertPersistTimeout)
			defer cancel()
			if err := bus.Publish(ctx, al); err != nil {
				logger.Error("alert stream publish failed",
					slog.String("alert_id", al.ID),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	return engine
}

// runEquityPoller reads the latest published equity on the configured interval
// and drives the tracker and rule evaluation. A missing value is normal until
// the strategy process publishes its first equity point.
func (a *App) runEquityPoller(ctx context.Context, fd domain.EquityFeed, tracker *metrics.MetricsTracker, engine *alert.Engine) error {
	interval := a.cfg.Metrics.PollInterval.Duration
	a.logger.InfoContext(ctx, "equity poller starting", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastTS time.Time
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("equity poller stopped")
			return ctx.Err()
		case <-ticker.C:
			equity, ts, err := fd.LatestEquity(ctx)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					a.logger.WarnContext(ctx, "equity read failed", slog.String("error", err.Error()))
				}
				continue
			}
			// Only fold in fresh points; the feed keeps returning the last
			// published value between strategy updates.
			if !ts.IsZero() && !ts.After(lastTS) {
				continue
			}
			lastTS = ts

			snap := tracker.Update(equity)
			engine.CheckMetrics(snap)
		}
	}
}

// startArchiver adds the retention loop when both S3 and a retention window
// are configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || a.cfg.Postgres.RetentionDays <= 0 {
		a.logger.InfoContext(ctx, "sample archiving disabled")
		return
	}

	interval := a.cfg.Postgres.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	retention := time.Duration(a.cfg.Postgres.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		a.logger.InfoContext(ctx, "archiver starting",
			slog.Duration("interval", interval),
			slog.Int("retention_days", a.cfg.Postgres.RetentionDays),
		)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				n, err := deps.Archiver.ArchiveSamples(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "archive run complete", slog.Int64("samples", n))
				}
			}
		}
	})
}
