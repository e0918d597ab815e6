// Package monitor implements the process resource monitor: a periodic
// CPU/memory/thread sampler that feeds threshold breaches into the alert
// engine's dispatch path.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/alanyoungcy/tradesentry/internal/domain"
	"github.com/alanyoungcy/tradesentry/internal/stats"
)

const (
	defaultInterval    = 30 * time.Second
	defaultHistorySize = 120
	// escalateFactor raises a breach from warning to error severity.
	escalateFactor = 1.25
)

// Sample is one resource observation.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	Threads       int       `json:"threads"`
	Goroutines    int       `json:"goroutines"`
}

// Usage is the monitor's externally visible state: the latest sample plus
// running peaks and averages.
type Usage struct {
	Latest     Sample  `json:"latest"`
	PeakCPU    float64 `json:"peak_cpu"`
	PeakMemory float64 `json:"peak_memory"`
	AvgCPU     float64 `json:"avg_cpu"`
	AvgMemory  float64 `json:"avg_memory"`
	Samples    int64   `json:"samples"`
}

// Raiser is the slice of the alert engine the monitor needs.
type Raiser interface {
	Raise(alert domain.Alert)
}

// Config holds the monitor's sampling interval and breach thresholds. A zero
// threshold disables its check.
type Config struct {
	Interval         time.Duration
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	MaxThreads       int
}

// ResourceMonitor periodically samples process resource usage into a bounded
// history and raises alerts through the engine when thresholds are exceeded.
type ResourceMonitor struct {
	cfg    Config
	raiser Raiser
	logger *slog.Logger

	sample func(ctx context.Context) (Sample, error)

	mu       sync.Mutex
	latest   Sample
	cpuStats stats.IncrementalStatistics
	memStats stats.IncrementalStatistics

	history *stats.RingBuffer[Sample]
}

// New creates a ResourceMonitor reporting into the given raiser.
func New(cfg Config, raiser Raiser, logger *slog.Logger) (*ResourceMonitor, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("monitor: open process: %w", err)
	}

	m := &ResourceMonitor{
		cfg:    cfg,
		raiser: raiser,
		logger: logger.With(slog.String("component", "resource_monitor")),
		history: stats.NewTimedRingBuffer(defaultHistorySize, func(s Sample) time.Time {
			return s.Timestamp
		}),
	}
	m.sample = func(ctx context.Context) (Sample, error) {
		return readProcess(ctx, proc)
	}
	return m, nil
}

// readProcess collects one sample via gopsutil.
func readProcess(ctx context.Context, proc *process.Process) (Sample, error) {
	s := Sample{
		Timestamp:  time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
	}

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("monitor: cpu percent: %w", err)
	}
	s.CPUPercent = cpu

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		s.MemoryMB = float64(info.RSS) / (1024 * 1024)
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		s.Threads = int(threads)
	}

	return s, nil
}

// Run samples on the configured interval until the context is cancelled.
func (m *ResourceMonitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "resource monitor starting",
		slog.Duration("interval", m.cfg.Interval),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("resource monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

// sampleOnce takes one sample, folds it into the trackers, and raises alerts
// for any threshold breach.
func (m *ResourceMonitor) sampleOnce(ctx context.Context) {
	s, err := m.sample(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "resource sample failed", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	m.latest = s
	m.cpuStats.Update(s.CPUPercent)
	m.memStats.Update(s.MemoryPercent)
	m.mu.Unlock()

	m.history.Append(s)
	m.check(s)
}

// check raises one alert per breached threshold. Breaches past escalateFactor
// times the limit report at error severity instead of warning.
func (m *ResourceMonitor) check(s Sample) {
	if m.cfg.MaxCPUPercent > 0 && s.CPUPercent > m.cfg.MaxCPUPercent {
		m.breach("cpu", s.CPUPercent, m.cfg.MaxCPUPercent, s)
	}
	if m.cfg.MaxMemoryPercent > 0 && s.MemoryPercent > m.cfg.MaxMemoryPercent {
		m.breach("memory", s.MemoryPercent, m.cfg.MaxMemoryPercent, s)
	}
	if m.cfg.MaxThreads > 0 && s.Threads > m.cfg.MaxThreads {
		m.breach("threads", float64(s.Threads), float64(m.cfg.MaxThreads), s)
	}
}

func (m *ResourceMonitor) breach(metric string, value, limit float64, s Sample) {
	level := domain.AlertWarning
	priority := 40
	if value >= limit*escalateFactor {
		level = domain.AlertError
		priority = 65
	}

	m.raiser.Raise(domain.Alert{
		Level:    level,
		Type:     domain.AlertTypeResource,
		Title:    metric + " threshold exceeded",
		Message:  fmt.Sprintf("%s at %.1f, limit %.1f", metric, value, limit),
		Priority: priority,
		Data: map[string]any{
			"metric":     metric,
			"value":      value,
			"limit":      limit,
			"threads":    s.Threads,
			"goroutines": s.Goroutines,
		},
	})
}

// Usage returns the latest sample with running peaks and averages.
func (m *ResourceMonitor) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Usage{
		Latest:     m.latest,
		PeakCPU:    m.cpuStats.Max(),
		PeakMemory: m.memStats.Max(),
		AvgCPU:     m.cpuStats.Mean(),
		AvgMemory:  m.memStats.Mean(),
		Samples:    m.cpuStats.Count(),
	}
}

// History returns a copy of the retained samples within the given duration.
func (m *ResourceMonitor) History(within time.Duration) []Sample {
	return m.history.Since(time.Now().Add(-within))
}
