// Package poolhealth periodically samples the database connection pool
// and publishes a utilization snapshot for the circuit breaker to
// consult. It never mutates pool or breaker state itself.
package poolhealth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of the pool's connection counters.
type Snapshot struct {
	Active      int
	Idle        int
	Waiting     int
	Total       int
	Utilization float64 // Active / Total
	SampledAt   time.Time
}

// warnUtilization and criticalUtilization are the thresholds at which
// the monitor logs increasingly urgent warnings, per the design.
const (
	warnUtilization     = 0.75
	criticalUtilization = 0.90
)

// StatProvider is implemented by the orderstore's pool adapter so this
// package stays independent of the pgx driver.
type StatProvider interface {
	PoolStat() Snapshot
}

// Monitor samples a StatProvider on a fixed cadence and keeps the most
// recent Snapshot available for synchronous reads by the circuit
// breaker.
type Monitor struct {
	provider StatProvider
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	latest Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Monitor. interval defaults to 5s, matching the
// design's sampling cadence, when zero or negative.
func New(provider StatProvider, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		provider: provider,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins sampling in a background goroutine. It samples once
// immediately so Latest() has a value before the first tick, then runs
// until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.sample()
	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop halts the sampling goroutine and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// Latest returns the most recently published Snapshot.
func (m *Monitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Monitor) sample() {
	snap := m.provider.PoolStat()
	snap.SampledAt = time.Now()
	if snap.Total > 0 {
		snap.Utilization = float64(snap.Active) / float64(snap.Total)
	}

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()

	switch {
	case snap.Utilization >= criticalUtilization || snap.Waiting >= 1:
		m.logger.Error("database pool near saturation",
			zap.Float64("utilization", snap.Utilization),
			zap.Int("waiting", snap.Waiting),
			zap.Int("active", snap.Active),
			zap.Int("total", snap.Total),
		)
	case snap.Utilization >= warnUtilization:
		m.logger.Warn("database pool utilization elevated",
			zap.Float64("utilization", snap.Utilization),
			zap.Int("active", snap.Active),
			zap.Int("total", snap.Total),
		)
	}
}
