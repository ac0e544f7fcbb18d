// Package breaker implements the circuit breaker that gates bulk
// submission batch acceptance based on database pool utilization and
// recent downstream failures, per the design's Closed/Open/Half-Open
// state machine.
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/globeco/order-submission-service/internal/apierr"
	"github.com/globeco/order-submission-service/internal/poolhealth"
)

// State is one of the three breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// PoolHealthSource supplies the most recent pool utilization snapshot.
// Satisfied by *poolhealth.Monitor.
type PoolHealthSource interface {
	Latest() poolhealth.Snapshot
}

// FailureCounter backs the rolling downstream-failure count with
// storage outside this process. Satisfied by *failurewindow.RedisWindow.
// When unset the breaker keeps the count in its own in-memory slice,
// which is all a single process ever needed; the interface exists so a
// shared Redis-backed window can be dropped in without touching the
// breaker's state machine.
type FailureCounter interface {
	Record(ctx context.Context, at time.Time) (int, error)
	Count(ctx context.Context, now time.Time) (int, error)
}

// Config controls the breaker's trip and recovery thresholds. Field
// names mirror the design's configuration keys (breaker.*).
type Config struct {
	Enabled              bool
	UtilizationThreshold float64       // e.g. 0.90
	ConsecutiveSamples   int           // N consecutive high-utilization samples to trip
	FailureThreshold     int           // recent bulk-submission failures to trip
	FailureWindow        time.Duration // rolling window for the failure count
	OpenDuration         time.Duration // base recovery interval, e.g. 15s
	RetryAfterBase       time.Duration // e.g. 60s
	RetryAfterMax        time.Duration // e.g. 300s
}

// Breaker is the process-wide circuit breaker. All mutable state is
// guarded by a single mutex; reads outside the section (via State()) are
// tolerated as eventually consistent per the design.
type Breaker struct {
	cfg        Config
	poolHealth PoolHealthSource
	logger     *zap.Logger
	counter    FailureCounter

	mu                    sync.Mutex
	state                 State
	consecutiveHighUtil   int
	failures              []time.Time
	openedAt              time.Time
	currentOpenDuration   time.Duration
	halfOpenProbeInFlight bool
}

// New constructs a Breaker in the Closed state, counting recent
// downstream failures in its own in-memory slice.
func New(cfg Config, poolHealth PoolHealthSource, logger *zap.Logger) *Breaker {
	return NewWithFailureCounter(cfg, poolHealth, logger, nil)
}

// NewWithFailureCounter constructs a Breaker whose rolling failure count
// is backed by counter instead of an in-memory slice, so the count can
// be shared across replicas. A nil counter falls back to the in-memory
// behavior of New.
func NewWithFailureCounter(cfg Config, poolHealth PoolHealthSource, logger *zap.Logger, counter FailureCounter) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		cfg:                 cfg,
		poolHealth:          poolHealth,
		logger:              logger,
		counter:             counter,
		state:               StateClosed,
		currentOpenDuration: cfg.OpenDuration,
	}
}

// Admit consults the breaker before a batch is accepted. It returns nil
// when the batch may proceed. When the breaker is Open it returns a
// SERVICE_OVERLOADED error with a retry-after hint and performs no
// database or downstream access. When Half-Open it admits exactly one
// probe batch at a time; RecordResult must be called for every batch
// Admit allowed through.
func (b *Breaker) Admit() error {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.evaluateLocked()

	switch b.state {
	case StateOpen:
		return apierr.Overloaded("circuit_open", b.retryAfterLocked())
	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return apierr.Overloaded("circuit_half_open_probe_in_flight", b.retryAfterLocked())
		}
		b.halfOpenProbeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordResult reports the outcome of a batch that Admit allowed
// through. success is false for any downstream transient failure that
// the orchestrator classifies as DEPENDENCY_FAILURE.
func (b *Breaker) RecordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.halfOpenProbeInFlight = false
		if success {
			b.closeLocked()
			b.logger.Info("circuit breaker closed after successful probe")
		} else {
			b.openLocked(b.currentOpenDuration * 2)
			b.logger.Warn("circuit breaker re-opened after failed probe",
				zap.Duration("open_duration", b.currentOpenDuration))
		}
		return
	}

	if !success {
		b.recordFailureLocked()
	}
}

// Sample lets the caller advance the consecutive-high-utilization and
// recovery-interval checks independent of an Admit call, e.g. from the
// same ticker that drives the pool health monitor.
func (b *Breaker) Sample() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluateLocked()
}

// State returns the current breaker state. Reads are not synchronized
// with Admit/RecordResult beyond the mutex snapshot, consistent with the
// design's "eventually consistent" tolerance for out-of-section reads.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) evaluateLocked() {
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.currentOpenDuration {
			b.state = StateHalfOpen
			b.halfOpenProbeInFlight = false
			b.logger.Info("circuit breaker half-open, admitting one probe")
		}
		return
	case StateHalfOpen:
		return
	}

	snap := b.poolHealth.Latest()
	if snap.Utilization >= b.cfg.UtilizationThreshold {
		b.consecutiveHighUtil++
	} else {
		b.consecutiveHighUtil = 0
	}

	failureCount := b.pruneFailuresLocked()

	if b.consecutiveHighUtil >= b.cfg.ConsecutiveSamples {
		b.openLocked(b.cfg.OpenDuration)
		b.logger.Warn("circuit breaker opened on pool utilization",
			zap.Float64("utilization", snap.Utilization),
			zap.Int("consecutive_samples", b.consecutiveHighUtil))
		return
	}

	if b.cfg.FailureThreshold > 0 && failureCount >= b.cfg.FailureThreshold {
		b.openLocked(b.cfg.OpenDuration)
		b.logger.Warn("circuit breaker opened on recent failure count",
			zap.Int("failures", failureCount))
	}
}

func (b *Breaker) openLocked(dur time.Duration) {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.currentOpenDuration = dur
	b.consecutiveHighUtil = 0
}

func (b *Breaker) closeLocked() {
	b.state = StateClosed
	b.consecutiveHighUtil = 0
	b.failures = nil
	b.currentOpenDuration = b.cfg.OpenDuration
	if resetter, ok := b.counter.(interface{ Reset(context.Context) error }); ok {
		if err := resetter.Reset(context.Background()); err != nil {
			b.logger.Error("failure window reset failed", zap.Error(err))
		}
	}
}

func (b *Breaker) recordFailureLocked() {
	now := time.Now()
	var count int
	if b.counter != nil {
		n, err := b.counter.Record(context.Background(), now)
		if err != nil {
			b.logger.Error("failure window record failed, falling back to in-memory count", zap.Error(err))
			b.failures = append(b.failures, now)
			count = len(b.failures)
		} else {
			count = n
		}
	} else {
		b.failures = append(b.failures, now)
		count = len(b.failures)
	}

	if b.cfg.FailureThreshold > 0 && count >= b.cfg.FailureThreshold {
		b.openLocked(b.cfg.OpenDuration)
	}
}

// pruneFailuresLocked drops expired in-memory entries (when no
// FailureCounter is configured) and returns the current failure count
// either way.
func (b *Breaker) pruneFailuresLocked() int {
	if b.counter != nil {
		count, err := b.counter.Count(context.Background(), time.Now())
		if err != nil {
			b.logger.Error("failure window count failed, falling back to in-memory count", zap.Error(err))
			return len(b.failures)
		}
		return count
	}

	if b.cfg.FailureWindow <= 0 {
		return len(b.failures)
	}
	cutoff := time.Now().Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
	return len(b.failures)
}

// retryAfterLocked computes the retry-after hint from RetryAfterBase and
// the database pool's utilization, clamped to [RetryAfterBase,
// RetryAfterMax]. The scaling factor is the pool utilization raised to at
// least 1, and utilization (active/total) never exceeds 1, so the hint
// equals RetryAfterBase; no other resource (threads, heap) is consulted.
func (b *Breaker) retryAfterLocked() int {
	base := b.cfg.RetryAfterBase
	max := b.cfg.RetryAfterMax
	if base <= 0 {
		base = 60 * time.Second
	}
	if max <= 0 {
		max = 300 * time.Second
	}

	util := b.poolHealth.Latest().Utilization
	factor := util
	if factor < 1 {
		factor = 1
	}

	seconds := time.Duration(float64(base) * factor)
	if seconds > max {
		seconds = max
	}
	if seconds < base {
		seconds = base
	}
	return int(seconds.Round(time.Second).Seconds())
}
