// Package gate implements the bounded concurrency gate described in the
// design: a counting semaphore, sized independently of the database pool,
// that every database-touching code path must acquire before opening a
// transaction and release immediately after commit or rollback.
package gate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a permit could not be acquired within the
// configured timeout. Callers classify this as overload, not a storage
// failure: the gate is deliberately smaller than the pool so it fails
// fast before the pool itself saturates.
var ErrTimeout = errors.New("gate: acquire timed out")

// Gate is a counting semaphore bounding the number of in-flight
// database-touching operations, independent of the pool's own size.
type Gate struct {
	sem            *semaphore.Weighted
	permits        int64
	acquireTimeout time.Duration
}

// Config controls permit count and acquisition timeout.
type Config struct {
	// Permits is the number of concurrent holders allowed. Per the
	// design this should be roughly 0.4x the database pool's max size,
	// and must never exceed pool size minus headroom.
	Permits int64
	// AcquireTimeout bounds how long Acquire will block before failing
	// fast with ErrTimeout. Default 2s per the design.
	AcquireTimeout time.Duration
}

// New constructs a Gate from cfg, applying the design's default
// acquire timeout when unset.
func New(cfg Config) *Gate {
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Gate{
		sem:            semaphore.NewWeighted(cfg.Permits),
		permits:        cfg.Permits,
		acquireTimeout: timeout,
	}
}

// Permits returns the configured permit count.
func (g *Gate) Permits() int64 { return g.permits }

// Acquire blocks until a permit is available or the gate's acquire
// timeout elapses, whichever comes first. It also respects cancellation
// of ctx. On timeout it returns ErrTimeout so callers can classify the
// failure as overload rather than a generic error.
func (g *Gate) Acquire(ctx context.Context) (Release, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
			return noopRelease, ErrTimeout
		}
		return noopRelease, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
	}, nil
}

// Release is returned by Acquire; calling it more than once is a no-op.
type Release func()

func noopRelease() {}
