// Package concurrency provides the bounded worker pool used by the
// ingestion pipeline's batch enrichment/indexing stages (spec §5: "a
// bounded worker pool whose size is configurable and defaults to the host's
// parallelism"). The Pool abstraction mirrors the teacher's pkg/sync.Pool
// interface (Submit(func())), with ants.Pool as the default bounded
// implementation instead of the teacher's package-level swappable default,
// since patientqa constructs one pool per pipeline rather than sharing a
// process-wide singleton (spec §9's anti-singleton redesign note).
package concurrency

import (
	"runtime"

	"github.com/panjf2000/ants/v2"
)

// Pool executes submitted work with a bounded number of concurrent workers.
type Pool interface {
	// Submit schedules f to run, blocking if every worker is busy until one
	// frees up. Panics inside f are recovered by the underlying
	// implementation and do not crash the pool.
	Submit(f func()) error
	// Running returns the number of workers currently executing.
	Running() int
	// Release shuts the pool down; it does not wait for in-flight work to
	// finish.
	Release()
}

type antsPool struct {
	inner *ants.Pool
}

// NewBoundedPool creates a Pool with at most size concurrent workers. A
// size <= 0 defaults to the host's parallelism (GOMAXPROCS), per spec §5.
func NewBoundedPool(size int) (Pool, error) {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	p, err := ants.NewPool(size, ants.WithPreAlloc(false), ants.WithPanicHandler(func(any) {
		// Swallow worker panics: a single batch item failing must not take
		// down the pool or the rest of the batch (spec §4.4's "a failure on
		// one chunk MUST NOT roll back successfully stored chunks").
	}))
	if err != nil {
		return nil, err
	}
	return &antsPool{inner: p}, nil
}

func (a *antsPool) Submit(f func()) error { return a.inner.Submit(f) }
func (a *antsPool) Running() int          { return a.inner.Running() }
func (a *antsPool) Release()              { a.inner.Release() }
