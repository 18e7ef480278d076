// Package workerpool implements the bounded background worker pool (spec
// §4.8, component C8) that runs fire-and-forget recomputation for the
// return-old-value-on-stale policy.
//
// The pool is process-scoped and lazily started; deduplication of repeated
// stale hits for the same key is the backend's MarkStale responsibility, not
// the pool's (spec §4.8) — the pool only bounds concurrency.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when no explicit size is configured.
const DefaultSize = 8

// Task is a single-shot recomputation unit: invoke the decision state
// machine with overwrite semantics for one (function, key) pair.
type Task func()

// Pool is a bounded, lazily-started pool of recomputation workers.
type Pool struct {
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	once sync.Once
	size int64
}

// New returns a Pool that runs at most size tasks concurrently. size <= 0
// is normalized to DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{size: int64(size)}
}

func (p *Pool) lazyInit() {
	p.once.Do(func() {
		if p.sem == nil {
			p.sem = semaphore.NewWeighted(p.size)
		}
	})
}

// Submit enqueues task for background execution. It blocks only long enough
// to acquire a pool slot (not for task to finish) unless the pool is
// already saturated, in which case it returns false instead of blocking,
// so a caller on the hot path never stalls waiting for a free worker.
func (p *Pool) Submit(task Task) bool {
	p.lazyInit()
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return true
}

// Drain blocks until every submitted task has completed, or ctx is done,
// whichever comes first. Used at process shutdown to avoid abandoning
// in-progress recomputation.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
