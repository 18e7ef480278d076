// Package memory implements the trivial in-memory backend (spec §1,
// explicitly "a thin in-memory backend, a trivial specialization of the
// contract"). It carries no eviction policy per the engine's Non-goals —
// entries live until cleared or the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cachegrove/memoize/internal/backend"
)

// Backend is a process-local, goroutine-safe implementation of
// backend.Backend over a plain map. It is scoped to one function identity,
// mirroring the file and shared backends, even though nothing in-process
// strictly requires the scoping.
//
// Clear never deletes a key outright; it overwrites it with a tombstone
// (no value, not in-flight, generation bumped). This lets a producer racing
// against a concurrent Clear discover, via the generation mismatch, that its
// eventual Put must be dropped (spec §9, Open Question 1) without a
// separate side-table to track generations across deletes.
type Backend struct {
	mu   sync.Mutex
	data map[string]backend.Entry
}

// New returns a Backend for a single function identity. functionID is
// accepted for interface symmetry with the file and shared backend
// factories; it is not otherwise used since each Backend instance already
// has its own map.
func New(functionID string) (*Backend, error) {
	return &Backend{data: make(map[string]backend.Entry)}, nil
}

// Factory adapts New to backend.Factory.
func Factory(functionID string) (backend.Backend, error) {
	return New(functionID)
}

func (b *Backend) Get(ctx context.Context, key string) (backend.Entry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	return e, ok, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte, ts time.Time, gen uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.data[key]
	if cur.Generation != gen {
		return nil // superseded by a Clear; silently dropped per spec.
	}
	b.data[key] = backend.Entry{
		Value:      value,
		HasValue:   true,
		Timestamp:  ts,
		InFlight:   false,
		Stale:      false,
		Generation: gen,
	}
	return nil
}

func (b *Backend) MarkInFlight(ctx context.Context, key string) (bool, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.data[key]
	if cur.InFlight {
		return false, cur.Generation, nil
	}
	cur.InFlight = true
	b.data[key] = cur
	return true, cur.Generation, nil
}

func (b *Backend) ClearInFlight(ctx context.Context, key string, gen uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.data[key]
	if !ok || cur.Generation != gen || !cur.InFlight {
		return nil // superseded by a Clear or already resolved; nothing to do.
	}
	cur.InFlight = false
	if !cur.HasValue {
		delete(b.data, key)
		return nil
	}
	b.data[key] = cur
	return nil
}

func (b *Backend) MarkStale(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.data[key]
	if !ok || !cur.HasValue || cur.Stale {
		return false, nil
	}
	cur.Stale = true
	b.data[key] = cur
	return true, nil
}

func (b *Backend) Clear(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.data[key]
	b.data[key] = backend.Entry{Generation: cur.Generation + 1}
	return nil
}

func (b *Backend) ClearAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]backend.Entry)
	return nil
}

func (b *Backend) WaitUntilReady(ctx context.Context, key string, timeout time.Duration) (backend.Entry, bool, error) {
	const pollInterval = time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		e, found, _ := b.Get(ctx, key)
		if !found || !e.InFlight {
			return e, found, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return backend.Entry{}, false, nil
		}
		select {
		case <-ctx.Done():
			return backend.Entry{}, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
