// Package backend defines the storage contract consumed by the memoization
// orchestrator (spec §4.3) and the Entry record backends exchange (spec §3).
//
// A Backend is scoped to a single function identity at construction time;
// the orchestrator never passes a function identity into a Backend call,
// only the fingerprint K, because the scope already fixes F.
package backend

import (
	"context"
	"time"
)

// Backend is the storage contract every memoization backend implements.
// Implementations must make Put and MarkInFlight linearizable per key; Get
// may observe a slightly stale but never torn record.
type Backend interface {
	// Get returns the latest published state visible to this process for
	// key. The returned Entry may have InFlight set. found is false only
	// when no record at all exists for key.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)

	// Put atomically replaces the entry for key with
	// (value, ts, InFlight=false, Stale=false). gen is the generation the
	// caller observed when it claimed the in-flight marker (or 0 for a
	// precache/overwrite not preceded by a claim); implementations must
	// silently drop the write if the entry's current generation has since
	// advanced past gen (see DESIGN.md Open Question 1).
	Put(ctx context.Context, key string, value []byte, ts time.Time, gen uint64) error

	// MarkInFlight atomically sets InFlight=true iff no other producer
	// currently holds it. acquired is true iff the caller became the sole
	// producer; gen is the generation token to present to the matching Put
	// or ClearInFlight call.
	MarkInFlight(ctx context.Context, key string) (acquired bool, gen uint64, err error)

	// ClearInFlight unconditionally clears InFlight for key, used after a
	// producer abandons its claim (error or panic in the user function).
	ClearInFlight(ctx context.Context, key string, gen uint64) error

	// MarkStale sets Stale=true iff it was not already set. acquired true
	// means the caller is responsible for dispatching recomputation.
	MarkStale(ctx context.Context, key string) (acquired bool, err error)

	// Clear removes the entry for key entirely and bumps its generation so
	// that any in-flight producer's subsequent Put is dropped.
	Clear(ctx context.Context, key string) error

	// ClearAll removes every entry under this backend's scope.
	ClearAll(ctx context.Context) error

	// WaitUntilReady blocks until InFlight becomes false for key or timeout
	// elapses, whichever comes first. A timeout of 0 means backend-defined
	// behavior (unbounded wait for the shared backend, a small bounded poll
	// for the file backend, per spec §4.4/§4.5).
	WaitUntilReady(ctx context.Context, key string, timeout time.Duration) (entry Entry, found bool, err error)
}

// Factory constructs a Backend scoped to one function identity. Concrete
// backend packages (memory, file, shared) each provide one.
type Factory func(functionID string) (Backend, error)

// LeaseAware is implemented by backends whose MarkInFlight has a
// reclaimable lease (spec §4.5): an in-flight marker older than the lease
// duration may be forcibly claimed by a subsequent caller, treating the
// prior producer as failed. The file backend and the trivial in-memory
// backend do not implement this — a lease is only meaningful across
// processes that cannot otherwise observe a producer's liveness. The
// orchestrator type-asserts for this interface and falls back to plain
// MarkInFlight when a backend doesn't implement it, since wait_for_calc_timeout
// is a live (mutable after construction) setting that cannot be baked into
// a backend at construction time.
type LeaseAware interface {
	MarkInFlightWithLease(ctx context.Context, key string, lease time.Duration) (acquired bool, gen uint64, err error)
}
