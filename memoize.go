// Package memoize provides persistent, stale-aware function memoization
// with pluggable storage backends.
//
// # Overview
//
// A caller wraps a function with NewCachedFunction; the wrapper derives a
// stable fingerprint from the call's arguments, returns a previously stored
// result when one is available and fresh, and otherwise invokes the
// wrapped function, persists the result, and coalesces concurrent callers
// onto a single in-flight computation.
//
// ## Features
//
//   - Memoization with pluggable backends: in-memory, on-disk (file), or a
//     shared/distributed store (Redis).
//   - In-flight request coalescing across goroutines, and across processes
//     for the file and shared backends.
//   - Staleness policy: entries older than a configured window can either
//     trigger synchronous recomputation or be served immediately while a
//     background refresh runs.
//   - Per-call overrides (ignore cache, overwrite cache, verbose trace).
//   - Extensibility via optional hooks for logging, metrics, and tracing.
//
// ## Usage Example
//
//	fetch := func(ctx context.Context, id int) (string, error) { ... }
//
//	cached, err := memoize.NewCachedFunction(fetch, memoize.WrapperOptions[int, string]{
//		FunctionID:     "catalog.fetchByID",
//		BackendFactory: memory.Factory,
//	})
//	result, err := cached.Call(ctx, 42)
//
// See package documentation and the test suite for more detail.
package memoize

import (
	"github.com/cachegrove/memoize/internal/core"
	"github.com/cachegrove/memoize/internal/fingerprint"
	"github.com/cachegrove/memoize/internal/hooks"
	"github.com/cachegrove/memoize/internal/workerpool"
)

// CachedFunc is a function wrapped with caching behavior. K is the logical
// argument type, V is the result type.
type CachedFunc[K any, V any] = core.CachedFunc[K, V]

// Fn is the signature a caller supplies to NewCachedFunction.
type Fn[K any, V any] = core.Fn[K, V]

// WrapperOptions configures one call to NewCachedFunction.
type WrapperOptions[K any, V any] = core.WrapperOptions[K, V]

// CallOption sets a reserved per-call override (ignore_cache,
// overwrite_cache, verbose_cache, allow_none) on a single Call.
type CallOption = core.CallOption

// Hooks holds optional lifecycle callbacks (logging, metrics, tracing).
type Hooks = hooks.Hooks

// Trace describes the decision a single Call took, emitted when
// WithVerboseCache is set.
type Trace = hooks.Trace

// DurationObserver receives the wall-clock duration of every wrapped
// function call, via WrapperOptions.Metrics. A *hooks.Collector satisfies
// this.
type DurationObserver = hooks.DurationObserver

// Spec declares a call's canonical parameter shape for fingerprinting.
type Spec = fingerprint.Spec

// FingerprintProducer maps a canonicalized argument mapping to an opaque
// key; supply a custom one via WrapperOptions.Producer to replace the
// default content hash.
type FingerprintProducer = fingerprint.Producer

// Registry is the process-wide configuration registry (component C7): the
// live knobs (enabled, stale_after, return_old_value_on_stale,
// wait_for_calc_timeout, allow_none) that apply to every wrapper sharing it,
// effective immediately on mutation.
type Registry = core.Registry

// Pool is the bounded background worker pool (component C8) that runs
// fire-and-forget stale recomputation.
type Pool = workerpool.Pool

// NewRegistry returns a Registry initialized to process defaults.
func NewRegistry() *Registry { return core.NewRegistry() }

// NewPool returns a worker pool bounded to size concurrent recomputations.
// size <= 0 uses workerpool.DefaultSize.
func NewPool(size int) *Pool { return workerpool.New(size) }

// NewCachedFunction wraps fn with the memoization decision machine
// described in the package overview.
func NewCachedFunction[K any, V any](fn Fn[K, V], opts WrapperOptions[K, V]) (*CachedFunc[K, V], error) {
	return core.NewCachedFunction(fn, opts)
}

// Reserved per-call overrides, never forwarded to the wrapped function.
var (
	WithIgnoreCache    = core.WithIgnoreCache
	WithOverwriteCache = core.WithOverwriteCache
	WithVerboseCache   = core.WithVerboseCache
	WithAllowNone      = core.WithAllowNone
)

// InfiniteStaleAfter is the StaleAfter sentinel meaning "never stale".
const InfiniteStaleAfter = core.InfiniteStaleAfter
