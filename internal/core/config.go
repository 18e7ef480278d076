// Package core implements the memoization orchestrator: the decision logic
// that maps a call plus its effective configuration to a backend operation
// sequence, coordinating in-flight deduplication and lifecycle hooks across
// any storage backend.
package core

import (
	"sync"
	"time"
)

// BackendKind identifies a storage backend variant by string, per the
// source system's runtime-polymorphism-by-string dispatch generalized to a
// Go enum of string constants.
type BackendKind string

const (
	BackendFile     BackendKind = "file"
	BackendMemory   BackendKind = "in-memory"
	BackendShared   BackendKind = "shared-doc"
	BackendRelation BackendKind = "relational"
)

// FileLayout selects the on-disk shape of the file backend.
type FileLayout string

const (
	LayoutSingleFile FileLayout = "single-file"
	LayoutPerEntry   FileLayout = "per-entry"
)

// The fields fixed for the lifetime of a wrapper once constructed —
// backend selection, fingerprint producer, storage location and layout —
// live directly on WrapperOptions and the backend.Factory closure it
// carries, rather than a separate config struct: BackendFactory already
// captures backend kind, root, layout, and connector in one value, so a
// parallel struct describing the same fields would just be a second,
// driftable copy of it.

// LiveConfig holds the fields that apply to every existing wrapper the
// instant they change: caching enabled, staleness policy, wait behavior,
// null-caching.
type LiveConfig struct {
	Enabled               bool
	StaleAfter            time.Duration
	ReturnOldValueOnStale bool
	WaitForCalcTimeout    time.Duration
	AllowNone             bool
}

// Registry is the process-wide configuration store (spec §4.7, component
// C7). All fields are read and written under a single mutex; readers take a
// snapshot so decision logic never observes a half-updated set of fields.
type Registry struct {
	mu   sync.RWMutex
	live LiveConfig
}

// InfiniteStaleAfter is the sentinel StaleAfter value meaning "never
// stale". It is distinct from the zero Duration, which spec §8's boundary
// behaviors assign the opposite meaning ("stale_after = 0: every call
// recomputes") — an explicit zero and an unset field cannot otherwise be
// told apart in Go.
const InfiniteStaleAfter time.Duration = -1

// defaultLiveConfig mirrors spec.md §4.7/§4.6 defaults: caching on,
// unbounded staleness window, synchronous recompute on stale, the
// backend-defined wait for an in-flight peer, null results not cached.
func defaultLiveConfig() LiveConfig {
	return LiveConfig{
		Enabled:               true,
		StaleAfter:            InfiniteStaleAfter,
		ReturnOldValueOnStale: false,
		WaitForCalcTimeout:    0, // 0 == backend-defined default, per spec §5
		AllowNone:             false,
	}
}

// NewRegistry returns a Registry initialized to process defaults.
func NewRegistry() *Registry {
	return &Registry{live: defaultLiveConfig()}
}

// Snapshot returns a copy of the current live configuration.
func (r *Registry) Snapshot() LiveConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// SetEnabled toggles the process-wide short-circuit to direct invocation.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.Enabled = enabled
}

// SetStaleAfter updates the freshness window applied by every wrapper
// sharing this Registry.
func (r *Registry) SetStaleAfter(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.StaleAfter = d
}

// SetReturnOldValueOnStale toggles the next_time policy process-wide.
func (r *Registry) SetReturnOldValueOnStale(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.ReturnOldValueOnStale = v
}

// SetWaitForCalcTimeout updates how long a waiter blocks on an in-flight
// peer before falling through to direct invocation.
func (r *Registry) SetWaitForCalcTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.WaitForCalcTimeout = d
}

// SetAllowNone toggles whether a null/zero result is cacheable.
func (r *Registry) SetAllowNone(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.AllowNone = v
}

// ApplyLive overwrites every live field at once, used by the YAML loader
// (C11) at process start.
func (r *Registry) ApplyLive(cfg LiveConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = cfg
}
