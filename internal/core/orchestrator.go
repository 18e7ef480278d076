package core

import (
	"context"
	"fmt"
	"time"

	"github.com/cachegrove/memoize/internal/backend"
	"github.com/cachegrove/memoize/internal/errs"
	"github.com/cachegrove/memoize/internal/fingerprint"
	"github.com/cachegrove/memoize/internal/hooks"
	"github.com/cachegrove/memoize/internal/workerpool"
)

// Fn is the shape of a function wrappable by NewCachedFunction: a single
// logical argument (often a struct bundling several named fields) in, a
// single result plus error out. ctx carries cancellation for the underlying
// work; it is never part of the fingerprint.
type Fn[K any, V any] func(ctx context.Context, arg K) (V, error)

// WrapperOptions configures a single call to NewCachedFunction. FunctionID
// and BackendFactory are required; everything else defaults sensibly.
type WrapperOptions[K any, V any] struct {
	// FunctionID is the (module-qualifier, function-name) pair serialized to
	// a string (spec §3, component F). It must be unique across every
	// CachedFunc sharing a backend root.
	FunctionID string

	// Spec declares the call's canonical parameter shape for fingerprinting
	// (spec §4.1/§9). Leave zero-value for a single unnamed parameter.
	Spec fingerprint.Spec

	// Producer overrides the default fingerprint hashing strategy.
	Producer fingerprint.Producer

	// BackendFactory constructs the backend this wrapper stores into.
	BackendFactory backend.Factory

	// Registry supplies the live (mutable-after-construction) configuration.
	// A nil Registry gets one created with process defaults, not shared with
	// any other wrapper.
	Registry *Registry

	// Hooks receives lifecycle callbacks. A nil Hooks is replaced with an
	// empty one (every event a no-op).
	Hooks *hooks.Hooks

	// Pool runs fire-and-forget stale recomputation (spec §4.8). A nil Pool
	// means return_old_value_on_stale degrades to "return the old value,
	// never refresh it" rather than panicking.
	Pool *workerpool.Pool

	// Metrics, if set, receives the wall-clock duration of every wrapped
	// function call (spec §4.10, component C10), including background
	// stale recomputation. A *hooks.Collector satisfies this.
	Metrics hooks.DurationObserver
}

// CachedFunc is a wrapped function plus its fingerprinting, backend, live
// configuration, hooks, and background worker pool — the unit the public
// API hands back to callers (spec §4.6, component C6).
type CachedFunc[K any, V any] struct {
	functionID string
	fn         Fn[K, V]
	fp         *fingerprint.Fingerprinter
	be         backend.Backend
	registry   *Registry
	hooks      *hooks.Hooks
	pool       *workerpool.Pool
	metrics    hooks.DurationObserver
}

// NewCachedFunction wraps fn with the full memoization decision machine.
func NewCachedFunction[K any, V any](fn Fn[K, V], opts WrapperOptions[K, V]) (*CachedFunc[K, V], error) {
	if opts.FunctionID == "" {
		return nil, fmt.Errorf("memoize: FunctionID is required")
	}
	if opts.BackendFactory == nil {
		return nil, fmt.Errorf("memoize: BackendFactory is required")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Hooks == nil {
		opts.Hooks = &hooks.Hooks{}
	}

	be, err := opts.BackendFactory(opts.FunctionID)
	if err != nil {
		return nil, errs.New(errs.ErrBackendUnavailable, map[string]any{"function": opts.FunctionID, "error": err})
	}

	var fp *fingerprint.Fingerprinter
	if opts.Producer != nil {
		fp = fingerprint.NewWithProducer(opts.Spec, opts.Producer)
	} else {
		fp = fingerprint.New(opts.Spec)
	}

	return &CachedFunc[K, V]{
		functionID: opts.FunctionID,
		fn:         fn,
		fp:         fp,
		be:         be,
		registry:   opts.Registry,
		hooks:      opts.Hooks,
		pool:       opts.Pool,
		metrics:    opts.Metrics,
	}, nil
}

// callOptions holds the reserved per-call overrides (spec §4.6) that are
// never forwarded to the wrapped function.
type callOptions struct {
	ignoreCache    bool
	overwriteCache bool
	verboseCache   bool
	allowNoneSet   bool
	allowNone      bool
}

// CallOption sets one reserved per-call override.
type CallOption func(*callOptions)

// WithIgnoreCache bypasses both read and write: invoke and return.
func WithIgnoreCache() CallOption { return func(o *callOptions) { o.ignoreCache = true } }

// WithOverwriteCache invokes the function and unconditionally replaces the
// stored entry on success.
func WithOverwriteCache() CallOption { return func(o *callOptions) { o.overwriteCache = true } }

// WithVerboseCache emits a Trace of the decision this call took.
func WithVerboseCache() CallOption { return func(o *callOptions) { o.verboseCache = true } }

// WithAllowNone overrides the live AllowNone policy for this call only.
func WithAllowNone(v bool) CallOption {
	return func(o *callOptions) { o.allowNoneSet, o.allowNone = true, v }
}

// Call executes the memoization decision machine for arg (spec §4.6).
//
// ignore_cache wins over overwrite_cache when both are set, per spec's
// tie-break rule.
func (c *CachedFunc[K, V]) Call(ctx context.Context, arg K, opts ...CallOption) (V, error) {
	var zero V
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	live := c.registry.Snapshot()

	if !live.Enabled || o.ignoreCache {
		val, err := c.invoke(ctx, arg)
		c.trace(o, "", hooks.DecisionIgnoreCache, err)
		return val, err
	}

	key, err := c.fp.Fingerprint([]any{arg}, nil)
	if err != nil {
		c.trace(o, "", hooks.DecisionError, err)
		return zero, err
	}

	allowNone := live.AllowNone
	if o.allowNoneSet {
		allowNone = o.allowNone
	}

	if o.overwriteCache {
		val, err := c.invoke(ctx, arg)
		if err != nil {
			c.trace(o, key, hooks.DecisionError, err)
			return zero, err
		}
		cur, _, getErr := c.be.Get(ctx, key)
		if getErr != nil {
			c.hooks.LogWarning(getErr)
		}
		c.storeResult(ctx, key, val, cur.Generation, allowNone)
		c.trace(o, key, hooks.DecisionOverwrite, nil)
		return val, nil
	}

	entry, found, getErr := c.be.Get(ctx, key)
	if getErr != nil {
		// Backend I/O errors during get degrade to "miss" (spec §7).
		c.hooks.LogWarning(getErr)
		found = false
		entry = backend.Entry{}
	}

	switch {
	case found && entry.HasValue && !isStaleEntry(entry.Timestamp, live.StaleAfter):
		val, decErr := decodeValue[V](entry.Value)
		if decErr != nil {
			return c.handleMiss(ctx, arg, key, allowNone, o)
		}
		c.hooks.Run(c.hooks.OnGet, c.functionID)
		c.trace(o, key, hooks.DecisionHit, nil)
		return val, nil

	case found && entry.HasValue:
		return c.handleStale(ctx, arg, key, entry, live, allowNone, o)

	case found && entry.InFlight:
		return c.handleWait(ctx, arg, key, live, o)

	default:
		return c.handleMiss(ctx, arg, key, allowNone, o)
	}
}

// handleMiss covers decision-matrix state 1: no usable entry exists yet.
func (c *CachedFunc[K, V]) handleMiss(ctx context.Context, arg K, key string, allowNone bool, o callOptions) (V, error) {
	var zero V
	c.hooks.Run(c.hooks.OnMiss, c.functionID)

	live := c.registry.Snapshot()
	acquired, gen, err := c.markInFlight(ctx, key, live.WaitForCalcTimeout)
	if err != nil {
		// mark_in_flight failure falls through to invoking without
		// coordination (spec §7 recovery policy).
		c.hooks.LogWarning(err)
		val, ierr := c.invoke(ctx, arg)
		c.trace(o, key, hooks.DecisionMiss, ierr)
		return val, ierr
	}
	if !acquired {
		return c.handleWait(ctx, arg, key, live, o)
	}

	val, ierr := c.invoke(ctx, arg)
	if ierr != nil {
		if cerr := c.be.ClearInFlight(ctx, key, gen); cerr != nil {
			c.hooks.LogWarning(cerr)
		}
		c.trace(o, key, hooks.DecisionError, ierr)
		return zero, ierr
	}
	c.storeResult(ctx, key, val, gen, allowNone)
	c.trace(o, key, hooks.DecisionMiss, nil)
	return val, nil
}

// handleWait covers the non-acquiring branch of state 1 and state 4
// (in_flight, no prior value): wait up to wait_for_calc_timeout, then fall
// through to direct invocation without a put (the owning producer will
// publish it).
func (c *CachedFunc[K, V]) handleWait(ctx context.Context, arg K, key string, live LiveConfig, o callOptions) (V, error) {
	e, found, err := c.be.WaitUntilReady(ctx, key, live.WaitForCalcTimeout)
	if err != nil {
		c.hooks.LogWarning(err)
	} else if found && e.HasValue {
		if val, decErr := decodeValue[V](e.Value); decErr == nil {
			c.trace(o, key, hooks.DecisionCoalesced, nil)
			return val, nil
		}
	}
	val, ierr := c.invoke(ctx, arg)
	c.trace(o, key, hooks.DecisionWaitTimeout, ierr)
	return val, ierr
}

// handleStale covers decision-matrix state 3: an entry with a value whose
// age exceeds stale_after.
func (c *CachedFunc[K, V]) handleStale(ctx context.Context, arg K, key string, entry backend.Entry, live LiveConfig, allowNone bool, o callOptions) (V, error) {
	oldVal, decErr := decodeValue[V](entry.Value)
	if decErr != nil {
		return c.handleMiss(ctx, arg, key, allowNone, o)
	}

	if live.ReturnOldValueOnStale {
		acquired, err := c.be.MarkStale(ctx, key)
		if err != nil {
			c.hooks.LogWarning(err)
		} else if acquired {
			c.dispatchRecompute(key, arg, allowNone)
		}
		c.hooks.Run(c.hooks.OnStale, c.functionID)
		c.trace(o, key, hooks.DecisionStaleReturned, nil)
		return oldVal, nil
	}

	// Policy is synchronous recompute: behave like a miss.
	c.hooks.Run(c.hooks.OnStale, c.functionID)
	var zero V
	acquired, gen, err := c.markInFlight(ctx, key, live.WaitForCalcTimeout)
	if err != nil {
		c.hooks.LogWarning(err)
		val, ierr := c.invoke(ctx, arg)
		c.trace(o, key, hooks.DecisionStaleRecomp, ierr)
		return val, ierr
	}
	if !acquired {
		return c.handleWait(ctx, arg, key, live, o)
	}
	val, ierr := c.invoke(ctx, arg)
	if ierr != nil {
		if cerr := c.be.ClearInFlight(ctx, key, gen); cerr != nil {
			c.hooks.LogWarning(cerr)
		}
		c.trace(o, key, hooks.DecisionError, ierr)
		return zero, ierr
	}
	c.storeResult(ctx, key, val, gen, allowNone)
	c.trace(o, key, hooks.DecisionStaleRecomp, nil)
	return val, nil
}

// dispatchRecompute submits a fire-and-forget recomputation to the
// background pool (spec §4.8). Deduplication against repeated stale hits
// for the same key is MarkStale's job, not the pool's — this is only ever
// called once per staleness window, by whichever caller's MarkStale
// acquired.
func (c *CachedFunc[K, V]) dispatchRecompute(key string, arg K, allowNone bool) {
	if c.pool == nil {
		return
	}
	submitted := c.pool.Submit(func() {
		ctx := context.Background()
		val, err := c.invoke(ctx, arg)
		if err != nil {
			c.hooks.LogWarning(err)
			return
		}
		cur, _, _ := c.be.Get(ctx, key)
		c.storeResult(ctx, key, val, cur.Generation, allowNone)
	})
	if !submitted {
		c.hooks.LogWarning(fmt.Errorf("memoize: background worker pool saturated, dropped stale recompute for key %q", key))
	}
}

// invoke calls the wrapped function, recovering a panic into ErrPanic and
// running the OnExecute/OnDone hooks around it. Every call is timed and, if
// Metrics is configured, recorded against the call-duration histogram —
// this covers both synchronous invocation and background stale
// recomputation, since both paths funnel through invoke.
func (c *CachedFunc[K, V]) invoke(ctx context.Context, arg K) (val V, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			var zero V
			val = zero
			err = errs.New(errs.ErrPanic, map[string]any{"panic": fmt.Sprintf("%v", r)})
			c.hooks.LogWarning(err)
		}
		if c.metrics != nil {
			c.metrics.ObserveDuration(c.functionID, time.Since(start))
		}
	}()
	c.hooks.Run(c.hooks.OnExecute, arg)
	val, err = c.fn(ctx, arg)
	c.hooks.Run(c.hooks.OnDone, arg)
	return val, err
}

// markInFlight type-asserts for backend.LeaseAware so a lease-aware backend
// (the shared/Redis backend) reclaims stuck in-flight markers after
// wait_for_calc_timeout, while memory/file backends use the plain,
// non-reclaiming MarkInFlight (spec §4.5, and backend.LeaseAware's doc
// comment).
func (c *CachedFunc[K, V]) markInFlight(ctx context.Context, key string, waitTimeout time.Duration) (bool, uint64, error) {
	if la, ok := c.be.(backend.LeaseAware); ok {
		return la.MarkInFlightWithLease(ctx, key, waitTimeout)
	}
	return c.be.MarkInFlight(ctx, key)
}

// storeResult serializes val and writes it through gen, unless the
// null-caching policy says to skip it; a skipped write releases the
// in-flight marker held under gen so the next call invokes again.
// Serialization and backend failures are logged as warnings, never
// surfaced: the computed value already reached the caller (spec §6/§7).
func (c *CachedFunc[K, V]) storeResult(ctx context.Context, key string, val V, gen uint64, allowNone bool) {
	if !allowNone && isZero(val) {
		if err := c.be.ClearInFlight(ctx, key, gen); err != nil {
			c.hooks.LogWarning(err)
		}
		return
	}
	data, err := encodeValue(val)
	if err != nil {
		c.hooks.LogWarning(errs.New(errs.ErrSerializationError, map[string]any{"key": key, "error": err}))
		return
	}
	if err := c.be.Put(ctx, key, data, time.Now(), gen); err != nil {
		c.hooks.LogWarning(err)
		return
	}
	c.hooks.Run(c.hooks.OnSet, key)
}

func (c *CachedFunc[K, V]) trace(o callOptions, key string, d hooks.Decision, err error) {
	if !o.verboseCache {
		return
	}
	c.hooks.Emit(hooks.Trace{FunctionID: c.functionID, Key: key, Decision: d, Err: err})
}

// isStaleEntry applies the StaleAfter sentinel (see InfiniteStaleAfter).
func isStaleEntry(ts time.Time, staleAfter time.Duration) bool {
	if staleAfter < 0 {
		return false
	}
	return time.Since(ts) > staleAfter
}

// ClearCache removes every entry for this function (spec §4.6 attached
// method).
func (c *CachedFunc[K, V]) ClearCache(ctx context.Context) error {
	return c.be.ClearAll(ctx)
}

// ClearCacheByKey removes the single entry that arg fingerprints to.
func (c *CachedFunc[K, V]) ClearCacheByKey(ctx context.Context, arg K) error {
	key, err := c.fp.Fingerprint([]any{arg}, nil)
	if err != nil {
		return err
	}
	return c.be.Clear(ctx, key)
}

// Precache inserts value for arg without invoking the wrapped function,
// timestamped now. A precached value is indistinguishable from a normally
// produced one afterward (spec §4.6).
func (c *CachedFunc[K, V]) Precache(ctx context.Context, arg K, value V) error {
	key, err := c.fp.Fingerprint([]any{arg}, nil)
	if err != nil {
		return err
	}
	data, err := encodeValue(value)
	if err != nil {
		return errs.New(errs.ErrSerializationError, map[string]any{"key": key, "error": err})
	}
	cur, _, getErr := c.be.Get(ctx, key)
	if getErr != nil {
		c.hooks.LogWarning(getErr)
	}
	return c.be.Put(ctx, key, data, time.Now(), cur.Generation)
}

// dirProvider is implemented by the file backend only.
type dirProvider interface{ Dir() string }

// CacheDPath returns the file backend's on-disk directory for this
// function, if the configured backend is file-based.
func (c *CachedFunc[K, V]) CacheDPath() (string, bool) {
	d, ok := c.be.(dirProvider)
	if !ok {
		return "", false
	}
	return d.Dir(), true
}
