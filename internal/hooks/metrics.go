package hooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers the Prometheus counters and histogram backing
// component C10, labeled by function identity so multiple cached functions
// can share one Collector.
type Collector struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	stale         *prometheus.CounterVec
	inflightWaits *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewCollector registers memoize_* metrics under namespace on reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "memoize_hits_total",
			Help: "Number of cache hits per function.",
		}, []string{"function"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "memoize_misses_total",
			Help: "Number of cache misses per function.",
		}, []string{"function"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "memoize_stale_total",
			Help: "Number of stale entries observed per function.",
		}, []string{"function"}),
		inflightWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "memoize_inflight_waits_total",
			Help: "Number of times a caller waited on an in-flight producer.",
		}, []string{"function"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "memoize_errors_total",
			Help: "Number of cache-related errors per function.",
		}, []string{"function"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "memoize_call_duration_seconds",
			Help:    "Wall-clock duration of wrapped calls, including recomputation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
	}
	reg.MustRegister(c.hits, c.misses, c.stale, c.inflightWaits, c.errors, c.duration)
	return c
}

// DurationObserver is the narrow interface the orchestrator needs to
// populate the call-duration histogram, satisfied by *Collector. Accepting
// this instead of *Collector directly keeps the orchestrator package free
// of a hard dependency on the Prometheus client.
type DurationObserver interface {
	ObserveDuration(function string, d time.Duration)
}

// Hooks returns a Hooks that routes lifecycle events into c's counters, so a
// Collector can be plugged into a wrapper's hook slot directly. The
// histogram is not fed from here; see ObserveDuration. The in-flight-wait
// and error counters are fed from OnTrace, which fires only for calls made
// with verbose_cache.
func (c *Collector) Hooks() *Hooks {
	return &Hooks{
		OnGet: func(arg any) error {
			fn, _ := arg.(string)
			c.hits.WithLabelValues(fn).Inc()
			return nil
		},
		OnMiss: func(arg any) error {
			fn, _ := arg.(string)
			c.misses.WithLabelValues(fn).Inc()
			return nil
		},
		OnStale: func(arg any) error {
			fn, _ := arg.(string)
			c.stale.WithLabelValues(fn).Inc()
			return nil
		},
		OnTrace: func(t Trace) {
			if t.Decision == DecisionCoalesced || t.Decision == DecisionWaitTimeout {
				c.inflightWaits.WithLabelValues(t.FunctionID).Inc()
			}
			if t.Err != nil {
				c.errors.WithLabelValues(t.FunctionID).Inc()
			}
		},
	}
}

// ObserveDuration records d against the call-duration histogram for
// function fn. The orchestrator's invoke step calls this directly (rather
// than through a lifecycle hook) because it needs a precise start/end pair
// around the wrapped function call, not just a fired-and-forgotten event.
func (c *Collector) ObserveDuration(fn string, d time.Duration) {
	c.duration.WithLabelValues(fn).Observe(d.Seconds())
}
