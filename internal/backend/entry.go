package backend

import "time"

// Entry is the immutable-once-published record stored by a backend for one
// (function identity, fingerprint) pair. See spec §3.
//
// A zero Entry returned together with found=false represents absence.
type Entry struct {
	// Value holds the stored result. It is only meaningful when HasValue is
	// true; HasValue is tracked separately from the zero value of V so that
	// a legitimately-cached nil/zero result (allow_none) is distinguishable
	// from "no result yet".
	Value []byte

	// HasValue is true once a producer has published a result for this key.
	HasValue bool

	// Timestamp is the monotonic wall-clock instant at which Value was
	// produced, set at completion of the producing call, never at claim time.
	Timestamp time.Time

	// InFlight is true when a producer has claimed this key and has not yet
	// published a result.
	InFlight bool

	// Stale is true when a successful recomputation is already in progress
	// for this (already-present) value, used to suppress duplicate
	// fire-and-forget triggers. It is meaningless when HasValue is false.
	Stale bool

	// Generation increments on every clear of this key and is captured by a
	// producer at mark-in-flight time; a put presenting a stale generation is
	// silently dropped (see DESIGN.md, Open Question 1).
	Generation uint64
}

// IsAbsent reports whether the entry represents "no record at all", as
// opposed to an in-flight marker with no value yet.
func (e Entry) IsAbsent() bool {
	return !e.HasValue && !e.InFlight
}
