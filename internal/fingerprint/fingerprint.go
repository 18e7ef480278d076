// Package fingerprint maps a call's arguments to a stable, opaque key (spec
// §4.1, component C1).
//
// Go cannot introspect a function's declared parameter names at an arbitrary
// call site, so the positional/named canonicalization the source language
// performs at the language level is pushed to wrapper-construction time: a
// Spec declares the parameter names up front and whether the first parameter
// is a receiver to elide (spec §9, "Avoid source-language-specific receiver
// inspection").
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cachegrove/memoize/internal/errs"
)

// maxLen is the longest encoded key left unhashed for readability; longer
// encodings are folded to a SHA-256 hex digest to keep keys a fixed size.
const maxLen = 100

// Spec declares how to canonicalize a call's arguments into a named mapping.
//
//   - Params lists the declared parameter names in positional order.
//   - IsMethod, when true, causes the first entry of Params (the receiver)
//     to be dropped before hashing: caching is per function, not per
//     receiver.
type Spec struct {
	Params   []string
	IsMethod bool
}

// Producer maps a canonical argument mapping to an opaque key. The default
// Producer (New) hashes a canonical JSON encoding; callers may substitute
// their own via the Producer field of the orchestrator's WrapperOptions.
type Producer func(named map[string]any) (string, error)

// Fingerprinter combines a Spec with a Producer to fingerprint calls.
type Fingerprinter struct {
	spec     Spec
	producer Producer
}

// New returns a Fingerprinter using the default hashing Producer.
func New(spec Spec) *Fingerprinter {
	return &Fingerprinter{spec: spec, producer: DefaultProducer}
}

// NewWithProducer returns a Fingerprinter using a custom Producer.
func NewWithProducer(spec Spec, p Producer) *Fingerprinter {
	if p == nil {
		p = DefaultProducer
	}
	return &Fingerprinter{spec: spec, producer: p}
}

// Fingerprint canonicalizes positional args and named kwargs into a single
// mapping keyed by declared parameter name, elides the receiver parameter
// for methods, and hashes the result with the configured Producer.
//
// args are matched to f.spec.Params by position; kwargs override/extend by
// name. This makes f(1, y=2) and f(x=1, y=2) (and f(1,2)) all normalize to
// the same mapping, satisfying argument-shape equivalence (spec §8).
func (f *Fingerprinter) Fingerprint(args []any, kwargs map[string]any) (string, error) {
	named := make(map[string]any, len(f.spec.Params))
	for i, v := range args {
		if i < len(f.spec.Params) {
			named[f.spec.Params[i]] = v
		} else {
			// Spec didn't declare a name for this position (common for a
			// single unnamed argument, Spec{}'s zero value): fall back to a
			// positional synthetic name so the argument still participates
			// in the fingerprint instead of being silently dropped.
			named[fmt.Sprintf("arg%d", i)] = v
		}
	}
	for k, v := range kwargs {
		named[k] = v
	}

	if f.spec.IsMethod && len(f.spec.Params) > 0 {
		delete(named, f.spec.Params[0])
	}

	key, err := f.producer(named)
	if err != nil {
		return "", errs.New(errs.ErrArgumentNotFingerprintable, map[string]any{
			"operation": "fingerprinting call arguments",
			"error":     err,
		})
	}
	return key, nil
}

// DefaultProducer deterministically encodes a canonical named-argument
// mapping by sorting keys, marshaling each value to JSON, and concatenating
// them; a concatenation longer than maxLen is replaced by its SHA-256 hex
// digest. Values that fail to marshal make the call unfingerprintable.
func DefaultProducer(named map[string]any) (string, error) {
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	encoded := ""
	for _, k := range keys {
		v, err := json.Marshal(named[k])
		if err != nil {
			return "", fmt.Errorf("marshal argument %q: %w", k, err)
		}
		encoded += k + "=" + string(v) + ";"
	}

	if len(encoded) == 0 {
		return "nil", nil
	}
	if len(encoded) <= maxLen {
		return encoded, nil
	}
	return hashString(encoded), nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
