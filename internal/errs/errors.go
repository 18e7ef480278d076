// Package errs defines the sentinel error kinds shared across the memoization
// engine and a small helper for attaching structured context to them.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers use errors.Is against these to branch on
// failure category without depending on concrete error types.
var (
	// ErrArgumentNotFingerprintable is returned when the fingerprinter cannot
	// derive a key from the call arguments and no custom producer is injected.
	ErrArgumentNotFingerprintable = errors.New("argument not fingerprintable")

	// ErrBackendUnavailable is returned when a backend cannot be reached or
	// initialized.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSerializationError is returned when a computed result cannot be
	// serialized for storage. The computed value is still returned to the
	// caller; only caching failed.
	ErrSerializationError = errors.New("result not serializable")

	// ErrWaitTimeout is internal: a waiter gave up on wait_until_ready and
	// fell through to direct invocation. It is never surfaced to callers.
	ErrWaitTimeout = errors.New("wait for in-flight result timed out")

	// ErrPanic is returned when the wrapped user function panics.
	ErrPanic = errors.New("panic occurred in cached function")

	// ErrNotFound names an absent or corrupt entry. The backends in this
	// module report absence through found=false and do not return it.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidConfig is returned when a configuration source cannot be parsed.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// New wraps errType with additional key/value context for structured error
// reporting, preserving errors.Is/errors.As against errType.
func New(errType error, kv map[string]any) error {
	if len(kv) == 0 {
		return fmt.Errorf("memoize: %w", errType)
	}
	var details string
	for k, v := range kv {
		switch val := v.(type) {
		case error:
			details += fmt.Sprintf("%s: %v; ", k, val.Error())
		default:
			details += fmt.Sprintf("%s: %v; ", k, val)
		}
	}
	return fmt.Errorf("memoize: %w, details: [%s]", errType, details)
}
