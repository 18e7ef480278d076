package core

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
)

// encodeValue gob-encodes v for storage in a backend.Entry.Value. A failure
// here is a SerializationError per spec §6/§7: the computed value is still
// returned to the caller, only caching failed.
func encodeValue[V any](v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("encode cached value: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeValue reverses encodeValue. A decode failure is treated the same as
// a missing entry by the caller (orchestrator), never surfaced as a hard
// error, consistent with "unreadable entries are treated as absent" (spec §6).
func decodeValue[V any](data []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("decode cached value: %w", err)
	}
	return v, nil
}

// isZero reports whether v is the zero value of V ("null" for the purposes
// of the allow_none / null-caching policy, spec §4.6). Uses reflection
// rather than a comparable constraint so V may be any result type,
// including slices and maps.
func isZero[V any](v V) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}
