package file

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/cachegrove/memoize/internal/backend"
)

// magic identifies a file as belonging to this backend's length-prefixed
// binary format (spec §4.4); formatVersion lets a future incompatible
// change be detected instead of silently misread.
var magic = [4]byte{'F', 'C', 'M', '1'}

const formatVersion byte = 1

// record is the on-disk shape of backend.Entry. It is a distinct type from
// backend.Entry so that gob's field-by-name matching gives compatibility
// across versions: a field missing from an older file decodes as its zero
// value, and a field this version does not know is ignored on read. Such
// unknown fields are not preserved when the entry is rewritten.
type record struct {
	Value             []byte
	HasValue          bool
	TimestampUnixNano int64
	InFlight          bool
	Stale             bool
	Generation        uint64
}

func encodeEntry(e backend.Entry) ([]byte, error) {
	r := record{
		Value:             e.Value,
		HasValue:          e.HasValue,
		TimestampUnixNano: e.Timestamp.UnixNano(),
		InFlight:          e.InFlight,
		Stale:             e.Stale,
		Generation:        e.Generation,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&r); err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return wrapEnvelope(buf.Bytes()), nil
}

func decodeEntry(data []byte) (backend.Entry, error) {
	payload, err := unwrapEnvelope(data)
	if err != nil {
		return backend.Entry{}, err
	}
	var r record
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&r); err != nil {
		return backend.Entry{}, fmt.Errorf("corrupt entry: %w", err)
	}
	return backend.Entry{
		Value:      r.Value,
		HasValue:   r.HasValue,
		Timestamp:  time.Unix(0, r.TimestampUnixNano),
		InFlight:   r.InFlight,
		Stale:      r.Stale,
		Generation: r.Generation,
	}, nil
}

func encodeMap(m map[string]backend.Entry) ([]byte, error) {
	recs := make(map[string]record, len(m))
	for k, e := range m {
		recs[k] = record{
			Value:             e.Value,
			HasValue:          e.HasValue,
			TimestampUnixNano: e.Timestamp.UnixNano(),
			InFlight:          e.InFlight,
			Stale:             e.Stale,
			Generation:        e.Generation,
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(recs); err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return wrapEnvelope(buf.Bytes()), nil
}

func decodeMap(data []byte) (map[string]backend.Entry, error) {
	payload, err := unwrapEnvelope(data)
	if err != nil {
		return nil, err
	}
	var recs map[string]record
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&recs); err != nil {
		return nil, fmt.Errorf("corrupt map: %w", err)
	}
	out := make(map[string]backend.Entry, len(recs))
	for k, r := range recs {
		out[k] = backend.Entry{
			Value:      r.Value,
			HasValue:   r.HasValue,
			Timestamp:  time.Unix(0, r.TimestampUnixNano),
			InFlight:   r.InFlight,
			Stale:      r.Stale,
			Generation: r.Generation,
		}
	}
	return out, nil
}

func wrapEnvelope(payload []byte) []byte {
	out := make([]byte, 0, len(magic)+1+4+len(payload))
	out = append(out, magic[:]...)
	out = append(out, formatVersion)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
	out = append(out, lenBuf...)
	out = append(out, payload...)
	return out
}

func unwrapEnvelope(data []byte) ([]byte, error) {
	const headerLen = 4 + 1 + 4
	if len(data) < headerLen || !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("corrupt entry: bad header")
	}
	n := binary.BigEndian.Uint32(data[5:9])
	if len(data) < headerLen+int(n) {
		return nil, fmt.Errorf("corrupt entry: truncated payload")
	}
	return data[headerLen : headerLen+int(n)], nil
}
