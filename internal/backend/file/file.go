// Package file implements the local file backend (spec §4.4, component C4):
// a per-function directory holding pickled entries, guarded by advisory
// cross-process file locks, with filesystem-watch invalidation of an
// in-process read cache.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cachegrove/memoize/internal/backend"
	"github.com/cachegrove/memoize/internal/errs"
)

// Layout selects the on-disk shape of a function's cache directory.
type Layout int

const (
	// LayoutPerEntry stores one file per key; the filename encodes the key.
	LayoutPerEntry Layout = iota
	// LayoutSingleFile stores every key for a function in one file, guarded
	// by a sidecar lock file.
	LayoutSingleFile
)

const (
	dataFileName = "entries.dat"
	lockFileName = ".entries.lock"
)

// Config configures a file Backend.
type Config struct {
	// Root is the directory under which every function gets a subdirectory.
	// Empty uses DefaultRoot().
	Root string
	// Layout selects single-file vs. per-entry storage. Default: LayoutPerEntry.
	Layout Layout
	// DisableWatch skips the fsnotify watch as a single-process optimization,
	// at the cost of cross-process staleness in the in-process read cache
	// (spec §4.4).
	DisableWatch bool
}

// DefaultRoot returns the well-known per-user cache location used when
// Config.Root is empty.
func DefaultRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "memoize")
}

// Backend implements backend.Backend over a per-function directory.
type Backend struct {
	dir          string
	layout       Layout
	disableWatch bool
	watcher      *watcher

	cacheMu sync.Mutex
	cache   map[string]backend.Entry // read-through cache, invalidated by watch
}

// New creates (if absent) a function's cache directory and returns a
// Backend scoped to it.
func New(functionID string, cfg Config) (*Backend, error) {
	root := cfg.Root
	if root == "" {
		root = DefaultRoot()
	}
	dir := filepath.Join(root, encodeFunctionID(functionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.ErrBackendUnavailable, map[string]any{
			"operation": "creating function cache directory",
			"dir":       dir,
			"error":     err,
		})
	}

	b := &Backend{
		dir:          dir,
		layout:       cfg.Layout,
		disableWatch: cfg.DisableWatch,
		cache:        make(map[string]backend.Entry),
	}
	if !cfg.DisableWatch {
		w, err := newWatcher(dir, b.invalidate)
		if err == nil {
			b.watcher = w
		}
		// Watch creation failure degrades to poll-only mode silently per
		// spec §4.4; the cache is simply never invalidated by fsnotify and
		// every Get still reads through the lock when not already warm.
	}
	return b, nil
}

// Factory returns a backend.Factory bound to cfg, for use with the
// orchestrator's backend selection (spec §6).
func Factory(cfg Config) backend.Factory {
	return func(functionID string) (backend.Backend, error) {
		return New(functionID, cfg)
	}
}

// Dir returns the function's cache directory, exposed for cache_dpath()
// (spec §4.6, file backend only).
func (b *Backend) Dir() string { return b.dir }

// Close releases the directory watch, if any. Safe to call multiple times.
func (b *Backend) Close() error {
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}

func (b *Backend) invalidate(path string) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if b.layout == LayoutSingleFile {
		b.cache = make(map[string]backend.Entry)
		return
	}
	// The event names the encoded filename, while the cache is keyed by the
	// raw key, so match each cached key's encoding against it.
	name := filepath.Base(path)
	for key := range b.cache {
		if encodeKey(key) == name {
			delete(b.cache, key)
		}
	}
}

func encodeFunctionID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func encodeKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".entry"
}

func (b *Backend) entryPath(key string) string {
	return filepath.Join(b.dir, encodeKey(key))
}

func (b *Backend) dataPath() string { return filepath.Join(b.dir, dataFileName) }
func (b *Backend) lockPath() string { return filepath.Join(b.dir, lockFileName) }

// --- per-entry layout helpers -------------------------------------------

// readLocked reads and decodes the on-disk entry file for key while
// holding lock. Corrupt or missing files are treated as absent per spec
// §4.4, never surfaced as an error.
func (b *Backend) readLocked(key string) (backend.Entry, bool) {
	path := b.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return backend.Entry{}, false
	}
	e, err := decodeEntry(data)
	if err != nil {
		return backend.Entry{}, false
	}
	return e, true
}

func (b *Backend) writeEntryLocked(key string, e backend.Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return atomicWrite(b.entryPath(key), data)
}

// atomicWrite writes data to a temp file, fsyncs it, and renames it over
// path, satisfying the "atomic-by-rename" requirement of spec §4.4.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// --- single-file layout helpers ------------------------------------------

func (b *Backend) readMapLocked() map[string]backend.Entry {
	data, err := os.ReadFile(b.dataPath())
	if err != nil {
		return map[string]backend.Entry{}
	}
	m, err := decodeMap(data)
	if err != nil {
		return map[string]backend.Entry{}
	}
	return m
}

func (b *Backend) writeMapLocked(m map[string]backend.Entry) error {
	data, err := encodeMap(m)
	if err != nil {
		return err
	}
	return atomicWrite(b.dataPath(), data)
}

// --- read-through cache ---------------------------------------------------

func (b *Backend) cacheGet(key string) (backend.Entry, bool, bool) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	e, ok := b.cache[key]
	return e, ok, ok
}

func (b *Backend) cachePut(key string, e backend.Entry) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	b.cache[key] = e
}

func (b *Backend) cacheDelete(key string) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	delete(b.cache, key)
}

// --- backend.Backend ------------------------------------------------------

func (b *Backend) Get(ctx context.Context, key string) (backend.Entry, bool, error) {
	if e, found, hit := b.cacheGet(key); hit {
		return e, found, nil
	}

	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return backend.Entry{}, false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "locking cache file", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		e, ok := m[key]
		if ok {
			b.cachePut(key, e)
		}
		return e, ok, nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return backend.Entry{}, false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "locking entry file", "error": err})
		}
		defer l.Unlock()
		e, ok := b.readLocked(key)
		if ok {
			b.cachePut(key, e)
		}
		return e, ok, nil
	}
}

func (b *Backend) Put(ctx context.Context, key string, value []byte, ts time.Time, gen uint64) error {
	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "put", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		if cur := m[key]; cur.Generation != gen {
			return nil // superseded by a concurrent Clear; dropped per spec.
		}
		m[key] = backend.Entry{Value: value, HasValue: true, Timestamp: ts, Generation: gen}
		if err := b.writeMapLocked(m); err != nil {
			return err
		}
		b.cacheDelete(key)
		return nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "put", "error": err})
		}
		defer l.Unlock()
		cur, _ := b.readLocked(key)
		if cur.Generation != gen {
			return nil
		}
		if err := b.writeEntryLocked(key, backend.Entry{Value: value, HasValue: true, Timestamp: ts, Generation: gen}); err != nil {
			return err
		}
		b.cacheDelete(key)
		return nil
	}
}

func (b *Backend) MarkInFlight(ctx context.Context, key string) (bool, uint64, error) {
	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return false, 0, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_in_flight", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		cur := m[key]
		if cur.InFlight {
			return false, cur.Generation, nil
		}
		cur.InFlight = true
		m[key] = cur
		if err := b.writeMapLocked(m); err != nil {
			return false, 0, err
		}
		b.cacheDelete(key)
		return true, cur.Generation, nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return false, 0, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_in_flight", "error": err})
		}
		defer l.Unlock()
		cur, _ := b.readLocked(key)
		if cur.InFlight {
			return false, cur.Generation, nil
		}
		cur.InFlight = true
		if err := b.writeEntryLocked(key, cur); err != nil {
			return false, 0, err
		}
		b.cacheDelete(key)
		return true, cur.Generation, nil
	}
}

func (b *Backend) ClearInFlight(ctx context.Context, key string, gen uint64) error {
	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_in_flight", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		cur, ok := m[key]
		if !ok || cur.Generation != gen || !cur.InFlight {
			return nil
		}
		cur.InFlight = false
		if !cur.HasValue {
			delete(m, key)
		} else {
			m[key] = cur
		}
		if err := b.writeMapLocked(m); err != nil {
			return err
		}
		b.cacheDelete(key)
		return nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_in_flight", "error": err})
		}
		defer l.Unlock()
		cur, ok := b.readLocked(key)
		if !ok || cur.Generation != gen || !cur.InFlight {
			return nil
		}
		cur.InFlight = false
		var err2 error
		if !cur.HasValue {
			err2 = os.Remove(b.entryPath(key))
			if err2 != nil && errors.Is(err2, os.ErrNotExist) {
				err2 = nil
			}
		} else {
			err2 = b.writeEntryLocked(key, cur)
		}
		b.cacheDelete(key)
		return err2
	}
}

func (b *Backend) MarkStale(ctx context.Context, key string) (bool, error) {
	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_stale", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		cur, ok := m[key]
		if !ok || !cur.HasValue || cur.Stale {
			return false, nil
		}
		cur.Stale = true
		m[key] = cur
		if err := b.writeMapLocked(m); err != nil {
			return false, err
		}
		b.cacheDelete(key)
		return true, nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_stale", "error": err})
		}
		defer l.Unlock()
		cur, ok := b.readLocked(key)
		if !ok || !cur.HasValue || cur.Stale {
			return false, nil
		}
		cur.Stale = true
		if err := b.writeEntryLocked(key, cur); err != nil {
			return false, err
		}
		b.cacheDelete(key)
		return true, nil
	}
}

func (b *Backend) Clear(ctx context.Context, key string) error {
	switch b.layout {
	case LayoutSingleFile:
		l, err := lockFile(b.lockPath())
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear", "error": err})
		}
		defer l.Unlock()
		m := b.readMapLocked()
		cur := m[key]
		m[key] = backend.Entry{Generation: cur.Generation + 1}
		if err := b.writeMapLocked(m); err != nil {
			return err
		}
		b.cacheDelete(key)
		return nil
	default:
		l, err := lockFile(b.entryPath(key))
		if err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear", "error": err})
		}
		defer l.Unlock()
		cur, _ := b.readLocked(key)
		if err := b.writeEntryLocked(key, backend.Entry{Generation: cur.Generation + 1}); err != nil {
			return err
		}
		b.cacheDelete(key)
		return nil
	}
}

// ClearAll deletes the whole function directory and recreates it (spec §4.4).
func (b *Backend) ClearAll(ctx context.Context) error {
	if b.watcher != nil {
		b.watcher.Close()
		b.watcher = nil
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_all", "error": err})
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_all", "error": err})
	}
	b.cacheMu.Lock()
	b.cache = make(map[string]backend.Entry)
	b.cacheMu.Unlock()
	if !b.disableWatch {
		if w, err := newWatcher(b.dir, b.invalidate); err == nil {
			b.watcher = w
		}
	}
	return nil
}

// WaitUntilReady polls with bounded exponential backoff under brief lock
// acquisitions, because filesystem notifications are not reliable enough
// across platforms to drive this directly (spec §4.4).
func (b *Backend) WaitUntilReady(ctx context.Context, key string, timeout time.Duration) (backend.Entry, bool, error) {
	const (
		initialBackoff = 2 * time.Millisecond
		maxBackoff     = 250 * time.Millisecond
		// defaultWaitTimeout bounds the poll when the caller passes 0. Unlike
		// the shared backend, the file backend never waits indefinitely
		// (spec §5): "the file backend defaults to a small bounded poll".
		defaultWaitTimeout = 2 * time.Second
	)
	effective := timeout
	if effective <= 0 {
		effective = defaultWaitTimeout
	}
	backoff := initialBackoff
	deadline := time.Now().Add(effective)

	for {
		e, found, err := b.Get(ctx, key)
		if err != nil {
			return backend.Entry{}, false, err
		}
		if !found || !e.InFlight {
			return e, found, nil
		}
		if time.Now().After(deadline) {
			return backend.Entry{}, false, nil
		}
		select {
		case <-ctx.Done():
			return backend.Entry{}, false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
