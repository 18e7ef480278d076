// Package shared implements the distributed/shared-state backend (spec
// §4.5, component C5) over Redis, grounded on the Redis client and
// atomic-Lua-script idiom the retrieved Nova repo uses for its own
// distributed rate limiter and cache layers.
package shared

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cachegrove/memoize/internal/backend"
	"github.com/cachegrove/memoize/internal/errs"
)

// ConnectorFactory lazily produces a Redis client with write permission
// (spec §4.5: "the backend is supplied with a connector factory returning a
// handle with write permission; the factory may be invoked lazily on first
// use"). Returning an existing *redis.Client from a closure is sufficient.
type ConnectorFactory func() (*redis.Client, error)

// Config configures a shared Backend.
type Config struct {
	// Connector lazily supplies the Redis client. Required.
	Connector ConnectorFactory
	// KeyPrefix namespaces every key this backend touches. Default:
	// "memoize:".
	KeyPrefix string
	// PollInterval is the cadence WaitUntilReady polls at. Default: 50ms.
	PollInterval time.Duration
}

// Backend implements backend.Backend and backend.LeaseAware over a Redis
// hash per (function, key) pair, plus one set per function tracking every
// key written or claimed (Clear removes a key from it) so ClearAll can find
// them without a KEYS/SCAN sweep.
type Backend struct {
	cfg        Config
	functionID string
	holder     string

	connectOnce sync.Once
	client      *redis.Client
	connectErr  error
}

// New returns a Backend scoped to functionID. The Redis connection is not
// established until the first operation.
func New(functionID string, cfg Config) (*Backend, error) {
	if cfg.Connector == nil {
		return nil, errs.New(errs.ErrBackendUnavailable, map[string]any{
			"operation": "constructing shared backend",
			"error":     fmt.Errorf("no connector factory supplied"),
		})
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "memoize:"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Backend{cfg: cfg, functionID: functionID, holder: uuid.NewString()}, nil
}

// Factory returns a backend.Factory bound to cfg.
func Factory(cfg Config) backend.Factory {
	return func(functionID string) (backend.Backend, error) {
		return New(functionID, cfg)
	}
}

func (b *Backend) connect() (*redis.Client, error) {
	b.connectOnce.Do(func() {
		b.client, b.connectErr = b.cfg.Connector()
	})
	if b.connectErr != nil {
		return nil, errs.New(errs.ErrBackendUnavailable, map[string]any{
			"operation": "connecting to shared backend",
			"error":     b.connectErr,
		})
	}
	return b.client, nil
}

func (b *Backend) entryKey(key string) string {
	return b.cfg.KeyPrefix + b.functionID + ":" + key
}

func (b *Backend) keysSetKey() string {
	return b.cfg.KeyPrefix + b.functionID + ":__keys__"
}

func (b *Backend) trackKey(ctx context.Context, client *redis.Client, key string) {
	// Best-effort: failing to track a key only affects ClearAll's sweep, not
	// correctness of Get/Put/MarkInFlight, so the error is not propagated.
	client.SAdd(ctx, b.keysSetKey(), key)
}

func (b *Backend) Get(ctx context.Context, key string) (backend.Entry, bool, error) {
	client, err := b.connect()
	if err != nil {
		return backend.Entry{}, false, err
	}
	res, err := client.HGetAll(ctx, b.entryKey(key)).Result()
	if err != nil {
		return backend.Entry{}, false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "get", "error": err})
	}
	if len(res) == 0 {
		return backend.Entry{}, false, nil
	}
	return decodeHash(res), true, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte, ts time.Time, gen uint64) error {
	client, err := b.connect()
	if err != nil {
		return err
	}
	res, err := putScript.Run(ctx, client, []string{b.entryKey(key)},
		value, ts.UnixNano(), gen,
	).Int64()
	if err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "put", "error": err})
	}
	if res == 1 {
		b.trackKey(ctx, client, key)
	}
	return nil
}

func (b *Backend) MarkInFlight(ctx context.Context, key string) (bool, uint64, error) {
	return b.MarkInFlightWithLease(ctx, key, 0)
}

// MarkInFlightWithLease implements backend.LeaseAware: lease is the
// orchestrator's current wait_for_calc_timeout, reused as the reclaim
// threshold per spec §4.5 ("non-zero configures both the wait and the
// reclaim threshold to the same value").
func (b *Backend) MarkInFlightWithLease(ctx context.Context, key string, lease time.Duration) (bool, uint64, error) {
	client, err := b.connect()
	if err != nil {
		return false, 0, err
	}
	res, err := markInFlightScript.Run(ctx, client, []string{b.entryKey(key)},
		time.Now().UnixNano(), lease.Nanoseconds(), b.holder,
	).Int64Slice()
	if err != nil {
		return false, 0, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_in_flight", "error": err})
	}
	acquired := res[0] == 1
	gen := uint64(res[1])
	if acquired {
		b.trackKey(ctx, client, key)
	}
	return acquired, gen, nil
}

func (b *Backend) ClearInFlight(ctx context.Context, key string, gen uint64) error {
	client, err := b.connect()
	if err != nil {
		return err
	}
	if _, err := clearInFlightScript.Run(ctx, client, []string{b.entryKey(key)}, gen).Int64(); err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_in_flight", "error": err})
	}
	return nil
}

func (b *Backend) MarkStale(ctx context.Context, key string) (bool, error) {
	client, err := b.connect()
	if err != nil {
		return false, err
	}
	res, err := markStaleScript.Run(ctx, client, []string{b.entryKey(key)}).Int64()
	if err != nil {
		return false, errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "mark_stale", "error": err})
	}
	return res == 1, nil
}

func (b *Backend) Clear(ctx context.Context, key string) error {
	client, err := b.connect()
	if err != nil {
		return err
	}
	if _, err := clearScript.Run(ctx, client, []string{b.entryKey(key)}).Int64(); err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear", "error": err})
	}
	client.SRem(ctx, b.keysSetKey(), key)
	return nil
}

func (b *Backend) ClearAll(ctx context.Context) error {
	client, err := b.connect()
	if err != nil {
		return err
	}
	keys, err := client.SMembers(ctx, b.keysSetKey()).Result()
	if err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_all", "error": err})
	}
	if len(keys) > 0 {
		redisKeys := make([]string, len(keys))
		for i, k := range keys {
			redisKeys[i] = b.entryKey(k)
		}
		if err := client.Del(ctx, redisKeys...).Err(); err != nil {
			return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_all", "error": err})
		}
	}
	if err := client.Del(ctx, b.keysSetKey()).Err(); err != nil {
		return errs.New(errs.ErrBackendUnavailable, map[string]any{"operation": "clear_all", "error": err})
	}
	return nil
}

// WaitUntilReady polls at cfg.PollInterval; spec §4.5 explicitly does not
// require a store-native blocking subscription. timeout == 0 waits
// indefinitely (spec §5, shared backend default), unlike the file backend.
func (b *Backend) WaitUntilReady(ctx context.Context, key string, timeout time.Duration) (backend.Entry, bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		e, found, err := b.Get(ctx, key)
		if err != nil {
			return backend.Entry{}, false, err
		}
		if !found || !e.InFlight {
			return e, found, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return backend.Entry{}, false, nil
		}
		select {
		case <-ctx.Done():
			return backend.Entry{}, false, ctx.Err()
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

func decodeHash(m map[string]string) backend.Entry {
	e := backend.Entry{}
	if v, ok := m["has_value"]; ok && v == "1" {
		e.HasValue = true
	}
	if v, ok := m["value"]; ok {
		e.Value = []byte(v)
	}
	if v, ok := m["ts"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.Timestamp = time.Unix(0, n)
		}
	}
	if v, ok := m["in_flight"]; ok && v == "1" {
		e.InFlight = true
	}
	if v, ok := m["stale"]; ok && v == "1" {
		e.Stale = true
	}
	if v, ok := m["generation"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			e.Generation = n
		}
	}
	return e
}
