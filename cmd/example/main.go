// Command example wraps a slow function with memoize and calls it twice,
// demonstrating config loading, structured logging, and metrics wired
// through the same hook slot.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cachegrove/memoize"
	"github.com/cachegrove/memoize/internal/backend/memory"
	"github.com/cachegrove/memoize/internal/config"
	"github.com/cachegrove/memoize/internal/core"
	"github.com/cachegrove/memoize/internal/hooks"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer logger.Sync()

	loaded, err := config.Load("memoize.yaml", core.NewRegistry().Snapshot(), 4)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	registry := memoize.NewRegistry()
	registry.ApplyLive(loaded.Live)
	pool := memoize.NewPool(loaded.BackgroundWorkers)

	metrics := hooks.NewCollector("example", prometheus.NewRegistry())
	combined := hooks.NewZapHooks(logger).Merge(metrics.Hooks())

	cached, err := memoize.NewCachedFunction(heavyComputation, memoize.WrapperOptions[time.Duration, string]{
		FunctionID:     "example.heavyComputation",
		BackendFactory: memory.Factory,
		Registry:       registry,
		Hooks:          combined,
		Pool:           pool,
		Metrics:        metrics,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	ctx := context.Background()

	fmt.Printf("[%v] Starting heavy computation...\n", time.Now().Truncate(time.Second))
	res, err := cached.Call(ctx, 2*time.Second)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result - %s.\n", time.Now().Truncate(time.Second), res)

	fmt.Printf("[%v] Starting cached heavy computation...\n", time.Now().Truncate(time.Second))
	res, err = cached.Call(ctx, 2*time.Second, memoize.WithVerboseCache())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result cached - %s.\n", time.Now().Truncate(time.Second), res)
}

func heavyComputation(ctx context.Context, t time.Duration) (string, error) {
	time.Sleep(t)
	return "cached value", nil
}
