package benchmark

import (
	"context"
	"testing"

	"github.com/cachegrove/memoize"
	"github.com/cachegrove/memoize/internal/backend/memory"
)

func BenchmarkCachedParallel(b *testing.B) {
	const delay = 10
	cached, err := memoize.NewCachedFunction(slowFunc, memoize.WrapperOptions[int, string]{
		FunctionID:     "benchmark.slowFunc.parallel",
		BackendFactory: memory.Factory,
	})
	if err != nil {
		b.Fatalf("NewCachedFunction: %v", err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			// All goroutines use the same key, to measure in-flight
			// deduplication under high concurrency.
			if _, err := cached.Call(ctx, delay); err != nil {
				b.Fatalf("err: %v", err)
			}
		}
	})
}
