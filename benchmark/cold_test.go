package benchmark

import (
	"context"
	"testing"

	"github.com/cachegrove/memoize"
	"github.com/cachegrove/memoize/internal/backend/memory"
)

func BenchmarkCachedCold(b *testing.B) {
	const delay = 10
	cached, err := memoize.NewCachedFunction(slowFunc, memoize.WrapperOptions[int, string]{
		FunctionID:     "benchmark.slowFunc.cold",
		BackendFactory: memory.Factory,
	})
	if err != nil {
		b.Fatalf("NewCachedFunction: %v", err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		// Use a new key each time to simulate "cold" cache access (no hits).
		key := delay + i
		if _, err := cached.Call(ctx, key); err != nil {
			b.Fatalf("err: %v", err)
		}
	}
}
