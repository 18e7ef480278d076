package benchmark

import (
	"context"
	"testing"
)

func BenchmarkDirect(b *testing.B) {
	const delay = 10
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := slowFunc(ctx, delay); err != nil {
			b.Fatalf("err: %v", err)
		}
	}
}
