package memory

import (
	"context"
	"testing"
	"time"
)

func TestPrecacheRoundTrip(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()

	if err := b.Put(ctx, "k1", []byte("v1"), time.Now(), 0); err != nil {
		t.Fatal(err)
	}
	e, found, err := b.Get(ctx, "k1")
	if err != nil || !found || !e.HasValue || string(e.Value) != "v1" {
		t.Fatalf("unexpected entry: %+v found=%v err=%v", e, found, err)
	}
}

func TestClearRemovesValue(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()
	b.Put(ctx, "k1", []byte("v1"), time.Now(), 0)

	if err := b.Clear(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	e, _, _ := b.Get(ctx, "k1")
	if e.HasValue || e.InFlight {
		t.Fatalf("expected absence after clear, got %+v", e)
	}
}

func TestClearAllWipesEverything(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()
	b.Put(ctx, "k1", []byte("v1"), time.Now(), 0)
	b.Put(ctx, "k2", []byte("v2"), time.Now(), 0)

	if err := b.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := b.Get(ctx, "k1"); found {
		t.Fatal("expected k1 absent after ClearAll")
	}
	if _, found, _ := b.Get(ctx, "k2"); found {
		t.Fatal("expected k2 absent after ClearAll")
	}
}

func TestMarkInFlightAtMostOneAcquirer(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()

	acquired1, gen1, _ := b.MarkInFlight(ctx, "k1")
	acquired2, _, _ := b.MarkInFlight(ctx, "k1")

	if !acquired1 {
		t.Fatal("expected first MarkInFlight to acquire")
	}
	if acquired2 {
		t.Fatal("expected second MarkInFlight to fail to acquire")
	}

	if err := b.Put(ctx, "k1", []byte("v1"), time.Now(), gen1); err != nil {
		t.Fatal(err)
	}
	e, found, _ := b.Get(ctx, "k1")
	if !found || e.InFlight || !e.HasValue {
		t.Fatalf("unexpected post-put state: %+v", e)
	}
}

func TestPutDroppedAfterConcurrentClear(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()

	_, gen, _ := b.MarkInFlight(ctx, "k1")
	if err := b.Clear(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	// The old producer's Put must be silently dropped; it must not resurrect
	// a value under a key that was cleared out from under it.
	if err := b.Put(ctx, "k1", []byte("stale"), time.Now(), gen); err != nil {
		t.Fatal(err)
	}
	e, _, _ := b.Get(ctx, "k1")
	if e.HasValue {
		t.Fatalf("expected put after clear to be dropped, got %+v", e)
	}

	// A fresh producer must still be able to claim the key after the clear.
	acquired, _, _ := b.MarkInFlight(ctx, "k1")
	if !acquired {
		t.Fatal("expected a fresh MarkInFlight to succeed after clear")
	}
}

func TestMarkStaleDeduplicatesRecomputeTriggers(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()
	b.Put(ctx, "k1", []byte("v1"), time.Now(), 0)

	acquired1, _ := b.MarkStale(ctx, "k1")
	acquired2, _ := b.MarkStale(ctx, "k1")

	if !acquired1 {
		t.Fatal("expected first MarkStale to acquire")
	}
	if acquired2 {
		t.Fatal("expected second MarkStale to be a no-op")
	}
}

func TestWaitUntilReadyReturnsOnPublish(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()
	_, gen, _ := b.MarkInFlight(ctx, "k1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Put(ctx, "k1", []byte("v1"), time.Now(), gen)
	}()

	e, found, err := b.WaitUntilReady(ctx, "k1", time.Second)
	if err != nil || !found || !e.HasValue || string(e.Value) != "v1" {
		t.Fatalf("unexpected wait result: %+v found=%v err=%v", e, found, err)
	}
}

func TestWaitUntilReadyTimesOut(t *testing.T) {
	b, _ := New("pkg.Func")
	ctx := context.Background()
	b.MarkInFlight(ctx, "k1")

	_, found, err := b.WaitUntilReady(ctx, "k1", 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected timeout to report not-found")
	}
}
