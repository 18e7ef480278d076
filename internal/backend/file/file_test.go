package file

import (
	"context"
	"testing"
	"time"
)

func newTestBackend(t *testing.T, layout Layout) *Backend {
	t.Helper()
	b, err := New("pkg.Func", Config{Root: t.TempDir(), Layout: layout, DisableWatch: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestFileBackendPutGetRoundTrip(t *testing.T) {
	for _, layout := range []Layout{LayoutPerEntry, LayoutSingleFile} {
		b := newTestBackend(t, layout)
		ctx := context.Background()

		if err := b.Put(ctx, "k1", []byte("v1"), time.Now(), 0); err != nil {
			t.Fatalf("put: %v", err)
		}
		e, found, err := b.Get(ctx, "k1")
		if err != nil || !found || !e.HasValue || string(e.Value) != "v1" {
			t.Fatalf("layout %v: unexpected entry %+v found=%v err=%v", layout, e, found, err)
		}
	}
}

func TestFileBackendClearAndClearAll(t *testing.T) {
	for _, layout := range []Layout{LayoutPerEntry, LayoutSingleFile} {
		b := newTestBackend(t, layout)
		ctx := context.Background()
		b.Put(ctx, "k1", []byte("v1"), time.Now(), 0)
		b.Put(ctx, "k2", []byte("v2"), time.Now(), 0)

		if err := b.Clear(ctx, "k1"); err != nil {
			t.Fatal(err)
		}
		if e, _, _ := b.Get(ctx, "k1"); e.HasValue {
			t.Fatalf("layout %v: expected k1 cleared, got %+v", layout, e)
		}
		if e, found, _ := b.Get(ctx, "k2"); !found || !e.HasValue {
			t.Fatalf("layout %v: expected k2 untouched", layout)
		}

		if err := b.ClearAll(ctx); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := b.Get(ctx, "k2"); found {
			t.Fatalf("layout %v: expected k2 absent after ClearAll", layout)
		}
	}
}

func TestFileBackendMarkInFlightSingleAcquirer(t *testing.T) {
	for _, layout := range []Layout{LayoutPerEntry, LayoutSingleFile} {
		b := newTestBackend(t, layout)
		ctx := context.Background()

		acquired1, gen, err := b.MarkInFlight(ctx, "k1")
		if err != nil || !acquired1 {
			t.Fatalf("layout %v: expected first MarkInFlight to acquire, err=%v", layout, err)
		}
		acquired2, _, _ := b.MarkInFlight(ctx, "k1")
		if acquired2 {
			t.Fatalf("layout %v: expected second MarkInFlight to fail", layout)
		}

		if err := b.Put(ctx, "k1", []byte("v1"), time.Now(), gen); err != nil {
			t.Fatal(err)
		}
		e, found, _ := b.Get(ctx, "k1")
		if !found || e.InFlight || !e.HasValue {
			t.Fatalf("layout %v: unexpected post-put state %+v", layout, e)
		}
	}
}

func TestFileBackendCorruptFileTreatedAsAbsent(t *testing.T) {
	b := newTestBackend(t, LayoutPerEntry)
	ctx := context.Background()

	path := b.entryPath("k1")
	if err := atomicWrite(path, []byte("not a valid envelope")); err != nil {
		t.Fatal(err)
	}

	e, found, err := b.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("expected corrupt file to be treated as absent, got error: %v", err)
	}
	if found && e.HasValue {
		t.Fatalf("expected corrupt file to read as absent, got %+v", e)
	}
}

func TestFileBackendWaitUntilReadyTimesOut(t *testing.T) {
	b := newTestBackend(t, LayoutPerEntry)
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

func TestFileBackendWaitUntilReadyReturnsOnPublish(t *testing.T) {
	b := newTestBackend(t, LayoutPerEntry)
	ctx := context.Background()
	_, gen, _ := b.MarkInFlight(ctx, "k1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Put(ctx, "k1", []byte("v1"), time.Now(), gen)
	}()

	e, found, err := b.WaitUntilReady(ctx, "k1", time.Second)
	if err != nil || !found || string(e.Value) != "v1" {
		t.Fatalf("unexpected wait result: %+v found=%v err=%v", e, found, err)
	}
}

func TestFileBackendDirIsFunctionScoped(t *testing.T) {
	root := t.TempDir()
	b1, err := New("pkg.FuncA", Config{Root: root, DisableWatch: true})
	if err != nil {
		t.Fatal(err)
	}
	b2, err := New("pkg.FuncB", Config{Root: root, DisableWatch: true})
	if err != nil {
		t.Fatal(err)
	}
	defer b1.Close()
	defer b2.Close()

	if b1.Dir() == b2.Dir() {
		t.Fatal("expected distinct directories for distinct function identities")
	}
}
