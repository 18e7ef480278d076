package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2)
	var current, max int32
	var mu sync.Mutex

	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&current, 1)
			mu.Lock()
			if n > max {
				max = n
			}
			mu.Unlock()
			<-release
			atomic.AddInt32(&current, -1)
		})
		if !ok {
			wg.Done() // a rejected task never runs, so it never calls Done
		}
		if !ok && i < 2 {
			t.Fatalf("expected first %d submissions to be accepted", 2)
		}
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if max > 2 {
		t.Fatalf("observed %d concurrent tasks; want <= 2", max)
	}
}

func TestDrainWaitsForCompletion(t *testing.T) {
	p := New(1)
	var done int32
	p.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if atomic.LoadInt32(&done) != 1 {
		t.Fatal("expected task to complete before Drain returned")
	}
}

func TestSubmitReturnsFalseWhenSaturated(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	if !p.Submit(func() { <-block }) {
		t.Fatal("expected first submit to succeed")
	}
	if p.Submit(func() {}) {
		t.Fatal("expected second submit on a saturated pool to be rejected")
	}
	close(block)
}
