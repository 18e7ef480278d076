package hooks

import (
	"errors"
	"testing"
)

func TestRunRecoversFromPanic(t *testing.T) {
	var logged error
	h := &Hooks{LogError: func(err error) { logged = err }}

	h.Run(func(arg any) error { panic("boom") }, nil)

	if logged == nil || logged.Error() != "boom" {
		t.Fatalf("expected panic forwarded to LogError, got %v", logged)
	}
}

func TestRunForwardsError(t *testing.T) {
	var logged error
	h := &Hooks{LogError: func(err error) { logged = err }}
	wantErr := errors.New("hook failed")

	h.Run(func(arg any) error { return wantErr }, nil)

	if logged != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, logged)
	}
}

func TestRunNilHookIsNoop(t *testing.T) {
	h := &Hooks{}
	h.Run(nil, nil) // must not panic
}

func TestMergeFillsNilSlots(t *testing.T) {
	called := false
	base := &Hooks{}
	fallback := &Hooks{OnGet: func(arg any) error { called = true; return nil }}

	merged := base.Merge(fallback)
	merged.Run(merged.OnGet, nil)

	if !called {
		t.Fatal("expected fallback OnGet to be used")
	}
}

func TestEmitRecoversFromPanic(t *testing.T) {
	var logged error
	h := &Hooks{
		LogError: func(err error) { logged = err },
		OnTrace:  func(t Trace) { panic("trace boom") },
	}
	h.Emit(Trace{Decision: DecisionHit})
	if logged == nil {
		t.Fatal("expected panic in OnTrace to be forwarded to LogError")
	}
}
