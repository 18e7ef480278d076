package fingerprint

import "testing"

func TestArgumentShapeEquivalence(t *testing.T) {
	fp := New(Spec{Params: []string{"x", "y"}})

	k1, err := fp.Fingerprint([]any{1, 2}, nil)
	if err != nil {
		t.Fatalf("positional: %v", err)
	}
	k2, err := fp.Fingerprint([]any{1}, map[string]any{"y": 2})
	if err != nil {
		t.Fatalf("mixed: %v", err)
	}
	k3, err := fp.Fingerprint(nil, map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("named: %v", err)
	}

	if k1 != k2 || k2 != k3 {
		t.Fatalf("expected equal fingerprints, got %q, %q, %q", k1, k2, k3)
	}
}

func TestReceiverElision(t *testing.T) {
	fp := New(Spec{Params: []string{"self", "x"}, IsMethod: true})

	k1, err := fp.Fingerprint([]any{"receiver-a", 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := fp.Fingerprint([]any{"receiver-b", 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatalf("expected identical fingerprints across receivers, got %q vs %q", k1, k2)
	}
}

func TestDifferentArgumentsProduceDifferentKeys(t *testing.T) {
	fp := New(Spec{Params: []string{"x"}})
	k1, _ := fp.Fingerprint([]any{1}, nil)
	k2, _ := fp.Fingerprint([]any{2}, nil)
	if k1 == k2 {
		t.Fatalf("expected distinct fingerprints, got %q for both", k1)
	}
}

func TestUnmarshalableArgumentIsNotFingerprintable(t *testing.T) {
	fp := New(Spec{Params: []string{"x"}})
	_, err := fp.Fingerprint([]any{make(chan int)}, nil)
	if err == nil {
		t.Fatal("expected error for unfingerprintable argument")
	}
}

func TestLongEncodingIsHashed(t *testing.T) {
	fp := New(Spec{Params: []string{"x"}})
	long := make([]int, 100)
	for i := range long {
		long[i] = i
	}
	k, err := fp.Fingerprint([]any{long}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(k) != 64 {
		t.Fatalf("expected a 64-char hex digest for a long encoding, got %d chars: %q", len(k), k)
	}
}
