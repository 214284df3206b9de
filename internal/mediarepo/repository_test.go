package mediarepo

import "testing"

func TestHashNumericRoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 42, 1 << 40, ^uint64(0)}
	for _, h := range tests {
		s := hashToNumeric(h)
		got, err := numericToHash(s)
		if err != nil {
			t.Fatalf("numericToHash(%q) error: %v", s, err)
		}
		if got != h {
			t.Errorf("round trip %d -> %q -> %d", h, s, got)
		}
	}
}

func TestNumericToHashRejectsGarbage(t *testing.T) {
	if _, err := numericToHash("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}
