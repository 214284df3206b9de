package backoff

import "testing"

func TestBase(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		attempt uint16
		want    int64
	}{
		{0, 0},
		{1, 500},
		{2, 1000},
		{3, 2000},
		{4, 4000},
		{5, 8000},
		{20, 5 * 60 * 1000}, // capped
	}

	for _, tt := range tests {
		if got := p.Base(tt.attempt); got != tt.want {
			t.Errorf("Base(%d) = %d, want %d", tt.attempt, got, tt.want)
		}
	}
}

func TestJitteredWithinBounds(t *testing.T) {
	p := DefaultPolicy()

	if d := p.Jittered(0); d != 0 {
		t.Fatalf("Jittered(0) = %v, want 0", d)
	}

	for attempt := uint16(1); attempt <= 10; attempt++ {
		base := p.Base(attempt)
		spread := float64(base) * 0.25
		if spread < 1 {
			spread = 1
		}
		lower := int64(base) - int64(spread) - 1
		upper := int64(base) + int64(spread) + 1

		for i := 0; i < 200; i++ {
			d := p.Jittered(attempt).Milliseconds()
			if d < lower || d > upper {
				t.Fatalf("attempt=%d jittered=%dms outside [%d,%d]", attempt, d, lower, upper)
			}
		}
	}
}
