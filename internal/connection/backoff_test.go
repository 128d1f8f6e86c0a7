package connection

import (
	"testing"
	"time"

	"deribit-hedge-bot/internal/config"
)

func testBackoffConfig() config.BackoffConfig {
	return config.BackoffConfig{LowMaxErrors: 3, Low: time.Second, MidMaxErrors: 9, Mid: 5 * time.Second, High: 15 * time.Second}
}

func TestBackoffTiersAreMonotonic(t *testing.T) {
	b := NewBackoff(testBackoffConfig(), time.Minute)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var prev time.Duration
	for i := 1; i <= 15; i++ {
		d := b.Failure(start.Add(time.Duration(i) * time.Second))
		if d < prev {
			t.Fatalf("delay decreased at error %d: %s < %s", i, d, prev)
		}
		prev = d
		switch {
		case i <= 3 && d != time.Second:
			t.Fatalf("error %d: expected 1s, got %s", i, d)
		case i > 3 && i <= 9 && d != 5*time.Second:
			t.Fatalf("error %d: expected 5s, got %s", i, d)
		case i > 9 && d != 15*time.Second:
			t.Fatalf("error %d: expected 15s, got %s", i, d)
		}
	}
}

func TestBackoffResetsAfterQuietPeriod(t *testing.T) {
	b := NewBackoff(testBackoffConfig(), time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		b.Failure(now)
	}
	if b.Count() != 5 {
		t.Fatalf("expected 5 errors, got %d", b.Count())
	}
	if d := b.Failure(now.Add(2 * time.Minute)); d != time.Second {
		t.Fatalf("expected low tier after quiet period, got %s", d)
	}
	if b.Count() != 1 {
		t.Fatalf("expected count reset to 1, got %d", b.Count())
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(testBackoffConfig(), time.Minute)
	now := time.Now()
	for i := 0; i < 10; i++ {
		b.Failure(now)
	}
	b.Reset()
	if d := b.Failure(now); d != time.Second {
		t.Fatalf("expected low tier after reset, got %s", d)
	}
}
