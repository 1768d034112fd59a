package util

import (
	"testing"
	"time"
)

func TestNewBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 0)
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if got := b.NextBackOff(); got != w*time.Second {
			t.Fatalf("step %d: got %v want %v", i, got, w*time.Second)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Fatalf("reset must start over, got %v", got)
	}
}

func TestNewBackoffJitterBounds(t *testing.T) {
	min, max := 50*time.Millisecond, 2*time.Second
	b := NewBackoff(min, max, 0.5)
	for attempt := 1; attempt <= 40; attempt++ {
		d := b.NextBackOff()
		if d < min/2 || d > max+max/2 {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0, 0)
	if got := b.NextBackOff(); got != time.Second {
		t.Fatalf("default initial = %v", got)
	}
	if got := b.NextBackOff(); got != time.Second {
		t.Fatalf("max below initial must cap at initial, got %v", got)
	}
}
