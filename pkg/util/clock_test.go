package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)

	ch := c.After(200 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	c.Advance(100 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}
	if c.Waiters() != 1 {
		t.Fatalf("waiters = %d, want 1", c.Waiters())
	}

	c.Advance(100 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(200 * time.Millisecond)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("timer did not fire")
	}
	if c.Waiters() != 0 {
		t.Errorf("waiters = %d, want 0", c.Waiters())
	}

	select {
	case <-c.After(0):
	default:
		t.Error("zero duration should fire immediately")
	}
}
