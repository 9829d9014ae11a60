package shared

import "testing"

func TestErrorCounterTripsThreshold(t *testing.T) {
	c := NewErrorCounter(2)
	if exceeded := c.Increment(); exceeded {
		t.Fatalf("expected not exceeded on first increment")
	}
	if exceeded := c.Increment(); exceeded {
		t.Fatalf("expected not exceeded at threshold")
	}
	if exceeded := c.Increment(); !exceeded {
		t.Fatalf("expected exceeded past threshold")
	}
	if c.Count() != 3 {
		t.Fatalf("expected count 3, got %d", c.Count())
	}
}

func TestErrorCounterReset(t *testing.T) {
	c := NewErrorCounter(1)
	c.Increment()
	c.Increment()
	c.Reset()
	if c.Count() != 0 {
		t.Fatalf("expected count 0 after reset, got %d", c.Count())
	}
}
