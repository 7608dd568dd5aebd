package handshake

import "testing"

func TestInsertGetRemove(t *testing.T) {
	c := New()
	c.Insert(1, "state-one", 0, 1000)
	got, ok := c.Get(1)
	if !ok || got != "state-one" {
		t.Fatalf("Get(1) = %v, %v; want state-one, true", got, ok)
	}

	removed, ok := c.Remove(1)
	if !ok || removed != "state-one" {
		t.Fatalf("Remove(1) = %v, %v; want state-one, true", removed, ok)
	}
	if _, ok := c.Get(1); ok {
		t.Fatal("entry should be gone after Remove")
	}
}

func TestRemoveIsSingleConsumption(t *testing.T) {
	c := New()
	c.Insert(5, "x", 0, 1000)
	if _, ok := c.Remove(5); !ok {
		t.Fatal("first Remove should succeed")
	}
	if _, ok := c.Remove(5); ok {
		t.Fatal("second Remove of the same id must fail")
	}
}

func TestInsertDuplicateIDIsNoOp(t *testing.T) {
	c := New()
	c.Insert(1, "first", 0, 1000)
	c.Insert(1, "second", 0, 1000)
	got, _ := c.Get(1)
	if got != "first" {
		t.Fatalf("duplicate insert should not overwrite the existing entry, got %v", got)
	}
}

func TestInsertReplacesExpiredSlot(t *testing.T) {
	c := New()
	for i := uint32(1); i <= Capacity; i++ {
		c.Insert(i, i, 0, 1) // expires at t=1
	}
	// The table is now full, all entries timing out at 1. At currentTime 100,
	// every slot is expired and reusable.
	c.Insert(Capacity+1, "fresh", 100, 1000)
	if _, ok := c.Get(Capacity + 1); !ok {
		t.Fatal("insert should have reused an expired slot")
	}
}

func TestInsertDropsWhenFullOfLiveEntries(t *testing.T) {
	c := New()
	for i := uint32(1); i <= Capacity; i++ {
		c.Insert(i, i, 0, 1000) // all still live at currentTime 0
	}
	c.Insert(Capacity+1, "overflow", 0, 1000)
	if _, ok := c.Get(Capacity + 1); ok {
		t.Fatal("insert should be dropped when the table is full of live entries")
	}
}

func TestServiceExpiresPastDeadline(t *testing.T) {
	c := New()
	c.Insert(1, "x", 0, 10) // deadline = 10
	c.Service(5)
	if _, ok := c.Get(1); !ok {
		t.Fatal("entry should still be present before its deadline")
	}
	c.Service(11)
	if _, ok := c.Get(1); ok {
		t.Fatal("entry should be expired after Service is called past its deadline")
	}
}

func TestServiceSkipsWorkWhenNothingPending(t *testing.T) {
	c := New()
	// Never call Insert; hasPending stays false and Service should be a no-op.
	c.Service(1_000_000)
}
