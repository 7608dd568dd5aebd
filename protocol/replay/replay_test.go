package replay

import "testing"

func TestWindowAcceptsMonotoneCounters(t *testing.T) {
	var w Window
	for c := uint64(0); c < 10; c++ {
		if !w.Check(c) {
			t.Fatalf("Check(%d) = false, want true", c)
		}
		if !w.Update(c) {
			t.Fatalf("Update(%d) = false, want true", c)
		}
	}
}

func TestWindowRejectsReplay(t *testing.T) {
	var w Window
	w.Update(5)
	if w.Check(5) {
		t.Fatal("Check should reject an already-seen counter")
	}
	if w.Update(5) {
		t.Fatal("Update should reject an already-seen counter")
	}
}

func TestWindowAcceptsBoundedOutOfOrder(t *testing.T) {
	var w Window
	w.Update(100)
	if !w.Update(100 - MaxOutOfOrder + 1) {
		t.Fatal("a counter just inside the out-of-order window should be accepted")
	}
}

func TestWindowRejectsTooFarBehind(t *testing.T) {
	var w Window
	w.Update(100)
	if w.Update(100 - MaxOutOfOrder) {
		t.Fatal("a counter at/beyond the out-of-order bound should be rejected")
	}
	if w.Check(100 - MaxOutOfOrder) {
		t.Fatal("Check should agree with Update on the out-of-order bound")
	}
}

func TestWindowRejectsImplausibleSkipAhead(t *testing.T) {
	var w Window
	w.Update(0)
	if w.Update(MaxSkipAhead + 1) {
		t.Fatal("a counter beyond MaxSkipAhead should be rejected")
	}
	// The window must not have silently advanced.
	if !w.Update(1) {
		t.Fatal("window should still be usable for the next plausible counter")
	}
}

func TestWindowSlidesAndClearsStaleBits(t *testing.T) {
	var w Window
	w.Update(0)
	w.Update(64) // slides the window forward by one word
	if w.Update(64) {
		t.Fatal("re-delivering counter 64 must be rejected")
	}
	if !w.Update(63) {
		t.Fatal("counter 63 should still be acceptable, just inside the window")
	}
}

func TestWindowAllowsDuplicateCheckWithoutMutation(t *testing.T) {
	var w Window
	w.Update(10)
	// Check is side-effect-free: calling it repeatedly must not change
	// whether a later Update of the same counter is accepted.
	for i := 0; i < 5; i++ {
		w.Check(20)
	}
	if !w.Update(20) {
		t.Fatal("repeated Check calls must not perturb Update's outcome")
	}
	if w.Update(20) {
		t.Fatal("counter 20 must not be acceptable twice")
	}
}
