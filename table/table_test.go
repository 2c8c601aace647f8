package table

import (
	"testing"

	"github.com/go-dwc/dwc/arena"
)

func TestHashConsistency(t *testing.T) {
	tbl := New(1031, arena.NewHeap())
	words := []string{"hello", "world", "a", "abcdefghijklmnop", ""}
	for _, w := range words {
		slot := tbl.Add([]byte(w), 1)
		want := tbl.Slot(Hash([]byte(w)))
		if slot != want {
			t.Errorf("Add(%q) returned slot %d, Hash/Slot gives %d", w, slot, want)
		}
	}
}

func TestMoveToFront(t *testing.T) {
	tbl := New(1, arena.NewHeap()) // force all keys into the same slot
	tbl.Add([]byte("a"), 1)
	tbl.Add([]byte("b"), 1)
	tbl.Add([]byte("c"), 1)

	// "a" is now at the back of the chain; touching it should move it to
	// the front.
	tbl.Add([]byte("a"), 1)

	head := tbl.Head(0)
	if head == nil || string(head.Word) != "a" {
		t.Fatalf("chain head = %v, want record for \"a\"", head)
	}
}

func TestUniquePerSlot(t *testing.T) {
	tbl := New(4096, arena.NewHeap())
	for i := 0; i < 3; i++ {
		tbl.Add([]byte("repeat"), 1)
	}
	seen := 0
	tbl.Each(func(slot int, r *Record) {
		if string(r.Word) == "repeat" {
			seen++
			if r.Count != 3 {
				t.Errorf("count = %d, want 3", r.Count)
			}
		}
	})
	if seen != 1 {
		t.Errorf("saw %d records for \"repeat\", want 1", seen)
	}
}

func TestAscendingOrder(t *testing.T) {
	tbl := New(64, arena.NewHeap())
	for _, w := range []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh"} {
		tbl.Add([]byte(w), 1)
	}
	last := -1
	tbl.Each(func(slot int, r *Record) {
		if slot < last {
			t.Fatalf("Each produced slot %d after %d: not ascending", slot, last)
		}
		last = slot
	})
}

func TestBumpNeverReuses(t *testing.T) {
	b := arena.NewBump()
	a := b.Alloc(16)
	for i := range a {
		a[i] = 0xff
	}
	c := b.Alloc(16)
	for _, v := range c {
		if v != 0 {
			t.Fatalf("bump allocation not zeroed: %v", c)
		}
	}
}
