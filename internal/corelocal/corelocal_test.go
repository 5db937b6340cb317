package corelocal

import (
	"runtime"
	"testing"
)

func TestNew_Size(t *testing.T) {
	a := New[int]()

	size := a.Size()
	if size < 8 {
		t.Errorf("size %d below minimum 8", size)
	}
	if size < runtime.NumCPU() {
		t.Errorf("size %d below NumCPU %d", size, runtime.NumCPU())
	}
	if size&(size-1) != 0 {
		t.Errorf("size %d is not a power of two", size)
	}
	if size != 1<<a.shift {
		t.Errorf("size %d does not match shift %d", size, a.shift)
	}
}

func TestAccessElementAndIndex(t *testing.T) {
	a := New[uint64]()

	for i := 0; i < 1000; i++ {
		e, idx := a.AccessElementAndIndex()
		if idx < 0 || idx >= a.Size() {
			t.Fatalf("index %d out of range [0,%d)", idx, a.Size())
		}
		if e != a.AccessAtCore(idx) {
			t.Fatalf("element does not match AccessAtCore(%d)", idx)
		}
	}
}

func TestAccessAtCore(t *testing.T) {
	a := New[int]()

	seen := make(map[*int]bool, a.Size())
	for i := 0; i < a.Size(); i++ {
		p := a.AccessAtCore(i)
		if seen[p] {
			t.Fatalf("slot %d aliases an earlier slot", i)
		}
		seen[p] = true

		if p != a.AccessAtCore(i) {
			t.Fatalf("slot %d not stable across calls", i)
		}
	}
}

func TestAccess_Writable(t *testing.T) {
	a := New[int]()

	*a.Access() = 7

	total := 0
	for i := 0; i < a.Size(); i++ {
		total += *a.AccessAtCore(i)
	}
	if total != 7 {
		t.Errorf("expected aggregate 7, got %d", total)
	}
}

func TestRandomIndex(t *testing.T) {
	a := New[int]()

	for i := 0; i < 1000; i++ {
		idx := a.RandomIndex()
		if idx < 0 || idx >= a.Size() {
			t.Fatalf("random index %d out of range [0,%d)", idx, a.Size())
		}
	}
}
