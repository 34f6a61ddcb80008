package mem

import "testing"

func TestRefpgNewZeroed(t *testing.T) {
	phys := NewPhysmem(4)
	pa, ok := phys.Refpg_new()
	if !ok {
		t.Fatalf("Refpg_new failed with free pages available")
	}
	win := phys.Dmap8(pa)
	for i, b := range win {
		if b != 0 {
			t.Fatalf("byte %d of freshly allocated page = %#x, want 0", i, b)
		}
	}
}

func TestRefpgExhaustion(t *testing.T) {
	phys := NewPhysmem(2)
	if _, ok := phys.Refpg_new(); !ok {
		t.Fatal("first allocation should succeed")
	}
	if _, ok := phys.Refpg_new(); !ok {
		t.Fatal("second allocation should succeed")
	}
	if _, ok := phys.Refpg_new(); ok {
		t.Fatal("third allocation should fail: pool has only 2 pages")
	}
}

func TestRefcountFreesOnLastDrop(t *testing.T) {
	phys := NewPhysmem(1)
	pa, ok := phys.Refpg_new()
	if !ok {
		t.Fatal("allocation failed")
	}
	phys.Refup(pa)
	if freed := phys.Refdown(pa); freed {
		t.Fatal("page freed while still referenced twice")
	}
	if freed := phys.Refdown(pa); !freed {
		t.Fatal("page should have been freed on last Refdown")
	}
	if _, ok := phys.Refpg_new(); !ok {
		t.Fatal("page should be back on the free list after being freed")
	}
}

func TestDmapWritesAreVisible(t *testing.T) {
	phys := NewPhysmem(2)
	pa, _ := phys.Refpg_new()
	win := phys.Dmap8(pa)
	win[0] = 0x42
	pg := phys.Dmap(pa)
	if pg[0] != 0x42 {
		t.Fatalf("Dmap view did not see write through Dmap8, got %#x", pg[0])
	}
}

func TestPgcountTracksAllocations(t *testing.T) {
	phys := NewPhysmem(3)
	if got := phys.Pgcount(); got != 3 {
		t.Fatalf("Pgcount = %d, want 3", got)
	}
	pa, _ := phys.Refpg_new()
	if got := phys.Pgcount(); got != 2 {
		t.Fatalf("Pgcount after one alloc = %d, want 2", got)
	}
	phys.Refdown(pa)
	if got := phys.Pgcount(); got != 3 {
		t.Fatalf("Pgcount after freeing = %d, want 3", got)
	}
}
