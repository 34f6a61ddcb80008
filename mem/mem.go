// Package mem simulates the kernel's physical memory as a flat byte
// arena. Biscuit's mem.Physmem_t direct-maps real physical RAM into the
// Go runtime's address space via a forked runtime (runtime.Get_phys,
// runtime.CPUHint, a fixed-size per-CPU free list). This module has no
// forked runtime to lean on, so Physmem_t instead owns one []byte slab
// and hands out page-aligned windows into it, without the
// unsafe.Pointer direct-map trick. This type provides page allocation,
// reference counts and direct-map views; the page-table bookkeeping
// (InstallKernelMapping, MapPage, TaskSpaceInit) lives in package paging.
package mem

import (
	"fmt"
	"sync"
	"unsafe"
)

/// PGSHIFT is the base-2 exponent for the small page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single small page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks the in-page offset bits of an address.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page-number bits of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Page table entry flag bits, laid out exactly as the x86 PTE/PDE format.
const (
	PTE_P    Pa_t = 1 << 0 /// present
	PTE_W    Pa_t = 1 << 1 /// writable
	PTE_U    Pa_t = 1 << 2 /// user-accessible
	PTE_PCD  Pa_t = 1 << 4 /// cache-disable
	PTE_PS   Pa_t = 1 << 7 /// page size (4MiB when set at the top level)
	PTE_G    Pa_t = 1 << 8 /// global
	PTE_ADDR Pa_t = PGMASK /// address bits of a PTE
)

/// Pa_t is a simulated physical address: an index into Physmem_t's arena,
/// not a real bus address.
type Pa_t uintptr

/// Pg_t is one page's worth of bytes.
type Pg_t [PGSIZE]uint8

/// Physpg_t tracks one physical page's reference count.
type Physpg_t struct {
	Refcnt int32
	nexti  uint32
}

/// Physmem_t is the kernel's entire simulated RAM: one contiguous arena
/// sliced into fixed-size pages, plus a singly-linked free list threaded
/// through Physpg_t.nexti exactly as biscuit threads its free list.
type Physmem_t struct {
	sync.Mutex
	arena   []byte
	pgs     []Physpg_t
	freei   uint32
	freelen int32
}

const nilidx = ^uint32(0)

/// NewPhysmem allocates a simulated RAM of the given number of pages, all
/// initially free.
func NewPhysmem(npages int) *Physmem_t {
	phys := &Physmem_t{
		arena: make([]byte, npages*PGSIZE),
		pgs:   make([]Physpg_t, npages),
	}
	phys.freei = 0
	phys.freelen = int32(npages)
	for i := 0; i < npages; i++ {
		if i == npages-1 {
			phys.pgs[i].nexti = nilidx
		} else {
			phys.pgs[i].nexti = uint32(i + 1)
		}
	}
	return phys
}

func (phys *Physmem_t) idx2pa(idx uint32) Pa_t {
	return Pa_t(idx) << PGSHIFT
}

func (phys *Physmem_t) pa2idx(p Pa_t) uint32 {
	idx := uint32(p >> PGSHIFT)
	if int(idx) >= len(phys.pgs) {
		panic("physical address out of range")
	}
	return idx
}

/// Refpg_new allocates a zeroed page from the free list.
func (phys *Physmem_t) Refpg_new() (Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()
	if phys.freei == nilidx {
		return 0, false
	}
	idx := phys.freei
	phys.freei = phys.pgs[idx].nexti
	phys.freelen--
	phys.pgs[idx].Refcnt = 1
	pa := phys.idx2pa(idx)
	start := idx * uint32(PGSIZE)
	for i := range phys.arena[start : start+uint32(PGSIZE)] {
		phys.arena[start+uint32(i)] = 0
	}
	return pa, true
}

/// Refup increments a page's reference count.
func (phys *Physmem_t) Refup(p Pa_t) {
	phys.Lock()
	defer phys.Unlock()
	idx := phys.pa2idx(p)
	if phys.pgs[idx].Refcnt <= 0 {
		panic("refup of free page")
	}
	phys.pgs[idx].Refcnt++
}

/// Refdown decrements a page's reference count, returning true if the
/// page was freed as a result.
func (phys *Physmem_t) Refdown(p Pa_t) bool {
	phys.Lock()
	defer phys.Unlock()
	idx := phys.pa2idx(p)
	if phys.pgs[idx].Refcnt <= 0 {
		panic("refdown of free page")
	}
	phys.pgs[idx].Refcnt--
	if phys.pgs[idx].Refcnt != 0 {
		return false
	}
	phys.pgs[idx].nexti = phys.freei
	phys.freei = idx
	phys.freelen++
	return true
}

/// Refcnt reports a page's current reference count.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.pgs[phys.pa2idx(p)].Refcnt)
}

/// Dmap returns the live byte window backing physical page p. Writes
/// through the returned slice are writes to "physical memory" — this is
/// the simulator's stand-in for biscuit's direct map.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := phys.pa2idx(Pa_t(uintptr(p) &^ uintptr(PGOFFSET)))
	start := idx * uint32(PGSIZE)
	window := phys.arena[start : start+uint32(PGSIZE)]
	return (*Pg_t)(unsafe.Pointer(&window[0]))
}

/// Dmap8 returns a byte slice view of physical memory starting at p,
/// running to the end of that page.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	idx := phys.pa2idx(Pa_t(uintptr(p) &^ uintptr(PGOFFSET)))
	start := idx*uint32(PGSIZE) + uint32(p&PGOFFSET)
	end := (idx + 1) * uint32(PGSIZE)
	return phys.arena[start:end]
}

/// Pgcount reports the number of free pages remaining.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}

/// Physmem is the global simulated RAM instance, installed by Phys_init.
var Physmem *Physmem_t

/// Phys_init builds the global simulated physical memory arena. npages
/// mirrors the size biscuit reserves at boot, scaled down to something
/// a hosted test process can actually allocate.
func Phys_init(npages int) *Physmem_t {
	Physmem = NewPhysmem(npages)
	fmt.Printf("simulated physical memory: %d pages (%d KiB)\n", npages, npages*PGSIZE/1024)
	return Physmem
}
