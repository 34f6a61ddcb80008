// Package limits collects the kernel's fixed sizing constants and the
// handful of runtime budgets that are reserved ahead of the real
// allocation they gate, the way biscuit's Syslimit_t reserves Vnodes,
// Pipes, and friends before the corresponding object is actually built.
package limits

import "sync/atomic"

const (
	/// MaxTasks is the largest number of concurrently live PCBs.
	MaxTasks = 6
	/// FDPerProc is the fixed size of each process's file descriptor table.
	FDPerProc = 8
	/// ArgMax is the size of a PCB's argument buffer in bytes.
	ArgMax = 128
	/// LineMax is the size of a terminal's input line buffer in bytes,
	/// including the reserved trailing newline slot.
	LineMax = 128
	/// FnameLen is the fixed width of an on-disk filename; names exactly
	/// this long carry no NUL terminator.
	FnameLen = 32
	/// MaxDentries is the largest number of directory entries a valid
	/// filesystem image may report.
	MaxDentries = 63
	/// BlockSize is the size in bytes of an inode data block.
	BlockSize = 4096
	/// KstackSize is the size in bytes of one task's kernel stack; the
	/// task's PCB lives at the top of this region.
	KstackSize = 8 * 1024
	/// PageSize4K is the small page size in bytes.
	PageSize4K = 4096
	/// PageSize4M is the large page size in bytes.
	PageSize4M = 4 * 1024 * 1024
	/// UserImageVirt is the virtual address every user program is loaded at.
	UserImageVirt = 128 * 1024 * 1024
	/// UserStackTop is the initial ESP handed to a freshly executed task.
	UserStackTop = 132*1024*1024 - 4
	/// VidmapVirt is the virtual address vidmap() maps the video page to.
	VidmapVirt = 1024 * 1024 * 1024
)

/// Sysatomic_t is a numeric budget that can be atomically reserved and
/// released. It never replaces the authoritative allocator (the PID
/// bitmap, the fd table) — it only lets callers fail fast before paying
/// for a linear scan that is doomed to fail.
type Sysatomic_t struct {
	v int64
}

/// Set initializes the budget to n.
func (s *Sysatomic_t) Set(n int64) {
	atomic.StoreInt64(&s.v, n)
}

/// Taken tries to reserve n units, returning false if that would drive
/// the budget negative.
func (s *Sysatomic_t) Taken(n int64) bool {
	if atomic.AddInt64(&s.v, -n) >= 0 {
		return true
	}
	atomic.AddInt64(&s.v, n)
	return false
}

/// Given releases n units back to the budget.
func (s *Sysatomic_t) Given(n int64) {
	atomic.AddInt64(&s.v, n)
}

/// Remaining returns a snapshot of the budget.
func (s *Sysatomic_t) Remaining() int64 {
	return atomic.LoadInt64(&s.v)
}

/// Kernel holds the one runtime-reserved budget that is not already
/// covered by a fixed-size allocator elsewhere: the system-wide count
/// of open files across every process's fd table. Task-slot admission
/// is gated by proc.Table_t's own semaphore, and a single process's fd
/// table is already bounded by its fixed FDPerProc array, so neither
/// needs a second budget layered on top.
type Kernel struct {
	OpenFiles Sysatomic_t
}

/// NewKernel returns the default set of budgets for a freshly booted system.
func NewKernel() *Kernel {
	k := &Kernel{}
	k.OpenFiles.Set(MaxTasks * (FDPerProc - 2))
	return k
}
