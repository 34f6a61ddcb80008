// Package fd implements the per-process file descriptor table: eight
// fixed slots, slots 0 and 1 reserved for stdin/stdout and never
// closeable, the rest allocated lowest-free-slot-first starting at 2.
package fd

import (
	"sync"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/fdops"
	"github.com/bjackson/ece391mp/limits"
)

// Flags bits. The low bit is the in-use marker every slot carries.
const (
	InUse = 0x1
)

/// Fd_t is one open file descriptor: its operation vector, the inode it
/// refers to (0 for devices with no backing inode, e.g. the RTC), its
/// current byte position, and its flags word.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Inode int
	Pos   int
	Flags uint
}

func (f *Fd_t) inUse() bool {
	return f.Flags&InUse != 0
}

/// Table_t is a process's fixed 8-slot descriptor table. Budget is the
/// system-wide open-file reservation shared by every process's table;
/// Open fails fast against it before ever scanning for a free slot.
type Table_t struct {
	mu     sync.Mutex
	slots  [limits.FDPerProc]Fd_t
	Budget *limits.Sysatomic_t
}

/// Init installs stdin at slot 0 and stdout at slot 1, both permanently
/// in use, and records the system-wide open-file budget Open draws
/// from. It must be called once per process before Open/Close/Get.
func (t *Table_t) Init(stdin, stdout fdops.Fdops_i, budget *limits.Sysatomic_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[0] = Fd_t{Fops: stdin, Flags: InUse}
	t.slots[1] = Fd_t{Fops: stdout, Flags: InUse}
	t.Budget = budget
}

/// Open reserves one unit of the system-wide open-file budget, then
/// installs fops/inode into the lowest free slot at index ≥ 2.
/// Returns ENFILE if the budget is exhausted or if every local slot
/// starting at 2 is occupied (the budget reservation is given back in
/// that case, since no slot was actually consumed).
func (t *Table_t) Open(fops fdops.Fdops_i, inode int) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Budget != nil && !t.Budget.Taken(1) {
		return 0, defs.ENFILE
	}
	for i := 2; i < limits.FDPerProc; i++ {
		if !t.slots[i].inUse() {
			t.slots[i] = Fd_t{Fops: fops, Inode: inode, Flags: InUse}
			return i, 0
		}
	}
	if t.Budget != nil {
		t.Budget.Given(1)
	}
	return 0, defs.ENFILE
}

/// Close clears slot fdno, invoking its driver's Close hook and
/// returning its unit to the open-file budget. Slots 0 and 1 may never
/// be closed.
func (t *Table_t) Close(fdno int) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdno < 2 || fdno >= limits.FDPerProc {
		return defs.EBADF
	}
	if !t.slots[fdno].inUse() {
		return defs.EBADF
	}
	err := t.slots[fdno].Fops.Close()
	t.slots[fdno] = Fd_t{}
	if t.Budget != nil {
		t.Budget.Given(1)
	}
	if err != 0 {
		return err
	}
	return 0
}

/// CloseAll closes every in-use slot at index ≥ 2, as halt does when a
/// task exits, returning each unit to the open-file budget. Reserved
/// slots 0/1 are left untouched.
func (t *Table_t) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 2; i < limits.FDPerProc; i++ {
		if t.slots[i].inUse() {
			t.slots[i].Fops.Close()
			t.slots[i] = Fd_t{}
			if t.Budget != nil {
				t.Budget.Given(1)
			}
		}
	}
}

/// Get returns slot fdno if it is a valid in-use descriptor.
func (t *Table_t) Get(fdno int) (*Fd_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdno < 0 || fdno >= limits.FDPerProc {
		return nil, defs.EBADF
	}
	if !t.slots[fdno].inUse() {
		return nil, defs.EBADF
	}
	return &t.slots[fdno], 0
}
