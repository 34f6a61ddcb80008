// Package proc implements the process control block, the fixed-size
// process table, execute/halt, and the round-robin scheduler's
// book-keeping. Per the module's hosted-simulator posture, "running a
// user program" is a registered Go closure (an Image) invoked behind a
// Handle_t that only exposes the ten-call syscall surface; execute
// blocks its caller until the spawned task eventually halts, exactly
// as the real synchronous fork+exec+wait-shaped execute/halt pair
// does, using a channel handoff in place of a literal saved
// stack-pointer/frame-pointer restore.
package proc

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bjackson/ece391mp/accnt"
	"github.com/bjackson/ece391mp/caller"
	"github.com/bjackson/ece391mp/current"
	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/fd"
	"github.com/bjackson/ece391mp/fdops"
	"github.com/bjackson/ece391mp/fs"
	"github.com/bjackson/ece391mp/limits"
	"github.com/bjackson/ece391mp/paging"
	"github.com/bjackson/ece391mp/ustr"
	"github.com/bjackson/ece391mp/util"
)

/// LeftVia_t distinguishes why a task is not currently running: it
/// never reached the scheduler (it is mid-execute, building its
/// initial frame) versus it was preempted at a timer tick.
type LeftVia_t int

const (
	LeftViaExecute LeftVia_t = iota
	LeftViaScheduler
)

/// Proc_t is one task's PCB. Fields mirror the data model exactly:
/// PID, parent PID, fd table, terminal, argument buffer, and the flag
/// distinguishing how the task last left the CPU. The resumeCh channel
/// handoff replaces the literal saved SP/FP pair a real
/// trampoline would restore.
type Proc_t struct {
	PID        defs.Pid_t
	ParentPID  defs.Pid_t
	Term       defs.Term_t
	Fds        fd.Table_t
	LeftVia    LeftVia_t
	EntryPoint uint32

	Args   [limits.ArgMax]byte
	ArgLen int

	Dir *paging.Dir_t

	Accnt     accnt.Accnt_t
	createdAt int64

	image []byte

	resumeCh         chan int
	respawnBaseShell bool
}

/// Image_t is a registered program body: it runs against h until it
/// calls h.Halt, whose return value is meant to be the image's own
/// return statement.
type Image_t func(h *Handle_t) int

/// Deps_t bundles the subsystems execute/halt touch, injected by the
/// kernel package so this package never imports it.
type Deps_t struct {
	Tables *paging.Tables_t

	// OpenExecutable opens name for the ELF header read/program load.
	OpenExecutable func(name ustr.Ustr) (*fs.File_t, defs.Err_t)
	// OpenByName backs the open() syscall: it resolves name to a
	// fresh Fdops_i and the inode number to record in the fd table.
	OpenByName func(name ustr.Ustr) (fdops.Fdops_i, int, defs.Err_t)
	// NewStdio returns fresh stdin/stdout handles bound to term.
	NewStdio func(term defs.Term_t) (fdops.Fdops_i, fdops.Fdops_i)
	// RemapVideo re-homes the VIDEO mapping as control passes from
	// oldPid to newPid, both understood to belong to term.
	RemapVideo func(oldPid, newPid defs.Pid_t, term defs.Term_t)

	// Images maps an executable name to the Go closure that plays its
	// role; a name with no entry behaves like a program that exits
	// immediately with status 0.
	Images map[string]Image_t

	// PanicDump, if set, receives the offending PID and a backtrace
	// when a task's Image panics on a broken invariant, before that
	// task's goroutine parks for good. Mirrors the vector-in-range exception dump
	// intr.Dispatcher_t produces for a hardware fault, for the case
	// where the "fault" instead surfaces as a Go panic inside an Image
	// closure.
	PanicDump func(pid defs.Pid_t, trace string)
}

/// Table_t is the fixed process table: PID allocation bitmap, the live
/// PCBs, and each terminal's base-shell PID (0 when none).
type Table_t struct {
	mu         sync.Mutex
	procs      map[defs.Pid_t]*Proc_t
	bitmap     [limits.MaxTasks + 1]bool
	baseShell  [defs.NumTerms]defs.Pid_t
	slots      *semaphore.Weighted
	fileBudget *limits.Sysatomic_t
}

/// NewTable returns an empty process table sized for limits.MaxTasks
/// concurrently live PCBs, with one system-wide open-file budget
/// shared by every spawned task's fd table.
func NewTable() *Table_t {
	kern := limits.NewKernel()
	return &Table_t{
		procs:      make(map[defs.Pid_t]*Proc_t),
		slots:      semaphore.NewWeighted(limits.MaxTasks),
		fileBudget: &kern.OpenFiles,
	}
}

func (t *Table_t) allocPID() (defs.Pid_t, bool) {
	if !t.slots.TryAcquire(1) {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := defs.Pid_t(1); i <= limits.MaxTasks; i++ {
		if !t.bitmap[i] {
			t.bitmap[i] = true
			return i, true
		}
	}
	// The semaphore and the bitmap disagreeing is a broken invariant.
	panic("proc: task-slot semaphore granted a slot the bitmap has none of")
}

func (t *Table_t) freePID(pid defs.Pid_t) {
	t.mu.Lock()
	t.bitmap[pid] = false
	t.mu.Unlock()
	t.slots.Release(1)
}

/// Get returns the live PCB for pid, or nil if none is allocated.
func (t *Table_t) Get(pid defs.Pid_t) *Proc_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.procs[pid]
}

/// BaseShell returns the PID recorded as term's base shell, or 0 if
/// that terminal has none yet.
func (t *Table_t) BaseShell(term defs.Term_t) defs.Pid_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseShell[term]
}

/// HandleFor returns the syscall-only handle for pid, for a caller
/// (the raw-ABI syscall dispatcher) that only has a PID rather than
/// the Handle_t its Image closure was invoked with.
func (t *Table_t) HandleFor(pid defs.Pid_t, deps *Deps_t) *Handle_t {
	return &Handle_t{pid: pid, table: t, deps: deps}
}

/// UserBytes translates a user virtual address into the backing slice
/// of this task's loaded image, bounds-checked against the 4MiB user
/// range. It is how the raw register-ABI syscall path turns a BX/CX/DX
/// pointer+length pair into a Go byte slice.
func (p *Proc_t) UserBytes(vaddr uint32, length int) ([]byte, defs.Err_t) {
	if length < 0 {
		return nil, defs.EINVAL
	}
	base := uint32(paging.UserVirt)
	top := base + uint32(limits.PageSize4M)
	if vaddr < base || vaddr >= top {
		return nil, defs.EFAULT
	}
	off := int(vaddr - base)
	if off+length > len(p.image) || off+length < off {
		return nil, defs.EFAULT
	}
	return p.image[off : off+length], 0
}

func parseCommand(cmdline ustr.Ustr) (ustr.Ustr, ustr.Ustr) {
	if i := cmdline.IndexByte(' '); i >= 0 {
		return cmdline[:i], cmdline[i+1:]
	}
	return cmdline, ustr.Ustr{}
}

func (t *Table_t) spawn(term defs.Term_t, parentPID defs.Pid_t, cmdline ustr.Ustr, deps *Deps_t) (*Proc_t, defs.Err_t) {
	name, args := parseCommand(cmdline)
	if len(args) > limits.ArgMax {
		return nil, defs.E2BIG
	}

	file, operr := deps.OpenExecutable(name)
	if operr != 0 {
		return nil, defs.EINVAL
	}

	hdr := make([]byte, 40)
	n, _ := file.Read(hdr)
	if n < 40 || hdr[0] != 0x7f || hdr[1] != 'E' || hdr[2] != 'L' || hdr[3] != 'F' {
		file.Close()
		return nil, defs.ENOEXEC
	}
	entry := util.Readle32(hdr, 24)
	file.Seek(0)

	pid, ok := t.allocPID()
	if !ok {
		file.Close()
		return nil, defs.ENOSPC
	}

	dir := deps.Tables.TaskSpaceInit(pid)

	length := file.Length()
	if length > limits.PageSize4M {
		deps.Tables.Teardown(pid)
		t.freePID(pid)
		file.Close()
		return nil, defs.ENOEXEC
	}
	image := make([]byte, limits.PageSize4M)
	got, _ := file.Read(image[:length])
	file.Close()
	if got != length {
		deps.Tables.Teardown(pid)
		t.freePID(pid)
		return nil, defs.ENOEXEC
	}

	isBaseShell := false
	t.mu.Lock()
	if name.Eq(ustr.Ustr("shell")) && t.baseShell[term] == 0 {
		isBaseShell = true
		parentPID = defs.KernelPid
	}
	t.mu.Unlock()

	pcb := &Proc_t{
		PID:        pid,
		ParentPID:  parentPID,
		Term:       term,
		Dir:        dir,
		EntryPoint: entry,
		image:      image,
		createdAt:  accnt.Now(),
		resumeCh:   make(chan int, 1),
	}
	pcb.ArgLen = copy(pcb.Args[:], args)

	stdin, stdout := deps.NewStdio(term)
	pcb.Fds.Init(stdin, stdout, t.fileBudget)

	t.mu.Lock()
	t.procs[pid] = pcb
	if isBaseShell {
		t.baseShell[term] = pid
		pcb.ArgLen = 0
	}
	t.mu.Unlock()

	h := &Handle_t{pid: pid, table: t, deps: deps}
	img := deps.Images[name.String()]
	if img == nil {
		img = func(h *Handle_t) int { return h.Halt(0) }
	}
	go func() {
		current.SetCurrent(pid)
		defer func() {
			if recover() != nil {
				// A broken invariant inside user code parks this
				// task's goroutine forever. Other tasks keep
				// running, and the Execute call waiting on this
				// task never returns.
				if deps.PanicDump != nil {
					deps.PanicDump(pid, caller.Dump(0))
				}
				select {}
			}
			current.ClearCurrent()
		}()
		img(h)
	}()

	return pcb, 0
}

/// Execute parses cmdline into an executable name and argument
/// remainder, loads and validates its ELF32 header, allocates a PCB
/// and page directory, and blocks until the spawned task halts. If
/// cmdline names "shell" and term has no base shell yet, this PCB is
/// recorded as that terminal's base shell and, each time it halts, a
/// replacement "shell" is spawned automatically and this call keeps
/// waiting instead of returning.
func (t *Table_t) Execute(term defs.Term_t, parentPID defs.Pid_t, cmdline ustr.Ustr, deps *Deps_t) (int, defs.Err_t) {
	for {
		pcb, err := t.spawn(term, parentPID, cmdline, deps)
		if err != 0 {
			return -1, err
		}
		status := <-pcb.resumeCh
		if pcb.respawnBaseShell {
			cmdline = ustr.Ustr("shell")
			parentPID = defs.KernelPid
			continue
		}
		return status, 0
	}
}

func (t *Table_t) halt(pid defs.Pid_t, deps *Deps_t, status int) int {
	t.mu.Lock()
	pcb, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		panic("proc: halt of a pid with no live PCB")
	}
	wasBase := t.baseShell[pcb.Term] == pid
	if wasBase {
		t.baseShell[pcb.Term] = 0
	}
	delete(t.procs, pid)
	t.mu.Unlock()

	pcb.Fds.CloseAll()
	deps.Tables.Teardown(pid)
	t.freePID(pid)
	deps.RemapVideo(pid, pcb.ParentPID, pcb.Term)

	pcb.Accnt.Finish(pcb.createdAt)
	if parent := t.Get(pcb.ParentPID); parent != nil {
		parent.Accnt.Add(&pcb.Accnt)
	}

	pcb.respawnBaseShell = wasBase
	pcb.resumeCh <- status
	return status
}

/// NextPID implements the scheduler's round-robin tie-break: the next
/// allocated PID with a strictly greater index than current, wrapping
/// from limits.MaxTasks back to 1. It returns current if no other task
/// is allocated, and defs.KernelPid if none is allocated at all.
func (t *Table_t) NextPID(current defs.Pid_t) defs.Pid_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := int(current)
	for i := 1; i <= limits.MaxTasks; i++ {
		idx := ((cur-1+i)%limits.MaxTasks+limits.MaxTasks)%limits.MaxTasks + 1
		if t.bitmap[idx] {
			return defs.Pid_t(idx)
		}
	}
	return defs.KernelPid
}

/// TaskSwitch records that old left the CPU via the scheduler and asks
/// deps to remap video for the incoming task. It is pure book-keeping:
/// the goroutine running old keeps running; this only keeps the PCB
/// fields and the video mapping consistent with "new is now current".
func (t *Table_t) TaskSwitch(deps *Deps_t, old, new_ defs.Pid_t) {
	if old == new_ {
		return
	}
	if oldPcb := t.Get(old); oldPcb != nil {
		oldPcb.LeftVia = LeftViaScheduler
	}
	term := defs.Term_t(0)
	if newPcb := t.Get(new_); newPcb != nil {
		term = newPcb.Term
	}
	deps.RemapVideo(old, new_, term)
}

/// Handle_t is the syscall-only view of a running task, the Go
/// analogue of the boundary a real INT 0x80 trampoline enforces.
type Handle_t struct {
	pid   defs.Pid_t
	table *Table_t
	deps  *Deps_t
}

func (h *Handle_t) pcb() *Proc_t {
	h.table.mu.Lock()
	defer h.table.mu.Unlock()
	return h.table.procs[h.pid]
}

/// PID returns the calling task's own PID.
func (h *Handle_t) PID() defs.Pid_t {
	return h.pid
}

/// Read implements the read() syscall.
func (h *Handle_t) Read(fdno int, buf []byte) (int, defs.Err_t) {
	fdesc, err := h.pcb().Fds.Get(fdno)
	if err != 0 {
		return 0, err
	}
	return fdesc.Fops.Read(buf)
}

/// Write implements the write() syscall.
func (h *Handle_t) Write(fdno int, buf []byte) (int, defs.Err_t) {
	fdesc, err := h.pcb().Fds.Get(fdno)
	if err != 0 {
		return 0, err
	}
	return fdesc.Fops.Write(buf)
}

/// Open implements the open() syscall.
func (h *Handle_t) Open(name ustr.Ustr) (int, defs.Err_t) {
	fops, inode, err := h.deps.OpenByName(name)
	if err != 0 {
		return 0, err
	}
	return h.pcb().Fds.Open(fops, inode)
}

/// Close implements the close() syscall.
func (h *Handle_t) Close(fdno int) defs.Err_t {
	return h.pcb().Fds.Close(fdno)
}

/// Getargs implements the getargs() syscall: it copies the task's
/// argument buffer into buf, failing if buf is too small to hold it.
func (h *Handle_t) Getargs(buf []byte) defs.Err_t {
	p := h.pcb()
	if len(buf) < p.ArgLen {
		return defs.ENAMETOOLONG
	}
	copy(buf, p.Args[:p.ArgLen])
	return 0
}

/// Vidmap implements the vidmap() syscall.
func (h *Handle_t) Vidmap() (uintptr, defs.Err_t) {
	addr, ok := h.deps.Tables.VidmapInstall(h.pid)
	if !ok {
		return 0, defs.EINVAL
	}
	return addr, 0
}

/// SetHandler implements set_handler(): unimplemented by design.
func (h *Handle_t) SetHandler() defs.Err_t {
	return defs.ENOSYS
}

/// Sigreturn implements sigreturn(): unimplemented by design.
func (h *Handle_t) Sigreturn() defs.Err_t {
	return defs.ENOSYS
}

/// Execute implements the execute() syscall: it blocks the calling
/// task until the new one halts, returning its exit status.
func (h *Handle_t) Execute(cmdline ustr.Ustr) (int, defs.Err_t) {
	p := h.pcb()
	return h.table.Execute(p.Term, h.pid, cmdline, h.deps)
}

/// Halt implements the halt() syscall. Its return value is meant to
/// be used as the calling Image's own return statement.
func (h *Handle_t) Halt(status int) int {
	return h.table.halt(h.pid, h.deps, status)
}
