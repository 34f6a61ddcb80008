// Package kernel is the composition root: the singleton that owns
// global mutable state (page tables, the PID table, the current
// terminal, shell PIDs, keyboard/video buffers) and wires every
// subsystem package together the way the original source's collection
// of file-scope globals did, kept here instead behind one value so the
// uniprocessor-atomicity assumption the rest of the design depends on
// has a single home. Boot runs the init sequence in dependency order
// with interrupts masked, then unmasks and launches one shell per
// terminal.
package kernel

import (
	"fmt"
	"sync"
	"time"

	"github.com/bjackson/ece391mp/caller"
	"github.com/bjackson/ece391mp/circbuf"
	"github.com/bjackson/ece391mp/current"
	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/fdops"
	"github.com/bjackson/ece391mp/fs"
	"github.com/bjackson/ece391mp/intr"
	"github.com/bjackson/ece391mp/kbd"
	"github.com/bjackson/ece391mp/mem"
	"github.com/bjackson/ece391mp/paging"
	"github.com/bjackson/ece391mp/pic"
	"github.com/bjackson/ece391mp/pit"
	"github.com/bjackson/ece391mp/port"
	"github.com/bjackson/ece391mp/proc"
	"github.com/bjackson/ece391mp/rtc"
	"github.com/bjackson/ece391mp/syscalls"
	"github.com/bjackson/ece391mp/term"
	"github.com/bjackson/ece391mp/ustr"
)

// physPages sizes the simulated RAM arena: one page for the real video
// window plus one backing page per terminal, with slack for growth.
const physPages = 64

// scancodeQueueCap bounds the keyboard IRQ-to-decoder queue. A real
// keyboard IRQ fires once per make/break code and is always drained
// before the next one arrives; this is slack for the case where
// several keys are typed faster than the decoder goroutine runs.
const scancodeQueueCap = 16

/// Kernel_t is the process-wide singleton. Every field it owns is
/// mutated only with k.mu held, standing in for "interrupts disabled"
/// in a hosted simulator that has no real interrupt flag to clear.
type Kernel_t struct {
	mu sync.Mutex

	phys   *mem.Physmem_t
	tables *paging.Tables_t
	fsImg  *fs.Image_t

	terminals [defs.NumTerms]*term.Terminal_t
	screens   [defs.NumTerms]*term.Screen_t
	decoder   *kbd.Decoder_t

	bus        port.Bus
	pic        *pic.Pic_t
	pit        *pit.Pit_t
	rtcDev     *rtc.Rtc_t
	Dispatcher *intr.Dispatcher_t

	Procs    *proc.Table_t
	Deps     *proc.Deps_t
	Syscalls *syscalls.Table_t

	exceptionScreen *term.Screen_t

	videoPhys       mem.Pa_t
	backing         [defs.NumTerms]mem.Pa_t
	currentTerminal defs.Term_t
	scancodes       *circbuf.Circbuf_t
	schedCur        defs.Pid_t
}

func (k *Kernel_t) windowFor(t defs.Term_t) []byte {
	k.mu.Lock()
	current := k.currentTerminal
	k.mu.Unlock()
	if t == current {
		return k.phys.Dmap8(k.videoPhys)[:term.ScreenBytes]
	}
	return k.phys.Dmap8(k.backing[t])[:term.ScreenBytes]
}

// New parses fsData as the boot filesystem module and wires every
// subsystem together. It performs no I/O and starts no goroutines;
// call Boot to bring the machine up.
func New(fsData []byte) (*Kernel_t, defs.Err_t) {
	img, err := fs.NewImage(fsData)
	if err != 0 {
		return nil, err
	}

	k := &Kernel_t{
		phys:   mem.NewPhysmem(physPages),
		tables: paging.NewTables(),
		fsImg:  img,
		bus:    port.NewSim(),
		Procs:  proc.NewTable(),

		scancodes: circbuf.New(scancodeQueueCap),
	}

	videoPhys, ok := k.phys.Refpg_new()
	if !ok {
		panic("kernel: no physical page available for the video window")
	}
	k.videoPhys = videoPhys
	k.tables.InstallKernelMapping(videoPhys)

	for t := defs.Term_t(0); t < defs.NumTerms; t++ {
		backing, ok := k.phys.Refpg_new()
		if !ok {
			panic("kernel: no physical page available for a terminal backing store")
		}
		k.backing[t] = backing
		k.terminals[t] = term.NewTerminal(t)
		idx := t
		k.screens[t] = &term.Screen_t{Window: func() []byte { return k.windowFor(idx) }}
	}

	k.exceptionScreen = &term.Screen_t{Window: func() []byte {
		return k.phys.Dmap8(k.videoPhys)[:term.ScreenBytes]
	}}

	k.pic = pic.New(k.bus)
	k.pit = pit.New(k.bus)
	k.rtcDev = rtc.New(k.bus)

	k.decoder = &kbd.Decoder_t{
		Sink: func(c byte) {
			t := k.CurrentTerminal()
			k.terminals[t].WriteKey(k.screens[t], c)
		},
		OnClear: func() {
			t := k.CurrentTerminal()
			k.terminals[t].Clear(k.screens[t])
		},
		OnInterrupt: func() {
			k.mu.Lock()
			cur := k.schedCur
			k.mu.Unlock()
			if cur == defs.KernelPid {
				return
			}
			k.Procs.HandleFor(cur, k.Deps).Halt(0)
		},
		OnDebugPID: func() {
			k.mu.Lock()
			cur := k.schedCur
			k.mu.Unlock()
			var parent defs.Pid_t
			if p := k.Procs.Get(cur); p != nil {
				parent = p.ParentPID
			}
			t := k.CurrentTerminal()
			term.Write(k.screens[t], []byte(fmt.Sprintf("pid=%d ppid=%d\n", cur, parent)))
		},
		OnSwitchTerm: func(t int) { k.SwitchTerminal(defs.Term_t(t)) },
	}

	k.Deps = &proc.Deps_t{
		Tables:         k.tables,
		OpenExecutable: k.openExecutable,
		OpenByName:     k.openByName,
		NewStdio:       k.newStdio,
		RemapVideo:     k.remapVideo,
		Images:         map[string]proc.Image_t{"shell": shellImage},
		PanicDump:      k.dumpTaskPanic,
	}
	k.Syscalls = &syscalls.Table_t{Procs: k.Procs, Deps: k.Deps}

	k.Dispatcher = &intr.Dispatcher_t{
		Idt: intr.NewIdt(),
		Pic: k.pic,

		ClearScreen: k.exceptionScreen.Clear,
		Print:       func(s string) { term.Write(k.exceptionScreen, []byte(s)) },
		Halt:        func() { select {} },
		Faults:      &caller.Distinct_t{Enabled: true},

		SchedulerTick: k.schedulerTick,
		DrainScancode: func() uint8 {
			k.mu.Lock()
			defer k.mu.Unlock()
			sc, _ := k.scancodes.Pop()
			return sc
		},
		FeedScancode: k.decoder.Feed,

		AckRTC: k.rtcDev.OnIRQ,

		Syscall: func(num defs.Sysnum_t, args [5]uint32) int {
			pid := current.Current().(defs.Pid_t)
			return k.Syscalls.Dispatch(pid, num, args)
		},
	}

	return k, 0
}

// Boot runs install_kernel_mapping's hardware counterparts (PIC, RTC,
// PIT) with both controllers fully masked, then unmasks the lines this
// kernel drives and launches one shell per terminal.
func (k *Kernel_t) Boot() {
	k.pic.Init()
	k.rtcDev.Init()
	k.pit.InitScheduler()

	for t := defs.Term_t(0); t < defs.NumTerms; t++ {
		k.terminals[t].Clear(k.screens[t])
	}

	go k.tickLoop(pit.SchedulerHz, intr.VecTimer)
	go k.tickLoop(rtc.MaxHz, intr.VecRTC)

	k.pic.EnableIRQ(0)
	k.pic.EnableIRQ(1)
	k.pic.EnableIRQ(2)
	k.pic.EnableIRQ(8)

	for t := defs.Term_t(0); t < defs.NumTerms; t++ {
		go k.spawnShell(t)
	}
}

func (k *Kernel_t) tickLoop(hz int, vector int) {
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for range ticker.C {
		k.Dispatcher.Dispatch(&intr.Frame_t{Vector: vector})
	}
}

func (k *Kernel_t) spawnShell(t defs.Term_t) {
	k.Procs.Execute(t, defs.KernelPid, ustr.Ustr("shell"), k.Deps)
}

// schedulerTick implements the round-robin bookkeeping the timer IRQ
// drives. Every task's Image already runs on its own goroutine, so
// this does not actually context-switch the CPU; it keeps the PCB
// "left via scheduler" flags and the video mapping consistent with
// which PID the design considers current, the same pure-bookkeeping
// contract proc.Table_t.TaskSwitch documents.
func (k *Kernel_t) schedulerTick() {
	k.mu.Lock()
	cur := k.schedCur
	k.mu.Unlock()
	next := k.Procs.NextPID(cur)
	if next == cur {
		return
	}
	k.Procs.TaskSwitch(k.Deps, cur, next)
	k.mu.Lock()
	k.schedCur = next
	k.mu.Unlock()
}

// CurrentTerminal returns the index of the visible terminal.
func (k *Kernel_t) CurrentTerminal() defs.Term_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.currentTerminal
}

// KeyPress feeds one raw scancode through the same path a real
// keyboard IRQ would: push onto the scancode queue, then dispatch the
// IRQ that drains it via DrainScancode/FeedScancode. A scancode
// arriving while the queue is full is dropped, matching a real 16550-
// style FIFO overrun under a keystorm no single-byte register could
// ever survive either.
func (k *Kernel_t) KeyPress(sc uint8) {
	k.mu.Lock()
	k.scancodes.Push(sc)
	k.mu.Unlock()
	k.Dispatcher.Dispatch(&intr.Frame_t{Vector: intr.VecKeyboard})
}

// dumpTaskPanic renders a broken task invariant the same way a
// hardware exception is rendered: clear the visible screen, print the
// offending PID, and print the Go backtrace in place of a disassembled
// faulting instruction, since there is no real EIP to decode here.
func (k *Kernel_t) dumpTaskPanic(pid defs.Pid_t, trace string) {
	k.exceptionScreen.Clear()
	term.Write(k.exceptionScreen, []byte(fmt.Sprintf("Task %d: broken invariant\n", pid)))
	term.Write(k.exceptionScreen, []byte(trace))
}

// SwitchTerminal implements Alt+F1..F3: it bulk-copies the physical
// video window to/from backing stores and either spawns a fresh base
// shell or schedules the destination terminal's base shell as current.
// The cursor is not copied: each terminal's Screen_t keeps its own.
func (k *Kernel_t) SwitchTerminal(newTerm defs.Term_t) {
	k.mu.Lock()
	old := k.currentTerminal
	if old == newTerm {
		k.mu.Unlock()
		return
	}
	k.currentTerminal = newTerm
	k.mu.Unlock()

	k.switchActiveTerminalScreen(old, newTerm)

	if k.Procs.BaseShell(newTerm) == 0 {
		go k.spawnShell(newTerm)
		return
	}

	active := k.Procs.BaseShell(newTerm)
	k.mu.Lock()
	cur := k.schedCur
	k.mu.Unlock()
	k.Procs.TaskSwitch(k.Deps, cur, active)
	k.mu.Lock()
	k.schedCur = active
	k.mu.Unlock()
}

func (k *Kernel_t) switchActiveTerminalScreen(old, new_ defs.Term_t) {
	videoWin := k.phys.Dmap8(k.videoPhys)[:term.ScreenBytes]
	oldBacking := k.phys.Dmap8(k.backing[old])[:term.ScreenBytes]
	newBacking := k.phys.Dmap8(k.backing[new_])[:term.ScreenBytes]

	copy(oldBacking, videoWin)
	copy(videoWin, newBacking)
}

// remapVideo is proc.Deps_t's hook: oldPid and newPid are always
// understood to belong to the same terminal (a task's terminal never
// changes across its lifetime), so the single trm argument suffices
// for paging.Tables_t.RemapVideo's richer per-side signature.
func (k *Kernel_t) remapVideo(oldPid, newPid defs.Pid_t, trm defs.Term_t) {
	k.tables.RemapVideo(oldPid, newPid, trm, trm, k.CurrentTerminal(), k.backing)
}

func (k *Kernel_t) openExecutable(name ustr.Ustr) (*fs.File_t, defs.Err_t) {
	d, err := k.fsImg.ReadDentryByName(name)
	if err != 0 {
		return nil, err
	}
	return k.fsImg.NewFileReader(d.Inode), 0
}

func (k *Kernel_t) openByName(name ustr.Ustr) (fdops.Fdops_i, int, defs.Err_t) {
	d, err := k.fsImg.ReadDentryByName(name)
	if err != 0 {
		return nil, 0, err
	}
	switch d.Type {
	case defs.DTypeRTC:
		return &rtcFile_t{r: k.rtcDev}, d.Inode, 0
	case defs.DTypeDir:
		return k.fsImg.NewDirReader(), d.Inode, 0
	default:
		return k.fsImg.NewFileReader(d.Inode), d.Inode, 0
	}
}

func (k *Kernel_t) newStdio(t defs.Term_t) (fdops.Fdops_i, fdops.Fdops_i) {
	tty := &ttyFile_t{term: k.terminals[t], scr: k.screens[t]}
	return tty, tty
}

/// ttyFile_t adapts a terminal's line buffer and screen to the
/// Fdops_i a file descriptor slot expects, backing stdin and stdout.
type ttyFile_t struct {
	term *term.Terminal_t
	scr  *term.Screen_t
}

func (f *ttyFile_t) Read(buf []byte) (int, defs.Err_t)  { return f.term.Read(buf) }
func (f *ttyFile_t) Write(buf []byte) (int, defs.Err_t) { return term.Write(f.scr, buf) }
func (f *ttyFile_t) Close() defs.Err_t                  { return 0 }

var _ fdops.Fdops_i = (*ttyFile_t)(nil)

/// rtcFile_t adapts the RTC device to Fdops_i for a file descriptor
/// opened against the RTC dentry.
type rtcFile_t struct {
	r *rtc.Rtc_t
}

func (f *rtcFile_t) Read(buf []byte) (int, defs.Err_t) {
	f.r.Read()
	return 0, 0
}

func (f *rtcFile_t) Write(buf []byte) (int, defs.Err_t) {
	if err := f.r.Write(buf); err != 0 {
		return 0, err
	}
	return len(buf), 0
}

func (f *rtcFile_t) Close() defs.Err_t { return 0 }

var _ fdops.Fdops_i = (*rtcFile_t)(nil)
