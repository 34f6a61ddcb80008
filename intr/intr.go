// Package intr models the IDT and the common trampoline's dispatch
// rules: which vectors are trap versus interrupt gates, and what each
// vector's handler does once the trampoline has funneled control to a
// single dispatch point. The 256-entry table and the gate records are
// plain data — there is no real CPU to install them into — but the
// gate kind/DPL assigned to each vector, and the actions Dispatch
// takes per vector, mirror the real trampoline's contract exactly.
package intr

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/bjackson/ece391mp/caller"
	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/pic"
)

// The closed set of vectors this kernel ever dispatches.
const (
	VecDivideError        = 0
	VecDebug              = 1
	VecNMI                = 2
	VecBreakpoint         = 3
	VecOverflow           = 4
	VecBoundRange         = 5
	VecInvalidOpcode      = 6
	VecDeviceNotAvailable = 7
	VecDoubleFault        = 8
	VecCoprocessorSeg     = 9
	VecInvalidTSS         = 10
	VecSegmentNotPresent  = 11
	VecStackFault         = 12
	VecGeneralProtection  = 13
	VecPageFault          = 14
	VecReserved15         = 15
	VecFPError            = 16
	VecAlignmentCheck     = 17
	VecMachineCheck       = 18
	VecSIMDFP             = 19

	VecTimer    = 32
	VecKeyboard = 33
	VecRTC      = 40
	VecSyscall  = 128
)

var exceptionNames = map[int]string{
	VecDivideError:        "Divide Error",
	VecDebug:              "Debug Exception",
	VecNMI:                "NMI Interrupt",
	VecBreakpoint:         "Breakpoint",
	VecOverflow:           "Overflow",
	VecBoundRange:         "BOUND Range Exceeded",
	VecInvalidOpcode:      "Invalid Opcode",
	VecDeviceNotAvailable: "Device Not Available",
	VecDoubleFault:        "Double Fault",
	VecCoprocessorSeg:     "Coprocessor Segment Overrun",
	VecInvalidTSS:         "Invalid TSS",
	VecSegmentNotPresent:  "Segment Not Present",
	VecStackFault:         "Stack-Segment Fault",
	VecGeneralProtection:  "General Protection Fault",
	VecPageFault:          "Page Fault",
	VecReserved15:         "(reserved)",
	VecFPError:            "x87 FPU Floating-Point Error",
	VecAlignmentCheck:     "Alignment Check",
	VecMachineCheck:       "Machine Check",
	VecSIMDFP:             "SIMD Floating-Point Exception",
}

/// GateKind distinguishes trap gates (which leave IF untouched) from
/// interrupt gates (which clear IF on entry).
type GateKind int

const (
	TrapGate GateKind = iota
	InterruptGate
)

/// Gate_t is one IDT entry: whether it's installed, its kind, and the
/// privilege level allowed to invoke it via INT.
type Gate_t struct {
	Present bool
	Kind    GateKind
	DPL     int
}

/// Idt_t is the 256-entry interrupt descriptor table.
type Idt_t struct {
	gates [256]Gate_t
}

/// NewIdt builds the table this kernel uses: trap gates at DPL 0 for
/// exceptions 0..19, except NMI and page fault which are interrupt
/// gates; interrupt gates for the timer, keyboard, and RTC; and trap
/// gates at DPL 3 for INT3/INTO/BOUND and the syscall vector so user
/// code may invoke them directly.
func NewIdt() *Idt_t {
	idt := &Idt_t{}
	for v := 0; v <= 19; v++ {
		kind := TrapGate
		if v == VecNMI || v == VecPageFault {
			kind = InterruptGate
		}
		idt.gates[v] = Gate_t{Present: true, Kind: kind, DPL: 0}
	}
	idt.gates[VecBreakpoint] = Gate_t{Present: true, Kind: TrapGate, DPL: 3}
	idt.gates[VecOverflow] = Gate_t{Present: true, Kind: TrapGate, DPL: 3}
	idt.gates[VecBoundRange] = Gate_t{Present: true, Kind: TrapGate, DPL: 3}

	idt.gates[VecTimer] = Gate_t{Present: true, Kind: InterruptGate, DPL: 0}
	idt.gates[VecKeyboard] = Gate_t{Present: true, Kind: InterruptGate, DPL: 0}
	idt.gates[VecRTC] = Gate_t{Present: true, Kind: InterruptGate, DPL: 0}
	idt.gates[VecSyscall] = Gate_t{Present: true, Kind: TrapGate, DPL: 3}
	return idt
}

/// Gate returns the descriptor installed at vector.
func (idt *Idt_t) Gate(vector int) Gate_t {
	return idt.gates[vector]
}

/// Frame_t is the register/vector state the common trampoline would
/// have pushed before calling the dispatcher.
type Frame_t struct {
	Vector    int
	ErrorCode uint32
	EIP       uint32
	CR2       uint32 // meaningful only when Vector == VecPageFault

	Syscall defs.Sysnum_t
	Args    [5]uint32
	Ret     int // written back by the syscall handler
}

/// Dispatcher_t implements the dispatcher rules spec.md §4.2 names,
/// one callback field per action so the kernel package wires them to
/// the real subsystems without this package importing any of them.
type Dispatcher_t struct {
	Idt *Idt_t
	Pic *pic.Pic_t

	ClearScreen func()
	Print       func(string)
	Halt        func()

	SchedulerTick func()
	DrainScancode func() uint8
	FeedScancode  func(uint8)

	AckRTC func()

	Syscall func(num defs.Sysnum_t, args [5]uint32) int

	// CodeAt optionally returns the bytes at a faulting EIP so the
	// exception dump can include a best-effort disassembly.
	CodeAt func(eip uint32) []byte

	// Faults dedups repeating exception dumps by call chain; nil
	// disables the backtrace line entirely.
	Faults *caller.Distinct_t
}

/// Dispatch demultiplexes frame to the action its vector names. It
/// panics if no gate is installed or the vector is none of the ones
/// this kernel recognizes, mirroring an undemuxed spurious interrupt.
func (d *Dispatcher_t) Dispatch(frame *Frame_t) {
	if !d.Idt.Gate(frame.Vector).Present {
		panic(fmt.Sprintf("intr: vector %d has no gate installed", frame.Vector))
	}
	switch {
	case frame.Vector <= 19:
		d.dumpException(frame)
		d.Halt()
	case frame.Vector == VecTimer:
		d.SchedulerTick()
		d.Pic.SendEOI(0)
	case frame.Vector == VecKeyboard:
		sc := d.DrainScancode()
		d.FeedScancode(sc)
		d.Pic.SendEOI(1)
	case frame.Vector == VecRTC:
		d.AckRTC()
		d.Pic.SendEOI(8)
	case frame.Vector == VecSyscall:
		frame.Ret = d.Syscall(frame.Syscall, frame.Args)
	default:
		panic(fmt.Sprintf("intr: no dispatch rule for vector %d", frame.Vector))
	}
}

func (d *Dispatcher_t) dumpException(frame *Frame_t) {
	d.ClearScreen()
	d.Print(fmt.Sprintf("Exception %d: %s\n", frame.Vector, exceptionNames[frame.Vector]))
	if frame.Vector == VecPageFault {
		d.Print(fmt.Sprintf("CR2=%#08x\n", frame.CR2))
		d.Print(decodePFError(frame.ErrorCode))
	}
	if d.Faults != nil {
		if fresh, trace := d.Faults.Seen(); fresh {
			d.Print(trace)
		}
	}
	if d.CodeAt == nil {
		return
	}
	code := d.CodeAt(frame.EIP)
	if len(code) == 0 {
		return
	}
	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		d.Print(fmt.Sprintf("%#08x: <undecodable: %v>\n", frame.EIP, err))
		return
	}
	d.Print(fmt.Sprintf("%#08x: %s\n", frame.EIP, x86asm.GNUSyntax(inst, uint64(frame.EIP), nil)))
}

// decodePFError renders a page fault's error code bits: bit 0 present,
// bit 1 write, bit 2 user, bit 3 reserved-bit-set.
func decodePFError(errcode uint32) string {
	return fmt.Sprintf("present=%v write=%v user=%v reserved=%v\n",
		errcode&1 != 0, errcode&2 != 0, errcode&4 != 0, errcode&8 != 0)
}
