package intr

import (
	"strings"
	"testing"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/pic"
	"github.com/bjackson/ece391mp/port"
)

func newDispatcher(t *testing.T) (*Dispatcher_t, *port.Sim) {
	t.Helper()
	bus := port.NewSim()
	p := pic.New(bus)
	p.Init()
	return &Dispatcher_t{
		Idt:           NewIdt(),
		Pic:           p,
		ClearScreen:   func() {},
		Print:         func(string) {},
		Halt:          func() {},
		SchedulerTick: func() {},
		DrainScancode: func() uint8 { return 0 },
		FeedScancode:  func(uint8) {},
		AckRTC:        func() {},
		Syscall:       func(defs.Sysnum_t, [5]uint32) int { return 0 },
	}, bus
}

func TestNewIdtExceptionGates(t *testing.T) {
	idt := NewIdt()
	for v := 0; v <= 19; v++ {
		g := idt.Gate(v)
		if !g.Present {
			t.Fatalf("vector %d should be present", v)
		}
	}
	if g := idt.Gate(VecNMI); g.Kind != InterruptGate {
		t.Fatal("NMI should be an interrupt gate")
	}
	if g := idt.Gate(VecPageFault); g.Kind != InterruptGate {
		t.Fatal("page fault should be an interrupt gate")
	}
	if g := idt.Gate(VecDivideError); g.Kind != TrapGate || g.DPL != 0 {
		t.Fatal("divide error should be a DPL 0 trap gate")
	}
}

func TestNewIdtUserAccessibleGates(t *testing.T) {
	idt := NewIdt()
	for _, v := range []int{VecBreakpoint, VecOverflow, VecBoundRange, VecSyscall} {
		g := idt.Gate(v)
		if g.Kind != TrapGate || g.DPL != 3 {
			t.Fatalf("vector %d = %+v, want DPL 3 trap gate", v, g)
		}
	}
}

func TestNewIdtDeviceGatesAreInterruptGates(t *testing.T) {
	idt := NewIdt()
	for _, v := range []int{VecTimer, VecKeyboard, VecRTC} {
		g := idt.Gate(v)
		if g.Kind != InterruptGate || g.DPL != 0 {
			t.Fatalf("vector %d = %+v, want DPL 0 interrupt gate", v, g)
		}
	}
}

func TestDispatchTimerTicksAndEOIsMaster(t *testing.T) {
	d, bus := newDispatcher(t)
	ticked := false
	d.SchedulerTick = func() { ticked = true }
	d.Dispatch(&Frame_t{Vector: VecTimer})
	if !ticked {
		t.Fatal("timer dispatch should call SchedulerTick")
	}
	v, _ := bus.LastWrite(pic.MasterCommand)
	if v != 0x60 {
		t.Fatalf("EOI command = %#x, want 0x60", v)
	}
}

func TestDispatchKeyboardDrainsAndFeeds(t *testing.T) {
	d, _ := newDispatcher(t)
	d.DrainScancode = func() uint8 { return 0x1e }
	var fed uint8
	d.FeedScancode = func(sc uint8) { fed = sc }
	d.Dispatch(&Frame_t{Vector: VecKeyboard})
	if fed != 0x1e {
		t.Fatalf("fed scancode = %#x, want 0x1e", fed)
	}
}

func TestDispatchRTCAcksAndCascadesEOI(t *testing.T) {
	d, bus := newDispatcher(t)
	acked := false
	d.AckRTC = func() { acked = true }
	d.Dispatch(&Frame_t{Vector: VecRTC})
	if !acked {
		t.Fatal("RTC dispatch should call AckRTC")
	}
	if v, _ := bus.LastWrite(pic.SlaveCommand); v != 0x60 {
		t.Fatalf("slave EOI = %#x, want 0x60", v)
	}
	if v, _ := bus.LastWrite(pic.MasterCommand); v != 0x62 {
		t.Fatalf("master cascade EOI = %#x, want 0x62", v)
	}
}

func TestDispatchSyscallInvokesHandlerAndWritesRet(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Syscall = func(num defs.Sysnum_t, args [5]uint32) int {
		if num != defs.SysWrite {
			t.Fatalf("syscall number = %v, want SysWrite", num)
		}
		return 42
	}
	frame := &Frame_t{Vector: VecSyscall, Syscall: defs.SysWrite}
	d.Dispatch(frame)
	if frame.Ret != 42 {
		t.Fatalf("Ret = %d, want 42", frame.Ret)
	}
}

func TestDispatchExceptionPrintsAndHalts(t *testing.T) {
	d, _ := newDispatcher(t)
	var out strings.Builder
	halted := false
	d.Print = func(s string) { out.WriteString(s) }
	d.Halt = func() { halted = true }
	d.Dispatch(&Frame_t{Vector: VecGeneralProtection})
	if !halted {
		t.Fatal("exception dispatch should call Halt")
	}
	if !strings.Contains(out.String(), "General Protection Fault") {
		t.Fatalf("output = %q, want it to mention the exception name", out.String())
	}
}

func TestDispatchPageFaultDecodesErrorBits(t *testing.T) {
	d, _ := newDispatcher(t)
	var out strings.Builder
	d.Print = func(s string) { out.WriteString(s) }
	d.Dispatch(&Frame_t{Vector: VecPageFault, CR2: 0xdeadbeef, ErrorCode: 0x3})
	s := out.String()
	if !strings.Contains(s, "deadbeef") {
		t.Fatalf("output should contain CR2, got %q", s)
	}
	if !strings.Contains(s, "present=true") || !strings.Contains(s, "write=true") {
		t.Fatalf("output should decode present/write bits, got %q", s)
	}
}

func TestDispatchUnknownVectorWithoutGatePanics(t *testing.T) {
	d, _ := newDispatcher(t)
	defer func() {
		if recover() == nil {
			t.Fatal("dispatching an unassigned vector should panic")
		}
	}()
	d.Dispatch(&Frame_t{Vector: 200})
}

func TestDispatchIncludesDisassemblyWhenCodeAtIsSet(t *testing.T) {
	d, _ := newDispatcher(t)
	var out strings.Builder
	d.Print = func(s string) { out.WriteString(s) }
	d.CodeAt = func(eip uint32) []byte { return []byte{0x90} } // NOP
	d.Dispatch(&Frame_t{Vector: VecInvalidOpcode, EIP: 0x1000})
	if !strings.Contains(out.String(), "0x001000") {
		t.Fatalf("output should mention the faulting EIP, got %q", out.String())
	}
}
