// Package syscalls decodes the raw register-ABI side of a trap into a
// proc.Handle_t call: INT 0x80 delivers the call number in AX and up
// to three arguments in BX/CX/DX, with pointer arguments naming user
// virtual addresses rather than Go values. This package is where that
// decoding happens, translating user pointers via proc.Proc_t.UserBytes
// before handing off to the same Handle_t surface an Image closure
// uses directly.
package syscalls

import (
	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/proc"
	"github.com/bjackson/ece391mp/ustr"
)

// maxCstring bounds how far Dispatch scans a user pointer looking for
// the NUL terminator on a command line or filename argument.
const maxCstring = 128 + 1

/// Table_t binds the decoding in this package to the process table and
/// subsystem handles a real call needs to reach.
type Table_t struct {
	Procs *proc.Table_t
	Deps  *proc.Deps_t
}

func (s *Table_t) pcb(pid defs.Pid_t) *proc.Proc_t {
	return s.Procs.Get(pid)
}

func readCstring(p *proc.Proc_t, vaddr uint32) (ustr.Ustr, defs.Err_t) {
	window, err := p.UserBytes(vaddr, maxCstring)
	if err != 0 {
		return nil, defs.EFAULT
	}
	return ustr.MkUstrSlice(window), 0
}

/// Dispatch decodes args per num's BX/CX/DX convention and invokes the
/// matching Handle_t call for pid, returning the architectural return
/// value: non-negative on success, a negative defs.Err_t on failure.
/// It implements the exact signature intr.Dispatcher_t.Syscall expects.
func (s *Table_t) Dispatch(pid defs.Pid_t, num defs.Sysnum_t, args [5]uint32) int {
	h := s.Procs.HandleFor(pid, s.Deps)
	bx, cx, dx := args[0], args[1], args[2]

	switch num {
	case defs.SysHalt:
		return h.Halt(int(uint8(bx)))

	case defs.SysExecute:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		cmd, err := readCstring(p, bx)
		if err != 0 {
			return int(err)
		}
		status, err := h.Execute(cmd)
		if err != 0 {
			return -1
		}
		return status

	case defs.SysRead:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		buf, err := p.UserBytes(cx, int(dx))
		if err != 0 {
			return int(err)
		}
		n, err := h.Read(int(bx), buf)
		if err != 0 {
			return -1
		}
		return n

	case defs.SysWrite:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		buf, err := p.UserBytes(cx, int(dx))
		if err != 0 {
			return int(err)
		}
		n, err := h.Write(int(bx), buf)
		if err != 0 {
			return -1
		}
		return n

	case defs.SysOpen:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		name, err := readCstring(p, bx)
		if err != 0 {
			return int(err)
		}
		fdno, err := h.Open(name)
		if err != 0 {
			return -1
		}
		return fdno

	case defs.SysClose:
		if err := h.Close(int(bx)); err != 0 {
			return -1
		}
		return 0

	case defs.SysGetargs:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		buf, err := p.UserBytes(bx, int(cx))
		if err != 0 {
			return int(err)
		}
		if gerr := h.Getargs(buf); gerr != 0 {
			return -1
		}
		return 0

	case defs.SysVidmap:
		p := s.pcb(pid)
		if p == nil {
			return int(defs.EFAULT)
		}
		out, err := p.UserBytes(bx, 4)
		if err != 0 {
			return -1
		}
		addr, verr := h.Vidmap()
		if verr != 0 {
			return -1
		}
		out[0] = byte(addr)
		out[1] = byte(addr >> 8)
		out[2] = byte(addr >> 16)
		out[3] = byte(addr >> 24)
		return 0

	case defs.SysSetHandler:
		h.SetHandler()
		return -1

	case defs.SysSigreturn:
		h.Sigreturn()
		return -1

	default:
		return int(defs.EINVAL)
	}
}
