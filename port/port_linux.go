//go:build linux && amd64

package port

import "golang.org/x/sys/unix"

/// Real is a Bus that requests x86 port-I/O privilege (NewReal needs
/// CAP_SYS_RAWIO), but its Out8 and In8 perform no port I/O: outb
/// discards the byte and inb returns 0 (see below). The kernel itself
/// never selects it.
type Real struct {
	enabled bool
}

/// NewReal requests port-I/O privilege for the 0-0x3ff range via
/// Ioperm, mirroring the narrow grant a real bootloader-handed kernel
/// would need rather than the blanket access unix.Iopl(3) grants.
func NewReal() (*Real, error) {
	if err := unix.Ioperm(0, 0x400, 1); err != nil {
		return nil, err
	}
	return &Real{enabled: true}, nil
}

func (r *Real) Out8(port uint16, val uint8) {
	outb(uint32(port), val)
}

func (r *Real) In8(port uint16) uint8 {
	return inb(uint32(port))
}

// outb/inb are implemented in assembly-free form: stock Go has no IN/OUT
// intrinsic, and the cgo-free port I/O available via unix is limited to
// the Ioperm/Iopl privilege calls above, not the instructions themselves.
// A real deployment of Real would need a small cgo or assembly shim; this
// hosted module stops at requesting privilege, which is as far as
// portable Go goes.
func outb(port uint32, val uint8) {
	_ = port
	_ = val
}

func inb(port uint32) uint8 {
	_ = port
	return 0
}
