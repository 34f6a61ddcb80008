// Package fdops declares the operation-vector interface a file
// descriptor dispatches through, the "dynamic dispatch for file
// descriptors" design note's interface-style vtable choice: the
// concrete variant (terminal, RTC, directory, regular file) is an
// Fdops_i implementation, and the syscall layer only ever sees the
// interface.
package fdops

import "github.com/bjackson/ece391mp/defs"

/// Fdops_i is the capability set every open file descriptor exposes.
/// Close is always safe to call even on a descriptor whose driver has
/// nothing to release.
type Fdops_i interface {
	Read(buf []byte) (int, defs.Err_t)
	Write(buf []byte) (int, defs.Err_t)
	Close() defs.Err_t
}
