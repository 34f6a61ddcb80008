package kernel

import (
	"github.com/bjackson/ece391mp/limits"
	"github.com/bjackson/ece391mp/proc"
	"github.com/bjackson/ece391mp/ustr"
)

const shellPrompint = "391OS> "

// shellImage is the built-in base shell every terminal's proc.Table_t
// spawns at boot and respawns whenever its previous occupant halts: a
// prompt, a line read from stdin, and an execute of whatever command
// line came back. It implements no builtins of its own; "cat", "ls"
// and friends are ordinary executables the filesystem image supplies.
func shellImage(h *proc.Handle_t) int {
	var line [limits.LineMax]byte
	for {
		h.Write(1, []byte(shellPrompint))

		n, err := h.Read(0, line[:])
		if err != 0 {
			return h.Halt(1)
		}
		cmd := trimNewline(line[:n])
		if len(cmd) == 0 {
			continue
		}

		h.Execute(ustr.Ustr(cmd))
	}
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}
