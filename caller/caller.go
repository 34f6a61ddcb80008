// Package caller formats Go call stacks for the exception diagnostic
// dump: when a task's goroutine panics on a broken kernel invariant,
// the recovering handler prints the chain of callers the way a real
// fault handler would print a backtrace from the faulting frame.
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

/// Dump renders the call stack starting skip frames up from Dump itself
/// (skip 0 starts at Dump's own frame), one "file:line" per line,
/// oldest caller last.
func Dump(skip int) string {
	s := ""
	for i := skip; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", file, line)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", file, line)
		}
	}
	return s
}

/// Distinct_t records which call chains have already been reported, so
/// a recurring fault (the same broken invariant hit from the same
/// ancestor chain) is only dumped once.
type Distinct_t struct {
	sync.Mutex
	Enabled bool
	seen    map[uintptr]bool
}

func pchash(pcs []uintptr) uintptr {
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

/// Len returns the number of distinct call chains recorded so far.
func (d *Distinct_t) Len() int {
	d.Lock()
	defer d.Unlock()
	return len(d.seen)
}

/// Seen reports whether the calling chain, as of three frames above
/// Seen itself, has already been recorded; if not, it records it and
/// returns a formatted frame dump.
func (d *Distinct_t) Seen() (bool, string) {
	d.Lock()
	defer d.Unlock()
	if !d.Enabled {
		return false, ""
	}
	if d.seen == nil {
		d.seen = make(map[uintptr]bool)
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return false, ""
	}
	pcs = pcs[:n]

	h := pchash(pcs)
	if d.seen[h] {
		return false, ""
	}
	d.seen[h] = true

	frames := runtime.CallersFrames(pcs)
	fs := ""
	for {
		fr, more := frames.Next()
		if fs == "" {
			fs = fmt.Sprintf("%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		} else {
			fs += fmt.Sprintf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, fs
}
