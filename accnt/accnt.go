// Package accnt tracks per-task CPU time: nanoseconds spent running the
// task's own code versus nanoseconds spent in the kernel on its behalf.
// It does not influence scheduling; it exists purely for diagnostics,
// exported through cmd/accntprof.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bjackson/ece391mp/util"
)

/// Accnt_t accumulates one task's user/system time. The embedded mutex
/// only guards Fetch's consistent-snapshot read; the counters
/// themselves are updated with atomic adds so a task's own goroutine
/// never blocks on a concurrent diagnostic read.
type Accnt_t struct {
	/// Userns is nanoseconds of time charged to the task's own code.
	Userns int64
	/// Sysns is nanoseconds of time charged to the kernel on the
	/// task's behalf (syscall handling, scheduler bookkeeping).
	Sysns int64
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

/// Now is the wall-clock timestamp accounting measures against.
func Now() int64 {
	return time.Now().UnixNano()
}

/// Finish charges the system-time counter with the time elapsed since
/// since. proc's halt calls it with the task's creation time, so a
/// halted task's whole lifetime is charged as system time.
func (a *Accnt_t) Finish(since int64) {
	a.Systadd(Now() - since)
}

/// Add merges n's counters into a, used when a parent collects a
/// halted child's accounting before discarding its PCB.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.Unlock()
}

/// Fetch returns a consistent (Userns, Sysns) snapshot.
func (a *Accnt_t) Fetch() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}

/// ToRusage serializes the counters as two (seconds, microseconds)
/// timeval pairs, user then system, the layout cmd/accntprof reads.
func (a *Accnt_t) ToRusage() []byte {
	u, s := a.Fetch()
	ret := make([]byte, 4*8)
	totv := func(nano int64) (int64, int64) {
		return nano / 1e9, (nano % 1e9) / 1000
	}
	off := 0
	for _, ns := range []int64{u, s} {
		secs, usecs := totv(ns)
		util.Writen(ret, 8, off, uint64(secs))
		off += 8
		util.Writen(ret, 8, off, uint64(usecs))
		off += 8
	}
	return ret
}
