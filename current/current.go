// Package current tracks, per goroutine, the PCB the goroutine is
// currently running as. The teacher repository gets this for free from
// a forked runtime's g.gptr field; this module runs on stock Go, which
// has no goroutine-local storage, so it keys a small table on the
// goroutine id parsed out of runtime.Stack — the standard workaround
// a forked-runtime-free program uses for this idiom.
package current

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	mu    sync.Mutex
	table = make(map[uint64]interface{})
)

func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		panic("current: malformed goroutine id: " + err.Error())
	}
	return id
}

/// SetCurrent installs p as the calling goroutine's current value. It
/// panics if the goroutine already has one installed.
func SetCurrent(p interface{}) {
	if p == nil {
		panic("current: SetCurrent(nil)")
	}
	id := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	if _, ok := table[id]; ok {
		panic("current: goroutine already has a current value")
	}
	table[id] = p
}

/// Current returns the calling goroutine's installed value. It panics
/// if none has been installed.
func Current() interface{} {
	id := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	p, ok := table[id]
	if !ok {
		panic("current: no value installed for this goroutine")
	}
	return p
}

/// ClearCurrent removes the calling goroutine's installed value.
func ClearCurrent() {
	id := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	if _, ok := table[id]; !ok {
		panic("current: no value installed for this goroutine")
	}
	delete(table, id)
}
