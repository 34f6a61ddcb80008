// Package rtc drives the real-time clock's periodic-interrupt rate and
// exposes the blocking rtc_read/rtc_write contract, grounded on the
// original RTC driver's register-A rate-select arithmetic (frequency =
// 32768 >> (rs-1)), inverted here since callers supply a target
// frequency in Hz rather than a raw rate-select value.
package rtc

import (
	"sync"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/port"
)

// I/O ports and register indices.
const (
	IndexPort uint16 = 0x70
	DataPort  uint16 = 0x71

	regA uint8 = 0x0A
	regB uint8 = 0x0B
	regC uint8 = 0x0C

	enableBit uint8 = 1 << 6
)

const (
	/// MinHz is the slowest frequency the RTC may be programmed to.
	MinHz = 2
	/// MaxHz is the fastest frequency the RTC may be programmed to.
	MaxHz = 1024
)

func isPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func log2(v uint32) uint {
	n := uint(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

/// rateSelect converts a target Hz (a power of two in [MinHz, MaxHz])
/// to the rate-select nibble the hardware wants, via the OSDev
/// relation frequency = 32768 >> (rs - 1).
func rateSelect(hz uint32) uint8 {
	return uint8(16 - log2(hz))
}

/// Rtc_t is the real-time clock: an I/O-port-driven rate select plus a
/// monotonic tick counter that rtc_read spins on.
type Rtc_t struct {
	bus port.Bus

	mu   sync.Mutex
	cond *sync.Cond
	tick uint64
}

/// New returns an uninitialized Rtc_t.
func New(bus port.Bus) *Rtc_t {
	r := &Rtc_t{bus: bus}
	r.cond = sync.NewCond(&r.mu)
	return r
}

/// Init enables periodic interrupts on register B and programs the
/// highest frequency this design admits.
func (r *Rtc_t) Init() {
	r.bus.Out8(IndexPort, regB)
	prev := r.bus.In8(DataPort)
	r.bus.Out8(IndexPort, regB)
	r.bus.Out8(DataPort, prev|enableBit)

	r.SetFrequencyHz(MaxHz)
}

/// SetFrequencyHz validates hz (must be a power of two in
/// [MinHz, MaxHz]) and reprograms register A's rate-select bits,
/// preserving the register's other nibble.
func (r *Rtc_t) SetFrequencyHz(hz uint32) defs.Err_t {
	if hz < MinHz || hz > MaxHz || !isPow2(hz) {
		return defs.EINVAL
	}
	rs := rateSelect(hz)

	r.bus.Out8(IndexPort, regA)
	prev := r.bus.In8(DataPort)
	r.bus.Out8(IndexPort, regA)
	r.bus.Out8(DataPort, (prev&0xf0)|rs)
	return 0
}

/// Write implements rtc_write: buf must be exactly 1, 2, or 4 bytes
/// holding a little-endian frequency.
func (r *Rtc_t) Write(buf []byte) defs.Err_t {
	var hz uint32
	switch len(buf) {
	case 1:
		hz = uint32(buf[0])
	case 2:
		hz = uint32(buf[0]) | uint32(buf[1])<<8
	case 4:
		hz = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	default:
		return defs.EINVAL
	}
	return r.SetFrequencyHz(hz)
}

/// OnIRQ is called from the RTC's interrupt handler: it reads register
/// C (mandatory to re-arm the device) and advances the tick counter,
/// waking any rtc_read spinners.
func (r *Rtc_t) OnIRQ() {
	r.bus.Out8(IndexPort, regC)
	r.bus.In8(DataPort)

	r.mu.Lock()
	r.tick++
	r.cond.Broadcast()
	r.mu.Unlock()
}

/// Read implements rtc_read: it blocks until the next tick after the
/// call was made.
func (r *Rtc_t) Read() {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.tick
	for r.tick == start {
		r.cond.Wait()
	}
}

/// Ticks returns the current tick count, for tests and diagnostics.
func (r *Rtc_t) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tick
}
