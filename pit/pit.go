// Package pit programs the 8253/8254 programmable interval timer in
// mode 3 (square-wave generator) to drive the scheduler tick at a fixed
// rate, grounded on the original driver's PIT_CMD_MODE3/divisor
// arithmetic.
package pit

import "github.com/bjackson/ece391mp/port"

// I/O ports for channel 0 and the mode/command register.
const (
	Chan0 uint16 = 0x40
	Cmd   uint16 = 0x43
)

const (
	modeSquareWave uint8 = 0x36
	/// BaseFrequency is the PIT's fixed input clock in Hz.
	BaseFrequency = 1193180
	/// SchedulerHz is the rate the scheduler tick runs at.
	SchedulerHz = 50
)

/// Pit_t is the programmable interval timer.
type Pit_t struct {
	bus port.Bus
}

/// New returns an uninitialized Pit_t.
func New(bus port.Bus) *Pit_t {
	return &Pit_t{bus: bus}
}

/// SetFrequency programs channel 0 in mode 3 with the divisor
/// BaseFrequency/hz (integer division, so the remainder is dropped).
func (p *Pit_t) SetFrequency(hz uint32) {
	divisor := BaseFrequency / hz
	p.bus.Out8(Cmd, modeSquareWave)
	p.bus.Out8(Chan0, uint8(divisor&0xff))
	p.bus.Out8(Chan0, uint8(divisor>>8))
}

/// InitScheduler programs the timer at SchedulerHz, the rate the
/// scheduler tick runs at.
func (p *Pit_t) InitScheduler() {
	p.SetFrequency(SchedulerHz)
}
