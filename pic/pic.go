// Package pic drives the master/slave 8259 interrupt controller
// cascade: initialization, per-IRQ enable/disable, and end-of-interrupt
// signalling. It is grounded on the original i8259 driver's command
// sequence, with the slave-mask read/write bug the specification calls
// out fixed: enable/disable now reads and writes the mask register that
// actually belongs to the controller being touched.
package pic

import "github.com/bjackson/ece391mp/port"

// I/O ports for the master and slave controllers.
const (
	MasterCommand uint16 = 0x20
	MasterData    uint16 = 0x21
	SlaveCommand  uint16 = 0xA0
	SlaveData     uint16 = 0xA1
)

// Initialization command words, matching the exact byte sequence
// spec.md's External Interfaces section specifies.
const (
	icw1        uint8 = 0x11 // edge-triggered, cascade mode, ICW4 needed
	icw2Master  uint8 = 0x20 // master IRQs map to vectors 0x20..0x27
	icw2Slave   uint8 = 0x28 // slave IRQs map to vectors 0x28..0x2f
	icw3Master  uint8 = 0x04 // slave is cascaded on IRQ2
	icw3Slave   uint8 = 0x02 // slave's own cascade identity
	icw4        uint8 = 0x01 // 8086/88 mode
	maskAll     uint8 = 0xff
	slaveIRQ    uint8 = 2
	eoiCommand  uint8 = 0x60 // specific EOI, ORed with the IRQ number
)

/// Pic_t is the 8259 cascade, talking to its two controllers through a
/// port.Bus so tests can substitute port.Sim.
type Pic_t struct {
	bus port.Bus
}

/// New returns a Pic_t that has not yet been initialized.
func New(bus port.Bus) *Pic_t {
	return &Pic_t{bus: bus}
}

/// Init runs the ICW1..ICW4 sequence on both controllers with master
/// offset 0x20 and slave offset 0x28, masking every IRQ both before and
/// after, exactly as the original driver does.
func (p *Pic_t) Init() {
	p.bus.Out8(MasterData, maskAll)
	p.bus.Out8(SlaveData, maskAll)

	p.bus.Out8(MasterCommand, icw1)
	p.bus.Out8(SlaveCommand, icw1)

	p.bus.Out8(MasterData, icw2Master)
	p.bus.Out8(SlaveData, icw2Slave)

	p.bus.Out8(MasterData, icw3Master)
	p.bus.Out8(SlaveData, icw3Slave)

	p.bus.Out8(MasterData, icw4)
	p.bus.Out8(SlaveData, icw4)

	p.bus.Out8(MasterData, maskAll)
	p.bus.Out8(SlaveData, maskAll)
}

/// EnableIRQ unmasks the given line (0..15). Enabling a slave IRQ
/// (8..15) changes only the slave's mask; IRQ 2, the slave cascade on
/// the master, stays masked until it is enabled with EnableIRQ(2).
func (p *Pic_t) EnableIRQ(irq uint) {
	if irq < 8 {
		mask := p.bus.In8(MasterData)
		p.bus.Out8(MasterData, mask&^(1<<irq))
		return
	}
	mask := p.bus.In8(SlaveData)
	p.bus.Out8(SlaveData, mask&^(1<<(irq-8)))
}

/// DisableIRQ masks the given line.
func (p *Pic_t) DisableIRQ(irq uint) {
	if irq < 8 {
		mask := p.bus.In8(MasterData)
		p.bus.Out8(MasterData, mask|(1<<irq))
		return
	}
	mask := p.bus.In8(SlaveData)
	p.bus.Out8(SlaveData, mask|(1<<(irq-8)))
}

/// SendEOI issues the specific EOI for irq. Slave-sourced IRQs need an
/// EOI to the slave controller followed by one to the master's cascade
/// line.
func (p *Pic_t) SendEOI(irq uint) {
	if irq >= 8 {
		p.bus.Out8(SlaveCommand, eoiCommand|uint8(irq-8))
		p.bus.Out8(MasterCommand, eoiCommand|slaveIRQ)
		return
	}
	p.bus.Out8(MasterCommand, eoiCommand|uint8(irq))
}
