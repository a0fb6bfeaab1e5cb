// Package pl8 implements the PL8 bridge: a 16-byte register file that an
// external 6502 reads and writes at page 0xB400 without any help from the
// processor, plus the activity instrumentation that tells the processor
// which registers were touched.
//
// The bus transactions are served entirely by PIO state machines and DMA
// channels. The processor only runs the activity aggregator, as an interrupt
// handler, and the query API.
package pl8

import "fmt"

// Activity word layout.
const (
	// ActRnWMask selects the direction bit, a sample of the RnW line. A set
	// bit is counted as a read.
	//
	// The direction convention follows the RnW sense of the 6502 bus and is
	// kept provisional until confirmed against real traffic.
	ActRnWMask uint32 = 0x20

	// ActRegMask selects the register number, a sample of PA0 to PA3.
	ActRegMask uint32 = 0x0f

	// actPhi2Bit is the sample of Φ2, always set, never interpreted.
	actPhi2Bit uint32 = 0x10
)

// NumRegisters is the size of the register file.
const NumRegisters = 16

// RegisterFileAlign is the alignment of the register file in memory. The
// address pipelines rebuild register addresses as base<<4 | offset.
const RegisterFileAlign = 16

// Direction tells whether the 6502 read or wrote a register.
type Direction int

// Directions.
const (
	DirWrite Direction = iota
	DirRead
)

func (d Direction) String() string {
	if d == DirRead {
		return "read"
	}

	return "write"
}

// An AccessEvent is one bus transaction seen by the activity sequencer.
type AccessEvent struct {
	Register  uint8
	Direction Direction
}

func (e AccessEvent) String() string {
	return fmt.Sprintf("%s %d", e.Direction, e.Register)
}

// DecodeEvent extracts the access from an activity word. Bits other than the
// register and direction are ignored.
func DecodeEvent(word uint32) AccessEvent {
	e := AccessEvent{Register: uint8(word & ActRegMask)}
	if word&ActRnWMask != 0 {
		e.Direction = DirRead
	}

	return e
}

// EncodeEvent builds the activity word the sequencer pushes for an access.
func EncodeEvent(e AccessEvent) uint32 {
	w := uint32(e.Register)&ActRegMask | actPhi2Bit
	if e.Direction == DirRead {
		w |= ActRnWMask
	}

	return w
}
