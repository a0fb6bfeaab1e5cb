package pl8

import (
	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/pio"
)

// The programs below keep their position in sm.PC. Waiting for a pin
// returns false, which stalls the state machine until a pin changes.

func bit(level bool) uint32 {
	if level {
		return 1
	}

	return 0
}

func field(sm *pio.StateMachine, base, count int) uint32 {
	return (sm.In(base+count) >> base) & (1<<count - 1)
}

func selected(sm *pio.StateMachine, pins bus.PinMap) bool {
	return !sm.Pin(pins.NB400)
}

// addressProgram captures the address of every selected bus cycle in one
// direction. The first word pulled is the register file base shifted right
// by 4; each capture pushes base<<4 | PA3..PA0.
type addressProgram struct {
	name  string
	pins  bus.PinMap
	reads bool
}

func (p addressProgram) Name() string { return p.name }
func (p addressProgram) Length() int  { return 5 }

func (p addressProgram) Step(sm *pio.StateMachine) bool {
	switch sm.PC {
	case 0:
		if !sm.Pull() {
			return false
		}

		sm.X = sm.OSR
		sm.PC = 1
	case 1:
		if sm.Pin(p.pins.Phi2) {
			return false
		}

		sm.PC = 2
	case 2:
		if !sm.Pin(p.pins.Phi2) {
			return false
		}

		if !selected(sm, p.pins) || sm.Pin(p.pins.RnW) != p.reads {
			sm.PC = 1
			return true
		}

		sm.ISR = sm.X<<4 | field(sm, p.pins.AddrBase, bus.NumAddrPins)
		sm.PC = 3
	case 3:
		if !sm.Push(sm.ISR) {
			return false
		}

		sm.PC = 1
	}

	return true
}

// writeDataProgram latches the data bus at the end of every selected write
// cycle and pushes the byte.
type writeDataProgram struct {
	pins bus.PinMap
}

func (p writeDataProgram) Name() string { return "write-data" }
func (p writeDataProgram) Length() int  { return 6 }

func (p writeDataProgram) Step(sm *pio.StateMachine) bool {
	switch sm.PC {
	case 0:
		if sm.Pin(p.pins.Phi2) {
			return false
		}

		sm.PC = 1
	case 1:
		if !sm.Pin(p.pins.Phi2) {
			return false
		}

		if selected(sm, p.pins) && !sm.Pin(p.pins.RnW) {
			sm.PC = 2
		} else {
			sm.PC = 0
		}
	case 2:
		if sm.Pin(p.pins.Phi2) {
			return false
		}

		sm.ISR = field(sm, p.pins.DataBase, bus.NumDataPins)
		sm.PC = 3
	case 3:
		if !sm.Push(sm.ISR) {
			return false
		}

		sm.PC = 1
	}

	return true
}

// readDataProgram puts every byte it is given on the data bus until Φ2
// falls, then releases the bus.
type readDataProgram struct {
	pins bus.PinMap
}

func (p readDataProgram) Name() string { return "read-data" }
func (p readDataProgram) Length() int  { return 5 }

func (p readDataProgram) Step(sm *pio.StateMachine) bool {
	switch sm.PC {
	case 0:
		if !sm.Pull() {
			return false
		}

		sm.PC = 1
	case 1:
		sm.Out(sm.OSR & 0xff)
		sm.SetPinDirs(true)
		sm.PC = 2
	case 2:
		if sm.Pin(p.pins.Phi2) {
			return false
		}

		sm.SetPinDirs(false)
		sm.PC = 0
	}

	return true
}

// activityProgram reports every selected bus cycle with a word holding
// PA3..PA0, Φ2 and RnW. It never waits for room in its RX FIFO; a word that
// does not fit is dropped and counted by the state machine.
type activityProgram struct {
	pins bus.PinMap
}

func (p activityProgram) Name() string { return "activity" }
func (p activityProgram) Length() int  { return 4 }

func (p activityProgram) Step(sm *pio.StateMachine) bool {
	switch sm.PC {
	case 0:
		if sm.Pin(p.pins.Phi2) {
			return false
		}

		sm.PC = 1
	case 1:
		if !sm.Pin(p.pins.Phi2) {
			return false
		}

		if selected(sm, p.pins) {
			w := field(sm, p.pins.AddrBase, bus.NumAddrPins)
			w |= bit(sm.Pin(p.pins.Phi2)) << 4
			w |= bit(sm.Pin(p.pins.RnW)) << 5
			sm.PushNoBlock(w)
		}

		sm.PC = 0
	}

	return true
}

// Programs bundles the sequencer programs of the bridge for one wiring.
type Programs struct {
	WriteAddress pio.Program
	WriteData    pio.Program
	ReadAddress  pio.Program
	ReadData     pio.Program
	Activity     pio.Program
}

// NewPrograms creates the sequencer programs for a pin map.
func NewPrograms(pins bus.PinMap) Programs {
	return Programs{
		WriteAddress: addressProgram{name: "write-address", pins: pins},
		WriteData:    writeDataProgram{pins: pins},
		ReadAddress: addressProgram{
			name: "read-address", pins: pins, reads: true},
		ReadData: readDataProgram{pins: pins},
		Activity: activityProgram{pins: pins},
	}
}
