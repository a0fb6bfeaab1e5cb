// Package bus models the external 6502 bus master and the pins that connect
// it to the bridge. The master runs bus cycles from a queue of transactions,
// driving the address, control and data lines the way the CPU does.
package bus

// A PinMap tells which GPIO carries each bus signal.
type PinMap struct {
	// AddrBase is the GPIO of PA0. PA1 to PA3 follow.
	AddrBase int

	// Phi2 is the 1 MHz phase 2 clock.
	Phi2 int

	// RnW is high for reads and low for writes.
	RnW int

	// NB400 is the active low select of page 0xB400.
	NB400 int

	// DataBase is the GPIO of D0. D1 to D7 follow.
	DataBase int
}

// NumAddrPins is the number of address lines decoded by the bridge.
const NumAddrPins = 4

// NumDataPins is the width of the data bus.
const NumDataPins = 8

// DefaultPinMap returns the wiring of the PL8 board.
func DefaultPinMap() PinMap {
	return PinMap{
		AddrBase: 0,
		Phi2:     4,
		RnW:      5,
		NB400:    6,
		DataBase: 8,
	}
}

// ControlPins returns the address and control pins in GPIO order.
func (m PinMap) ControlPins() []int {
	pins := make([]int, 0, NumAddrPins+3)
	for i := 0; i < NumAddrPins; i++ {
		pins = append(pins, m.AddrBase+i)
	}

	return append(pins, m.Phi2, m.RnW, m.NB400)
}

// DataPins returns D0 to D7.
func (m PinMap) DataPins() []int {
	pins := make([]int, NumDataPins)
	for i := range pins {
		pins[i] = m.DataBase + i
	}

	return pins
}
