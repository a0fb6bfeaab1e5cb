// Package gpio models the bank of general purpose I/O pins of the simulated
// chip. Pins are shared between the external world, which drives them from
// outside the chip, and the on-chip peripherals selected by the pin function.
package gpio

import (
	"log"

	"github.com/sarchlab/pl8sim/sim"
)

// NumPins is the number of user GPIOs of the chip.
const NumPins = 30

// Function selects which peripheral controls the output of a pin.
type Function int

// Pin functions. Values follow the function select field of the chip.
const (
	FuncSIO  Function = 5
	FuncPIO0 Function = 6
	FuncPIO1 Function = 7
	FuncNull Function = 0x1f
)

// HookPosPinChange marks a change of the resolved level of a pin. The item
// is the pin number and the detail the new level.
var HookPosPinChange = &sim.HookPos{Name: "GPIO Pin Change"}

// A Watcher gets notified when the level of a pin changes.
type Watcher interface {
	NotifyPinChange(pin int, level bool)
}

type pinState struct {
	fn Function

	outEnable bool
	outLevel  bool

	extDriven bool
	extLevel  bool

	pullUp   bool
	pullDown bool

	level bool
}

// A Bank is the set of GPIO pins of the chip.
type Bank struct {
	sim.HookableBase

	pins     [NumPins]pinState
	watchers []Watcher
}

// NewBank creates a bank with every pin unconnected and pulled nowhere.
func NewBank() *Bank {
	b := &Bank{}
	for i := range b.pins {
		b.pins[i].fn = FuncNull
	}

	return b
}

// AddWatcher registers an object to be notified of pin level changes.
func (b *Bank) AddWatcher(w Watcher) {
	b.watchers = append(b.watchers, w)
}

func pinMustBeValid(pin int) {
	if pin < 0 || pin >= NumPins {
		log.Panicf("invalid gpio %d", pin)
	}
}

// Init puts the pin under software control as an input with its output
// cleared.
func (b *Bank) Init(pin int) {
	pinMustBeValid(pin)

	p := &b.pins[pin]
	p.fn = FuncSIO
	p.outEnable = false
	p.outLevel = false
	b.resolve(pin)
}

// SetFunction selects the peripheral that controls the pin.
func (b *Bank) SetFunction(pin int, fn Function) {
	pinMustBeValid(pin)

	b.pins[pin].fn = fn
	b.resolve(pin)
}

// GetFunction returns the function the pin is assigned to.
func (b *Bank) GetFunction(pin int) Function {
	pinMustBeValid(pin)

	return b.pins[pin].fn
}

// SetPulls enables or disables the pull resistors of a pin. Enabling both
// turns the pin into a bus keeper that holds the last level.
func (b *Bank) SetPulls(pin int, up, down bool) {
	pinMustBeValid(pin)

	b.pins[pin].pullUp = up
	b.pins[pin].pullDown = down
	b.resolve(pin)
}

// IsPulledUp tells if the pull-up resistor of the pin is enabled.
func (b *Bank) IsPulledUp(pin int) bool {
	pinMustBeValid(pin)

	return b.pins[pin].pullUp
}

// IsPulledDown tells if the pull-down resistor of the pin is enabled.
func (b *Bank) IsPulledDown(pin int) bool {
	pinMustBeValid(pin)

	return b.pins[pin].pullDown
}

// SetOutputEnable sets the direction of the pin from the on-chip side.
// Only the peripheral the pin is assigned to may call it.
func (b *Bank) SetOutputEnable(pin int, enable bool) {
	pinMustBeValid(pin)

	b.pins[pin].outEnable = enable
	b.resolve(pin)
}

// IsOutput tells if the chip drives the pin.
func (b *Bank) IsOutput(pin int) bool {
	pinMustBeValid(pin)

	return b.pins[pin].outEnable
}

// SetOutput sets the level the chip drives onto the pin when the output is
// enabled.
func (b *Bank) SetOutput(pin int, level bool) {
	pinMustBeValid(pin)

	b.pins[pin].outLevel = level
	b.resolve(pin)
}

// Drive makes the external world drive the pin to the given level.
func (b *Bank) Drive(pin int, level bool) {
	pinMustBeValid(pin)

	b.pins[pin].extDriven = true
	b.pins[pin].extLevel = level
	b.resolve(pin)
}

// Release stops the external world from driving the pin.
func (b *Bank) Release(pin int) {
	pinMustBeValid(pin)

	b.pins[pin].extDriven = false
	b.resolve(pin)
}

// Get returns the resolved level of a pin.
func (b *Bank) Get(pin int) bool {
	pinMustBeValid(pin)

	return b.pins[pin].level
}

// Sample returns the levels of count consecutive pins starting from base,
// with base in bit 0.
func (b *Bank) Sample(base, count int) uint32 {
	var v uint32

	for i := 0; i < count; i++ {
		if b.Get(base + i) {
			v |= 1 << i
		}
	}

	return v
}

// resolve recomputes the level seen on a pin. The chip output wins over the
// external driver; contention is not detected.
func (b *Bank) resolve(pin int) {
	p := &b.pins[pin]
	level := p.level

	switch {
	case p.outEnable && p.fn != FuncNull:
		level = p.outLevel
	case p.extDriven:
		level = p.extLevel
	case p.pullUp && !p.pullDown:
		level = true
	case p.pullDown && !p.pullUp:
		level = false
	}

	if level == p.level {
		return
	}

	p.level = level

	if b.NumHooks() > 0 {
		b.InvokeHook(sim.HookCtx{
			Domain: b,
			Pos:    HookPosPinChange,
			Item:   pin,
			Detail: level,
		})
	}

	for _, w := range b.watchers {
		w.NotifyPinChange(pin, level)
	}
}
