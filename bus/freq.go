package bus

import (
	"sync"

	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/sim"
)

// A FreqMeter counts the transitions of one pin, the way firmware polls a
// clock input to estimate its frequency.
type FreqMeter struct {
	pin int

	mu       sync.Mutex
	counting bool
	edges    uint64
}

// NewFreqMeter creates a meter that watches pin of bank.
func NewFreqMeter(bank *gpio.Bank, pin int) *FreqMeter {
	m := &FreqMeter{pin: pin}
	bank.AddWatcher(m)

	return m
}

// NotifyPinChange counts a transition of the watched pin.
func (m *FreqMeter) NotifyPinChange(pin int, _ bool) {
	if pin != m.pin {
		return
	}

	m.mu.Lock()
	if m.counting {
		m.edges++
	}
	m.mu.Unlock()
}

func (m *FreqMeter) start() {
	m.mu.Lock()
	m.counting = true
	m.edges = 0
	m.mu.Unlock()
}

func (m *FreqMeter) stop() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counting = false

	return m.edges
}

// MeasureFreq runs the engine for window and returns the frequency of the
// signal on the meter's pin. Two transitions make one period.
func MeasureFreq(
	engine sim.Engine,
	meter *FreqMeter,
	window sim.VTimeInSec,
) (sim.Freq, error) {
	meter.start()

	start := engine.CurrentTime()
	if err := engine.RunUntil(start + window); err != nil {
		meter.stop()
		return 0, err
	}

	edges := meter.stop()
	elapsed := engine.CurrentTime() - start

	if elapsed <= 0 {
		return 0, nil
	}

	return sim.Freq(float64(edges) / 2 / float64(elapsed)), nil
}
