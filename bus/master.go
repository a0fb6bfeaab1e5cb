package bus

import (
	"sync"

	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/sim"
)

// HookPosCycleDone marks the end of a read or write bus cycle. The item is
// the Completed transaction.
var HookPosCycleDone = &sim.HookPos{Name: "Bus Cycle Done"}

// QuartersPerCycle is the number of master ticks in one bus cycle.
const QuartersPerCycle = 4

// A Master is the 6502 side of the bus. Each bus cycle is split in four
// quarters:
//
//	Q0: sample the data bus of a read, drop Φ2
//	Q1: release the data bus, set up the address and control lines
//	Q2: raise Φ2, drive the data bus of a write
//	Q3: hold
//
// The address and data of a cycle are held for one quarter after Φ2 falls.
type Master struct {
	*sim.TickingComponent

	bank *gpio.Bank
	pins PinMap

	mu        sync.Mutex
	queue     []Transaction
	results   []Completed
	completed uint64

	quarter  int
	cur      Transaction
	inCycle  bool
	idleLeft int
	cycles   uint64
}

// NewMaster creates a master that runs bus cycles at busFreq on the pins of
// bank.
func NewMaster(
	name string,
	engine sim.Engine,
	busFreq sim.Freq,
	bank *gpio.Bank,
	pins PinMap,
) *Master {
	m := &Master{
		bank:    bank,
		pins:    pins,
		quarter: 1,
	}
	m.TickingComponent = sim.NewTickingComponent(
		name, engine, busFreq*QuartersPerCycle, m)

	return m
}

// Pins returns the wiring of the master.
func (m *Master) Pins() PinMap {
	return m.pins
}

// Reset puts the bus in its idle state: Φ2 low, the bridge deselected and
// the data bus released.
func (m *Master) Reset() {
	m.bank.Drive(m.pins.Phi2, false)
	m.bank.Drive(m.pins.RnW, true)
	m.bank.Drive(m.pins.NB400, true)

	for i := 0; i < NumAddrPins; i++ {
		m.bank.Drive(m.pins.AddrBase+i, false)
	}

	for _, p := range m.pins.DataPins() {
		m.bank.Release(p)
	}
}

// Enqueue appends transactions to the workload and starts the bus clock.
func (m *Master) Enqueue(txns ...Transaction) {
	m.mu.Lock()
	m.queue = append(m.queue, txns...)
	m.mu.Unlock()

	m.TickLater()
}

// Pending returns the number of transactions waiting to start.
func (m *Master) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue)
}

// Results returns the reads completed so far, in order.
func (m *Master) Results() []Completed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Completed, len(m.results))
	copy(out, m.results)

	return out
}

// Completed returns the number of read and write cycles completed.
func (m *Master) Completed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.completed
}

// Cycles returns the number of bus cycles run, idle ones included.
func (m *Master) Cycles() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cycles
}

// Tick runs one quarter of a bus cycle.
func (m *Master) Tick() bool {
	switch m.quarter {
	case 0:
		m.endCycle()
		m.quarter = 1
	case 1:
		if !m.startCycle() {
			return false
		}

		m.quarter = 2
	case 2:
		m.bank.Drive(m.pins.Phi2, true)

		if m.cur.Op == OpWrite {
			m.driveData(m.cur.Value)
		}

		m.quarter = 3
	case 3:
		m.quarter = 0
	}

	return true
}

func (m *Master) endCycle() {
	if m.inCycle && m.cur.Op == OpRead {
		m.cur.Value = uint8(m.bank.Sample(m.pins.DataBase, NumDataPins))
	}

	m.bank.Drive(m.pins.Phi2, false)

	if !m.inCycle || m.cur.Op == OpIdle {
		m.inCycle = false
		return
	}

	done := Completed{Transaction: m.cur, Time: m.CurrentTime()}

	m.mu.Lock()
	m.completed++
	if m.cur.Op == OpRead {
		m.results = append(m.results, done)
	}
	m.mu.Unlock()

	m.inCycle = false

	if m.NumHooks() > 0 {
		m.InvokeHook(sim.HookCtx{Domain: m, Pos: HookPosCycleDone, Item: done})
	}
}

// startCycle sets up the next bus cycle. It returns false when the workload
// is exhausted, leaving the bridge deselected and the clock stopped.
func (m *Master) startCycle() bool {
	for _, p := range m.pins.DataPins() {
		m.bank.Release(p)
	}

	txn, ok := m.next()
	if !ok {
		m.bank.Drive(m.pins.NB400, true)
		return false
	}

	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()

	m.cur = txn
	m.inCycle = true

	if txn.Op == OpIdle {
		m.bank.Drive(m.pins.NB400, true)
		return true
	}

	for i := 0; i < NumAddrPins; i++ {
		m.bank.Drive(m.pins.AddrBase+i, txn.Register&(1<<i) != 0)
	}

	m.bank.Drive(m.pins.RnW, txn.Op == OpRead)
	m.bank.Drive(m.pins.NB400, false)

	return true
}

func (m *Master) next() (Transaction, bool) {
	if m.idleLeft > 0 {
		m.idleLeft--
		return Idle(1), true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.queue) > 0 {
		txn := m.queue[0]
		m.queue = m.queue[1:]

		if txn.Op != OpIdle {
			return txn, true
		}

		if txn.Cycles > 0 {
			m.idleLeft = txn.Cycles - 1
			return Idle(1), true
		}
	}

	return Transaction{}, false
}

func (m *Master) driveData(v uint8) {
	for i, p := range m.pins.DataPins() {
		m.bank.Drive(p, v&(1<<i) != 0)
	}
}
