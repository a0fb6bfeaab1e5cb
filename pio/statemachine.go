package pio

import (
	"log"
	"sync/atomic"

	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/sim"
)

// Config holds the pin mapping and clocking of a state machine.
type Config struct {
	// InBase is the first pin sampled by In and Pin.
	InBase int

	// OutBase and OutCount select the pins driven by Out and SetPinDirs.
	OutBase  int
	OutCount int

	// ClkDiv divides the block clock. Zero means no division.
	ClkDiv float64
}

// A StateMachine is one of the sequencers of a block.
type StateMachine struct {
	*sim.TickingComponent

	block   *Block
	index   int
	claimed bool
	enabled bool

	program Program
	offset  int
	cfg     Config

	// PC is the position of the program, relative to its load offset.
	PC int

	// X, Y, ISR and OSR are the scratch and shift registers.
	X, Y     uint32
	ISR, OSR uint32

	rx *FIFO
	tx *FIFO

	pushStalled atomic.Bool
	rxStalls    atomic.Uint64
}

func newStateMachine(b *Block, index int) *StateMachine {
	sm := &StateMachine{
		block: b,
		index: index,
		rx:    NewFIFO(FIFODepth),
		tx:    NewFIFO(FIFODepth),
	}

	sm.TickingComponent = sim.NewTickingComponent(
		b.Name()+"."+sim.IndexedName("SM", index), b.engine, b.freq, sm)

	sm.tx.OnPush(func(int) { sm.wake() })
	sm.rx.OnPop(func(int) {
		if sm.pushStalled.Load() {
			sm.wake()
		}
	})

	return sm
}

// Block returns the block the state machine belongs to.
func (sm *StateMachine) Block() *Block {
	return sm.block
}

// Index returns the index of the state machine within its block.
func (sm *StateMachine) Index() int {
	return sm.index
}

// Program returns the program the state machine runs, if any.
func (sm *StateMachine) Program() Program {
	return sm.program
}

// Offset returns the instruction memory offset of the program.
func (sm *StateMachine) Offset() int {
	return sm.offset
}

// RxFIFO returns the FIFO that carries words from the state machine to the
// system.
func (sm *StateMachine) RxFIFO() *FIFO {
	return sm.rx
}

// TxFIFO returns the FIFO that carries words from the system to the state
// machine.
func (sm *StateMachine) TxFIFO() *FIFO {
	return sm.tx
}

// Init points the state machine at the program loaded at offset, applies the
// pin configuration and leaves it disabled. The output pins are handed over
// to the block and set to inputs.
func (sm *StateMachine) Init(offset int, cfg Config) {
	if !sm.claimed {
		log.Panicf("%s: init before claim", sm.Name())
	}

	prog := sm.block.programAt(offset)
	if prog == nil {
		log.Panicf("%s: no program loaded at offset %d", sm.Name(), offset)
	}

	sm.SetEnabled(false)

	sm.program = prog
	sm.offset = offset
	sm.cfg = cfg
	sm.PC = 0
	sm.X, sm.Y, sm.ISR, sm.OSR = 0, 0, 0, 0
	sm.rx.Clear()
	sm.tx.Clear()
	sm.pushStalled.Store(false)

	if cfg.ClkDiv > 1 {
		sm.Freq = sm.block.freq / sim.Freq(cfg.ClkDiv)
	} else {
		sm.Freq = sm.block.freq
	}

	bank := sm.block.bank
	for i := 0; i < cfg.OutCount; i++ {
		bank.SetFunction(cfg.OutBase+i, sm.block.gpioFunction())
		bank.SetOutputEnable(cfg.OutBase+i, false)
	}
}

// SetEnabled starts or stops the state machine.
func (sm *StateMachine) SetEnabled(enabled bool) {
	sm.enabled = enabled
	if enabled {
		sm.TickLater()
	}
}

// IsEnabled tells if the state machine is running.
func (sm *StateMachine) IsEnabled() bool {
	return sm.enabled
}

// Put pushes a word into the TX FIFO from the system side. It panics if the
// FIFO is full, as the blocking put of the firmware would never return.
func (sm *StateMachine) Put(w uint32) {
	if !sm.tx.Push(w) {
		log.Panicf("%s: put into full TX FIFO", sm.Name())
	}
}

// Get pops a word from the RX FIFO from the system side. The second return
// value is false if the FIFO is empty.
func (sm *StateMachine) Get() (uint32, bool) {
	return sm.rx.Pop()
}

// RxLevel returns the number of words waiting in the RX FIFO.
func (sm *StateMachine) RxLevel() int {
	return sm.rx.Level()
}

// TakeRxStalls returns the number of words dropped by non-blocking pushes
// into a full RX FIFO since the last call, and resets the count.
func (sm *StateMachine) TakeRxStalls() uint64 {
	return sm.rxStalls.Swap(0)
}

// Tick runs one cycle of the program.
func (sm *StateMachine) Tick() bool {
	if !sm.enabled || sm.program == nil {
		return false
	}

	return sm.program.Step(sm)
}

func (sm *StateMachine) wake() {
	if sm.enabled {
		sm.TickLater()
	}
}

// In samples count pins starting at the input base, base pin in bit 0.
func (sm *StateMachine) In(count int) uint32 {
	return sm.block.bank.Sample(sm.cfg.InBase, count)
}

// Pin samples a single pin relative to the input base.
func (sm *StateMachine) Pin(rel int) bool {
	return sm.block.bank.Get(sm.cfg.InBase + rel)
}

// Pull takes a word from the TX FIFO into the OSR. It returns false if the
// FIFO is empty, in which case the program must stall.
func (sm *StateMachine) Pull() bool {
	w, ok := sm.tx.Pop()
	if !ok {
		return false
	}

	sm.OSR = w

	return true
}

// Push moves a word into the RX FIFO. It returns false if the FIFO is full,
// in which case the program must stall and retry.
func (sm *StateMachine) Push(w uint32) bool {
	if !sm.rx.Push(w) {
		sm.pushStalled.Store(true)
		return false
	}

	sm.pushStalled.Store(false)

	return true
}

// PushNoBlock moves a word into the RX FIFO, dropping it if the FIFO is
// full. Dropped words are counted and reported by TakeRxStalls.
func (sm *StateMachine) PushNoBlock(w uint32) {
	if !sm.rx.Push(w) {
		sm.rxStalls.Add(1)
	}
}

// SetPinDirs switches the output pins between driving and listening.
func (sm *StateMachine) SetPinDirs(out bool) {
	for i := 0; i < sm.cfg.OutCount; i++ {
		sm.block.bank.SetOutputEnable(sm.cfg.OutBase+i, out)
	}
}

// Out sets the levels of the output pins, base pin from bit 0.
func (sm *StateMachine) Out(value uint32) {
	for i := 0; i < sm.cfg.OutCount; i++ {
		sm.block.bank.SetOutput(sm.cfg.OutBase+i, value&(1<<i) != 0)
	}
}

var _ gpio.Watcher = (*Block)(nil)
