package pio

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/sim"
)

// NumStateMachines is the number of state machines of a block.
const NumStateMachines = 4

// NumBlocks is the number of PIO blocks of the chip.
const NumBlocks = 2

// Base addresses of the register windows of the blocks.
const (
	PIO0Base uint32 = 0x50200000
	PIO1Base uint32 = 0x50300000

	// RegisterWindowSize is the size of the register window of a block.
	RegisterWindowSize uint32 = 0x100
)

// Register offsets within a block window.
const (
	RegFSTAT  uint32 = 0x04
	RegFLEVEL uint32 = 0x0c
	RegTXF0   uint32 = 0x10
	RegRXF0   uint32 = 0x20
)

// ErrNoProgramSpace is returned when the instruction memory of a block has
// no contiguous room for a program.
var ErrNoProgramSpace = errors.New("no program space")

// ErrSMClaimed is returned when claiming a state machine that is in use.
var ErrSMClaimed = errors.New("state machine already claimed")

// An InterruptRaiser receives the interrupt edges of a block.
type InterruptRaiser interface {
	Raise(n int)
}

// Base returns the register base address of block index.
func Base(index int) uint32 {
	if index == 0 {
		return PIO0Base
	}

	return PIO1Base
}

// TXFAddr returns the address of the TX FIFO register of state machine sm of
// block index.
func TXFAddr(index, sm int) uint32 {
	return Base(index) + RegTXF0 + 4*uint32(sm)
}

// RXFAddr returns the address of the RX FIFO register of state machine sm of
// block index.
func RXFAddr(index, sm int) uint32 {
	return Base(index) + RegRXF0 + 4*uint32(sm)
}

// IRQNum returns the system interrupt number of interrupt output irqIndex
// (0 or 1) of block index.
func IRQNum(index, irqIndex int) int {
	return 7 + 2*index + irqIndex
}

// SourceRxNotEmpty returns the interrupt source asserted while the RX FIFO of
// state machine sm holds data.
func SourceRxNotEmpty(sm int) int {
	return sm
}

// SourceTxNotFull returns the interrupt source asserted while the TX FIFO of
// state machine sm has room.
func SourceTxNotFull(sm int) int {
	return 4 + sm
}

// DREQNum returns the DMA request number that paces transfers to (isTx) or
// from the FIFOs of state machine sm of block index.
func DREQNum(index, sm int, isTx bool) int {
	n := index*8 + sm
	if !isTx {
		n += 4
	}

	return n
}

type slot struct {
	prog  Program
	start bool
}

// A Block is a PIO block: four state machines sharing an instruction memory,
// a pair of interrupt outputs and a register window.
type Block struct {
	*sim.ComponentBase

	index  int
	engine sim.Engine
	freq   sim.Freq
	bank   *gpio.Bank
	raiser InterruptRaiser

	mu    sync.Mutex
	instr [InstructionMemorySize]slot
	sms   [NumStateMachines]*StateMachine

	irqMask [2]uint32
}

// NewBlock creates block index clocked at freq. The block watches the pins
// of bank and raises its interrupt outputs through raiser.
func NewBlock(
	name string,
	index int,
	engine sim.Engine,
	freq sim.Freq,
	bank *gpio.Bank,
	raiser InterruptRaiser,
) *Block {
	if index < 0 || index >= NumBlocks {
		log.Panicf("invalid PIO block index %d", index)
	}

	b := &Block{
		ComponentBase: sim.NewComponentBase(name),
		index:         index,
		engine:        engine,
		freq:          freq,
		bank:          bank,
		raiser:        raiser,
	}

	for i := range b.sms {
		b.sms[i] = newStateMachine(b, i)
		b.watchFIFOs(b.sms[i])
	}

	bank.AddWatcher(b)

	return b
}

// Index returns the index of the block.
func (b *Block) Index() int {
	return b.index
}

// SM returns state machine i.
func (b *Block) SM(i int) *StateMachine {
	return b.sms[i]
}

// StateMachines returns the state machines of the block.
func (b *Block) StateMachines() []*StateMachine {
	return b.sms[:]
}

func (b *Block) gpioFunction() gpio.Function {
	return gpio.FuncPIO0 + gpio.Function(b.index)
}

// GPIOInit hands pin over to the block.
func (b *Block) GPIOInit(pin int) {
	b.bank.SetFunction(pin, b.gpioFunction())
}

// AddProgram loads a program into the instruction memory and returns its
// offset. A program already loaded under the same name is shared.
func (b *Block) AddProgram(prog Program) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset, found := b.findProgram(prog.Name()); found {
		return offset, nil
	}

	offset, ok := b.findSpace(prog.Length())
	if !ok {
		return 0, fmt.Errorf("%s: %s needs %d slots: %w",
			b.Name(), prog.Name(), prog.Length(), ErrNoProgramSpace)
	}

	for i := 0; i < prog.Length(); i++ {
		b.instr[offset+i] = slot{prog: prog, start: i == 0}
	}

	return offset, nil
}

// CanAddProgram tells if AddProgram would succeed.
func (b *Block) CanAddProgram(prog Program) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, found := b.findProgram(prog.Name()); found {
		return true
	}

	_, ok := b.findSpace(prog.Length())

	return ok
}

// RemoveProgram frees the slots of the program loaded at offset.
func (b *Block) RemoveProgram(offset int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prog := b.instr[offset].prog
	if prog == nil || !b.instr[offset].start {
		log.Panicf("%s: no program at offset %d", b.Name(), offset)
	}

	for i := 0; i < prog.Length(); i++ {
		b.instr[offset+i] = slot{}
	}
}

// FreeSlots returns the number of unused instruction slots.
func (b *Block) FreeSlots() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.instr {
		if s.prog == nil {
			n++
		}
	}

	return n
}

func (b *Block) findProgram(name string) (int, bool) {
	for i, s := range b.instr {
		if s.start && s.prog.Name() == name {
			return i, true
		}
	}

	return 0, false
}

// findSpace returns the highest offset with length free slots, the way the
// SDK allocates instruction memory from the top.
func (b *Block) findSpace(length int) (int, bool) {
	if length <= 0 || length > InstructionMemorySize {
		return 0, false
	}

	for offset := InstructionMemorySize - length; offset >= 0; offset-- {
		free := true
		for i := 0; i < length; i++ {
			if b.instr[offset+i].prog != nil {
				free = false
				break
			}
		}

		if free {
			return offset, true
		}
	}

	return 0, false
}

func (b *Block) programAt(offset int) Program {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 || offset >= InstructionMemorySize || !b.instr[offset].start {
		return nil
	}

	return b.instr[offset].prog
}

// ClaimSM marks state machine i as used.
func (b *Block) ClaimSM(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sm := b.sms[i]
	if sm.claimed {
		return fmt.Errorf("%s: %w", sm.Name(), ErrSMClaimed)
	}

	sm.claimed = true

	return nil
}

// ClaimUnusedSM claims the lowest numbered free state machine.
func (b *Block) ClaimUnusedSM() (*StateMachine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sm := range b.sms {
		if !sm.claimed {
			sm.claimed = true
			return sm, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", b.Name(), ErrNoFreeSM)
}

// UnclaimSM disables state machine i and returns it to the pool.
func (b *Block) UnclaimSM(i int) {
	sm := b.sms[i]
	sm.SetEnabled(false)

	b.mu.Lock()
	sm.claimed = false
	b.mu.Unlock()
}

// IsClaimed tells if state machine i is in use.
func (b *Block) IsClaimed(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sms[i].claimed
}

// SetIRQSourceEnabled routes an interrupt source to interrupt output
// irqIndex. Enabling a source whose condition already holds raises the
// output.
func (b *Block) SetIRQSourceEnabled(irqIndex, source int, enabled bool) {
	if irqIndex < 0 || irqIndex > 1 || source < 0 || source >= 8 {
		log.Panicf("%s: invalid irq source %d on output %d",
			b.Name(), source, irqIndex)
	}

	b.mu.Lock()
	if enabled {
		b.irqMask[irqIndex] |= 1 << source
	} else {
		b.irqMask[irqIndex] &^= 1 << source
	}
	b.mu.Unlock()

	if enabled && b.sourceAsserted(source) {
		b.raiser.Raise(IRQNum(b.index, irqIndex))
	}
}

func (b *Block) sourceAsserted(source int) bool {
	if source < 4 {
		return b.sms[source].rx.Level() > 0
	}

	return !b.sms[source-4].tx.IsFull()
}

func (b *Block) signal(source int) {
	b.mu.Lock()
	masks := b.irqMask
	b.mu.Unlock()

	for i, m := range masks {
		if m&(1<<source) != 0 {
			b.raiser.Raise(IRQNum(b.index, i))
		}
	}
}

func (b *Block) watchFIFOs(sm *StateMachine) {
	sm.rx.OnPush(func(int) { b.signal(SourceRxNotEmpty(sm.index)) })
	sm.tx.OnPop(func(int) { b.signal(SourceTxNotFull(sm.index)) })
}

// NotifyPinChange wakes the running state machines, which may be waiting for
// the pin.
func (b *Block) NotifyPinChange(_ int, _ bool) {
	for _, sm := range b.sms {
		sm.wake()
	}
}

// DREQ returns the transfer request signal of state machine sm. A TX request
// is ready while the TX FIFO has room and an RX request while the RX FIFO
// has data.
func (b *Block) DREQ(sm int, isTx bool) *DREQ {
	s := b.sms[sm]
	d := &DREQ{number: DREQNum(b.index, sm, isTx), isTx: isTx, sm: s}

	if isTx {
		s.tx.OnPop(func(int) { d.notify() })
	} else {
		s.rx.OnPush(func(int) { d.notify() })
	}

	return d
}

// ReadWord implements mem.Target over the register window.
func (b *Block) ReadWord(offset uint32, _ mem.AccessSize) (uint32, error) {
	switch {
	case offset == RegFSTAT:
		return b.fstat(), nil
	case offset == RegFLEVEL:
		return b.flevel(), nil
	case offset >= RegRXF0 && offset < RegRXF0+4*NumStateMachines:
		w, _ := b.sms[(offset-RegRXF0)/4].rx.Pop()
		return w, nil
	case offset >= RegTXF0 && offset < RegTXF0+4*NumStateMachines:
		return 0, nil
	}

	return 0, fmt.Errorf("%s: read at offset 0x%x: %w",
		b.Name(), offset, mem.ErrUnmapped)
}

// WriteWord implements mem.Target over the register window.
func (b *Block) WriteWord(offset uint32, _ mem.AccessSize, value uint32) error {
	if offset >= RegTXF0 && offset < RegTXF0+4*NumStateMachines {
		sm := b.sms[(offset-RegTXF0)/4]
		if !sm.tx.Push(value) {
			log.Printf("%s: TX FIFO overflow, 0x%x dropped", sm.Name(), value)
		}

		return nil
	}

	return fmt.Errorf("%s: write at offset 0x%x: %w",
		b.Name(), offset, mem.ErrUnmapped)
}

func (b *Block) fstat() uint32 {
	var v uint32

	for i, sm := range b.sms {
		rx := sm.rx.Level()
		tx := sm.tx.Level()

		if rx == FIFODepth {
			v |= 1 << i
		}

		if rx == 0 {
			v |= 1 << (8 + i)
		}

		if tx == FIFODepth {
			v |= 1 << (16 + i)
		}

		if tx == 0 {
			v |= 1 << (24 + i)
		}
	}

	return v
}

func (b *Block) flevel() uint32 {
	var v uint32

	for i, sm := range b.sms {
		v |= uint32(sm.tx.Level()) << (8 * i)
		v |= uint32(sm.rx.Level()) << (8*i + 4)
	}

	return v
}

// A DREQ is the transfer request signal between a state machine FIFO and
// the DMA.
type DREQ struct {
	number int
	isTx   bool
	sm     *StateMachine

	mu       sync.Mutex
	watchers []func()
}

// Number returns the request number used to select the signal.
func (d *DREQ) Number() int {
	return d.number
}

// Ready tells if one transfer can proceed.
func (d *DREQ) Ready() bool {
	if d.isTx {
		return !d.sm.tx.IsFull()
	}

	return d.sm.rx.Level() > 0
}

// Watch registers a callback that runs when the signal may have become
// ready.
func (d *DREQ) Watch(fn func()) {
	d.mu.Lock()
	d.watchers = append(d.watchers, fn)
	d.mu.Unlock()
}

func (d *DREQ) notify() {
	d.mu.Lock()
	watchers := d.watchers
	d.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}
