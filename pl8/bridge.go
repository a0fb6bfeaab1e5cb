package pl8

import (
	"math"
	"sync"

	"github.com/sarchlab/pl8sim/irq"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/sim"
)

// HookPosActivityEvent marks the aggregator consuming one activity word. The
// item is the AccessEvent. Activity hooks fire once the interrupt line is
// released, so they may call the query API.
var HookPosActivityEvent = &sim.HookPos{Name: "PL8 Activity Event"}

// HookPosActivityDrain marks the end of one aggregator run. The item is the
// number of events drained.
var HookPosActivityDrain = &sim.HookPos{Name: "PL8 Activity Drain"}

// HookPosTake marks a query that reads and clears a bitmask. The item is the
// Take.
var HookPosTake = &sim.HookPos{Name: "PL8 Take"}

// A Take is the result of a clearing query.
type Take struct {
	Direction Direction
	Bits      uint32
	Time      sim.VTimeInSec
}

// Counters are the running totals of the aggregator. They only grow, and
// saturate instead of wrapping.
type Counters struct {
	ReadCount  uint64
	WriteCount uint64
	MaxQ       uint64
	Overflows  uint64
}

// Status is a snapshot of everything the bridge knows, for display. Taking a
// status does not clear the bitmasks.
type Status struct {
	Counters

	Registers   [NumRegisters]byte
	ReadBits    uint32
	WrittenBits uint32
}

// A Bridge is a running PL8 interface. It is created by a Builder.
type Bridge struct {
	sim.HookableBase

	name string
	time sim.TimeTeller
	irqs *irq.Controller

	regs       *RegisterFile
	writePipe  *Pipeline
	readPipe   *Pipeline
	activitySM *pio.StateMachine
	irqNum     int
	irqSource  int

	// Guarded by the interrupt line: written by the aggregator, read and
	// cleared by queries inside a critical section.
	readBits    uint32
	writtenBits uint32
	counters    Counters

	// Activity hook items wait here until the line is released.
	hookMu    sync.Mutex
	hookQueue []sim.HookCtx
	flushMu   sync.Mutex
}

// Name returns the name of the bridge.
func (b *Bridge) Name() string {
	return b.name
}

// Registers returns the register file.
func (b *Bridge) Registers() *RegisterFile {
	return b.regs
}

// WritePipeline returns the pipeline that serves bus writes.
func (b *Bridge) WritePipeline() *Pipeline {
	return b.writePipe
}

// ReadPipeline returns the pipeline that serves bus reads.
func (b *Bridge) ReadPipeline() *Pipeline {
	return b.readPipe
}

// ActivitySM returns the state machine that reports bus activity.
func (b *Bridge) ActivitySM() *pio.StateMachine {
	return b.activitySM
}

// IRQNum returns the interrupt line the aggregator runs on.
func (b *Bridge) IRQNum() int {
	return b.irqNum
}

// IRQSource returns the PIO interrupt source that drives the line.
func (b *Bridge) IRQSource() int {
	return b.irqSource
}

// handleActivityIRQ drains the activity FIFO, folding every event into the
// bitmasks and counters. It runs with the line held, so it never overlaps a
// query or itself.
func (b *Bridge) handleActivityIRQ() {
	var q uint64

	for b.activitySM.RxLevel() > 0 {
		w, ok := b.activitySM.Get()
		if !ok {
			break
		}

		q++

		e := DecodeEvent(w)
		if e.Direction == DirRead {
			b.readBits |= 1 << e.Register
			b.counters.ReadCount = satAdd(b.counters.ReadCount, 1)
		} else {
			b.writtenBits |= 1 << e.Register
			b.counters.WriteCount = satAdd(b.counters.WriteCount, 1)
		}

		b.queueHook(HookPosActivityEvent, e)
	}

	if q > b.counters.MaxQ {
		b.counters.MaxQ = q
	}

	dropped := b.activitySM.TakeRxStalls()
	b.counters.Overflows = satAdd(b.counters.Overflows, dropped)

	b.queueHook(HookPosActivityDrain, q)
}

func (b *Bridge) queueHook(pos *sim.HookPos, item interface{}) {
	if b.NumHooks() == 0 {
		return
	}

	b.hookMu.Lock()
	b.hookQueue = append(b.hookQueue,
		sim.HookCtx{Domain: b, Pos: pos, Item: item})
	b.hookMu.Unlock()
}

func (b *Bridge) takeHookQueue() []sim.HookCtx {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()

	q := b.hookQueue
	b.hookQueue = nil

	return q
}

func (b *Bridge) hasQueuedHooks() bool {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()

	return len(b.hookQueue) > 0
}

// flushHooks fires the queued activity hooks in order. It runs as the
// epilogue of the aggregator. A flush that starts while another one is
// running, including one started by a hook, leaves its items to the running
// flush.
func (b *Bridge) flushHooks() {
	for b.flushMu.TryLock() {
		for _, ctx := range b.takeHookQueue() {
			b.InvokeHook(ctx)
		}

		b.flushMu.Unlock()

		if !b.hasQueuedHooks() {
			return
		}
	}
}

func (b *Bridge) invoke(pos *sim.HookPos, item interface{}) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(sim.HookCtx{Domain: b, Pos: pos, Item: item})
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}

	return a + b
}

// TakeReadBits returns the registers the 6502 read since the last call, one
// bit per register, and clears the mask.
func (b *Bridge) TakeReadBits() uint32 {
	cs := b.irqs.Enter(b.irqNum)
	defer cs.Exit()

	bits := b.readBits
	b.readBits = 0

	b.invoke(HookPosTake, Take{Direction: DirRead, Bits: bits,
		Time: b.time.CurrentTime()})

	return bits
}

// TakeWrittenBits returns the registers the 6502 wrote since the last call,
// one bit per register, and clears the mask.
func (b *Bridge) TakeWrittenBits() uint32 {
	cs := b.irqs.Enter(b.irqNum)
	defer cs.Exit()

	bits := b.writtenBits
	b.writtenBits = 0

	b.invoke(HookPosTake, Take{Direction: DirWrite, Bits: bits,
		Time: b.time.CurrentTime()})

	return bits
}

// Counters returns a consistent copy of the counters.
func (b *Bridge) Counters() Counters {
	cs := b.irqs.Enter(b.irqNum)
	defer cs.Exit()

	return b.counters
}

// ReadCount returns the number of reads seen so far.
func (b *Bridge) ReadCount() uint64 {
	return b.Counters().ReadCount
}

// WriteCount returns the number of writes seen so far.
func (b *Bridge) WriteCount() uint64 {
	return b.Counters().WriteCount
}

// MaxQ returns the largest number of events drained in one aggregator run.
func (b *Bridge) MaxQ() uint64 {
	return b.Counters().MaxQ
}

// Overflows returns the number of events lost because the activity FIFO was
// full.
func (b *Bridge) Overflows() uint64 {
	return b.Counters().Overflows
}

// Status returns a snapshot of the bridge without clearing anything.
func (b *Bridge) Status() Status {
	cs := b.irqs.Enter(b.irqNum)
	s := Status{
		Counters:    b.counters,
		ReadBits:    b.readBits,
		WrittenBits: b.writtenBits,
	}
	cs.Exit()

	s.Registers = b.regs.Snapshot()

	return s
}
