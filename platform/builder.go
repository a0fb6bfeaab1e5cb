package platform

import (
	"github.com/sarchlab/pl8sim/dma"
	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/irq"
	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/sim"
)

// Memory map of the board.
const (
	SRAMBase uint32 = 0x20000000
	SRAMSize uint32 = 264 * 1024
)

// Builder can build boards.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	irqLatency int
	sramSize   uint32
}

// MakeBuilder returns a Builder with the clock and memory of the real chip.
func MakeBuilder() Builder {
	return Builder{
		freq:       250 * sim.MHz,
		irqLatency: 15,
		sramSize:   SRAMSize,
	}
}

// WithEngine sets the engine that drives the board. A serial engine is
// created if none is given.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the system clock.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithIRQLatency sets the number of system clock cycles between an interrupt
// edge and its handlers running.
func (b Builder) WithIRQLatency(cycles int) Builder {
	b.irqLatency = cycles
	return b
}

// WithSRAMSize sets the size of the on-chip SRAM.
func (b Builder) WithSRAMSize(size uint32) Builder {
	b.sramSize = size
	return b
}

// Build creates a board.
func (b Builder) Build(name string) *Board {
	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	board := &Board{
		name:       name,
		Engine:     engine,
		Simulation: sim.NewSimulation(engine),
		Freq:       b.freq,
		Space:      mem.NewAddressSpace(),
		SRAM:       mem.NewStorage(uint64(b.sramSize)),
		Heap:       mem.NewAllocator(SRAMBase, b.sramSize),
		GPIO:       gpio.NewBank(),
	}

	board.IRQ = irq.NewController(name+".IRQ", engine, b.freq, b.irqLatency)
	board.DMA = dma.NewController(name+".DMA", engine, b.freq, board.Space)

	for i := range board.PIO {
		board.PIO[i] = pio.NewBlock(name+"."+sim.IndexedName("PIO", i),
			i, engine, b.freq, board.GPIO, board.IRQ)
	}

	b.mapMemory(board)
	b.connectDREQs(board)
	b.registerComponents(board)

	return board
}

func (b Builder) mapMemory(board *Board) {
	board.Space.Map("SRAM", SRAMBase, b.sramSize, board.SRAM)
	board.Space.Map("DMA", dma.Base, dma.WindowSize, board.DMA)

	for i, blk := range board.PIO {
		board.Space.Map(blk.Name(), pio.Base(i), pio.RegisterWindowSize, blk)
	}
}

func (b Builder) connectDREQs(board *Board) {
	for _, blk := range board.PIO {
		for sm := 0; sm < pio.NumStateMachines; sm++ {
			board.DMA.AddDREQ(blk.DREQ(sm, true))
			board.DMA.AddDREQ(blk.DREQ(sm, false))
		}
	}
}

func (b Builder) registerComponents(board *Board) {
	board.Simulation.RegisterComponent(board.IRQ)
	board.Simulation.RegisterComponent(board.DMA)

	for _, blk := range board.PIO {
		for _, sm := range blk.StateMachines() {
			board.Simulation.RegisterComponent(sm)
		}
	}
}
