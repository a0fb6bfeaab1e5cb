// Package platform assembles the simulated microcontroller: the engine, the
// system bus with its memories and register windows, the GPIO bank, the PIO
// blocks, the DMA controller and the interrupt controller.
package platform

import (
	"github.com/sarchlab/pl8sim/dma"
	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/irq"
	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/sim"
)

// A Board is a simulated microcontroller.
type Board struct {
	name string

	Engine     sim.Engine
	Simulation *sim.Simulation
	Freq       sim.Freq

	Space *mem.AddressSpace
	SRAM  *mem.Storage
	Heap  *mem.Allocator

	GPIO *gpio.Bank
	PIO  [pio.NumBlocks]*pio.Block
	DMA  *dma.Controller
	IRQ  *irq.Controller
}

// Name returns the name of the board.
func (b *Board) Name() string {
	return b.name
}

// PIOBlocks returns the PIO blocks in claim order.
func (b *Board) PIOBlocks() []*pio.Block {
	return b.PIO[:]
}

// SRAMOffset converts a bus address inside the SRAM to a storage offset.
func (b *Board) SRAMOffset(addr uint32) uint64 {
	return uint64(addr - SRAMBase)
}
