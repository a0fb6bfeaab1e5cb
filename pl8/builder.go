package pl8

import (
	"fmt"
	"log"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/dma"
	"github.com/sarchlab/pl8sim/irq"
	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/platform"
)

// Builder can build bridges.
type Builder struct {
	board    *platform.Board
	pins     bus.PinMap
	irqIndex int
	logf     func(format string, args ...interface{})
}

// MakeBuilder returns a Builder for the PL8 board wiring.
func MakeBuilder() Builder {
	return Builder{
		pins:     bus.DefaultPinMap(),
		irqIndex: 1,
		logf:     log.Printf,
	}
}

// WithBoard sets the board whose resources the bridge claims.
func (b Builder) WithBoard(board *platform.Board) Builder {
	b.board = board
	return b
}

// WithPinMap sets the wiring of the bus.
func (b Builder) WithPinMap(pins bus.PinMap) Builder {
	b.pins = pins
	return b
}

// WithLogf sets where the startup diagnostics go.
func (b Builder) WithLogf(logf func(format string, args ...interface{})) Builder {
	b.logf = logf
	return b
}

type claimedSM struct {
	sm     *pio.StateMachine
	offset int
}

// Build claims the state machines, channels and memory the bridge needs,
// wires them and starts the bridge. Running out of any of them is an error.
func (b Builder) Build(name string) (*Bridge, error) {
	if b.board == nil {
		log.Panic("pl8: builder needs a board")
	}

	progs := NewPrograms(b.pins)
	bridge := &Bridge{
		name: name,
		time: b.board.Engine,
		irqs: b.board.IRQ,
	}

	b.initPins()

	act, err := b.claim(progs.Activity, pio.Config{})
	if err != nil {
		return nil, fmt.Errorf("activity sequencer: %w", err)
	}

	b.connectActivity(bridge, act.sm)

	dataOut := pio.Config{
		OutBase:  b.pins.DataBase,
		OutCount: bus.NumDataPins,
	}

	claims := make([]claimedSM, 4)
	for i, c := range []struct {
		prog pio.Program
		cfg  pio.Config
	}{
		{progs.WriteAddress, pio.Config{}},
		{progs.WriteData, pio.Config{}},
		{progs.ReadAddress, pio.Config{}},
		{progs.ReadData, dataOut},
	} {
		claims[i], err = b.claim(c.prog, c.cfg)
		if err != nil {
			return nil, fmt.Errorf("%s sequencer: %w", c.prog.Name(), err)
		}
	}

	regs, err := b.allocRegisters()
	if err != nil {
		return nil, err
	}

	bridge.regs = regs

	claims[0].sm.Put(regs.Base() >> 4)
	claims[2].sm.Put(regs.Base() >> 4)

	bridge.writePipe, err = b.buildPipeline(name+".WritePipeline",
		WritePipeline, regs, claims[0].sm, claims[1].sm)
	if err != nil {
		return nil, err
	}

	bridge.readPipe, err = b.buildPipeline(name+".ReadPipeline",
		ReadPipeline, regs, claims[2].sm, claims[3].sm)
	if err != nil {
		return nil, err
	}

	bridge.writePipe.start()
	bridge.readPipe.start()

	return bridge, nil
}

// initPins makes the address and control lines inputs and puts a bus keeper
// on the data lines.
func (b Builder) initPins() {
	bank := b.board.GPIO

	for _, pin := range b.pins.ControlPins() {
		bank.Init(pin)
		bank.SetOutputEnable(pin, false)
	}

	for _, pin := range b.pins.DataPins() {
		bank.SetPulls(pin, true, true)
	}
}

func (b Builder) claim(prog pio.Program, cfg pio.Config) (claimedSM, error) {
	sm, offset, err := pio.ClaimFreeSMAndAddProgram(b.board.PIOBlocks(), prog)
	if err != nil {
		return claimedSM{}, err
	}

	sm.Init(offset, cfg)
	sm.SetEnabled(true)

	return claimedSM{sm: sm, offset: offset}, nil
}

func (b Builder) connectActivity(bridge *Bridge, sm *pio.StateMachine) {
	block := sm.Block()

	bridge.activitySM = sm
	bridge.irqSource = pio.SourceRxNotEmpty(sm.Index())
	bridge.irqNum = pio.IRQNum(block.Index(), b.irqIndex)

	b.logf("cpu_irqn = %d  pio_isrc = %d\n", bridge.irqNum, bridge.irqSource)

	b.board.IRQ.AddSharedHandler(bridge.irqNum, bridge.handleActivityIRQ,
		irq.DefaultOrderPriority)
	b.board.IRQ.AddEpilogue(bridge.irqNum, bridge.flushHooks)
	b.board.IRQ.SetEnabled(bridge.irqNum, true)
	block.SetIRQSourceEnabled(b.irqIndex, bridge.irqSource, true)
}

func (b Builder) allocRegisters() (*RegisterFile, error) {
	base, err := b.board.Heap.Alloc(NumRegisters, RegisterFileAlign)
	if err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}

	b.logf("Buffer starts at: 0x%08x\n", base)

	return NewRegisterFile(b.board.SRAM, base, b.board.SRAMOffset(base)), nil
}

func (b Builder) buildPipeline(
	name string,
	kind PipelineKind,
	regs *RegisterFile,
	addrSM, dataSM *pio.StateMachine,
) (*Pipeline, error) {
	addrCh, err := b.board.DMA.Claim()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	dataCh, err := b.board.DMA.Claim()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	p := &Pipeline{
		name:   name,
		kind:   kind,
		time:   b.board.Engine,
		regs:   regs,
		addrSM: addrSM,
		dataSM: dataSM,
		addrCh: addrCh,
		dataCh: dataCh,
	}

	addrBlock := addrSM.Block().Index()
	dataBlock := dataSM.Block().Index()
	high := kind == ReadPipeline

	addrCfg := dma.Config{
		HighPriority: high,
		DREQ:         pio.DREQNum(addrBlock, addrSM.Index(), false),
		DataSize:     mem.Size32,
	}
	dataCfg := dma.Config{
		HighPriority: high,
		DataSize:     mem.Size8,
	}

	if kind == WritePipeline {
		addrCh.Configure(addrCfg, dma.WriteAddrReg(dataCh.Index(), false),
			pio.RXFAddr(addrBlock, addrSM.Index()), 1, false)

		dataCfg.DREQ = pio.DREQNum(dataBlock, dataSM.Index(), false)
		dataCh.Configure(dataCfg, regs.Base(),
			pio.RXFAddr(dataBlock, dataSM.Index()), 1, false)
	} else {
		addrCh.Configure(addrCfg, dma.ReadAddrReg(dataCh.Index(), false),
			pio.RXFAddr(addrBlock, addrSM.Index()), 1, false)

		dataCfg.DREQ = dma.DREQPermanent
		dataCh.Configure(dataCfg, pio.TXFAddr(dataBlock, dataSM.Index()),
			regs.Base(), 1, false)
	}

	return p, nil
}
