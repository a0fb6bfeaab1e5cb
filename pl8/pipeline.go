package pl8

import (
	"log"
	"sync"

	"github.com/sarchlab/pl8sim/dma"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/sim"
)

// HookPosPipelineCommit marks a pipeline serving one transaction. The item
// is the Commit.
var HookPosPipelineCommit = &sim.HookPos{Name: "PL8 Pipeline Commit"}

// PipelineKind tells which direction a pipeline serves.
type PipelineKind int

// Pipeline kinds.
const (
	WritePipeline PipelineKind = iota
	ReadPipeline
)

func (k PipelineKind) String() string {
	if k == ReadPipeline {
		return "read"
	}

	return "write"
}

// Phase is the position of a pipeline in its transfer cycle.
type Phase int

// Pipeline phases.
const (
	AwaitAddress Phase = iota
	AwaitData
)

func (p Phase) String() string {
	if p == AwaitData {
		return "await-data"
	}

	return "await-address"
}

// A Commit is one transaction served by a pipeline.
type Commit struct {
	Kind     PipelineKind
	Register uint8
	Data     uint8
	Time     sim.VTimeInSec
}

// A Pipeline pairs an address capture and a data transfer. The address
// channel moves a captured register address into the data channel; the data
// channel then moves one byte between the register file and the bus.
//
//	AwaitAddress --address channel done--> AwaitData
//	AwaitData    --data channel done-----> commit, AwaitAddress
//
// Each completion arms the other channel, so the pipeline runs forever
// without the processor.
type Pipeline struct {
	sim.HookableBase

	name   string
	kind   PipelineKind
	time   sim.TimeTeller
	regs   *RegisterFile
	addrSM *pio.StateMachine
	dataSM *pio.StateMachine
	addrCh *dma.Channel
	dataCh *dma.Channel

	mu      sync.Mutex
	phase   Phase
	commits uint64
}

// Name returns the name of the pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Kind returns the direction the pipeline serves.
func (p *Pipeline) Kind() PipelineKind {
	return p.kind
}

// Phase returns where the pipeline is in its cycle.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.phase
}

// Commits returns the number of transactions served.
func (p *Pipeline) Commits() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.commits
}

// AddressSM returns the state machine that captures addresses.
func (p *Pipeline) AddressSM() *pio.StateMachine {
	return p.addrSM
}

// DataSM returns the state machine on the data side.
func (p *Pipeline) DataSM() *pio.StateMachine {
	return p.dataSM
}

// AddressChannel returns the channel that forwards captured addresses.
func (p *Pipeline) AddressChannel() *dma.Channel {
	return p.addrCh
}

// DataChannel returns the channel that moves the data byte.
func (p *Pipeline) DataChannel() *dma.Channel {
	return p.dataCh
}

// start arms the address channel.
func (p *Pipeline) start() {
	p.addrCh.SetCompletionHandler(p)
	p.dataCh.SetCompletionHandler(p)
	p.addrCh.Trigger()
}

// NotifyComplete advances the pipeline when one of its channels finishes.
func (p *Pipeline) NotifyComplete(ch *dma.Channel) {
	p.mu.Lock()

	switch {
	case ch == p.addrCh && p.phase == AwaitAddress:
		p.phase = AwaitData
		p.mu.Unlock()

		p.dataCh.Trigger()
	case ch == p.dataCh && p.phase == AwaitData:
		p.phase = AwaitAddress
		p.commits++
		p.mu.Unlock()

		p.commit()
		p.addrCh.Trigger()
	default:
		p.mu.Unlock()
		log.Panicf("%s: channel %d completed in phase %s",
			p.name, ch.Index(), p.phase)
	}
}

func (p *Pipeline) commit() {
	addr := p.dataCh.WriteAddr()
	if p.kind == ReadPipeline {
		addr = p.dataCh.ReadAddr()
	}

	if !p.regs.Contains(addr) {
		log.Panicf("%s: served address 0x%08x outside the register file",
			p.name, addr)
	}

	if p.NumHooks() == 0 {
		return
	}

	reg := uint8(addr - p.regs.Base())
	c := Commit{
		Kind:     p.kind,
		Register: reg,
		Data:     p.regs.Get(reg),
		Time:     p.time.CurrentTime(),
	}

	p.InvokeHook(sim.HookCtx{Domain: p, Pos: HookPosPipelineCommit, Item: c})
}
