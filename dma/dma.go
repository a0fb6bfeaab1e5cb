// Package dma models the DMA controller of the simulated chip. Channels move
// words between addresses of the system bus, paced by request signals from
// the peripherals.
package dma

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/sim"
)

// NumChannels is the number of channels of the controller.
const NumChannels = 12

// Register layout.
const (
	Base          uint32 = 0x50000000
	ChannelStride uint32 = 0x40

	// WindowSize is the size of the register window of all the channels.
	WindowSize uint32 = NumChannels * ChannelStride

	RegReadAddr       uint32 = 0x00
	RegWriteAddr      uint32 = 0x04
	RegTransCount     uint32 = 0x08
	RegCtrlTrig       uint32 = 0x0c
	RegAl1Ctrl        uint32 = 0x10
	RegTransCountTrig uint32 = 0x1c
	RegWriteAddrTrig  uint32 = 0x2c
	RegReadAddrTrig   uint32 = 0x3c
)

// ReadAddrReg returns the bus address of the READ_ADDR register of channel
// ch. With trigger set it returns the triggering alias.
func ReadAddrReg(ch int, trigger bool) uint32 {
	if trigger {
		return Base + uint32(ch)*ChannelStride + RegReadAddrTrig
	}

	return Base + uint32(ch)*ChannelStride + RegReadAddr
}

// WriteAddrReg returns the bus address of the WRITE_ADDR register of channel
// ch. With trigger set it returns the triggering alias.
func WriteAddrReg(ch int, trigger bool) uint32 {
	if trigger {
		return Base + uint32(ch)*ChannelStride + RegWriteAddrTrig
	}

	return Base + uint32(ch)*ChannelStride + RegWriteAddr
}

// ErrNoFreeChannel is returned when every channel is claimed.
var ErrNoFreeChannel = errors.New("no free DMA channel")

// HookPosTransfer marks a single transfer of a channel. The item is the
// Transfer.
var HookPosTransfer = &sim.HookPos{Name: "DMA Transfer"}

// HookPosComplete marks a channel finishing its transfers. The item is the
// channel.
var HookPosComplete = &sim.HookPos{Name: "DMA Complete"}

// A Transfer describes one unit of data moved by a channel.
type Transfer struct {
	Channel   int
	ReadAddr  uint32
	WriteAddr uint32
	Size      mem.AccessSize
	Value     uint32
}

// A Bus is where the channels read and write.
type Bus interface {
	Read(addr uint32, size mem.AccessSize) (uint32, error)
	Write(addr uint32, size mem.AccessSize, value uint32) error
}

// A DREQ is a transfer request signal of a peripheral.
type DREQ interface {
	Number() int
	Ready() bool
	Watch(fn func())
}

// A Controller arbitrates between channels and makes at most one transfer
// per cycle. Ready high priority channels go first; channels of the same
// class take turns.
type Controller struct {
	*sim.TickingComponent

	bus      Bus
	channels [NumChannels]*Channel

	mu      sync.Mutex
	dreqs   map[int]DREQ
	watched map[int]bool
	last    int
}

// NewController creates a DMA controller clocked at freq that moves data
// over bus.
func NewController(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	bus Bus,
) *Controller {
	c := &Controller{
		bus:     bus,
		dreqs:   make(map[int]DREQ),
		watched: make(map[int]bool),
		last:    NumChannels - 1,
	}
	c.TickingComponent = sim.NewTickingComponent(name, engine, freq, c)

	for i := range c.channels {
		c.channels[i] = &Channel{
			ctrl:  c,
			index: i,
			cfg:   DefaultConfig(),
		}
	}

	return c
}

// AddDREQ makes a request signal selectable by its number.
func (c *Controller) AddDREQ(d DREQ) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.Number() == DREQPermanent {
		log.Panicf("%s: DREQ number %d is reserved", c.Name(), DREQPermanent)
	}

	c.dreqs[d.Number()] = d
}

func (c *Controller) watchDREQ(n int) {
	c.mu.Lock()
	d, found := c.dreqs[n]
	if !found || c.watched[n] {
		c.mu.Unlock()
		return
	}
	c.watched[n] = true
	c.mu.Unlock()

	d.Watch(c.TickLater)
}

func (c *Controller) dreqReady(n int) bool {
	if n == DREQPermanent {
		return true
	}

	c.mu.Lock()
	d, found := c.dreqs[n]
	c.mu.Unlock()

	if !found {
		return false
	}

	return d.Ready()
}

// Channel returns channel i.
func (c *Controller) Channel(i int) *Channel {
	return c.channels[i]
}

// Claim takes the lowest numbered free channel.
func (c *Controller) Claim() (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.channels {
		if !ch.claimed {
			ch.claimed = true
			return ch, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", c.Name(), ErrNoFreeChannel)
}

// Unclaim aborts channel i and returns it to the pool.
func (c *Controller) Unclaim(i int) {
	ch := c.channels[i]
	ch.Abort()

	c.mu.Lock()
	ch.claimed = false
	c.mu.Unlock()
}

// IsClaimed tells if channel i is in use.
func (c *Controller) IsClaimed(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channels[i].claimed
}

// Tick makes one transfer on the channel that wins the arbitration.
func (c *Controller) Tick() bool {
	ch := c.arbitrate()
	if ch == nil {
		return false
	}

	t, done := ch.transfer()

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{Domain: c, Pos: HookPosTransfer, Item: t})
	}

	if done {
		if c.NumHooks() > 0 {
			c.InvokeHook(sim.HookCtx{Domain: c, Pos: HookPosComplete, Item: ch})
		}

		ch.notifyComplete()
	}

	return true
}

func (c *Controller) arbitrate() *Channel {
	var normal *Channel

	for i := 1; i <= NumChannels; i++ {
		ch := c.channels[(c.last+i)%NumChannels]

		ok, high := ch.ready()
		if !ok {
			continue
		}

		if high {
			c.last = ch.index
			return ch
		}

		if normal == nil {
			normal = ch
		}
	}

	if normal != nil {
		c.last = normal.index
	}

	return normal
}

// ReadWord implements mem.Target over the channel registers.
func (c *Controller) ReadWord(offset uint32, _ mem.AccessSize) (uint32, error) {
	ch, reg, err := c.decode(offset)
	if err != nil {
		return 0, err
	}

	switch reg {
	case RegReadAddr, 0x14, 0x28, RegReadAddrTrig:
		return ch.ReadAddr(), nil
	case RegWriteAddr, 0x18, RegWriteAddrTrig, 0x34:
		return ch.WriteAddr(), nil
	case RegTransCount, RegTransCountTrig, 0x24, 0x38:
		ch.mu.Lock()
		defer ch.mu.Unlock()

		return ch.count, nil
	case RegCtrlTrig, RegAl1Ctrl, 0x20, 0x30:
		return ch.ctrlValue(), nil
	}

	return 0, fmt.Errorf("%s: read at 0x%x: %w", c.Name(), offset, mem.ErrUnmapped)
}

// WriteWord implements mem.Target over the channel registers. Writes to the
// last register of each alias group trigger the channel.
func (c *Controller) WriteWord(
	offset uint32,
	_ mem.AccessSize,
	value uint32,
) error {
	ch, reg, err := c.decode(offset)
	if err != nil {
		return err
	}

	switch reg {
	case RegReadAddr, 0x14, 0x28:
		ch.SetReadAddr(value, false)
	case RegReadAddrTrig:
		ch.SetReadAddr(value, true)
	case RegWriteAddr, 0x18, 0x34:
		ch.SetWriteAddr(value, false)
	case RegWriteAddrTrig:
		ch.SetWriteAddr(value, true)
	case RegTransCount, 0x24, 0x38:
		ch.SetTransCount(value, false)
	case RegTransCountTrig:
		ch.SetTransCount(value, true)
	case RegCtrlTrig:
		ch.writeCtrl(value, true)
	case RegAl1Ctrl, 0x20, 0x30:
		ch.writeCtrl(value, false)
	default:
		return fmt.Errorf("%s: write at 0x%x: %w",
			c.Name(), offset, mem.ErrUnmapped)
	}

	return nil
}

func (c *Controller) decode(offset uint32) (*Channel, uint32, error) {
	if offset >= WindowSize || offset%4 != 0 {
		return nil, 0, fmt.Errorf("%s: register 0x%x: %w",
			c.Name(), offset, mem.ErrUnmapped)
	}

	return c.channels[offset/ChannelStride], offset % ChannelStride, nil
}
