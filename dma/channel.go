package dma

import (
	"log"
	"sync"
)

// A CompletionHandler gets notified when a channel finishes its transfers.
// It runs on the engine goroutine, inside the controller tick.
type CompletionHandler interface {
	NotifyComplete(ch *Channel)
}

// A Channel is one transfer engine of the controller.
type Channel struct {
	ctrl    *Controller
	index   int
	claimed bool

	mu         sync.Mutex
	cfg        Config
	enabled    bool
	readAddr   uint32
	writeAddr  uint32
	count      uint32
	reload     uint32
	busy       bool
	errorBits  uint32
	transfers  uint64
	completion CompletionHandler
}

// Index returns the channel number.
func (ch *Channel) Index() int {
	return ch.index
}

// Config returns the current transfer configuration.
func (ch *Channel) Config() Config {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.cfg
}

// SetCompletionHandler sets who gets notified when the channel finishes.
func (ch *Channel) SetCompletionHandler(h CompletionHandler) {
	ch.mu.Lock()
	ch.completion = h
	ch.mu.Unlock()
}

// Configure sets up the channel in one go, the way the SDK configure call
// does. With trigger set the transfers start right away.
func (ch *Channel) Configure(
	cfg Config,
	writeAddr, readAddr uint32,
	count uint32,
	trigger bool,
) {
	ch.mu.Lock()
	ch.cfg = cfg
	ch.enabled = true
	ch.writeAddr = writeAddr
	ch.readAddr = readAddr
	ch.reload = count
	ch.mu.Unlock()

	ch.ctrl.watchDREQ(cfg.DREQ)

	if trigger {
		ch.Trigger()
	}
}

// SetReadAddr changes the read address, starting the channel if trigger is
// set.
func (ch *Channel) SetReadAddr(addr uint32, trigger bool) {
	ch.mu.Lock()
	ch.readAddr = addr
	ch.mu.Unlock()

	if trigger {
		ch.Trigger()
	}
}

// SetWriteAddr changes the write address, starting the channel if trigger
// is set.
func (ch *Channel) SetWriteAddr(addr uint32, trigger bool) {
	ch.mu.Lock()
	ch.writeAddr = addr
	ch.mu.Unlock()

	if trigger {
		ch.Trigger()
	}
}

// SetTransCount changes the number of transfers of the next trigger.
func (ch *Channel) SetTransCount(count uint32, trigger bool) {
	ch.mu.Lock()
	ch.reload = count
	ch.mu.Unlock()

	if trigger {
		ch.Trigger()
	}
}

// ReadAddr returns the address the next transfer reads from.
func (ch *Channel) ReadAddr() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.readAddr
}

// WriteAddr returns the address the next transfer writes to.
func (ch *Channel) WriteAddr() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.writeAddr
}

// Trigger starts the transfers of an enabled channel. Triggering a busy
// channel has no effect.
func (ch *Channel) Trigger() {
	ch.mu.Lock()
	if !ch.enabled || ch.busy {
		ch.mu.Unlock()
		return
	}

	ch.count = ch.reload
	ch.busy = ch.count > 0
	ch.errorBits = 0
	busy := ch.busy
	ch.mu.Unlock()

	if busy {
		ch.ctrl.TickLater()
	}
}

// Abort stops the channel, dropping the remaining transfers.
func (ch *Channel) Abort() {
	ch.mu.Lock()
	ch.busy = false
	ch.count = 0
	ch.mu.Unlock()
}

// IsBusy tells if the channel has transfers left.
func (ch *Channel) IsBusy() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.busy
}

// Transfers returns the number of transfers the channel has made.
func (ch *Channel) Transfers() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.transfers
}

func (ch *Channel) ctrlValue() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	v := ch.errorBits
	if ch.enabled {
		v |= ch.cfg.Encode()
	} else {
		v |= ch.cfg.Encode() &^ ctrlEnable
	}

	if ch.busy {
		v |= ctrlBusy
	}

	return v
}

func (ch *Channel) writeCtrl(v uint32, trigger bool) {
	cfg := DecodeConfig(v)

	ch.mu.Lock()
	ch.cfg = cfg
	ch.enabled = v&ctrlEnable != 0
	if !ch.enabled {
		ch.busy = false
	}
	ch.mu.Unlock()

	ch.ctrl.watchDREQ(cfg.DREQ)

	if trigger {
		ch.Trigger()
	}
}

// ready tells if the channel can make a transfer in this cycle and whether
// it is a high priority one.
func (ch *Channel) ready() (ok, high bool) {
	ch.mu.Lock()
	busy, cfg := ch.busy, ch.cfg
	ch.mu.Unlock()

	if !busy {
		return false, false
	}

	return ch.ctrl.dreqReady(cfg.DREQ), cfg.HighPriority
}

// transfer moves one unit of data. It returns true if the channel finished
// with this transfer.
func (ch *Channel) transfer() (Transfer, bool) {
	ch.mu.Lock()
	t := Transfer{
		Channel:   ch.index,
		ReadAddr:  ch.readAddr,
		WriteAddr: ch.writeAddr,
		Size:      ch.cfg.DataSize,
	}
	ch.mu.Unlock()

	value, err := ch.ctrl.bus.Read(t.ReadAddr, t.Size)
	if err != nil {
		log.Printf("DMA channel %d: read error: %v", ch.index, err)
		ch.fail(ctrlReadError)

		return t, false
	}

	t.Value = value

	if err := ch.ctrl.bus.Write(t.WriteAddr, t.Size, value); err != nil {
		log.Printf("DMA channel %d: write error: %v", ch.index, err)
		ch.fail(ctrlWriteError)

		return t, false
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.transfers++

	if ch.cfg.ReadIncrement {
		ch.readAddr += uint32(t.Size)
	}

	if ch.cfg.WriteIncrement {
		ch.writeAddr += uint32(t.Size)
	}

	if ch.count > 0 {
		ch.count--
	}

	if ch.count == 0 {
		ch.busy = false
		return t, true
	}

	return t, false
}

func (ch *Channel) fail(bit uint32) {
	ch.mu.Lock()
	ch.errorBits = bit | ctrlAHBError
	ch.busy = false
	ch.mu.Unlock()
}

func (ch *Channel) notifyComplete() {
	ch.mu.Lock()
	h := ch.completion
	ch.mu.Unlock()

	if h != nil {
		h.NotifyComplete(ch)
	}
}
