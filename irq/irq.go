// Package irq models the interrupt controller of the simulated processor.
//
// Interrupt lines are edge triggered: a peripheral raises a line when its
// condition appears, and the line stays pending until the handlers run. Each
// line can carry several shared handlers. Software masks a line for the
// duration of a CriticalSection; edges that arrive while the line is masked
// are serviced as soon as the critical section is left.
//
// Handlers of one line never run concurrently with each other or with a
// critical section on the same line. They may run on the engine goroutine or
// on the goroutine that leaves a critical section.
package irq

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/pl8sim/sim"
)

// NumLines is the number of interrupt lines of the controller.
const NumLines = 32

// DefaultOrderPriority is the order priority given to shared handlers that
// do not care about their position.
const DefaultOrderPriority = 0x80

// HookPosHandlerEnter marks the start of servicing a line. The item is the
// line number.
var HookPosHandlerEnter = &sim.HookPos{Name: "IRQ Enter"}

// HookPosHandlerExit marks the end of servicing a line.
var HookPosHandlerExit = &sim.HookPos{Name: "IRQ Exit"}

// A HandlerFunc is an interrupt service routine.
type HandlerFunc func()

type sharedHandler struct {
	fn    HandlerFunc
	order int
}

type line struct {
	num int

	// mu is held while the handlers run and while the mask state changes.
	mu        sync.Mutex
	masked    int
	handlers  []sharedHandler
	epilogues []HandlerFunc

	enabled   atomic.Bool
	pending   atomic.Bool
	scheduled atomic.Bool
}

type serviceEvent struct {
	*sim.EventBase
	line *line
}

// A Controller dispatches interrupt lines to their handlers.
type Controller struct {
	*sim.ComponentBase

	engine       sim.Engine
	freq         sim.Freq
	entryLatency int

	lines [NumLines]*line
	hooks sync.Mutex
}

// NewController creates an interrupt controller. Raised lines are serviced
// entryLatency cycles of freq after the edge. With a latency of zero the
// handlers run immediately, within the call to Raise.
func NewController(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	entryLatency int,
) *Controller {
	c := &Controller{
		ComponentBase: sim.NewComponentBase(name),
		engine:        engine,
		freq:          freq,
		entryLatency:  entryLatency,
	}

	for i := range c.lines {
		c.lines[i] = &line{num: i}
	}

	return c
}

func (c *Controller) line(n int) *line {
	if n < 0 || n >= NumLines {
		log.Panicf("invalid irq number %d", n)
	}

	return c.lines[n]
}

// AddSharedHandler adds a handler to a line. Handlers with a higher order
// priority run first; equal priorities run in the order they were added.
func (c *Controller) AddSharedHandler(n int, fn HandlerFunc, order int) {
	l := c.line(n)

	l.mu.Lock()
	l.handlers = append(l.handlers, sharedHandler{fn: fn, order: order})
	sort.SliceStable(l.handlers, func(i, j int) bool {
		return l.handlers[i].order > l.handlers[j].order
	})
	l.mu.Unlock()

	c.service(l)
}

// AddEpilogue adds a function that runs after every handler run of a line,
// once the line is released. Unlike handlers, epilogues may enter a critical
// section on their own line.
func (c *Controller) AddEpilogue(n int, fn HandlerFunc) {
	l := c.line(n)

	l.mu.Lock()
	l.epilogues = append(l.epilogues, fn)
	l.mu.Unlock()
}

// SetEnabled enables or disables a line. Enabling a line with a pending edge
// services it right away.
func (c *Controller) SetEnabled(n int, enabled bool) {
	l := c.line(n)

	l.mu.Lock()
	l.enabled.Store(enabled)
	l.mu.Unlock()

	c.service(l)
}

// IsEnabled tells if a line is enabled.
func (c *Controller) IsEnabled(n int) bool {
	return c.line(n).enabled.Load()
}

// IsPending tells if a line has an edge that has not been serviced yet.
func (c *Controller) IsPending(n int) bool {
	return c.line(n).pending.Load()
}

// Raise signals an edge on a line. It must be called from the engine
// goroutine.
func (c *Controller) Raise(n int) {
	l := c.line(n)
	l.pending.Store(true)

	if c.entryLatency == 0 {
		c.service(l)
		return
	}

	if !l.scheduled.CompareAndSwap(false, true) {
		return
	}

	now := c.engine.CurrentTime()
	evt := serviceEvent{
		EventBase: sim.NewEventBase(
			c.freq.NCyclesLater(c.entryLatency, now), c),
		line: l,
	}
	c.engine.Schedule(evt)
}

// Handle services the line an entry event was scheduled for.
func (c *Controller) Handle(e sim.Event) error {
	switch e := e.(type) {
	case serviceEvent:
		e.line.scheduled.Store(false)
		c.service(e.line)
	default:
		log.Panicf("cannot handle event of type %T", e)
	}

	return nil
}

// service runs the handlers of a line for as long as it has a pending edge
// and is neither disabled nor masked. Every path that releases the line lock
// in a serviceable state calls service afterwards, so an edge that loses the
// TryLock race is never left behind.
func (c *Controller) service(l *line) {
	for l.pending.Load() {
		if !l.mu.TryLock() {
			return
		}

		if !l.enabled.Load() || l.masked > 0 {
			l.mu.Unlock()
			return
		}

		var epilogues []HandlerFunc
		if l.pending.CompareAndSwap(true, false) {
			c.invokeHook(HookPosHandlerEnter, l.num)

			for _, h := range l.handlers {
				h.fn()
			}

			c.invokeHook(HookPosHandlerExit, l.num)

			epilogues = l.epilogues
		}

		l.mu.Unlock()

		for _, fn := range epilogues {
			fn()
		}
	}
}

func (c *Controller) invokeHook(pos *sim.HookPos, n int) {
	if c.NumHooks() == 0 {
		return
	}

	c.hooks.Lock()
	defer c.hooks.Unlock()

	c.InvokeHook(sim.HookCtx{Domain: c, Pos: pos, Item: n})
}

// A CriticalSection keeps one interrupt line masked until Exit is called.
type CriticalSection struct {
	controller *Controller
	line       *line
	once       sync.Once
}

// Enter masks a line and returns the critical section that unmasks it. If a
// handler of the line is running, Enter waits for it to return. Handlers must
// not enter a critical section on their own line.
//
//	cs := controller.Enter(n)
//	defer cs.Exit()
func (c *Controller) Enter(n int) *CriticalSection {
	l := c.line(n)

	l.mu.Lock()
	l.masked++
	l.mu.Unlock()

	return &CriticalSection{controller: c, line: l}
}

// Exit unmasks the line and services edges that arrived in the meantime.
// Calling Exit more than once has no further effect.
func (cs *CriticalSection) Exit() {
	cs.once.Do(func() {
		l := cs.line

		l.mu.Lock()
		l.masked--
		l.mu.Unlock()

		cs.controller.service(l)
	})
}
