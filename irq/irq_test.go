package irq_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/irq"
	"github.com/sarchlab/pl8sim/sim"
)

type raiseEvent struct {
	*sim.EventBase
	ctrl *irq.Controller
	n    int
}

type raiser struct{}

func (raiser) Handle(e sim.Event) error {
	evt := e.(raiseEvent)
	evt.ctrl.Raise(evt.n)

	return nil
}

var _ = Describe("Controller", func() {
	var (
		engine *sim.SerialEngine
		ctrl   *irq.Controller
		calls  []string
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		ctrl = irq.NewController("NVIC", engine, 250*sim.MHz, 0)
		calls = nil
	})

	It("should run the handler when an enabled line is raised", func() {
		ctrl.AddSharedHandler(8, func() { calls = append(calls, "a") },
			irq.DefaultOrderPriority)
		ctrl.SetEnabled(8, true)

		ctrl.Raise(8)

		Expect(calls).To(Equal([]string{"a"}))
		Expect(ctrl.IsPending(8)).To(BeFalse())
	})

	It("should keep the edge pending while the line is disabled", func() {
		ctrl.AddSharedHandler(8, func() { calls = append(calls, "a") },
			irq.DefaultOrderPriority)

		ctrl.Raise(8)
		Expect(calls).To(BeEmpty())
		Expect(ctrl.IsPending(8)).To(BeTrue())

		ctrl.SetEnabled(8, true)
		Expect(ctrl.IsEnabled(8)).To(BeTrue())
		Expect(calls).To(Equal([]string{"a"}))
	})

	It("should run shared handlers by order priority", func() {
		ctrl.AddSharedHandler(9, func() { calls = append(calls, "low") }, 0x40)
		ctrl.AddSharedHandler(9, func() { calls = append(calls, "high") }, 0xc0)
		ctrl.AddSharedHandler(9, func() { calls = append(calls, "mid1") },
			irq.DefaultOrderPriority)
		ctrl.AddSharedHandler(9, func() { calls = append(calls, "mid2") },
			irq.DefaultOrderPriority)
		ctrl.SetEnabled(9, true)

		ctrl.Raise(9)

		Expect(calls).To(Equal([]string{"high", "mid1", "mid2", "low"}))
	})

	It("should defer edges raised inside a critical section", func() {
		ctrl.AddSharedHandler(8, func() { calls = append(calls, "a") },
			irq.DefaultOrderPriority)
		ctrl.SetEnabled(8, true)

		cs := ctrl.Enter(8)
		ctrl.Raise(8)
		ctrl.Raise(8)
		Expect(calls).To(BeEmpty())

		cs.Exit()
		Expect(calls).To(Equal([]string{"a"}))

		cs.Exit()
		Expect(calls).To(HaveLen(1))
	})

	It("should support nested critical sections", func() {
		ctrl.AddSharedHandler(8, func() { calls = append(calls, "a") },
			irq.DefaultOrderPriority)
		ctrl.SetEnabled(8, true)

		outer := ctrl.Enter(8)
		inner := ctrl.Enter(8)
		ctrl.Raise(8)

		inner.Exit()
		Expect(calls).To(BeEmpty())

		outer.Exit()
		Expect(calls).To(Equal([]string{"a"}))
	})

	It("should delay the handler by the entry latency", func() {
		ctrl = irq.NewController("NVIC", engine, 1*sim.MHz, 12)
		var handledAt sim.VTimeInSec
		ctrl.AddSharedHandler(7, func() { handledAt = engine.CurrentTime() },
			irq.DefaultOrderPriority)
		ctrl.SetEnabled(7, true)

		engine.Schedule(raiseEvent{
			EventBase: sim.NewEventBase(0.000010, raiser{}),
			ctrl:      ctrl,
			n:         7,
		})
		Expect(engine.Run()).To(Succeed())

		Expect(handledAt).To(BeNumerically("~", 0.000022, 1e-12))
	})

	It("should run epilogues after the line is released", func() {
		ctrl.AddSharedHandler(8, func() { calls = append(calls, "a") },
			irq.DefaultOrderPriority)
		ctrl.AddEpilogue(8, func() {
			cs := ctrl.Enter(8)
			calls = append(calls, "epilogue")
			cs.Exit()
		})
		ctrl.SetEnabled(8, true)

		ctrl.Raise(8)

		Expect(calls).To(Equal([]string{"a", "epilogue"}))
	})

	It("should run epilogues only once a deferred edge is serviced", func() {
		ctrl.AddEpilogue(8, func() { calls = append(calls, "epilogue") })
		ctrl.SetEnabled(8, true)

		cs := ctrl.Enter(8)
		ctrl.Raise(8)
		Expect(calls).To(BeEmpty())

		cs.Exit()
		Expect(calls).To(Equal([]string{"epilogue"}))
	})

	It("should report entry and exit through hooks", func() {
		var positions []*sim.HookPos
		ctrl.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			positions = append(positions, ctx.Pos)
			Expect(ctx.Item).To(Equal(8))
		}))
		ctrl.SetEnabled(8, true)

		ctrl.Raise(8)

		Expect(positions).To(Equal(
			[]*sim.HookPos{irq.HookPosHandlerEnter, irq.HookPosHandlerExit}))
	})

	It("should never run a handler inside a critical section", func() {
		var (
			inside   atomic.Bool
			violated atomic.Bool
			handled  atomic.Int64
		)

		ctrl.AddSharedHandler(8, func() {
			if inside.Load() {
				violated.Store(true)
			}
			handled.Add(1)
		}, irq.DefaultOrderPriority)
		ctrl.SetEnabled(8, true)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				cs := ctrl.Enter(8)
				inside.Store(true)
				inside.Store(false)
				cs.Exit()
			}
		}()

		for i := 0; i < 2000; i++ {
			ctrl.Raise(8)
		}
		wg.Wait()

		Expect(violated.Load()).To(BeFalse())
		Expect(handled.Load()).To(BeNumerically(">", 0))
		Expect(ctrl.IsPending(8)).To(BeFalse())
	})

	It("should panic on invalid lines", func() {
		Expect(func() { ctrl.Raise(irq.NumLines) }).To(Panic())
	})
})
