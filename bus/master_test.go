package bus_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/gpio"
	"github.com/sarchlab/pl8sim/sim"
)

type busEdge struct {
	rising bool
	addr   uint32
	rnw    bool
	nb400  bool
	data   uint32
}

// probe records the bus lines at every edge of Φ2.
type probe struct {
	bank  *gpio.Bank
	pins  bus.PinMap
	edges []busEdge
}

func (p *probe) NotifyPinChange(pin int, level bool) {
	if pin != p.pins.Phi2 {
		return
	}

	p.edges = append(p.edges, busEdge{
		rising: level,
		addr:   p.bank.Sample(p.pins.AddrBase, bus.NumAddrPins),
		rnw:    p.bank.Get(p.pins.RnW),
		nb400:  p.bank.Get(p.pins.NB400),
		data:   p.bank.Sample(p.pins.DataBase, bus.NumDataPins),
	})
}

var _ = Describe("Master", func() {
	var (
		engine *sim.SerialEngine
		bank   *gpio.Bank
		master *bus.Master
		p      *probe
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		bank = gpio.NewBank()
		pins := bus.DefaultPinMap()
		p = &probe{bank: bank, pins: pins}
		bank.AddWatcher(p)
		master = bus.NewMaster("Atom", engine, sim.MHz, bank, pins)
		master.Reset()
	})

	It("should present a write on the bus", func() {
		master.Enqueue(bus.WriteReg(3, 0xa5))
		Expect(engine.Run()).To(Succeed())

		Expect(p.edges).To(HaveLen(2))
		Expect(p.edges[0]).To(Equal(busEdge{
			rising: true, addr: 3, rnw: false, nb400: false, data: 0,
		}))
		Expect(p.edges[1]).To(Equal(busEdge{
			rising: false, addr: 3, rnw: false, nb400: false, data: 0xa5,
		}))

		Expect(bank.Get(6)).To(BeTrue())
		Expect(master.Completed()).To(Equal(uint64(1)))
		Expect(master.Results()).To(BeEmpty())
		Expect(engine.CurrentTime()).To(BeNumerically("~", 1.25e-6, 1e-12))
	})

	It("should sample the data bus at the end of a read", func() {
		for i, pin := range bus.DefaultPinMap().DataPins() {
			bank.SetPulls(pin, i == 0 || i == 2, i != 0 && i != 2)
		}

		master.Enqueue(bus.ReadReg(7))
		Expect(engine.Run()).To(Succeed())

		Expect(p.edges[0].rnw).To(BeTrue())
		Expect(p.edges[0].addr).To(Equal(uint32(7)))

		results := master.Results()
		Expect(results).To(HaveLen(1))
		Expect(results[0].Register).To(Equal(uint8(7)))
		Expect(results[0].Value).To(Equal(uint8(0x05)))
	})

	It("should keep the bridge deselected while idle", func() {
		master.Enqueue(bus.Idle(3), bus.ReadReg(1))
		Expect(engine.Run()).To(Succeed())

		Expect(p.edges).To(HaveLen(8))
		for _, e := range p.edges[:6] {
			Expect(e.nb400).To(BeTrue())
		}
		Expect(p.edges[6].nb400).To(BeFalse())
		Expect(master.Cycles()).To(Equal(uint64(4)))
		Expect(master.Completed()).To(Equal(uint64(1)))
	})

	It("should report finished cycles through hooks", func() {
		var done []bus.Completed
		master.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			done = append(done, ctx.Item.(bus.Completed))
		}))

		master.Enqueue(bus.WriteReg(1, 2), bus.Idle(1), bus.ReadReg(1))
		Expect(engine.Run()).To(Succeed())

		Expect(done).To(HaveLen(2))
		Expect(done[0].Op).To(Equal(bus.OpWrite))
		Expect(done[1].Op).To(Equal(bus.OpRead))
		Expect(done[1].Time).To(BeNumerically(">", done[0].Time))
	})

	It("should resume when more work arrives", func() {
		master.Enqueue(bus.WriteReg(0, 1))
		Expect(engine.Run()).To(Succeed())
		Expect(master.Pending()).To(BeZero())

		master.Enqueue(bus.WriteReg(0, 2))
		Expect(engine.Run()).To(Succeed())
		Expect(master.Completed()).To(Equal(uint64(2)))
	})
})

var _ = Describe("MeasureFreq", func() {
	It("should measure the bus clock", func() {
		engine := sim.NewSerialEngine()
		bank := gpio.NewBank()
		pins := bus.DefaultPinMap()
		master := bus.NewMaster("Atom", engine, sim.MHz, bank, pins)
		master.Reset()
		meter := bus.NewFreqMeter(bank, pins.Phi2)

		master.Enqueue(bus.Idle(1000))
		freq, err := bus.MeasureFreq(engine, meter, 100e-6)

		Expect(err).NotTo(HaveOccurred())
		Expect(float64(freq)).To(BeNumerically("~", 1e6, 2e4))
	})
})
