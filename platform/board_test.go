package platform_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/dma"
	"github.com/sarchlab/pl8sim/mem"
	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/platform"
	"github.com/sarchlab/pl8sim/sim"
)

// sourceProgram pushes the numbers 1, 2, 3 and stops.
type sourceProgram struct{}

func (sourceProgram) Name() string { return "source" }
func (sourceProgram) Length() int  { return 3 }

func (sourceProgram) Step(sm *pio.StateMachine) bool {
	if sm.PC >= 3 {
		return false
	}

	if !sm.Push(uint32(sm.PC + 1)) {
		return false
	}

	sm.PC++

	return true
}

var _ = Describe("Board", func() {
	var board *platform.Board

	BeforeEach(func() {
		board = platform.MakeBuilder().
			WithFreq(100 * sim.MHz).
			Build("Pico")
	})

	It("should register the simulated components", func() {
		Expect(board.Simulation.Components()).To(HaveLen(2 + 8))
		Expect(board.Simulation.GetComponentByName("Pico.PIO[1].SM[3]")).
			NotTo(BeNil())
		Expect(board.Simulation.GetComponentByName("Pico.DMA")).
			To(BeIdenticalTo(board.DMA))
	})

	It("should map memory and registers", func() {
		Expect(board.Space.RegionName(platform.SRAMBase + 0x100)).
			To(Equal("SRAM"))
		Expect(board.Space.RegionName(pio.RXFAddr(1, 0))).
			To(Equal("Pico.PIO[1]"))
		Expect(board.Space.RegionName(dma.WriteAddrReg(3, false))).
			To(Equal("DMA"))

		Expect(board.Space.Write(platform.SRAMBase+4, mem.Size8, 0x24)).
			To(Succeed())
		b, err := board.SRAM.Read(board.SRAMOffset(platform.SRAMBase+4), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal([]byte{0x24}))
	})

	It("should pace DMA transfers by state machine requests", func() {
		sm, offset, err := pio.ClaimFreeSMAndAddProgram(
			board.PIOBlocks(), sourceProgram{})
		Expect(err).NotTo(HaveOccurred())
		sm.Init(offset, pio.Config{})

		buf, err := board.Heap.Alloc(16, 16)
		Expect(err).NotTo(HaveOccurred())

		ch, err := board.DMA.Claim()
		Expect(err).NotTo(HaveOccurred())

		cfg := dma.DefaultConfig()
		cfg.DREQ = pio.DREQNum(0, sm.Index(), false)
		cfg.ReadIncrement = false
		cfg.WriteIncrement = true
		ch.Configure(cfg, buf, pio.RXFAddr(0, sm.Index()), 3, true)

		sm.SetEnabled(true)
		Expect(board.Engine.Run()).To(Succeed())

		for i := uint32(0); i < 3; i++ {
			w, err := board.SRAM.ReadWord(
				uint32(board.SRAMOffset(buf))+4*i, mem.Size32)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(Equal(i + 1))
		}
		Expect(ch.IsBusy()).To(BeFalse())
	})
})
