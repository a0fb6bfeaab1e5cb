package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Simulation", func() {
	var (
		mockCtrl   *gomock.Controller
		engine     *MockEngine
		simulation *Simulation
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		simulation = NewSimulation(engine)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should register and find components", func() {
		a := NewTickingComponent("A", engine, 1, NewMockTicker(mockCtrl))
		b := NewTickingComponent("B", engine, 1, NewMockTicker(mockCtrl))

		simulation.RegisterComponent(a)
		simulation.RegisterComponent(b)

		Expect(simulation.GetEngine()).To(BeIdenticalTo(engine))
		Expect(simulation.Components()).To(HaveLen(2))
		Expect(simulation.GetComponentByName("A")).To(BeIdenticalTo(a))
		Expect(simulation.GetComponentByName("B")).To(BeIdenticalTo(b))
		Expect(simulation.GetComponentByName("C")).To(BeNil())
	})

	It("should refuse duplicated names", func() {
		a := NewTickingComponent("A", engine, 1, NewMockTicker(mockCtrl))
		simulation.RegisterComponent(a)

		Expect(func() { simulation.RegisterComponent(a) }).To(Panic())
	})
})
