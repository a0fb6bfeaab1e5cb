package monitoring_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/monitoring"
	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/platform"
	"github.com/sarchlab/pl8sim/sim"
)

type counters struct {
	ReadCount   uint64 `json:"read_count"`
	WriteCount  uint64 `json:"write_count"`
	MaxQ        uint64 `json:"max_q"`
	Overflows   uint64 `json:"overflows"`
	ReadBits    uint32 `json:"read_bits"`
	WrittenBits uint32 `json:"written_bits"`
}

type take struct {
	Direction string `json:"direction"`
	Bits      uint32 `json:"bits"`
}

type fifo struct {
	FIFO  string `json:"fifo"`
	Level int    `json:"level"`
	Cap   int    `json:"cap"`
}

func serve(h http.Handler, method, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, url, nil))

	return rec
}

func decode(rec *httptest.ResponseRecorder, v any) {
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
}

var _ = Describe("Monitor with a running bridge", func() {
	var (
		board  *platform.Board
		master *bus.Master
		bridge *pl8.Bridge
		m      *monitoring.Monitor
		h      http.Handler
	)

	BeforeEach(func() {
		board = platform.MakeBuilder().Build("Pico")
		master = bus.NewMaster("Atom", board.Engine, sim.MHz, board.GPIO,
			bus.DefaultPinMap())
		master.Reset()

		var err error
		bridge, err = pl8.MakeBuilder().
			WithBoard(board).
			WithLogf(func(string, ...interface{}) {}).
			Build("PL8")
		Expect(err).NotTo(HaveOccurred())

		m = monitoring.NewMonitor()
		m.RegisterSimulation(board.Simulation)
		m.RegisterBridge(bridge)
		h = m.Handler()

		master.Enqueue(
			bus.WriteReg(4, 0x5a),
			bus.WriteReg(2, 0x24),
			bus.ReadReg(4),
			bus.Idle(2),
		)
		Expect(board.Engine.Run()).To(Succeed())
	})

	It("should list the components", func() {
		var names []string
		decode(serve(h, http.MethodGet, "/api/components"), &names)

		Expect(names).To(ContainElements("Pico.DMA", "Pico.IRQ"))
		Expect(names).To(HaveLen(len(board.Simulation.Components())))
	})

	It("should answer 404 for unknown components", func() {
		rec := serve(h, http.MethodGet, "/api/component/Nope")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should serve the register file", func() {
		var rsp struct {
			Registers []int `json:"registers"`
		}
		decode(serve(h, http.MethodGet, "/api/registers"), &rsp)

		Expect(rsp.Registers).To(HaveLen(16))
		Expect(rsp.Registers[4]).To(Equal(0x5a))
		Expect(rsp.Registers[2]).To(Equal(0x24))
	})

	It("should serve the counters without clearing the masks", func() {
		var c counters
		decode(serve(h, http.MethodGet, "/api/counters"), &c)

		Expect(c.ReadCount).To(Equal(uint64(1)))
		Expect(c.WriteCount).To(Equal(uint64(2)))
		Expect(c.ReadBits).To(Equal(uint32(0x10)))
		Expect(c.WrittenBits).To(Equal(uint32(0x14)))

		decode(serve(h, http.MethodGet, "/api/counters"), &c)
		Expect(c.WrittenBits).To(Equal(uint32(0x14)))
	})

	It("should take and clear the masks", func() {
		var t take
		decode(serve(h, http.MethodPost, "/api/take/written"), &t)
		Expect(t).To(Equal(take{Direction: "written", Bits: 0x14}))

		decode(serve(h, http.MethodPost, "/api/take/written"), &t)
		Expect(t.Bits).To(BeZero())

		decode(serve(h, http.MethodPost, "/api/take/read"), &t)
		Expect(t).To(Equal(take{Direction: "read", Bits: 0x10}))
	})

	It("should not take on GET", func() {
		rec := serve(h, http.MethodGet, "/api/take/read")

		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		Expect(bridge.Status().ReadBits).To(Equal(uint32(0x10)))
	})

	It("should list the FIFOs of every state machine", func() {
		var fifos []fifo
		decode(serve(h, http.MethodGet, "/api/fifos"), &fifos)

		Expect(fifos).To(HaveLen(16))
		Expect(fifos[0].Cap).To(Equal(4))
	})

	It("should page the FIFO list", func() {
		var fifos []fifo
		decode(serve(h, http.MethodGet,
			"/api/fifos?sort=level&limit=3&offset=14"), &fifos)

		Expect(fifos).To(HaveLen(2))
	})

	It("should reject a bad FIFO query", func() {
		rec := serve(h, http.MethodGet, "/api/fifos?sort=name")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = serve(h, http.MethodGet, "/api/fifos?limit=-1")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report the simulation time", func() {
		var rsp struct {
			Now float64 `json:"now"`
		}
		decode(serve(h, http.MethodGet, "/api/now"), &rsp)

		Expect(rsp.Now).To(BeNumerically("~",
			float64(board.Engine.CurrentTime()), 1e-9))
		Expect(rsp.Now).To(BeNumerically(">", 0))
	})

	It("should pause and continue the engine", func() {
		Expect(serve(h, http.MethodGet, "/api/pause").Code).
			To(Equal(http.StatusOK))
		Expect(serve(h, http.MethodGet, "/api/continue").Code).
			To(Equal(http.StatusOK))

		master.Enqueue(bus.WriteReg(0, 1))
		Expect(board.Engine.Run()).To(Succeed())
		Expect(bridge.WriteCount()).To(Equal(uint64(3)))
	})

	It("should report the resources of the process", func() {
		var rsp struct {
			MemorySize uint64 `json:"memory_size"`
		}
		decode(serve(h, http.MethodGet, "/api/resource"), &rsp)

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})
})

var _ = Describe("Monitor with a mocked bridge", func() {
	var (
		mockCtrl *gomock.Controller
		bridge   *MockBridge
		m        *monitoring.Monitor
		h        http.Handler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bridge = NewMockBridge(mockCtrl)

		m = monitoring.NewMonitor()
		m.RegisterBridge(bridge)
		h = m.Handler()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should call the clearing query once per request", func() {
		bridge.EXPECT().TakeReadBits().Return(uint32(0x8001))

		var t take
		decode(serve(h, http.MethodPost, "/api/take/read"), &t)

		Expect(t.Bits).To(Equal(uint32(0x8001)))
	})

	It("should reject an unknown direction without querying", func() {
		rec := serve(h, http.MethodPost, "/api/take/sideways")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report counters from the status", func() {
		bridge.EXPECT().Status().Return(pl8.Status{
			Counters: pl8.Counters{ReadCount: 7, WriteCount: 9, MaxQ: 2},
		})

		var c counters
		decode(serve(h, http.MethodGet, "/api/counters"), &c)

		Expect(c).To(Equal(counters{ReadCount: 7, WriteCount: 9, MaxQ: 2}))
	})
})

var _ = Describe("Monitor without a bridge", func() {
	It("should answer 404 for bridge queries", func() {
		h := monitoring.NewMonitor().Handler()

		Expect(serve(h, http.MethodGet, "/api/registers").Code).
			To(Equal(http.StatusNotFound))
		Expect(serve(h, http.MethodPost, "/api/take/read").Code).
			To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("Progress bars", func() {
	It("should list, finish and remove bars", func() {
		m := monitoring.NewMonitor()
		h := m.Handler()

		bar := m.CreateProgressBar("workload", 4)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)
		bar.IncrementFinished(2)

		Expect(bar.Done()).To(BeTrue())
		Expect(bar.InProgress).To(Equal(uint64(1)))

		var bars []map[string]any
		decode(serve(h, http.MethodGet, "/api/progress"), &bars)
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["name"]).To(Equal("workload"))

		m.CompleteProgressBar(bar)
		decode(serve(h, http.MethodGet, "/api/progress"), &bars)
		Expect(bars).To(BeEmpty())
	})
})
