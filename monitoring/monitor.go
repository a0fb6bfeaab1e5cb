// Package monitoring turns a running PL8 simulation into an HTTP server, so
// that the register file and the activity masks can be watched and the
// simulation paused from outside.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/pl8sim/pio"
	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/sim"
)

// A Bridge is what the monitor queries. *pl8.Bridge satisfies it.
type Bridge interface {
	Status() pl8.Status
	TakeReadBits() uint32
	TakeWrittenBits() uint32
}

type fifoOwner interface {
	RxFIFO() *pio.FIFO
	TxFIFO() *pio.FIFO
}

type namedFIFO struct {
	name string
	fifo *pio.FIFO
}

// Monitor serves the state of a simulation over HTTP.
type Monitor struct {
	engine     sim.Engine
	components []sim.Component
	fifos      []namedFIFO
	bridge     Bridge
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor. Zero, or a privileged
// port, picks a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that drives the simulation.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterSimulation registers the engine and every component of a
// simulation.
func (m *Monitor) RegisterSimulation(s *sim.Simulation) {
	m.RegisterEngine(s.GetEngine())

	for _, c := range s.Components() {
		m.RegisterComponent(c)
	}
}

// RegisterComponent registers a component to be monitored. The FIFOs of state
// machines are tracked as well.
func (m *Monitor) RegisterComponent(c sim.Component) {
	m.components = append(m.components, c)

	if owner, ok := c.(fifoOwner); ok {
		m.fifos = append(m.fifos,
			namedFIFO{name: c.Name() + ".RX", fifo: owner.RxFIFO()},
			namedFIFO{name: c.Name() + ".TX", fifo: owner.TxFIFO()},
		)
	}
}

// RegisterBridge sets the bridge whose registers and masks are served.
func (m *Monitor) RegisterBridge(b Bridge) {
	m.bridge = b
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the HTTP API of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/registers", m.listRegisters)
	r.HandleFunc("/api/counters", m.listCounters)
	r.HandleFunc("/api/take/{direction}", m.take).Methods(http.MethodPost)
	r.HandleFunc("/api/fifos", m.listFIFOs)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/", m.index)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	handler := m.Handler()

	go func() {
		err := http.Serve(listener, handler)
		if !errors.Is(err, net.ErrClosed) {
			dieOnErr(err)
		}
	}()

	return url, nil
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintln(w, "PL8 simulation monitor")
	fmt.Fprintln(w, "  /api/registers")
	fmt.Fprintln(w, "  /api/counters")
	fmt.Fprintln(w, "  /api/take/read  (POST)")
	fmt.Fprintln(w, "  /api/take/written  (POST)")
	fmt.Fprintln(w, "  /api/components")
	fmt.Fprintln(w, "  /api/fifos")
	fmt.Fprintln(w, "  /api/now, /api/pause, /api/continue")
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Component {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) bridgeOr404(w http.ResponseWriter) Bridge {
	if m.bridge == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No bridge registered"))
		dieOnErr(err)
	}

	return m.bridge
}

type registersRsp struct {
	Registers []int `json:"registers"`
}

func (m *Monitor) listRegisters(w http.ResponseWriter, _ *http.Request) {
	b := m.bridgeOr404(w)
	if b == nil {
		return
	}

	s := b.Status()
	rsp := registersRsp{Registers: make([]int, len(s.Registers))}

	for i, v := range s.Registers {
		rsp.Registers[i] = int(v)
	}

	writeJSON(w, rsp)
}

type countersRsp struct {
	ReadCount   uint64 `json:"read_count"`
	WriteCount  uint64 `json:"write_count"`
	MaxQ        uint64 `json:"max_q"`
	Overflows   uint64 `json:"overflows"`
	ReadBits    uint32 `json:"read_bits"`
	WrittenBits uint32 `json:"written_bits"`
}

func (m *Monitor) listCounters(w http.ResponseWriter, _ *http.Request) {
	b := m.bridgeOr404(w)
	if b == nil {
		return
	}

	s := b.Status()
	writeJSON(w, countersRsp{
		ReadCount:   s.ReadCount,
		WriteCount:  s.WriteCount,
		MaxQ:        s.MaxQ,
		Overflows:   s.Overflows,
		ReadBits:    s.ReadBits,
		WrittenBits: s.WrittenBits,
	})
}

type takeRsp struct {
	Direction string `json:"direction"`
	Bits      uint32 `json:"bits"`
}

func (m *Monitor) take(w http.ResponseWriter, r *http.Request) {
	b := m.bridgeOr404(w)
	if b == nil {
		return
	}

	var rsp takeRsp

	switch dir := mux.Vars(r)["direction"]; dir {
	case "read":
		rsp = takeRsp{Direction: dir, Bits: b.TakeReadBits()}
	case "written":
		rsp = takeRsp{Direction: dir, Bits: b.TakeWrittenBits()}
	default:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: unknown direction %q", dir)

		return
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listFIFOs(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := fifosParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	fmt.Fprintf(w, "[")

	for i, f := range m.sortAndSelectFIFOs(sortMethod, limit, offset) {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "{\"fifo\":\"%s\",\"level\":%d,\"cap\":%d}",
			f.name, f.fifo.Level(), f.fifo.Capacity())
	}

	fmt.Fprint(w, "]")
}

func fifosParseParams(
	r *http.Request,
) (method string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return n, nil
}

func fifoPercent(f *pio.FIFO) float64 {
	return float64(f.Level()) / float64(f.Capacity())
}

// sortAndSelectFIFOs orders the FIFOs, fullest first, and returns the page
// starting at offset. A zero limit means no limit.
func (m *Monitor) sortAndSelectFIFOs(
	sortMethod string,
	limit, offset int,
) []namedFIFO {
	type snapshot struct {
		namedFIFO
		level   int
		percent float64
	}

	snaps := make([]snapshot, len(m.fifos))
	for i, f := range m.fifos {
		snaps[i] = snapshot{f, f.fifo.Level(), fifoPercent(f.fifo)}
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if sortMethod == "level" {
			if snaps[i].level != snaps[j].level {
				return snaps[i].level > snaps[j].level
			}

			return snaps[i].percent > snaps[j].percent
		}

		if snaps[i].percent != snaps[j].percent {
			return snaps[i].percent > snaps[j].percent
		}

		return snaps[i].level > snaps[j].level
	})

	if offset > len(snaps) {
		offset = len(snaps)
	}

	end := len(snaps)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]namedFIFO, 0, end-offset)
	for _, s := range snaps[offset:end] {
		out = append(out, s.namedFIFO)
	}

	return out
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
