package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/config"
	"github.com/sarchlab/pl8sim/monitoring"
	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/platform"
	"github.com/sarchlab/pl8sim/recording"
	"github.com/sarchlab/pl8sim/report"
	"github.com/sarchlab/pl8sim/sim"
)

// measureCycles is the number of bus cycles sampled to estimate the 6502
// clock before the workload starts.
const measureCycles = 100

func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Run a 6502 workload against the PL8 bridge.",
		Long: `Run builds the board, starts the bridge and lets a simulated ` +
			`6502 run a workload. A status block is printed every report ` +
			`interval in which the 6502 touched a register.`,
		Args: cobra.NoArgs,
		RunE: runSimulation,
	}

	f := c.Flags()
	f.StringSlice("env", nil, "read settings from these .env files")
	f.String("script", "", "workload script, .lua for a Lua script")
	f.Int64("seed", 1, "seed of the random workload")
	f.Int("count", 1000, "number of transactions in the random workload")
	f.Float64("sys-mhz", 250, "system clock in MHz")
	f.Float64("bus-khz", 1000, "6502 clock in kHz")
	f.Int("irq-latency", 15, "interrupt latency in system cycles")
	f.Duration("report-interval", 0, "simulated time between reports")
	f.Bool("record", false, "record the run into a SQLite database")
	f.String("record-path", "", "database name, without extension")
	f.Bool("monitor", false, "serve the monitoring API")
	f.Int("monitor-port", 0, "port of the monitoring API")
	f.Bool("open-monitor", false, "open the monitor in a browser")
	f.Bool("hold", false, "keep serving the monitor until interrupted")
	f.Bool("parallel-ids", false, "use globally unique IDs")
	f.Bool("event-stats", false, "print the number of events per component")
	f.Bool("log-events", false, "log every simulation event to stderr")

	return c
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	c, err := config.Load(envFiles...)
	if err != nil {
		return c, err
	}

	f := cmd.Flags()

	if f.Changed("script") {
		c.Script, _ = f.GetString("script")
	}

	if f.Changed("seed") {
		c.Seed, _ = f.GetInt64("seed")
	}

	if f.Changed("count") {
		c.RandomCount, _ = f.GetInt("count")
	}

	if f.Changed("sys-mhz") {
		c.SysMHz, _ = f.GetFloat64("sys-mhz")
	}

	if f.Changed("bus-khz") {
		c.BusKHz, _ = f.GetFloat64("bus-khz")
	}

	if f.Changed("irq-latency") {
		c.IRQLatency, _ = f.GetInt("irq-latency")
	}

	if f.Changed("report-interval") {
		c.ReportInterval, _ = f.GetDuration("report-interval")
	}

	if f.Changed("record") {
		c.Record, _ = f.GetBool("record")
	}

	if f.Changed("record-path") {
		c.RecordPath, _ = f.GetString("record-path")
		c.Record = true
	}

	if f.Changed("monitor") {
		c.Monitor, _ = f.GetBool("monitor")
	}

	if f.Changed("monitor-port") {
		c.MonitorPort, _ = f.GetInt("monitor-port")
	}

	if f.Changed("parallel-ids") {
		c.ParallelIDs, _ = f.GetBool("parallel-ids")
	}

	if open, _ := f.GetBool("open-monitor"); open {
		c.Monitor = true
	}

	return c, c.Validate()
}

// simulation is everything one run is made of.
type simulation struct {
	cfg      config.Config
	out      io.Writer
	board    *platform.Board
	master   *bus.Master
	bridge   *pl8.Bridge
	workload []bus.Transaction
	recorder *recording.SQLiteRecorder
	monitor  *monitoring.Monitor
	events   *sim.EventLogger
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.ParallelIDs {
		sim.UseParallelIDGenerator()
	}

	s := &simulation{cfg: cfg, out: cmd.OutOrStdout()}

	s.workload, err = loadWorkload(cfg)
	if err != nil {
		return err
	}

	if err := s.build(); err != nil {
		return err
	}

	stats, _ := cmd.Flags().GetBool("event-stats")
	logEvents, _ := cmd.Flags().GetBool("log-events")

	if stats || logEvents {
		var logger *log.Logger
		if logEvents {
			logger = log.New(os.Stderr, "", 0)
		}

		s.events = sim.NewEventLogger(logger)
		s.board.Engine.AcceptHook(s.events)
	}

	if cfg.Record {
		if err := s.record(); err != nil {
			return err
		}
	}

	if cfg.Monitor {
		open, _ := cmd.Flags().GetBool("open-monitor")
		if err := s.serve(open); err != nil {
			return err
		}
	}

	if err := s.run(); err != nil {
		return err
	}

	if hold, _ := cmd.Flags().GetBool("hold"); hold && cfg.Monitor {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fmt.Fprintln(os.Stderr, "Simulation done, press Ctrl-C to exit")
		<-ctx.Done()
	}

	return nil
}

func (s *simulation) build() error {
	s.board = platform.MakeBuilder().
		WithFreq(sim.Freq(s.cfg.SysMHz) * sim.MHz).
		WithIRQLatency(s.cfg.IRQLatency).
		Build("Pico")

	s.master = bus.NewMaster("Atom", s.board.Engine,
		sim.Freq(s.cfg.BusKHz)*sim.KHz, s.board.GPIO, bus.DefaultPinMap())
	s.master.Reset()
	s.board.Simulation.RegisterComponent(s.master)

	bridge, err := pl8.MakeBuilder().
		WithBoard(s.board).
		Build("PL8")
	if err != nil {
		return fmt.Errorf("building the bridge: %w", err)
	}

	s.bridge = bridge

	return nil
}

func (s *simulation) record() error {
	r, err := recording.NewSQLiteRecorder(s.cfg.RecordPath)
	if err != nil {
		return err
	}

	tracer, err := recording.NewTracer(r, s.board.Engine)
	if err != nil {
		return err
	}

	tracer.TraceBridge(s.bridge)
	tracer.TraceMaster(s.master)

	s.recorder = r

	return nil
}

func (s *simulation) serve(open bool) error {
	m := monitoring.NewMonitor().WithPortNumber(s.cfg.MonitorPort)
	m.RegisterSimulation(s.board.Simulation)
	m.RegisterBridge(s.bridge)

	bar := m.CreateProgressBar("6502 workload", countBusCycles(s.workload))
	s.master.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		if ctx.Pos != bus.HookPosCycleDone {
			return
		}

		bar.IncrementFinished(1)
		if bar.Done() {
			m.CompleteProgressBar(bar)
		}
	}))

	url, err := m.StartServer()
	if err != nil {
		return err
	}

	if open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open the browser: %v\n", err)
		}
	}

	s.monitor = m

	return nil
}

func (s *simulation) run() error {
	engine := s.board.Engine

	fmt.Fprintf(s.out, "\nAcorn Atom interface demo %s\n", Version)

	meter := bus.NewFreqMeter(s.board.GPIO, s.master.Pins().Phi2)
	period := (sim.Freq(s.cfg.BusKHz) * sim.KHz).Period()

	s.master.Enqueue(bus.Idle(measureCycles + 2))

	freq, err := bus.MeasureFreq(engine, meter, measureCycles*period)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "6502 clock = %.2f MHz\n", float64(freq)/1e6)

	s.master.Enqueue(s.workload...)

	if err := s.reportUntilDone(context.Background()); err != nil {
		return err
	}

	engine.Finished()

	if s.recorder != nil {
		s.recorder.Flush()
	}

	return s.summary()
}

// reportUntilDone advances the simulation one report interval at a time and
// prints a status block after each interval, like the firmware's main loop.
func (s *simulation) reportUntilDone(ctx context.Context) error {
	engine := s.board.Engine
	reporter := report.NewReporter(s.out)
	interval := sim.VTimeInSec(s.cfg.ReportInterval.Seconds())

	for s.master.Pending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := engine.RunUntil(engine.CurrentTime() + interval); err != nil {
			return err
		}

		if _, err := reporter.Report(s.bridge); err != nil {
			return err
		}
	}

	if err := engine.Run(); err != nil {
		return err
	}

	_, err := reporter.Report(s.bridge)

	return err
}

func (s *simulation) summary() error {
	c := s.bridge.Counters()

	fmt.Fprintf(s.out, "Bus cycles: %d Completed: %d Overflows: %d\n",
		s.master.Cycles(), s.master.Completed(), c.Overflows)

	mismatches := bus.CheckReads(s.workload, s.master.Results())
	for _, m := range mismatches {
		fmt.Fprintf(s.out, "read of register %d at %.9f returned 0x%02x, "+
			"want 0x%02x\n", m.Register, m.Time, m.Value, m.Want)
	}

	if s.events != nil {
		for _, c := range s.events.Counts() {
			fmt.Fprintf(s.out, "%-16s %d events\n", c.Handler, c.Events)
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%d reads returned the wrong value", len(mismatches))
	}

	return nil
}
