// Package config holds the settings of a pl8sim run. Settings come from
// defaults, then from .env files, then from the environment. The CLI applies
// its flags last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrBadValue is returned when a setting cannot be parsed.
var ErrBadValue = errors.New("bad config value")

// Environment keys.
const (
	KeySysMHz         = "PL8_SYS_MHZ"
	KeyBusKHz         = "PL8_BUS_KHZ"
	KeyIRQLatency     = "PL8_IRQ_LATENCY"
	KeyReportInterval = "PL8_REPORT_INTERVAL"
	KeyScript         = "PL8_SCRIPT"
	KeySeed           = "PL8_SEED"
	KeyRandomCount    = "PL8_RANDOM_COUNT"
	KeyRecord         = "PL8_RECORD"
	KeyRecordPath     = "PL8_RECORD_PATH"
	KeyMonitor        = "PL8_MONITOR"
	KeyMonitorPort    = "PL8_MONITOR_PORT"
	KeyParallelIDs    = "PL8_PARALLEL_IDS"
)

// DefaultEnvFile is read when Load is called without files and it exists.
const DefaultEnvFile = ".env"

// Config is everything a run needs.
type Config struct {
	SysMHz     float64
	BusKHz     float64
	IRQLatency int

	// ReportInterval is in simulated time.
	ReportInterval time.Duration

	// Script is a workload file. Files ending in .lua run as Lua; anything
	// else is a plain script. Empty means a random workload.
	Script      string
	Seed        int64
	RandomCount int

	Record      bool
	RecordPath  string
	Monitor     bool
	MonitorPort int
	ParallelIDs bool
}

// Default returns the settings of the reference hardware: a 250 MHz
// controller on a 1 MHz 6502 bus.
func Default() Config {
	return Config{
		SysMHz:         250,
		BusKHz:         1000,
		IRQLatency:     15,
		ReportInterval: time.Millisecond,
		Seed:           1,
		RandomCount:    1000,
	}
}

// Load returns the defaults overridden by the given .env files and then by
// the process environment. Without files, DefaultEnvFile is used if present.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			files = []string{DefaultEnvFile}
		}
	}

	values := make(map[string]string)

	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", f, err)
		}

		for k, v := range m {
			values[k] = v
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := values[key]

		return v, ok
	})
}

// FromLookup returns the defaults overridden by whatever lookup finds.
func FromLookup(lookup func(key string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.float(KeySysMHz, &c.SysMHz)
	p.float(KeyBusKHz, &c.BusKHz)
	p.int(KeyIRQLatency, &c.IRQLatency)
	p.duration(KeyReportInterval, &c.ReportInterval)
	p.string(KeyScript, &c.Script)
	p.int64(KeySeed, &c.Seed)
	p.int(KeyRandomCount, &c.RandomCount)
	p.bool(KeyRecord, &c.Record)
	p.string(KeyRecordPath, &c.RecordPath)
	p.bool(KeyMonitor, &c.Monitor)
	p.int(KeyMonitorPort, &c.MonitorPort)
	p.bool(KeyParallelIDs, &c.ParallelIDs)

	if p.err != nil {
		return Config{}, p.err
	}

	return c, c.Validate()
}

// Validate checks that the settings describe a runnable system.
func (c Config) Validate() error {
	switch {
	case c.SysMHz <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrBadValue, KeySysMHz)
	case c.BusKHz <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrBadValue, KeyBusKHz)
	case c.BusKHz*1e3 > c.SysMHz*1e6/8:
		return fmt.Errorf("%w: bus clock %.0f kHz is too fast for a "+
			"%.0f MHz system", ErrBadValue, c.BusKHz, c.SysMHz)
	case c.IRQLatency < 0:
		return fmt.Errorf("%w: %s must not be negative",
			ErrBadValue, KeyIRQLatency)
	case c.ReportInterval <= 0:
		return fmt.Errorf("%w: %s must be positive",
			ErrBadValue, KeyReportInterval)
	case c.RandomCount < 0:
		return fmt.Errorf("%w: %s must not be negative",
			ErrBadValue, KeyRandomCount)
	}

	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	return p.lookup(key)
}

func (p *parser) fail(key, v string, err error) {
	p.err = fmt.Errorf("%w: %s=%q: %v", ErrBadValue, key, v, err)
}

func (p *parser) string(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = f
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) int64(key string, dst *int64) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) bool(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = b
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = d
}
