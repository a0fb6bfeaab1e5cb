package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/config"
)

// loadWorkload returns the transactions the 6502 runs: a Lua script, a text
// script, or a seeded random mix.
func loadWorkload(c config.Config) ([]bus.Transaction, error) {
	if c.Script == "" {
		return bus.RandomScript(c.Seed, c.RandomCount), nil
	}

	if strings.EqualFold(filepath.Ext(c.Script), ".lua") {
		src, err := os.ReadFile(c.Script)
		if err != nil {
			return nil, err
		}

		txns, err := bus.LoadLuaScript(string(src))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Script, err)
		}

		return txns, nil
	}

	f, err := os.Open(c.Script)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	txns, err := bus.ParseScript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Script, err)
	}

	return txns, nil
}

func countBusCycles(txns []bus.Transaction) uint64 {
	var n uint64

	for _, t := range txns {
		if t.Op != bus.OpIdle {
			n++
		}
	}

	return n
}
