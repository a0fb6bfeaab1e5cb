package bus

import (
	"fmt"

	"github.com/sarchlab/pl8sim/sim"
)

// Op is the kind of a bus cycle.
type Op int

// Bus cycle kinds.
const (
	OpIdle Op = iota
	OpWrite
	OpRead
)

func (o Op) String() string {
	switch o {
	case OpIdle:
		return "idle"
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	}

	return fmt.Sprintf("Op(%d)", int(o))
}

// A Transaction is one entry of the master's workload.
type Transaction struct {
	Op       Op
	Register uint8
	Value    uint8

	// Cycles is the number of bus cycles an idle transaction lasts.
	Cycles int
}

// WriteReg returns a transaction that writes value to register reg.
func WriteReg(reg, value uint8) Transaction {
	return Transaction{Op: OpWrite, Register: reg & 0x0f, Value: value}
}

// ReadReg returns a transaction that reads register reg.
func ReadReg(reg uint8) Transaction {
	return Transaction{Op: OpRead, Register: reg & 0x0f}
}

// Idle returns a transaction that keeps the bridge deselected for n bus
// cycles.
func Idle(n int) Transaction {
	return Transaction{Op: OpIdle, Cycles: n}
}

func (t Transaction) String() string {
	switch t.Op {
	case OpWrite:
		return fmt.Sprintf("W %d 0x%02x", t.Register, t.Value)
	case OpRead:
		return fmt.Sprintf("R %d", t.Register)
	default:
		return fmt.Sprintf("I %d", t.Cycles)
	}
}

// A Completed transaction is what the master reports when a bus cycle ends.
// For reads, Value holds the byte found on the data bus.
type Completed struct {
	Transaction
	Time sim.VTimeInSec
}
