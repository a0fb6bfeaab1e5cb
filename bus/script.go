package bus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
)

// ErrBadScript is returned for workload scripts that cannot be parsed.
var ErrBadScript = errors.New("bad bus script")

// ParseScript reads a text workload. Each line holds one transaction:
//
//	W <reg> <value>   write value to register reg
//	R <reg>           read register reg
//	I <cycles>        stay deselected for a number of bus cycles
//
// Numbers may be decimal or prefixed with 0x. Blank lines and everything
// after a '#' are ignored.
func ParseScript(r io.Reader) ([]Transaction, error) {
	var txns []Transaction

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		txn, err := parseLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		txns = append(txns, txn)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return txns, nil
}

func parseLine(fields []string) (Transaction, error) {
	switch strings.ToUpper(fields[0]) {
	case "W":
		if len(fields) != 3 {
			return Transaction{}, fmt.Errorf("%w: W takes a register and a value",
				ErrBadScript)
		}

		reg, err := parseNumber(fields[1], 15)
		if err != nil {
			return Transaction{}, err
		}

		value, err := parseNumber(fields[2], 0xff)
		if err != nil {
			return Transaction{}, err
		}

		return WriteReg(uint8(reg), uint8(value)), nil
	case "R":
		if len(fields) != 2 {
			return Transaction{}, fmt.Errorf("%w: R takes a register",
				ErrBadScript)
		}

		reg, err := parseNumber(fields[1], 15)
		if err != nil {
			return Transaction{}, err
		}

		return ReadReg(uint8(reg)), nil
	case "I":
		if len(fields) != 2 {
			return Transaction{}, fmt.Errorf("%w: I takes a cycle count",
				ErrBadScript)
		}

		n, err := parseNumber(fields[1], 1<<24)
		if err != nil {
			return Transaction{}, err
		}

		return Idle(int(n)), nil
	}

	return Transaction{}, fmt.Errorf("%w: unknown command %q",
		ErrBadScript, fields[0])
}

func parseNumber(s string, limit uint64) (uint64, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil || n > limit {
		return 0, fmt.Errorf("%w: %q is not a number in [0, %d]",
			ErrBadScript, s, limit)
	}

	return n, nil
}

// RandomScript generates n read or write transactions on random registers,
// with a deselected cycle between bursts. The same seed gives the same
// script.
func RandomScript(seed int64, n int) []Transaction {
	rng := rand.New(rand.NewSource(seed))
	txns := make([]Transaction, 0, n+n/8)

	for i := 0; i < n; i++ {
		reg := uint8(rng.Intn(16))

		if rng.Intn(2) == 0 {
			txns = append(txns, ReadReg(reg))
		} else {
			txns = append(txns, WriteReg(reg, uint8(rng.Intn(256))))
		}

		if rng.Intn(8) == 0 {
			txns = append(txns, Idle(1+rng.Intn(4)))
		}
	}

	return txns
}
