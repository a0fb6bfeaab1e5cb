package bus

// A Mismatch is a read that returned something other than the last value
// written to the register.
type Mismatch struct {
	Completed
	Want uint8
}

// ExpectedReads replays a workload against a shadow register file, starting
// from all zeros, and returns the value each read should return.
func ExpectedReads(txns []Transaction) []uint8 {
	var shadow [1 << NumAddrPins]uint8

	var out []uint8

	for _, t := range txns {
		switch t.Op {
		case OpWrite:
			shadow[t.Register&0x0f] = t.Value
		case OpRead:
			out = append(out, shadow[t.Register&0x0f])
		}
	}

	return out
}

// CheckReads compares the reads a master completed with what the workload
// should have returned. Reads that have not completed are not reported.
func CheckReads(txns []Transaction, results []Completed) []Mismatch {
	want := ExpectedReads(txns)

	var out []Mismatch

	for i, r := range results {
		if i >= len(want) {
			break
		}

		if r.Value != want[i] {
			out = append(out, Mismatch{Completed: r, Want: want[i]})
		}
	}

	return out
}
