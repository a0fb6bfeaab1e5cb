package pio

import (
	"errors"
	"fmt"
)

// ErrNoFreeSM is returned when no block has both a free state machine and
// room for the program.
var ErrNoFreeSM = errors.New("no free state machine")

// ClaimFreeSMAndAddProgram searches blocks in order for one with an unused
// state machine and space for prog. It claims the state machine, loads the
// program and returns both the state machine and the program offset. Nothing
// is claimed when an error is returned.
func ClaimFreeSMAndAddProgram(
	blocks []*Block,
	prog Program,
) (*StateMachine, int, error) {
	for _, b := range blocks {
		if !b.CanAddProgram(prog) {
			continue
		}

		sm, err := b.ClaimUnusedSM()
		if err != nil {
			continue
		}

		offset, err := b.AddProgram(prog)
		if err != nil {
			b.UnclaimSM(sm.Index())
			return nil, 0, err
		}

		return sm, offset, nil
	}

	return nil, 0, fmt.Errorf("%s: %w", prog.Name(), ErrNoFreeSM)
}
