package pl8_test

import (
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/platform"
	"github.com/sarchlab/pl8sim/sim"
)

// rig is a board with a bridge and a 6502 attached.
type rig struct {
	board  *platform.Board
	master *bus.Master
	bridge *pl8.Bridge
	logs   []string
}

func newRig() *rig {
	r := &rig{}

	r.board = platform.MakeBuilder().Build("Pico")
	r.master = bus.NewMaster("Atom", r.board.Engine, sim.MHz, r.board.GPIO,
		bus.DefaultPinMap())
	r.master.Reset()

	var err error
	r.bridge, err = pl8.MakeBuilder().
		WithBoard(r.board).
		WithLogf(func(format string, args ...interface{}) {
			r.logs = append(r.logs, format)
		}).
		Build("PL8")
	Expect(err).NotTo(HaveOccurred())

	return r
}

func (r *rig) run(txns ...bus.Transaction) {
	r.master.Enqueue(txns...)
	Expect(r.board.Engine.Run()).To(Succeed())
}

func (r *rig) readValues() []uint8 {
	var out []uint8
	for _, c := range r.master.Results() {
		out = append(out, c.Value)
	}

	return out
}
