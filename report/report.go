// Package report prints the PL8 status block that shows which registers the
// 6502 touched since the previous report.
package report

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/pl8sim/pl8"
)

const (
	ansiReverse = "\x1b[7m"
	ansiReset   = "\x1b[0m"
)

// A Source is a bridge that can be reported on.
type Source interface {
	TakeReadBits() uint32
	TakeWrittenBits() uint32
	Status() pl8.Status
}

// A Reporter prints status blocks.
type Reporter struct {
	w     io.Writer
	color bool
}

// NewReporter creates a reporter writing to w. Highlighting is turned on when
// w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	r := &Reporter{w: w}

	if f, ok := w.(*os.File); ok {
		r.color = term.IsTerminal(int(f.Fd()))
	}

	return r
}

// WithColor forces highlighting on or off.
func (r *Reporter) WithColor(color bool) *Reporter {
	r.color = color
	return r
}

// Report takes both masks from the source and prints a status block if either
// is non-empty. It returns whether anything was printed.
func (r *Reporter) Report(src Source) (bool, error) {
	rbits := src.TakeReadBits()
	wbits := src.TakeWrittenBits()

	if rbits == 0 && wbits == 0 {
		return false, nil
	}

	s := src.Status()

	err := Write(r.w, s.Registers, rbits, wbits, s.Counters, r.color)

	return err == nil, err
}

// Write prints one status block. Registers are listed from 15 down to 0.
func Write(
	w io.Writer,
	regs [pl8.NumRegisters]byte,
	rbits, wbits uint32,
	c pl8.Counters,
	color bool,
) error {
	p := &printer{w: w}

	p.printf("PL8 Status\nData ")

	for i := pl8.NumRegisters - 1; i >= 0; i-- {
		touched := (rbits|wbits)&(1<<i) != 0
		p.cell(fmt.Sprintf("%2x ", regs[i]), color && touched)
	}

	p.printf("\nRead ")
	p.bits(rbits, color)
	p.printf("\nWrit ")
	p.bits(wbits, color)
	p.printf("\n")

	p.printf("Read: %d Written: %d Max queue: %d\n",
		c.ReadCount, c.WriteCount, c.MaxQ)

	if c.Overflows > 0 {
		p.printf("Overflows: %d\n", c.Overflows)
	}

	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) cell(s string, highlight bool) {
	if highlight {
		p.printf("%s%s%s", ansiReverse, s, ansiReset)
		return
	}

	p.printf("%s", s)
}

func (p *printer) bits(mask uint32, color bool) {
	for i := pl8.NumRegisters - 1; i >= 0; i-- {
		set := mask&(1<<i) != 0

		v := 0
		if set {
			v = 1
		}

		p.cell(fmt.Sprintf("%2x ", v), color && set)
	}
}
