// Command pl8sim simulates a PL8 bridge attached to a 6502 bus.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pl8sim/pl8sim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
