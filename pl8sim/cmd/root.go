// Package cmd provides the command-line interface of pl8sim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pl8sim",
	Short: "pl8sim simulates a PL8 register bridge on a 6502 bus.",
	Long: `pl8sim simulates a microcontroller that serves a 16-byte ` +
		`register window to a 6502 through programmable I/O and DMA, and ` +
		`reports which registers the 6502 reads and writes.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it. Errors
// end the process through atexit so that recordings are flushed.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(versionCmd)
}
