// Command kiosk runs a self-service beverage kiosk.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pourkiosk/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
