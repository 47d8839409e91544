// Command scoreclock runs the rink scoreboard device, its delivery
// workers and the cloud aggregator.
package main

import (
	"os"

	"github.com/roach88/scoreclock/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
