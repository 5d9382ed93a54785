// Package main provides the feffcheck CLI.
//
// The binary may also be installed under a module executable name (pot,
// ff2x, sfconv, ...) or as feff/feffmpi; it then runs that command directly.
package main

import (
	"os"

	"github.com/leapstack-labs/feffcheck/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args))
}
