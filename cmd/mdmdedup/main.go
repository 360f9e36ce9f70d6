// Command mdmdedup runs the duplicate decision engine as an HTTP server and
// exposes its analysis and rule tooling on the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
