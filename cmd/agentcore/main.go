// Package main is the agentcore runner: it loads a config file, wires a
// provider and the built-in cache tools into an agent, runs one turn from
// the command line, and prints the event stream.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
