// Command epmgr selects an execution provider, compiles and loads models
// for it, and runs classification or chat generation, from the shell or as
// an HTTP service.
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
