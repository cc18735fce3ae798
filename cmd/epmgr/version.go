package main

import (
	"github.com/spf13/cobra"

	"epmgr/internal/runtime/llama"
	"epmgr/internal/runtime/ort"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and the native runtimes built in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("epmgr %s\n", version)
			cmd.Printf("  onnxruntime: %s\n", builtIn(ort.Built, "ort"))
			cmd.Printf("  llama.cpp:   %s\n", builtIn(llama.Built, "llama"))
			return nil
		},
	}
}

func builtIn(ok bool, tag string) string {
	if ok {
		return "built in"
	}
	return "not built (rebuild with -tags=" + tag + ")"
}
