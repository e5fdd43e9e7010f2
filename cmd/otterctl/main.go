// Command otterctl is a thin CLI entry point over pkg/net: compile a
// JSON network description and print its blob/layer layout, or run one
// end to end against a weight stream and extract a named output. The
// inference engine itself is a library; otterctl exists only to give
// it a runnable ambient surface, not to reimplement a model zoo.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "otterctl:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "otterctl",
		Short: "compile and run otterengine networks",
	}
	root.PersistentFlags().Int("threads", 0, "intra-op worker threads (0 = GOMAXPROCS)")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	root.AddCommand(compileCmd(), runCmd())
	return root
}
