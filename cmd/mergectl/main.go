// Command mergectl joins local dataset files, secures report queries against a tenant, and
// uploads dataset files to a running ekaya-merge server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mergectl",
		Short:         "Cross-source join and tenant query tooling",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newJoinCmd(), newSecureCmd(), newUploadCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
