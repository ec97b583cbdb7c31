// ccb is the ClearCase/git synchronization bridge.
//
// It imports ClearCase version history as git commits, checks git commits
// back in as ClearCase versions, and keeps the correspondence between the
// two recorded so either side can be reconstructed from the other.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/ui"
)

// Version and Build are set at link time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	flagRepo  string
	flagQuiet bool
)

var rootCmd = &cobra.Command{
	Use:   "ccb",
	Short: "ccb - ClearCase/git synchronization bridge",
	Long: `Synchronize a ClearCase snapshot view with a local git repository.

ccb walks ClearCase version history and builds equivalent git commits,
maps new git commits back into ClearCase checkin operations, and keeps a
correspondence cache so both histories stay convertible. A typical flow:

  ccb init --view /views/jdoe_dev --branch-cc main
  ccb sync --since "2 weeks ago"
  ... hack on git ...
  ccb checkin
  ccb status`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("ccb version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagRepo, "repo", "C", ".", "git work tree root")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")
	rootCmd.Flags().BoolP("version", "v", false, "print version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
