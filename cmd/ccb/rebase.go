package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Replay diverged local commits on top of the sync point",
	Long: `Rebase the local commits that no longer descend from the sync
point onto it, preserving author, timestamp and message.

A path changed both locally and in imported history with different
results is a conflict: the branch is left untouched and the conflicting
hunks are shown.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		result, err := app.bridge.Rebase(context.Background(), app.cfg.Branch)

		var conflict *bridge.RebaseConflictError
		if errors.As(err, &conflict) {
			fmt.Println(ui.RenderFail(fmt.Sprintf("%s conflict in %s (commit %s)",
				ui.IconFail, conflict.Element, conflict.Commit[:12])))
			fmt.Println(conflict.Diff)
			fatal("resolve by amending the commit or discarding it with 'ccb reset'")
		}
		if err != nil {
			fatal("%v", err)
		}

		if len(result.Commits) == 0 {
			fmt.Println("branch already descends from the sync point, nothing to do")
			return
		}
		fmt.Printf("%s replayed %d commits, %s now at %s\n",
			ui.RenderPass(ui.IconPass), len(result.Commits), result.Branch, result.Tip[:12])
	},
}

func init() {
	rootCmd.AddCommand(rebaseCmd)
}
