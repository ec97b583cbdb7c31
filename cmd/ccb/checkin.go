package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Replay local git commits as ClearCase checkins",
	Long: `Check each local commit past the sync point in to ClearCase,
one commit at a time in ancestor order.

A commit either lands completely or not at all: if any element changed
remotely since the last sync, the whole commit is aborted, its checkouts
are released, and earlier commits stay checked in. Run 'ccb sync' to
absorb the remote change, then retry.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		force, _ := cmd.Flags().GetBool("force")
		label, _ := cmd.Flags().GetString("cclabel")

		result, err := app.bridge.Checkin(context.Background(), app.cfg.Branch, bridge.CheckinOptions{
			Force: force,
			Label: label,
		})
		if result != nil && len(result.Commits) > 0 {
			fmt.Printf("%s checked in %d commits (%d versions)\n",
				ui.RenderPass(ui.IconPass), len(result.Commits), len(result.Versions))
		}

		var stale *bridge.StaleCheckoutError
		switch {
		case errors.As(err, &stale):
			fmt.Println(ui.RenderFail(ui.IconFail + " " + stale.Error()))
			fatal("run 'ccb sync' to import the remote change, then retry (or use --force to overwrite)")
		case errors.Is(err, bridge.ErrDiverged):
			fatal("branch has diverged from the sync point: run 'ccb rebase' first")
		case errors.Is(err, bridge.ErrNothingImported):
			fatal("nothing imported yet: run 'ccb sync' first")
		case err != nil:
			fatal("%v", err)
		}

		if len(result.Commits) == 0 {
			fmt.Println("nothing to check in")
		}
	},
}

func init() {
	checkinCmd.Flags().Bool("force", false, "overwrite concurrent remote changes instead of aborting")
	checkinCmd.Flags().String("cclabel", "", "apply an existing ClearCase label type to the created versions")
	rootCmd.AddCommand(checkinCmd)
}
