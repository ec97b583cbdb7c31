package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard local commits and return to the sync point",
	Long: `Move the branch ref back to the last sync point, discarding
every local commit made since. The commits remain reachable from git's
reflog but the bridge forgets them.

Prompts for confirmation unless --yes is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Discard all commits on %s past the sync point?", app.cfg.Branch)).
				Description("Local work since the last sync will be dropped from the branch.").
				Affirmative("Reset").
				Negative("Cancel").
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("cancelled")
					return
				}
				fatal("%v", err)
			}
		}
		if !confirmed {
			fmt.Println("cancelled")
			return
		}

		tip, err := app.bridge.Reset(context.Background(), app.cfg.Branch, true)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s %s reset to %s\n", ui.RenderPass(ui.IconPass), app.cfg.Branch, tip[:12])
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
