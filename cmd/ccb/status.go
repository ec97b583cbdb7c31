package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the branch's position relative to the sync point",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		st, err := app.bridge.Status(context.Background(), app.cfg.Branch)
		if err != nil {
			fatal("%v", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				fatal("%v", err)
			}
			return
		}

		fmt.Println(ui.RenderHeader(st.Branch))
		if !st.Synced {
			fmt.Println("  never synced: run 'ccb sync'")
			return
		}
		fmt.Printf("  state      %s\n", ui.RenderSyncState(st.State))
		fmt.Printf("  sync point %s %s\n", st.SyncCommit[:12],
			ui.RenderMuted(st.SyncedAt.Format("2006-01-02 15:04")))
		if st.Tip != "" && st.Tip != st.SyncCommit {
			fmt.Printf("  tip        %s\n", st.Tip[:12])
		}

		if len(st.Pending) == 0 {
			return
		}
		fmt.Printf("\n%d commits pending checkin:\n", len(st.Pending))
		for _, c := range st.Pending {
			fmt.Printf("  %s %s %s\n", c.ID[:12], ui.RenderMuted(c.Author), c.Subject)
			for _, p := range c.Added {
				fmt.Printf("    %s %s\n", ui.RenderPass("A"), p)
			}
			for _, p := range c.Modified {
				fmt.Printf("    %s %s\n", ui.RenderAccent("M"), p)
			}
			for _, p := range c.Deleted {
				fmt.Printf("    %s %s\n", ui.RenderFail("D"), p)
			}
		}
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "emit machine-readable JSON")
	rootCmd.AddCommand(statusCmd)
}
