package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/config"
	"github.com/steveyegge/ccbridge/internal/remote/cleartool"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import new ClearCase history as git commits",
	Long: `Walk ClearCase versions created since the last sync and build
equivalent git commits, grouped into logical changes.

The first sync imports the full history of the configured branches;
bound it with --since. Re-running after an interrupted sync resumes
where it stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		var toolOpts []cleartool.Option
		if load, _ := cmd.Flags().GetString("load"); load != "" {
			toolOpts = append(toolOpts, cleartool.WithHistoryReplay(load))
		} else if save, _ := cmd.Flags().GetBool("save-history"); save {
			toolOpts = append(toolOpts,
				cleartool.WithHistoryBackup(filepath.Join(flagRepo, config.Dir, "lshistory.bak")))
		}

		app, err := openApp(nil, toolOpts...)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		sinceFlag, _ := cmd.Flags().GetString("since")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		since, err := app.parseSince(sinceFlag)
		if err != nil {
			fatal("%v", err)
		}

		result, err := app.bridge.ImportHistory(context.Background(), app.cfg.Branch, bridge.ImportOptions{
			Since:  since,
			DryRun: dryRun,
		})
		if err != nil {
			fatal("%v", err)
		}

		if dryRun {
			if len(result.Groups) == 0 {
				fmt.Println("nothing to import")
				return
			}
			fmt.Printf("%d change groups would be imported:\n", len(result.Groups))
			for _, g := range result.Groups {
				fmt.Printf("  %s  %-12s %s %s\n",
					g.Time.Format("2006-01-02 15:04"), g.Author,
					firstNonEmpty(g.Comment, ui.RenderMuted("(no comment)")),
					ui.RenderMuted(fmt.Sprintf("(%d elements)", len(g.Elements))))
			}
			return
		}

		if len(result.Commits) == 0 {
			fmt.Println("up to date")
			return
		}
		fmt.Printf("%s imported %d commits onto %s\n",
			ui.RenderPass(ui.IconPass), len(result.Commits), app.cfg.Branch)
		if result.Diverged {
			fmt.Println(ui.RenderWarn(ui.IconWarn + " local commits present: branch not moved, run 'ccb rebase'"))
		}
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Import the view's current state as one snapshot commit",
	Long: `Refresh the snapshot view and commit its current contents as a
single git commit, without replaying history.

Use this when per-version history is not enumerable, e.g. a view
selecting by label. For normal branch following, prefer 'ccb sync'.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		message, _ := cmd.Flags().GetString("message")
		author, _ := cmd.Flags().GetString("author")

		result, err := app.bridge.Update(context.Background(), app.cfg.Branch, bridge.UpdateOptions{
			Author:  parseAuthor(author),
			Message: message,
		})
		if errors.Is(err, bridge.ErrDiverged) {
			fatal("snapshot recorded but branch has local commits: run 'ccb rebase'")
		}
		if err != nil {
			fatal("%v", err)
		}
		if result.Commit == "" {
			fmt.Println("view matches the last sync, nothing to do")
			return
		}
		fmt.Printf("%s snapshot %s (+%d ~%d -%d)\n", ui.RenderPass(ui.IconPass),
			result.Commit[:12], result.Added, result.Modified, result.Deleted)
	},
}

func init() {
	syncCmd.Flags().String("since", "", `bound the first import ("2024-01-15", "3 weeks ago")`)
	syncCmd.Flags().Bool("dry-run", false, "list the change groups without importing")
	syncCmd.Flags().Bool("save-history", false, "save raw element histories to .ccbridge/lshistory.bak")
	syncCmd.Flags().String("load", "", "import from a saved history file instead of querying elements")
	rootCmd.AddCommand(syncCmd)

	updateCmd.Flags().StringP("message", "m", "", "snapshot commit message")
	updateCmd.Flags().String("author", "ccbridge <ccbridge@localhost>", "snapshot commit author")
	rootCmd.AddCommand(updateCmd)
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
