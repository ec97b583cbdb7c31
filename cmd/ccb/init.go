package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/config"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bridge configuration for this repository",
	Long: `Write .ccbridge/config.yaml with the view and branch settings.

The repository must already be a git work tree. Edit the generated file
to add include/exclude patterns or an author map (users.toml) before the
first sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		view, _ := cmd.Flags().GetString("view")
		branches, _ := cmd.Flags().GetStringSlice("branch-cc")
		branch, _ := cmd.Flags().GetString("branch")
		mailSuffix, _ := cmd.Flags().GetString("mail-suffix")

		if view == "" {
			fatal("--view is required")
		}
		if len(branches) == 0 {
			fatal("at least one --branch-cc is required")
		}

		cfg := &config.Config{
			View:       view,
			Branches:   branches,
			Branch:     branch,
			TieBreak:   config.DefaultTieBreak,
			MailSuffix: mailSuffix,
		}
		if err := config.Init(flagRepo, cfg); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s wrote %s/%s/config.yaml\n", ui.RenderPass(ui.IconPass), flagRepo, config.Dir)
		fmt.Println(ui.RenderMuted("next: ccb sync --since <date> for the first import"))
	},
}

func init() {
	initCmd.Flags().String("view", "", "ClearCase snapshot view root (required)")
	initCmd.Flags().StringSlice("branch-cc", nil, "ClearCase branch to follow (repeatable, required)")
	initCmd.Flags().String("branch", config.DefaultBranch, "local git branch to maintain")
	initCmd.Flags().String("mail-suffix", "", "domain for synthesized author emails")
	rootCmd.AddCommand(initCmd)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
