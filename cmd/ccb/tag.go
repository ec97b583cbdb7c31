package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Bridge git tags and ClearCase labels",
}

var tagPushCmd = &cobra.Command{
	Use:   "push <tag> [label]",
	Short: "Apply a ClearCase label matching a git tag",
	Long: `Label the ClearCase versions corresponding to the state at the
tagged commit. The label type must already exist. The label name
defaults to the tag name uppercased with dots replaced by underscores.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		tag := args[0]
		label := labelForTag(tag)
		if len(args) == 2 {
			label = args[1]
		}

		err = app.bridge.PushTag(context.Background(), tag, label)
		switch {
		case errors.Is(err, bridge.ErrUnsyncedCommit):
			fatal("tagged commit has not been checked in: run 'ccb checkin' first")
		case err != nil:
			fatal("%v", err)
		}
		fmt.Printf("%s labeled remote state for tag %s\n", ui.RenderPass(ui.IconPass), tag)
	},
}

var tagPullCmd = &cobra.Command{
	Use:   "pull <label> [tag]",
	Short: "Create a git tag matching a ClearCase label",
	Long: `Tag the git commit whose tree corresponds to the labeled
ClearCase versions. The labeled state must already have been imported.
The tag name defaults to the label name lowercased.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		label := args[0]
		tag := strings.ToLower(label)
		if len(args) == 2 {
			tag = args[1]
		}

		err = app.bridge.PullTag(context.Background(), label, tag)
		switch {
		case errors.Is(err, bridge.ErrUnimportedVersion):
			fatal("labeled state has not been imported: run 'ccb sync' first")
		case err != nil:
			fatal("%v", err)
		}
		fmt.Printf("%s tagged commit for label %s\n", ui.RenderPass(ui.IconPass), label)
	},
}

// labelForTag maps a git tag name onto a ClearCase label name: uppercase,
// dots and dashes flattened to underscores ("v1.2.0" becomes "V1_2_0").
func labelForTag(tag string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(tag))
}

func init() {
	tagCmd.AddCommand(tagPushCmd)
	tagCmd.AddCommand(tagPullCmd)
	rootCmd.AddCommand(tagCmd)
}
