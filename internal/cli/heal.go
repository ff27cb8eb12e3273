package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var healCmd = &cobra.Command{
	Use:   "heal <project-id> <path>",
	Short: "Regenerate and heal a single file",
	Long: `Generate (or regenerate) one file of the project and run the
test-debug-retest cycle on it in isolation. Useful for retrying the file
that halted a build without rebuilding everything that already passes.

The path is the artifact's tree path as shown by fl status.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		project, err := Controller.BuildFile(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("healing %s: %w", args[1], err)
		}

		printBuildOutcome(project)
		return nil
	},
	ValidArgsFunction: completeProjectIDs,
}

func init() {
	rootCmd.AddCommand(healCmd)
}
