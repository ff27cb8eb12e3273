package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <project-id>",
	Short: "Draft the build plan for a project",
	Long: `Ask the planner agent to draft a build plan from the project's
conversation. The plan's file list replaces the artifact tree, every
entry starting out planned and untested, and the project moves to the
planning phase.

Re-running plan replaces the previous plan and tree entirely.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		project, err := Controller.GeneratePlan(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("generating plan: %w", err)
		}

		fmt.Println(project.Plan)
		fmt.Printf("\nPlanned %d artifact(s). Next: fl build %s\n", countFiles(project.Artifacts), project.ID)
		return nil
	},
	ValidArgsFunction: completeProjectIDs,
}

func init() {
	rootCmd.AddCommand(planCmd)
}
