package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"forgeloop/pkg/models"
)

var ideateCmd = &cobra.Command{
	Use:   "ideate <project-id> [prompt]",
	Short: "Refine a project idea with the ideator agent",
	Long: `Run an ideation round for the project. The optional prompt is appended
to the chat log as a user message before the ideator responds; without a
prompt the agent refines the idea as it stands.

The first ideation round moves the project from idea_intake to the
ideation phase.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		prompt := ""
		if len(args) > 1 {
			prompt = args[1]
		}

		project, err := Controller.RunIdeation(cmd.Context(), args[0], prompt)
		if err != nil {
			return fmt.Errorf("running ideation: %w", err)
		}

		if reply := lastAssistantMessage(project.ChatLog); reply != "" {
			fmt.Println(reply)
			fmt.Println()
		}
		fmt.Printf("Project %s is now in phase %s\n", project.ID, phaseBadge(project.Phase))
		return nil
	},
	ValidArgsFunction: completeProjectIDs,
}

// lastAssistantMessage returns the most recent assistant entry in the
// chat log, or "" when the log holds none.
func lastAssistantMessage(log []models.ChatMessage) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == "assistant" {
			return strings.TrimSpace(log[i].Content)
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(ideateCmd)
}
