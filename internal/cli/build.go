package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"forgeloop/pkg/models"
)

var buildCmd = &cobra.Command{
	Use:   "build <project-id>",
	Short: "Run the full build for a project",
	Long: `Move the project to the coding phase and build every pending file in
plan order. Each file is generated, tested, and debugged in sequence;
the run halts at the first file that cannot be healed.

Files the planner inserts mid-build are generated within the same run.
Press Ctrl-C to cancel; progress made so far is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		project, err := Controller.StartBuild(ctx, args[0])
		if err != nil {
			return fmt.Errorf("starting build: %w", err)
		}

		printBuildOutcome(project)
		return nil
	},
	ValidArgsFunction: completeProjectIDs,
}

// printBuildOutcome summarizes generation and test state after a build
// or heal run.
func printBuildOutcome(project *models.ProjectState) {
	total, passing, failing := 0, 0, 0
	walkArtifacts(project.Artifacts, func(n *models.ArtifactNode) {
		if n.Kind != models.ArtifactFile {
			return
		}
		total++
		switch n.TestStatus {
		case models.TestPassing:
			passing++
		case models.TestFailing:
			failing++
		}
	})

	if project.LastError != "" {
		fmt.Printf("Build halted: %s\n", project.LastError)
	} else {
		fmt.Println("Build completed.")
	}
	fmt.Printf("Files: %d total, %d passing, %d failing\n", total, passing, failing)
	fmt.Printf("Inspect with: fl status %s\n", project.ID)
}

// walkArtifacts visits every node in the exported tree depth-first.
func walkArtifacts(nodes []*models.ArtifactNode, visit func(*models.ArtifactNode)) {
	for _, n := range nodes {
		visit(n)
		walkArtifacts(n.Children, visit)
	}
}

// countFiles counts file nodes in the exported tree.
func countFiles(nodes []*models.ArtifactNode) int {
	count := 0
	walkArtifacts(nodes, func(n *models.ArtifactNode) {
		if n.Kind == models.ArtifactFile {
			count++
		}
	})
	return count
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
