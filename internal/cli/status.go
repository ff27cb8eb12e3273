package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgeloop/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "Show project status",
	Long: `Without arguments, show every project grouped by lifecycle phase.
With a project ID, show that project's detail: phase, build state, and
the artifact tree with per-file generation and test status.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		if len(args) == 1 {
			return printProjectDetail(args[0])
		}
		return printPhaseOverview()
	},
	ValidArgsFunction: completeProjectIDs,
}

// printPhaseOverview lists all projects grouped by phase in lifecycle
// order.
func printPhaseOverview() error {
	projects, err := Controller.ListProjects()
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	phaseOrder := []models.ProjectPhase{
		models.PhaseCoding,
		models.PhasePlanning,
		models.PhaseIdeation,
		models.PhaseIdeaIntake,
	}

	grouped := make(map[models.ProjectPhase][]models.ProjectSummary)
	for _, p := range projects {
		grouped[p.Phase] = append(grouped[p.Phase], p)
	}

	for _, phase := range phaseOrder {
		group := grouped[phase]
		if len(group) == 0 {
			continue
		}
		fmt.Printf("%s (%d)\n", phaseBadge(phase), len(group))
		for _, p := range group {
			fmt.Printf("  %s  %s\n", p.ID, p.Name)
		}
		fmt.Println()
	}
	return nil
}

// printProjectDetail shows one project's phase, build state, and
// artifact tree.
func printProjectDetail(id string) error {
	project, err := Controller.Project(id)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	fmt.Printf("%s  %s\n", project.ID, project.Name)
	fmt.Printf("Phase:   %s\n", phaseBadge(project.Phase))
	if project.BuildInProgress {
		fmt.Println("Build:   in progress")
	}
	if project.LastError != "" {
		fmt.Printf("Halted:  %s\n", styleArtifactError.Render(project.LastError))
	}
	fmt.Printf("Updated: %s\n", project.Updated.Format("2006-01-02 15:04:05 UTC"))

	if len(project.Artifacts) == 0 {
		fmt.Println("\nNo artifacts planned yet. Run: fl plan " + project.ID)
		return nil
	}

	fmt.Println()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"PATH", "KIND", "STATUS", "TESTS"})
	walkArtifacts(project.Artifacts, func(n *models.ArtifactNode) {
		tests := "-"
		if n.Kind == models.ArtifactFile {
			tests = testStatusBadge(n.TestStatus)
		}
		tw.AppendRow(table.Row{n.Path, n.Kind, artifactStatusBadge(n.Status), tests})
	})
	tw.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
