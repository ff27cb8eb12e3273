package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgeloop/internal/core"
)

// Controller is the ProjectPhaseController used by the project
// lifecycle commands. Set during application wiring.
var Controller core.ProjectPhaseController

var projectIdea string

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  "Commands for creating and listing forgeloop projects.",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project from an idea",
	Long: `Create a new project in the idea intake phase. The idea text becomes
the first entry in the project's chat log and seeds ideation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		idea := strings.TrimSpace(projectIdea)
		if idea == "" {
			return fmt.Errorf("--idea must not be empty")
		}

		project, err := Controller.CreateProject(args[0], idea)
		if err != nil {
			return fmt.Errorf("creating project: %w", err)
		}

		fmt.Printf("Created project %s (%s) in phase %s\n", project.ID, project.Name, project.Phase)
		fmt.Printf("Next: fl ideate %s\n", project.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}

		projects, err := Controller.ListProjects()
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Create one with: fl project create <name> --idea \"...\"")
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "NAME", "PHASE", "UPDATED"})
		for _, p := range projects {
			tw.AppendRow(table.Row{p.ID, p.Name, phaseBadge(p.Phase), p.Updated.Format("2006-01-02 15:04")})
		}
		tw.Render()
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectIdea, "idea", "", "Raw product idea (required)")
	_ = projectCreateCmd.MarkFlagRequired("idea")
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}
