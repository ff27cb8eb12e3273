package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// Registry is the AgentStatusRegistry surfaced by the agents command.
// Capabilities holds the declared capability sets of the wired
// collaborators. Both are set during application wiring.
var (
	Registry     core.AgentStatusRegistry
	Capabilities []models.AgentCapability
)

var agentsShowCapabilities bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show agent roles and their current status",
	Long: `Show every agent role with its current activity status. Statuses are
live only while a build is running in this process; a fresh invocation
reports every role idle.

Use --capabilities to also list the operations the wired collaborator
implementations declare.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("agent registry not initialized")
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ROLE", "STATUS"})
		for _, agent := range Registry.Snapshot() {
			tw.AppendRow(table.Row{agent.Role, agentStatusBadge(agent.Status)})
		}
		tw.Render()

		if agentsShowCapabilities && len(Capabilities) > 0 {
			fmt.Println("\nCapabilities:")
			for _, cap := range Capabilities {
				fmt.Printf("  %-18s %s\n", cap.Name, cap.Description)
			}
		}
		return nil
	},
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsShowCapabilities, "capabilities", false, "List declared collaborator capabilities")
	rootCmd.AddCommand(agentsCmd)
}
