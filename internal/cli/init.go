package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"forgeloop/internal/core"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a forgeloop workspace",
	Long: `Initialize a forgeloop workspace under the given directory (default:
the current directory). Creates the .forgeloop/ layout with projects/,
knowledge/, webhooks/, and events/ directories plus a default
config.yaml documenting every tunable.

Safe to run on an existing workspace -- directories and config that
already exist are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "."
		if len(args) > 0 {
			target = args[0]
		}
		absPath, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		bootstrapper := core.NewWorkspaceBootstrapper(filepath.Join(absPath, ".forgeloop"))
		result, err := bootstrapper.Bootstrap()
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}

		if len(result.Created) > 0 {
			fmt.Println("Created:")
			for _, p := range result.Created {
				rel, relErr := filepath.Rel(absPath, p)
				if relErr != nil {
					rel = p
				}
				fmt.Printf("  %s\n", rel)
			}
		} else {
			fmt.Println("Workspace already initialized, nothing to do.")
		}

		fmt.Printf("\nWorkspace ready at %s\nConfig: %s\n", result.BasePath, result.ConfigPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
