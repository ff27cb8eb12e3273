package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// completeProjectIDs lists project IDs for shell completion, with the
// project name and phase as the description.
func completeProjectIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Controller == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	projects, err := Controller.ListProjects()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, p := range projects {
		if toComplete == "" || strings.HasPrefix(p.ID, toComplete) {
			ids = append(ids, p.ID+"\t"+p.Name+" ("+string(p.Phase)+")")
		}
	}

	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeSubscriptionIDs lists webhook subscription IDs with the
// destination as the description.
func completeSubscriptionIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Bus == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, sub := range Bus.Subscriptions() {
		if toComplete == "" || strings.HasPrefix(sub.ID, toComplete) {
			ids = append(ids, sub.ID+"\t"+sub.Destination)
		}
	}

	return ids, cobra.ShellCompDirectiveNoFileComp
}
