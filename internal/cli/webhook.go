package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgeloop/pkg/models"
)

var (
	webhookEvents  []string
	webhookSecret  string
	webhookHeaders []string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage webhook subscriptions",
	Long: `Commands for managing webhook subscriptions. Matching lifecycle events
are POSTed to each active destination as JSON; when a secret is set,
deliveries carry an HMAC-SHA-256 signature header the receiver can
verify.`,
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <destination-url>",
	Short: "Subscribe a destination URL to lifecycle events",
	Long: `Subscribe an http(s) destination to lifecycle events. Without --events
the subscription receives every event type. Secrets are stored in the
workspace but never shown in listings.

Example:
  fl webhook add https://ci.example.com/hooks/fl --events build.completed,build.failed --secret s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Bus == nil {
			return fmt.Errorf("event bus not initialized")
		}

		types := make([]models.EventType, 0, len(webhookEvents))
		for _, t := range webhookEvents {
			types = append(types, models.EventType(t))
		}
		headers, err := parseHeaderFlags(webhookHeaders)
		if err != nil {
			return err
		}

		sub, err := Bus.Subscribe(args[0], types, webhookSecret, headers)
		if err != nil {
			return fmt.Errorf("subscribing: %w", err)
		}

		scope := "all events"
		if len(sub.EventTypes) > 0 {
			scope = fmt.Sprintf("%d event type(s)", len(sub.EventTypes))
		}
		fmt.Printf("Subscribed %s to %s (id %s)\n", sub.Destination, scope, sub.ID)
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhook subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Bus == nil {
			return fmt.Errorf("event bus not initialized")
		}

		subs := Bus.Subscriptions()
		if len(subs) == 0 {
			fmt.Println("No webhook subscriptions.")
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "DESTINATION", "EVENTS", "ACTIVE"})
		for _, sub := range subs {
			events := "*"
			if len(sub.EventTypes) > 0 {
				names := make([]string, len(sub.EventTypes))
				for i, t := range sub.EventTypes {
					names[i] = string(t)
				}
				events = strings.Join(names, ",")
			}
			tw.AppendRow(table.Row{sub.ID, sub.Destination, events, sub.Active})
		}
		tw.Render()
		return nil
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "remove <subscription-id>",
	Short: "Remove a webhook subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Bus == nil {
			return fmt.Errorf("event bus not initialized")
		}
		removed, err := Bus.Unsubscribe(args[0])
		if err != nil {
			return fmt.Errorf("unsubscribing: %w", err)
		}
		if !removed {
			fmt.Printf("No subscription with id %s\n", args[0])
			return nil
		}
		fmt.Printf("Removed subscription %s\n", args[0])
		return nil
	},
	ValidArgsFunction: completeSubscriptionIDs,
}

var webhookEnableCmd = &cobra.Command{
	Use:   "enable <subscription-id>",
	Short: "Resume delivery to a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSubscriptionActive(args[0], true)
	},
	ValidArgsFunction: completeSubscriptionIDs,
}

var webhookDisableCmd = &cobra.Command{
	Use:   "disable <subscription-id>",
	Short: "Pause delivery to a subscription without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSubscriptionActive(args[0], false)
	},
	ValidArgsFunction: completeSubscriptionIDs,
}

func setSubscriptionActive(id string, active bool) error {
	if Bus == nil {
		return fmt.Errorf("event bus not initialized")
	}
	if err := Bus.SetActive(id, active); err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}
	state := "enabled"
	if !active {
		state = "disabled"
	}
	fmt.Printf("Subscription %s %s\n", id, state)
	return nil
}

// parseHeaderFlags converts repeated key=value flags into a header map.
func parseHeaderFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header flag %q, expected key=value", pair)
		}
		headers[key] = value
	}
	return headers, nil
}

func init() {
	webhookAddCmd.Flags().StringSliceVar(&webhookEvents, "events", nil, "Event types to subscribe to (default: all)")
	webhookAddCmd.Flags().StringVar(&webhookSecret, "secret", "", "HMAC signing secret for deliveries")
	webhookAddCmd.Flags().StringArrayVar(&webhookHeaders, "header", nil, "Extra delivery header as key=value (repeatable)")
	webhookCmd.AddCommand(webhookAddCmd)
	webhookCmd.AddCommand(webhookListCmd)
	webhookCmd.AddCommand(webhookRemoveCmd)
	webhookCmd.AddCommand(webhookEnableCmd)
	webhookCmd.AddCommand(webhookDisableCmd)
	rootCmd.AddCommand(webhookCmd)
}
