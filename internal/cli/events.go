package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgeloop/internal/eventbus"
	"forgeloop/pkg/models"
)

// Bus is the event bus surfaced by the events and webhook commands.
// Set during application wiring.
var Bus eventbus.EventBus

var (
	eventsLimit   int
	emitSource    string
	emitPayloadKV []string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent lifecycle events",
	Long: `List the most recent lifecycle events in chronological order. The
in-memory window is bounded; use fl metrics for aggregates over the
full archive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Bus == nil {
			return fmt.Errorf("event bus not initialized")
		}

		events := Bus.Recent(eventsLimit)
		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"TIME", "TYPE", "SOURCE", "PROJECT"})
		for _, evt := range events {
			tw.AppendRow(table.Row{
				evt.Timestamp.Format("15:04:05"),
				evt.Type,
				evt.Source,
				payloadString(evt.Payload, "project_id"),
			})
		}
		tw.Render()
		return nil
	},
}

var eventsEmitCmd = &cobra.Command{
	Use:   "emit <type>",
	Short: "Emit a lifecycle event onto the bus",
	Long: `Emit an event of the given type. The type must belong to the known
event set; anything else is rejected. Payload fields are given as
repeated key=value flags.

Example:
  fl events emit error.occurred --source deploy-hook --payload error="migration failed"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Bus == nil {
			return fmt.Errorf("event bus not initialized")
		}

		payload, err := parsePayloadFlags(emitPayloadKV)
		if err != nil {
			return err
		}

		eventType := models.EventType(args[0])
		if err := Bus.Emit(eventType, payload, emitSource); err != nil {
			return fmt.Errorf("emitting event: %w", err)
		}

		fmt.Printf("Emitted %s\n", eventType)
		return nil
	},
}

// parsePayloadFlags converts repeated key=value flags into an event
// payload map.
func parsePayloadFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid payload flag %q, expected key=value", pair)
		}
		payload[key] = value
	}
	return payload, nil
}

// payloadString reads a string payload field, returning "" when absent.
func payloadString(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum number of events to show")
	eventsEmitCmd.Flags().StringVar(&emitSource, "source", "cli", "Event source label")
	eventsEmitCmd.Flags().StringArrayVar(&emitPayloadKV, "payload", nil, "Payload field as key=value (repeatable)")
	eventsCmd.AddCommand(eventsEmitCmd)
	rootCmd.AddCommand(eventsCmd)
}
