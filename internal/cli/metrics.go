package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display build and event metrics",
	Long: `Display aggregated metrics derived from the event archive.

Metrics include project and build counts, build success rate, files
generated, test outcomes, and the average number of heal attempts per
repaired file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		// Table format.
		fmt.Printf("Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Printf("  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Printf("  %-24s %d\n", "Projects created:", metrics.ProjectsCreated)
		fmt.Printf("  %-24s %d\n", "Builds started:", metrics.BuildsStarted)
		fmt.Printf("  %-24s %d\n", "Builds completed:", metrics.BuildsCompleted)
		fmt.Printf("  %-24s %d\n", "Builds failed:", metrics.BuildsFailed)
		if metrics.BuildsCompleted+metrics.BuildsFailed > 0 {
			fmt.Printf("  %-24s %.0f%%\n", "Build success rate:", metrics.BuildSuccessRate*100)
		}
		fmt.Printf("  %-24s %d\n", "Files generated:", metrics.FilesGenerated)
		fmt.Printf("  %-24s %d\n", "Tests passed:", metrics.TestsPassed)
		fmt.Printf("  %-24s %d\n", "Tests failed:", metrics.TestsFailed)
		if metrics.AvgHealAttempts > 0 {
			fmt.Printf("  %-24s %.1f\n", "Avg heal attempts:", metrics.AvgHealAttempts)
		}

		if len(metrics.EventsByType) > 0 {
			fmt.Println("\n  Events by type:")
			types := make([]string, 0, len(metrics.EventsByType))
			for t := range metrics.EventsByType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Printf("    %-28s %d\n", t+":", metrics.EventsByType[t])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Printf("\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a human-friendly duration string like "7d",
// "30d", or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
