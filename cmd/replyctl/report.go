package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/replyd/internal/report"
)

var reportJSON bool

// reportCmd aggregates a local interaction log
var reportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Summarize an interaction log",
	Long: `Aggregate a JSONL interaction log into turn counts, average reward,
style win rates, and propensity statistics. Path may name a log file or a
directory holding *.jsonl logs, in which case the newest log is used.

Examples:
  # Report on the default log location
  replyctl report data/interactions.jsonl

  # Report on the newest log in a directory, as JSON
  replyctl report --json data/`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "emit the report as JSON")
}

// runReport handles the report command
func runReport(cmd *cobra.Command, args []string) error {
	metrics, err := report.Aggregate(args[0])
	if err != nil {
		return err
	}

	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	}

	fmt.Printf("Turns:            %d\n", metrics.TurnCount)
	if metrics.AvgReward != nil {
		fmt.Printf("Average reward:   %.3f\n", *metrics.AvgReward)
	} else {
		fmt.Printf("Average reward:   (no feedback yet)\n")
	}
	fmt.Printf("Exploration rate: %.3f\n", metrics.ExplorationRate)
	if metrics.PropensityMean != nil {
		fmt.Printf("Propensity mean:  %.3f\n", *metrics.PropensityMean)
	}
	if metrics.PropensityStd != nil {
		fmt.Printf("Propensity std:   %.3f\n", *metrics.PropensityStd)
	}

	if len(metrics.StyleWinRates) > 0 {
		fmt.Println("Style win rates:")
		names := make([]string, 0, len(metrics.StyleWinRates))
		for name := range metrics.StyleWinRates {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-16s %.3f\n", name, metrics.StyleWinRates[name])
		}
	}
	return nil
}
