package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/agentforge/pkg/events"
	"github.com/spf13/cobra"
)

var costJSON bool

var costCmd = &cobra.Command{
	Use:   "cost <trace.json>",
	Short: "Show the cost breakdown of an exported trace",
	Long: `Read a trace written via team.observe.trace_file and print token usage
and cost by agent and by model.`,
	Args: cobra.ExactArgs(1),
	RunE: runCost,
}

func init() {
	costCmd.Flags().BoolVar(&costJSON, "json", false, "print the breakdown as JSON")
	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	tr, err := events.LoadTrace(args[0])
	if err != nil {
		return err
	}
	breakdown := events.BreakdownOf(tr.Events)

	out := cmd.OutOrStdout()
	if costJSON {
		data, err := json.MarshalIndent(breakdown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Trace started %s, %.2fs, %d events\n\n",
		tr.StartTime.Format("2006-01-02 15:04:05"), tr.Duration, len(tr.Events))
	return breakdown.WriteTable(out)
}
