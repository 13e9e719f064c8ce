package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tempuslab/tempus/datarecording"
)

var traceCmd = &cobra.Command{
	Use:   "trace [recording.sqlite3]",
	Short: "Print the firing traces of a recorded simulation.",
	Long: "`trace [recording.sqlite3]` lists the recorded firings and ticks " +
		"of a simulation run with tracing enabled.",
	Args: cobra.ExactArgs(1),
	Run:  runTrace,
}

func init() {
	traceCmd.Flags().Int("limit", 50, "maximum number of rows to print")
	traceCmd.Flags().Int("offset", 0, "number of rows to skip")

	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	reader := datarecording.NewReader(args[0])
	defer reader.Close()

	reader.MapTable("traces", datarecording.FiringTrace{})

	results, total, err := reader.Query(context.Background(), "traces",
		datarecording.QueryParams{
			OrderBy: "Time",
			Limit:   limit,
			Offset:  offset,
		})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, r := range results {
		t := r.(*datarecording.FiringTrace)
		fmt.Printf("%12.6f  %-12s %s\n", t.Time, t.Kind, t.Action)
	}

	fmt.Printf("%d of %d traces\n", len(results), total)
}
