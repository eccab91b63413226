package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/gepa"
)

// inspectCmd prints a summary of a saved optimization run.
func inspectCmd() *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "inspect <run-dir>",
		Short: "Inspect a saved optimization run",
		Long:  `Read result.json from a run directory and print the archive and trace.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := gepa.LoadResult(filepath.Join(args[0], "result.json"))
			if err != nil {
				return err
			}

			printResultSummary(result)

			if showTrace {
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ITER\tTAG\tACCEPTED\tPARENTS\tNEW IDX\tMEAN BEFORE\tMEAN AFTER")
				fmt.Fprintln(w, "----\t---\t--------\t-------\t-------\t-----------\t----------")
				for _, entry := range result.Trace {
					fmt.Fprintf(w, "%d\t%s\t%t\t%v\t%d\t%.4f\t%.4f\n",
						entry.Iteration,
						entry.Tag,
						entry.Accepted,
						entry.ParentIdxs,
						entry.NewIdx,
						meanOf(entry.ScoresBefore),
						meanOf(entry.ScoresAfter),
					)
				}
				w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the full proposal trace")
	return cmd
}

func printResultSummary(result *gepa.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", result.RunID)
	fmt.Fprintf(w, "Candidates:\t%d\n", len(result.Candidates))
	fmt.Fprintf(w, "Best idx:\t%d\n", result.BestIdx)
	fmt.Fprintf(w, "Best aggregate:\t%.4f\n", result.AggregateScores[result.BestIdx])
	fmt.Fprintf(w, "Full evals:\t%d\n", result.NumFullDSEvals)
	fmt.Fprintf(w, "Total evals:\t%d\n", result.TotalNumEvals)
	fmt.Fprintf(w, "Seed:\t%d\n", result.Seed)
	w.Flush()

	fmt.Println("\nBest candidate:")
	for _, name := range result.BestCandidate.Components() {
		fmt.Printf("--- %s ---\n%s\n", name, result.BestCandidate[name])
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
