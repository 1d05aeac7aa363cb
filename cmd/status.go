package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/eis-ingest/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger and entity counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printStats(out io.Writer, s *model.LedgerStats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	last := "never"
	if s.LastProcessedDate != nil {
		last = s.LastProcessedDate.Format(time.DateOnly)
	}
	fmt.Fprintf(w, "LAST DATE\t%s\n", last)
	fmt.Fprintf(w, "DATES\t%d\n", s.ProcessedDates)
	fmt.Fprintf(w, "FILES\t%d\n", s.ProcessedFiles)
	fmt.Fprintf(w, "CUSTOMERS\t%d\n", s.Customers)
	fmt.Fprintf(w, "PLATFORMS\t%d\n", s.TradingPlatforms)
	fmt.Fprintf(w, "CONTRACTS\t%d\n", s.Contracts)
	fmt.Fprintf(w, "LINKS\t%d\n", s.DocumentLinks)
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
