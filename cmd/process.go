package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/eis-ingest/internal/config"
	"github.com/sells-group/eis-ingest/internal/ingest"
	"github.com/sells-group/eis-ingest/internal/model"
)

var (
	processRegion string
	processFamily string
)

var processCmd = &cobra.Command{
	Use:   "process <dir>",
	Short: "Ingest every XML file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := processDir(ctx, cfg, args[0], processRegion, processFamily)
		if err != nil {
			return err
		}
		printDirResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func processDir(ctx context.Context, c *config.Config, dir, region, familyName string) (ingest.DirResult, error) {
	if region == "" {
		return ingest.DirResult{}, eris.New("--region is required")
	}

	var family model.DocumentFamily
	var err error
	if familyName != "" {
		family, err = model.ParseFamily(familyName)
	} else {
		family, err = c.FamilyForDir(dir)
	}
	if err != nil {
		return ingest.DirResult{}, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return ingest.DirResult{}, err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return ingest.DirResult{}, err
	}
	proc, err := newProcessor(c, st)
	if err != nil {
		return ingest.DirResult{}, err
	}
	return proc.ProcessDir(ctx, dir, family, region)
}

func printDirResult(w io.Writer, res ingest.DirResult) {
	fmt.Fprintf(w, "files: %d\n", res.Files)
	for _, o := range ingest.Outcomes {
		if n := res.Count(o); n > 0 {
			fmt.Fprintf(w, "  %-13s %d\n", o, n)
		}
	}
}

func init() {
	processCmd.Flags().StringVar(&processRegion, "region", "", "two-digit region code of the documents")
	processCmd.Flags().StringVar(&processFamily, "family", "", "document family (default: from ingest.family_dirs)")
	rootCmd.AddCommand(processCmd)
}
