package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/eis-ingest/internal/refdata"
)

var (
	refdataRegions string
	refdataCodes   string
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage reference tables",
}

var refdataLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load regions and classification codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		regions, codes := refdataRegions, refdataCodes
		if regions == "" {
			regions = cfg.Refdata.RegionsFile
		}
		if codes == "" {
			codes = cfg.Refdata.CodesFile
		}
		return refdata.Load(ctx, st, regions, codes)
	},
}

func init() {
	refdataLoadCmd.Flags().StringVar(&refdataRegions, "regions", "", "regions file, .json or .csv (default from config)")
	refdataLoadCmd.Flags().StringVar(&refdataCodes, "codes", "", "classification codes file, .csv or .xlsx (default from config)")
	refdataCmd.AddCommand(refdataLoadCmd)
	rootCmd.AddCommand(refdataCmd)
}
