package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/config"
	"github.com/sells-group/eis-ingest/internal/crawl"
)

var (
	runStart string
	runUntil string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep every unprocessed date up to --until",
	Long:  "Ensures the tunnel is up, then for each date from the persisted cursor through --until requests archives for every region, subsystem and document type and ingests them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := runOptsFor(cfg, runStart, runUntil, time.Now())
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		proc, err := newProcessor(cfg, st)
		if err != nil {
			return err
		}
		coord, err := newCoordinator(cfg, st, proc)
		if err != nil {
			return err
		}
		if err := coord.Run(ctx, opts); err != nil {
			if errors.Is(err, context.Canceled) {
				zap.L().Warn("run interrupted; the current date stays unrecorded")
				return nil
			}
			return err
		}
		return nil
	},
}

// runOptsFor resolves the date window. Start falls back to crawl.start_date
// and then to until; until defaults to yesterday.
func runOptsFor(c *config.Config, start, until string, now time.Time) (crawl.RunOpts, error) {
	var opts crawl.RunOpts
	var err error

	if start != "" {
		if opts.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return opts, eris.Wrapf(err, "invalid --start %q", start)
		}
	} else if opts.Start, err = c.StartDate(); err != nil {
		return opts, err
	}

	if until != "" {
		if opts.Until, err = time.Parse(time.DateOnly, until); err != nil {
			return opts, eris.Wrapf(err, "invalid --until %q", until)
		}
	} else {
		y := now.AddDate(0, 0, -1)
		opts.Until = time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
	}

	if opts.Start.IsZero() {
		opts.Start = opts.Until
	}
	if opts.Start.After(opts.Until) {
		return opts, eris.Errorf("--start %s is after --until %s", opts.Start.Format(time.DateOnly), opts.Until.Format(time.DateOnly))
	}
	return opts, nil
}

func init() {
	runCmd.Flags().StringVar(&runStart, "start", "", "first date to sweep, YYYY-MM-DD (default crawl.start_date)")
	runCmd.Flags().StringVar(&runUntil, "until", "", "last date to sweep, YYYY-MM-DD (default yesterday)")
	rootCmd.AddCommand(runCmd)
}
