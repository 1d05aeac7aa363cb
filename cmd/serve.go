package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/eis-ingest/internal/config"
	"github.com/sells-group/eis-ingest/internal/crawl"
	"github.com/sells-group/eis-ingest/internal/status"
	"github.com/sells-group/eis-ingest/internal/store"
)

var (
	servePort  int
	serveCrawl bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /health and /status, optionally crawling alongside",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		var crawlTask func(context.Context) error
		if serveCrawl {
			crawlTask, err = newCrawlTask(cfg, st, time.Now())
			if err != nil {
				return err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return status.Serve(gctx, fmt.Sprintf(":%d", port), status.NewRouter(st, cfg.Server.AllowedOrigins))
		})
		if crawlTask != nil {
			g.Go(func() error { return crawlTask(gctx) })
		}

		return g.Wait()
	},
}

// newCrawlTask wires the coordinator up front so configuration errors surface
// before the server starts. An incomplete sweep is logged and leaves the
// server running; the next serve resumes from the unrecorded date.
func newCrawlTask(c *config.Config, st store.Store, now time.Time) (func(context.Context) error, error) {
	proc, err := newProcessor(c, st)
	if err != nil {
		return nil, err
	}
	coord, err := newCoordinator(c, st, proc)
	if err != nil {
		return nil, err
	}
	opts, err := runOptsFor(c, "", "", now)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := coord.Run(ctx, opts)
		switch {
		case err == nil:
			zap.L().Info("crawl finished; status server keeps running")
		case errors.Is(err, context.Canceled):
		case errors.Is(err, crawl.ErrIncompleteSweep):
			zap.L().Warn("crawl stopped at an incomplete sweep; status server keeps running", zap.Error(err))
		default:
			return err
		}
		return nil
	}, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveCrawl, "crawl", false, "run the date sweep alongside the server")
	rootCmd.AddCommand(serveCmd)
}
