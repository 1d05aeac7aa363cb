package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/eis-ingest/internal/config"
	"github.com/sells-group/eis-ingest/internal/crawl"
	"github.com/sells-group/eis-ingest/internal/eis"
	"github.com/sells-group/eis-ingest/internal/extract"
	"github.com/sells-group/eis-ingest/internal/fetcher"
	"github.com/sells-group/eis-ingest/internal/ingest"
	"github.com/sells-group/eis-ingest/internal/model"
	"github.com/sells-group/eis-ingest/internal/resilience"
	"github.com/sells-group/eis-ingest/internal/schema"
	"github.com/sells-group/eis-ingest/internal/store"
	"github.com/sells-group/eis-ingest/internal/tunnel"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "eis.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres (EIS_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// newProcessor loads every configured schema; a schema that fails to load
// stops the command.
func newProcessor(c *config.Config, st store.Store) (*ingest.Processor, error) {
	paths, err := c.SchemaPaths()
	if err != nil {
		return nil, err
	}
	set, err := schema.LoadSet(paths)
	if err != nil {
		return nil, eris.Wrap(err, "load schemas")
	}
	mode, err := ingest.ParseLedgerMode(c.Ingest.LedgerMode)
	if err != nil {
		return nil, err
	}
	return ingest.New(st, extract.New(set), ingest.Options{
		LedgerMode:      mode,
		SettleDelay:     time.Duration(c.Ingest.SettleDelayMs) * time.Millisecond,
		RemoveMalformed: c.Ingest.RemoveMalformed,
	}), nil
}

func newFetcher(c *config.Config) fetcher.Fetcher {
	httpF := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.Download.UserAgent,
		Timeout:     time.Duration(c.Download.TimeoutSecs) * time.Second,
		Headers:     map[string]string{"individualPerson_token": c.EIS.Token},
		RatePerHost: rate.Limit(c.Download.RatePerSec),
		Retry:       resilience.FromSettings(c.EIS.RetryAttempts, c.EIS.RetryBackoffMs, 0),
	})
	return fetcher.ByScheme(map[string]fetcher.Fetcher{
		"http":  httpF,
		"https": httpF,
		"ftp": fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout:  time.Duration(c.Download.TimeoutSecs) * time.Second,
			User:     c.Download.FTPUser,
			Password: c.Download.FTPPassword,
		}),
	})
}

func subsystems(c *config.Config) ([]crawl.Subsystem, error) {
	out := make([]crawl.Subsystem, 0, len(c.EIS.Subsystems))
	for _, s := range c.EIS.Subsystems {
		f, err := model.ParseFamily(s.Family)
		if err != nil {
			return nil, eris.Wrapf(err, "subsystem %s", s.Code)
		}
		out = append(out, crawl.Subsystem{Code: s.Code, Law: s.Law, Family: f, DocTypes: s.DocTypes})
	}
	return out, nil
}

func newCoordinator(c *config.Config, st store.Store, proc *ingest.Processor) (*crawl.Coordinator, error) {
	subs, err := subsystems(c)
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewBreaker(c.EIS.BreakerThreshold, time.Duration(c.EIS.BreakerCooldownSecs)*time.Second,
		func(from, to resilience.BreakerState) {
			zap.L().Warn("eis circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		})
	client, err := eis.NewClient(eis.Options{
		Endpoint: c.EIS.Endpoint,
		Token:    c.EIS.Token,
		Timeout:  time.Duration(c.EIS.TimeoutSecs) * time.Second,
		Retry:    resilience.FromSettings(c.EIS.RetryAttempts, c.EIS.RetryBackoffMs, 0),
		Breaker:  breaker,
	})
	if err != nil {
		return nil, err
	}

	tun := tunnel.New(tunnel.Options{
		Addr:         c.Tunnel.Addr,
		Command:      c.Tunnel.Command,
		Dir:          c.Tunnel.Dir,
		LogFile:      c.Tunnel.LogFile,
		StartTimeout: time.Duration(c.Tunnel.StartTimeoutSecs) * time.Second,
	})

	return crawl.New(tun, client, newFetcher(c), crawl.ZIPUnpacker, proc, st, crawl.Options{
		Subsystems:   subs,
		WorkDir:      c.Download.Dir,
		KeepArchives: c.Download.KeepArchives,
	}), nil
}
