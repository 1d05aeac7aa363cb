// Package crawl drives the outer enumeration over dates, regions,
// subsystems and document types, handing every unpacked batch to ingest.
package crawl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/eis"
	"github.com/sells-group/eis-ingest/internal/fetcher"
	"github.com/sells-group/eis-ingest/internal/ingest"
	"github.com/sells-group/eis-ingest/internal/model"
	"github.com/sells-group/eis-ingest/internal/resilience"
)

// ErrIncompleteSweep is returned when a sweep stopped short because the
// source was unavailable. The date is left unrecorded so a later run repeats it.
var ErrIncompleteSweep = eris.New("crawl: sweep incomplete")

// Tunnel brings the secure channel up; it is called once per Run.
type Tunnel interface {
	Ensure(ctx context.Context) error
}

// Source lists archive URLs for one query.
type Source interface {
	ArchiveURLs(ctx context.Context, q eis.Query) ([]string, error)
}

// Downloader saves one archive URL to a local path.
type Downloader interface {
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Unpacker extracts every archive in dir into dir. Corrupt archives are
// reported in failed and do not stop the others.
type Unpacker interface {
	Unpack(dir string) (files []string, failed map[string]error, err error)
}

// UnpackFunc adapts a function to Unpacker.
type UnpackFunc func(dir string) ([]string, map[string]error, error)

// Unpack implements Unpacker.
func (f UnpackFunc) Unpack(dir string) ([]string, map[string]error, error) { return f(dir) }

// ZIPUnpacker unpacks zip archives.
var ZIPUnpacker Unpacker = UnpackFunc(fetcher.ExtractDir)

// DirProcessor ingests every XML file of a directory.
type DirProcessor interface {
	ProcessDir(ctx context.Context, dir string, family model.DocumentFamily, regionCode string) (ingest.DirResult, error)
}

// Ledger is the coordinator's view of the store.
type Ledger interface {
	Regions(ctx context.Context) ([]model.Region, error)
	IsDateProcessed(ctx context.Context, date time.Time) (bool, error)
	RecordProcessedDate(ctx context.Context, date time.Time, summary model.SweepSummary) error
	LastProcessedDate(ctx context.Context) (*time.Time, error)
}

// Subsystem is one configured registry subsystem and the document types
// requested from it.
type Subsystem struct {
	Code     string
	Law      string // "44" or "223"
	Family   model.DocumentFamily
	DocTypes []string
}

// Tuple is one (region, subsystem, document type) unit of a sweep.
type Tuple struct {
	Region    string
	Subsystem Subsystem
	DocType   string
}

// Options configures a Coordinator.
type Options struct {
	Subsystems []Subsystem
	// WorkDir receives downloaded archives, one subdirectory per tuple.
	WorkDir string
	// KeepArchives leaves downloaded archives in place after ingest.
	KeepArchives bool
}

// Coordinator runs date sweeps.
type Coordinator struct {
	tunnel     Tunnel
	source     Source
	downloader Downloader
	unpacker   Unpacker
	processor  DirProcessor
	ledger     Ledger
	opts       Options
	log        *zap.Logger
}

// New creates a Coordinator.
func New(t Tunnel, src Source, dl Downloader, up Unpacker, proc DirProcessor, ledger Ledger, opts Options) *Coordinator {
	if up == nil {
		up = ZIPUnpacker
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "eis-ingest")
	}
	return &Coordinator{
		tunnel:     t,
		source:     src,
		downloader: dl,
		unpacker:   up,
		processor:  proc,
		ledger:     ledger,
		opts:       opts,
		log:        zap.L().With(zap.String("component", "crawl")),
	}
}

// RunOpts bounds a Run. Until is inclusive.
type RunOpts struct {
	Start time.Time
	Until time.Time
}

// Run ensures the tunnel, then sweeps every unprocessed date from the cursor
// through Until. The cursor is the later of Start and the day after the last
// processed date. Tunnel and ledger failures are fatal; tuple failures are not.
func (c *Coordinator) Run(ctx context.Context, opts RunOpts) error {
	if err := c.tunnel.Ensure(ctx); err != nil {
		return eris.Wrap(err, "crawl: tunnel")
	}

	cursor := day(opts.Start)
	last, err := c.ledger.LastProcessedDate(ctx)
	if err != nil {
		return eris.Wrap(err, "crawl: read cursor")
	}
	if last != nil {
		if next := day(*last).AddDate(0, 0, 1); next.After(cursor) {
			cursor = next
		}
	}
	until := day(opts.Until)

	c.log.Info("crawl starting",
		zap.String("from", cursor.Format(time.DateOnly)),
		zap.String("until", until.Format(time.DateOnly)),
	)

	var swept, skipped int
	for d := cursor; !d.After(until); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := c.ledger.IsDateProcessed(ctx, d)
		if err != nil {
			return eris.Wrapf(err, "crawl: check date %s", d.Format(time.DateOnly))
		}
		if done {
			c.log.Debug("date already processed", zap.String("date", d.Format(time.DateOnly)))
			skipped++
			continue
		}
		// An unrecorded date must not be stepped over: the next run resumes
		// from the day after the last recorded one.
		if _, err := c.Sweep(ctx, d); err != nil {
			return err
		}
		swept++
	}

	c.log.Info("crawl complete", zap.Int("swept", swept), zap.Int("skipped", skipped))
	return nil
}

// Plan returns the tuples of one sweep: regions ascending by code, then
// 44-law subsystems before 223-law ones in configured order, then document
// types in configured order.
func (c *Coordinator) Plan(regions []model.Region) []Tuple {
	codes := make([]string, 0, len(regions))
	for _, r := range regions {
		codes = append(codes, r.Code)
	}
	sort.Strings(codes)

	subs := make([]Subsystem, len(c.opts.Subsystems))
	copy(subs, c.opts.Subsystems)
	sort.SliceStable(subs, func(i, j int) bool { return lawRank(subs[i].Law) < lawRank(subs[j].Law) })

	var plan []Tuple
	for _, code := range codes {
		for _, s := range subs {
			for _, dt := range s.DocTypes {
				plan = append(plan, Tuple{Region: code, Subsystem: s, DocType: dt})
			}
		}
	}
	return plan
}

func lawRank(law string) int {
	if law == "44" {
		return 0
	}
	return 1
}

// Sweep drives every tuple for date and records the date once all tuples
// have run. A cancelled sweep is not recorded. Neither is a sweep cut short by
// an open circuit breaker or one in which every tuple failed; both return
// ErrIncompleteSweep.
func (c *Coordinator) Sweep(ctx context.Context, date time.Time) (model.SweepSummary, error) {
	date = day(date)
	log := c.log.With(zap.String("date", date.Format(time.DateOnly)))

	regions, err := c.ledger.Regions(ctx)
	if err != nil {
		return model.SweepSummary{}, eris.Wrap(err, "crawl: load regions")
	}
	plan := c.Plan(regions)
	log.Info("sweep starting", zap.Int("tuples", len(plan)))

	var sum model.SweepSummary
	for _, t := range plan {
		if err := ctx.Err(); err != nil {
			log.Warn("sweep interrupted", zap.Int("done", sum.Tuples))
			return sum, err
		}
		archives, files, err := c.tuple(ctx, t, date)
		sum.Tuples++
		sum.Archives += archives
		sum.Files += files
		if err != nil {
			sum.FailedTuples++
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			log.Error("tuple failed",
				zap.String("region", t.Region),
				zap.String("subsystem", t.Subsystem.Code),
				zap.String("doc_type", t.DocType),
				zap.Error(err),
			)
			if errors.Is(err, resilience.ErrCircuitOpen) {
				log.Warn("source unavailable, sweep abandoned", zap.Int("done", sum.Tuples), zap.Int("tuples", len(plan)))
				return sum, eris.Wrapf(ErrIncompleteSweep, "date %s: source circuit open", date.Format(time.DateOnly))
			}
		}
	}

	if sum.Tuples > 0 && sum.FailedTuples == sum.Tuples {
		log.Warn("every tuple failed, date not recorded", zap.Int("tuples", sum.Tuples))
		return sum, eris.Wrapf(ErrIncompleteSweep, "date %s: all %d tuples failed", date.Format(time.DateOnly), sum.Tuples)
	}

	if err := c.ledger.RecordProcessedDate(ctx, date, sum); err != nil {
		return sum, eris.Wrapf(err, "crawl: record date %s", date.Format(time.DateOnly))
	}
	log.Info("sweep complete",
		zap.Int("tuples", sum.Tuples),
		zap.Int("failed_tuples", sum.FailedTuples),
		zap.Int("archives", sum.Archives),
		zap.Int("files", sum.Files),
	)
	return sum, nil
}

// tuple fetches, downloads, unpacks and ingests one unit. A failed archive
// download is skipped; the others still run.
func (c *Coordinator) tuple(ctx context.Context, t Tuple, date time.Time) (archives, files int, err error) {
	urls, err := c.source.ArchiveURLs(ctx, eis.Query{
		Region:    t.Region,
		Law:       t.Subsystem.Law,
		Subsystem: t.Subsystem.Code,
		DocType:   t.DocType,
		Date:      date,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(urls) == 0 {
		return 0, 0, nil
	}

	dir := filepath.Join(c.opts.WorkDir, t.Subsystem.Family.String(), t.Region, t.DocType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, eris.Wrapf(err, "crawl: create %s", dir)
	}

	var saved []string
	names := fetcher.FileNamesFor(urls)
	for i, u := range urls {
		dest := filepath.Join(dir, names[i])
		if _, err := c.downloader.DownloadToFile(ctx, u, dest); err != nil {
			if ctx.Err() != nil {
				return archives, 0, ctx.Err()
			}
			c.log.Error("archive download failed", zap.String("url", u), zap.Error(err))
			continue
		}
		saved = append(saved, dest)
		archives++
	}
	if len(saved) == 0 {
		return 0, 0, eris.Errorf("crawl: none of %d archives downloaded", len(urls))
	}

	extracted, failed, err := c.unpacker.Unpack(dir)
	if err != nil {
		return archives, 0, err
	}
	for archive, aerr := range failed {
		c.log.Error("corrupt archive skipped", zap.String("archive", archive), zap.Error(aerr))
	}
	if !c.opts.KeepArchives {
		for _, p := range saved {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				c.log.Warn("remove archive", zap.String("archive", p), zap.Error(err))
			}
		}
	}
	c.log.Debug("archives unpacked", zap.String("dir", dir), zap.Int("files", len(extracted)))

	res, err := c.processor.ProcessDir(ctx, dir, t.Subsystem.Family, t.Region)
	return archives, res.Files, err
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
