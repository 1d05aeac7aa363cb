// Package ingest runs the per-file protocol: ledger check, parse, extract,
// classification filter, identity resolution, persistence, ledger write and
// source cleanup.
package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/extract"
	"github.com/sells-group/eis-ingest/internal/model"
	"github.com/sells-group/eis-ingest/internal/resolve"
	"github.com/sells-group/eis-ingest/internal/schema"
	"github.com/sells-group/eis-ingest/internal/store"
	"github.com/sells-group/eis-ingest/internal/xmltree"
)

// LedgerMode decides when a file enters the processed-file ledger.
type LedgerMode string

const (
	// LedgerAtomic writes the ledger row last, in the same transaction as
	// the document's entities.
	LedgerAtomic LedgerMode = "atomic"
	// LedgerReserve writes the ledger row before extraction and commits
	// every entity write on its own.
	LedgerReserve LedgerMode = "reserve"
)

// ParseLedgerMode validates a configured ledger mode. Empty means atomic.
func ParseLedgerMode(s string) (LedgerMode, error) {
	switch LedgerMode(s) {
	case "", LedgerAtomic:
		return LedgerAtomic, nil
	case LedgerReserve:
		return LedgerReserve, nil
	}
	return "", eris.Errorf("ingest: unknown ledger mode %q (valid: atomic, reserve)", s)
}

// Outcome is what happened to one source file.
type Outcome string

const (
	Ingested    Outcome = "ingested"
	Duplicate   Outcome = "duplicate"
	OutOfScope  Outcome = "out_of_scope"
	Malformed   Outcome = "malformed"
	Unsupported Outcome = "unsupported"
	Rejected    Outcome = "rejected"
	Failed      Outcome = "failed"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{Ingested, Duplicate, OutOfScope, Malformed, Unsupported, Rejected, Failed}

// Options tunes the processor.
type Options struct {
	LedgerMode LedgerMode
	// SettleDelay is the minimum pause between a document's commit and the
	// removal of its source file.
	SettleDelay time.Duration
	// RemoveMalformed deletes files that fail to parse instead of leaving
	// them for inspection.
	RemoveMalformed bool
}

// FileResult reports one processed file.
type FileResult struct {
	File       string
	Outcome    Outcome
	ContractID int64
	Err        error
}

// Processor ingests XML files of one deployment. It is not safe for
// concurrent use; ingestion is single-process by contract.
type Processor struct {
	store     store.Store
	extractor *extract.Extractor
	resolver  *resolve.Resolver
	opts      Options
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

// New returns a Processor writing through st.
func New(st store.Store, ex *extract.Extractor, opts Options) *Processor {
	if opts.LedgerMode == "" {
		opts.LedgerMode = LedgerAtomic
	}
	return &Processor{
		store:     st,
		extractor: ex,
		resolver:  resolve.New(),
		opts:      opts,
		log:       zap.L().With(zap.String("component", "ingest")),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ProcessFile runs the whole protocol for one file. Failures are reported in
// the result and logged; they never abort the caller's loop.
func (p *Processor) ProcessFile(ctx context.Context, path string, family model.DocumentFamily, regionCode string) FileResult {
	name := filepath.Base(path)
	log := p.log.With(
		zap.String("file", name),
		zap.String("family", family.String()),
		zap.String("region", regionCode),
	)
	res := FileResult{File: name}
	fail := func(outcome Outcome, err error) FileResult {
		res.Outcome, res.Err = outcome, err
		return res
	}

	done, err := p.store.IsFileProcessed(ctx, name)
	if err != nil {
		log.Error("ledger lookup failed", zap.Error(err))
		return fail(Failed, err)
	}
	if done {
		log.Debug("already ingested, removing")
		p.remove(log, path)
		return fail(Duplicate, nil)
	}

	root, err := xmltree.ParseFile(path)
	if err != nil {
		log.Warn("malformed document", zap.Error(err))
		if p.opts.RemoveMalformed {
			p.remove(log, path)
		}
		return fail(Malformed, err)
	}

	x, err := p.extractor.Extract(root, family)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			log.Error("no extraction schema for family, file kept", zap.Error(err))
			return fail(Unsupported, err)
		}
		log.Warn("extraction failed", zap.Error(err))
		return fail(Malformed, err)
	}

	if p.opts.LedgerMode == LedgerReserve {
		if err := p.store.RecordProcessedFile(ctx, name); err != nil {
			log.Error("ledger reservation failed", zap.Error(err))
			return fail(Failed, err)
		}
	}

	codeID, err := p.classification(ctx, x)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("classification out of scope",
			zap.String("code", x.ClassificationCode),
			zap.String("raw_code", x.RawClassification),
		)
		p.remove(log, path)
		return fail(OutOfScope, nil)
	}
	if err != nil {
		log.Error("classification lookup failed", zap.Error(err))
		return fail(Failed, err)
	}

	regionID, err := p.region(ctx, regionCode)
	if err != nil {
		log.Error("region lookup failed", zap.Error(err))
		return fail(Failed, err)
	}
	if regionID == nil && regionCode != "" {
		log.Warn("unknown region code, contract stored without region")
	}

	doc := document{extraction: x, sourceFile: name, regionID: regionID, classificationID: codeID}
	if p.opts.LedgerMode == LedgerAtomic {
		err = p.store.WithTx(ctx, func(q store.Querier) error {
			id, err := p.persist(ctx, q, doc)
			if err != nil {
				return err
			}
			res.ContractID = id
			return q.RecordProcessedFile(ctx, name)
		})
		if err != nil {
			res.ContractID = 0
		}
	} else {
		res.ContractID, err = p.persist(ctx, p.store, doc)
	}

	switch {
	case err == nil:
		res.Outcome = Ingested
		log.Info("document ingested", zap.Int64("contract_id", res.ContractID))
	case resolve.IsConflict(err):
		res.Outcome, res.Err = Rejected, err
		log.Warn("document rejected", zap.Error(err))
	default:
		res.Outcome, res.Err = Failed, err
		log.Error("document persistence failed", zap.Error(err))
		if p.opts.LedgerMode == LedgerAtomic {
			// Not ledgered; keep the file so the next pass retries it.
			return res
		}
	}

	p.sleep(ctx, p.opts.SettleDelay)
	p.remove(log, path)
	return res
}

type document struct {
	extraction       *extract.Extraction
	sourceFile       string
	regionID         *int64
	classificationID int64
}

// persist writes customer, platform, contract and links in that order. Any
// failure abandons the remaining writes.
func (p *Processor) persist(ctx context.Context, q store.Querier, doc document) (int64, error) {
	x := doc.extraction

	customerID, _, err := p.resolver.Customer(ctx, q, x.CustomerRecord())
	if err != nil {
		return 0, err
	}
	platformID, _, err := p.resolver.Platform(ctx, q, x.PlatformRecord())
	if err != nil {
		return 0, err
	}

	c := x.ContractRecord()
	c.SourceFile = doc.sourceFile
	c.CustomerID = customerID
	c.TradingPlatformID = platformID
	c.RegionID = doc.regionID
	c.ClassificationCodeID = doc.classificationID

	contractID, err := q.InsertContract(ctx, c)
	if err != nil {
		return 0, err
	}

	if len(x.Links) > 0 {
		links := make([]model.DocumentLink, len(x.Links))
		for i, l := range x.Links {
			l.ContractID = contractID
			links[i] = l
		}
		if _, err := q.InsertDocumentLinks(ctx, links); err != nil {
			return contractID, eris.Wrapf(err, "ingest: links of contract %d", contractID)
		}
	}
	return contractID, nil
}

func (p *Processor) classification(ctx context.Context, x *extract.Extraction) (int64, error) {
	if x.ClassificationCode == "" {
		return 0, eris.Wrap(store.ErrNotFound, "document has no classification code")
	}
	return p.store.ClassificationCodeID(ctx, x.ClassificationCode)
}

func (p *Processor) region(ctx context.Context, code string) (*int64, error) {
	if code == "" {
		return nil, nil
	}
	id, err := p.store.RegionID(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (p *Processor) remove(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove source file", zap.Error(err))
	}
}
