package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/model"
)

// DirResult counts outcomes of one directory pass.
type DirResult struct {
	Files    int
	Outcomes map[Outcome]int
}

// Count returns the number of files with outcome o.
func (r DirResult) Count(o Outcome) int {
	return r.Outcomes[o]
}

// Add folds other into r.
func (r *DirResult) Add(other DirResult) {
	if r.Outcomes == nil {
		r.Outcomes = make(map[Outcome]int)
	}
	r.Files += other.Files
	for o, n := range other.Outcomes {
		r.Outcomes[o] += n
	}
}

// ProcessDir ingests every *.xml file directly inside dir in lexical order.
// Per-file failures are counted; only an unreadable directory or a cancelled
// context is returned as an error.
func (p *Processor) ProcessDir(ctx context.Context, dir string, family model.DocumentFamily, regionCode string) (DirResult, error) {
	res := DirResult{Outcomes: make(map[Outcome]int)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, eris.Wrapf(err, "ingest: read dir %s", dir)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fr := p.ProcessFile(ctx, filepath.Join(dir, e.Name()), family, regionCode)
		res.Files++
		res.Outcomes[fr.Outcome]++
	}

	fields := []zap.Field{
		zap.String("dir", dir),
		zap.String("family", family.String()),
		zap.String("region", regionCode),
		zap.Int("files", res.Files),
	}
	for _, o := range Outcomes {
		if n := res.Outcomes[o]; n > 0 {
			fields = append(fields, zap.Int(string(o), n))
		}
	}
	p.log.Info("directory processed", fields...)
	return res, nil
}
