// Package refdata loads the region and classification code reference tables
// from static files.
package refdata

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/fetcher"
	"github.com/sells-group/eis-ingest/internal/model"
)

// Writer upserts reference rows.
type Writer interface {
	UpsertRegions(ctx context.Context, regions []model.Region) (int64, error)
	UpsertClassificationCodes(ctx context.Context, codes []model.ClassificationCode) (int64, error)
}

// ReadRegions reads region codes from a JSON object ({"01": "Республика
// Адыгея", ...}) or a code,name CSV, chosen by extension. Single-digit codes
// are zero-padded. Rows come back sorted by code.
func ReadRegions(ctx context.Context, path string) ([]model.Region, error) {
	var pairs [][2]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		pairs, err = readJSONPairs(path)
	case ".csv":
		pairs, err = readCSVPairs(ctx, path)
	default:
		return nil, eris.Errorf("refdata: unsupported region file %s", path)
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.Region, 0, len(pairs))
	for _, p := range pairs {
		code := p[0]
		if len(code) == 1 {
			code = "0" + code
		}
		out = append(out, model.Region{Code: code, Name: p[1]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ReadClassificationCodes reads code,name rows from a CSV or the first sheet
// of an XLSX workbook. A header row whose first cell is not a code is skipped.
func ReadClassificationCodes(ctx context.Context, path string) ([]model.ClassificationCode, error) {
	var pairs [][2]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		pairs, err = readCSVPairs(ctx, path)
	case ".xlsx":
		pairs, err = readXLSXPairs(path)
	default:
		return nil, eris.Errorf("refdata: unsupported classification file %s", path)
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.ClassificationCode, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.ClassificationCode{Code: p[0], Name: p[1]})
	}
	return out, nil
}

// Load reads both files and upserts them. An empty path skips that table.
func Load(ctx context.Context, w Writer, regionsPath, codesPath string) error {
	log := zap.L().With(zap.String("component", "refdata"))

	if regionsPath != "" {
		regions, err := ReadRegions(ctx, regionsPath)
		if err != nil {
			return err
		}
		n, err := w.UpsertRegions(ctx, regions)
		if err != nil {
			return eris.Wrap(err, "refdata: upsert regions")
		}
		log.Info("regions loaded", zap.String("path", regionsPath), zap.Int("read", len(regions)), zap.Int64("written", n))
	}

	if codesPath != "" {
		codes, err := ReadClassificationCodes(ctx, codesPath)
		if err != nil {
			return err
		}
		n, err := w.UpsertClassificationCodes(ctx, codes)
		if err != nil {
			return eris.Wrap(err, "refdata: upsert classification codes")
		}
		log.Info("classification codes loaded", zap.String("path", codesPath), zap.Int("read", len(codes)), zap.Int64("written", n))
	}
	return nil
}

func readJSONPairs(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	m, err := fetcher.DecodeJSONObject[map[string]string](f)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: %s", path)
	}
	pairs := make([][2]string, 0, len(*m))
	for code, name := range *m {
		if code = strings.TrimSpace(code); code != "" {
			pairs = append(pairs, [2]string{code, strings.TrimSpace(name)})
		}
	}
	return pairs, nil
}

func readCSVPairs(ctx context.Context, path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	delim, err := sniffDelimiter(f)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: %s", path)
	}

	rows, errs := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{Delimiter: delim, TrimSpace: true, Comment: '#'})
	var pairs [][2]string
	for row := range rows {
		if p, ok := pair(row); ok {
			pairs = append(pairs, p)
		}
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "refdata: %s", path)
	}
	return pairs, nil
}

// sniffDelimiter picks ';' over ',' when the first line has more of them,
// then rewinds f.
func sniffDelimiter(f *os.File) (rune, error) {
	head := make([]byte, 512)
	n, _ := f.Read(head)
	line, _, _ := strings.Cut(string(head[:n]), "\n")
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';', nil
	}
	return ',', nil
}

func readXLSXPairs(path string) ([][2]string, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	var pairs [][2]string
	for _, row := range rows {
		if p, ok := pair(row); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

// pair keeps rows whose first cell starts with a digit, which drops header
// and blank rows.
func pair(row []string) ([2]string, bool) {
	if len(row) == 0 {
		return [2]string{}, false
	}
	code := strings.TrimSpace(row[0])
	if code == "" || code[0] < '0' || code[0] > '9' {
		return [2]string{}, false
	}
	var name string
	if len(row) > 1 {
		name = strings.TrimSpace(row[1])
	}
	return [2]string{code, name}, true
}
