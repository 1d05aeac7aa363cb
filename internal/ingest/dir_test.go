package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/eis-ingest/internal/model"
)

func TestProcessDir(t *testing.T) {
	h := newHarness(t, Options{})

	a := baseDoc()
	b := baseDoc()
	b.Number = "2"
	b.Code = "99.99"
	h.write("a.xml", a)
	h.write("b.XML", b)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "readme.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(h.dir, "nested.xml"), 0o755))

	res, err := h.proc.ProcessDir(context.Background(), h.dir, model.NewContract44, "01")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Count(Ingested))
	assert.Equal(t, 1, res.Count(OutOfScope))
	assert.True(t, fileExists(filepath.Join(h.dir, "readme.txt")))
}

func TestProcessDir_Missing(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.proc.ProcessDir(context.Background(), filepath.Join(h.dir, "nope"), model.NewContract44, "01")
	assert.Error(t, err)
}

func TestProcessDir_Cancelled(t *testing.T) {
	h := newHarness(t, Options{})
	h.write("a.xml", baseDoc())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.proc.ProcessDir(ctx, h.dir, model.NewContract44, "01")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Files)
	assert.True(t, fileExists(filepath.Join(h.dir, "a.xml")))
}

func TestDirResult_Add(t *testing.T) {
	var total DirResult
	total.Add(DirResult{Files: 2, Outcomes: map[Outcome]int{Ingested: 2}})
	total.Add(DirResult{Files: 1, Outcomes: map[Outcome]int{Failed: 1}})
	assert.Equal(t, 3, total.Files)
	assert.Equal(t, 2, total.Count(Ingested))
	assert.Equal(t, 1, total.Count(Failed))
}
