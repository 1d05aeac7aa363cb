package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectCSV(t *testing.T, input string, opts CSVOptions) ([][]string, error) {
	t.Helper()
	rows, errs := StreamCSV(context.Background(), strings.NewReader(input), opts)
	var out [][]string
	for r := range rows {
		out = append(out, r)
	}
	return out, <-errs
}

func TestStreamCSV(t *testing.T) {
	rows, err := collectCSV(t, "code,name\n62.01, Разработка ПО \n# note\n62.02,Консультации\n", CSVOptions{
		HasHeader: true,
		TrimSpace: true,
		Comment:   '#',
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"62.01", "Разработка ПО"}, {"62.02", "Консультации"}}, rows)
}

func TestStreamCSV_Semicolon(t *testing.T) {
	rows, err := collectCSV(t, "01;Адыгея\n02;Башкортостан;extra\n", CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1], 3)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows, errs := StreamCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	for range rows {
	}
	assert.ErrorContains(t, <-errs, "context cancelled")
}
