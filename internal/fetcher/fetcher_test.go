package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubFetcher struct{ name string }

func (s stubFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.name)), nil
}

func (s stubFetcher) DownloadToFile(context.Context, string, string) (int64, error) {
	return int64(len(s.name)), nil
}

func TestByScheme(t *testing.T) {
	r := ByScheme(map[string]Fetcher{
		"HTTPS": stubFetcher{"https"},
		"ftp":   stubFetcher{"ftp"},
	})
	ctx := context.Background()

	body, err := r.Download(ctx, "https://int.zakupki.gov.ru/a.zip")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Equal(t, "https", string(data))

	n, err := r.DownloadToFile(ctx, "ftp://mirror/a.zip", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = r.Download(ctx, "gopher://x/y")
	assert.ErrorContains(t, err, `no fetcher for scheme "gopher"`)

	_, err = r.DownloadToFile(ctx, "://bad", "x")
	assert.Error(t, err)
}

func TestFileNameFor(t *testing.T) {
	assert.Equal(t, "notice_01_20240115.zip", FileNameFor("https://eis.example/dl/notice_01_20240115.zip?ticket=1"))

	gen := FileNameFor("https://eis.example/")
	assert.Regexp(t, `^file_[0-9a-f]{8}\.zip$`, gen)
	assert.NotEqual(t, gen, FileNameFor("https://eis.example"))

	assert.Equal(t, "download.zip", FileNameFor("https://eis.example/download?id=7"))
	assert.Equal(t, "NOTICE.ZIP", FileNameFor("https://eis.example/NOTICE.ZIP"))
}

func TestFileNamesFor_Unique(t *testing.T) {
	names := FileNamesFor([]string{
		"https://eis.example/download?id=1",
		"https://eis.example/download?id=2",
		"https://eis.example/a.zip",
		"https://mirror.example/x/A.ZIP",
		"https://eis.example/download?id=3",
	})
	assert.Equal(t, []string{"download.zip", "download_2.zip", "a.zip", "A_2.ZIP", "download_3.zip"}, names)
}
