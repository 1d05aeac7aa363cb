package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{name: "default port", url: "ftp://ftp.zakupki.gov.ru/fcs_regions/Adygeja/notifications/a.zip", wantHost: "ftp.zakupki.gov.ru:21", wantPath: "/fcs_regions/Adygeja/notifications/a.zip"},
		{name: "explicit port", url: "ftp://mirror.local:2121/a.zip", wantHost: "mirror.local:2121", wantPath: "/a.zip"},
		{name: "http scheme rejected", url: "http://example.com/a.zip", wantErr: true},
		{name: "empty path", url: "ftp://ftp.example.com", wantErr: true},
		{name: "invalid url", url: "://bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "anonymous", f.opts.User)

	f = NewFTPFetcher(FTPOptions{User: "free", Password: "free"})
	assert.Equal(t, "free", f.opts.User)
}

func TestFTPDownload_DialFails(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{Timeout: 200 * time.Millisecond})
	_, err := f.DownloadToFile(context.Background(), "ftp://127.0.0.1:1/a.zip", t.TempDir()+"/a.zip")
	assert.ErrorContains(t, err, "ftp dial")
}
