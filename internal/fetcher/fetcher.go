// Package fetcher downloads archives over HTTP and FTP and reads the
// XML, CSV, JSON and XLSX payloads they carry.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Router dispatches to a Fetcher by URL scheme.
type Router struct {
	byScheme map[string]Fetcher
}

// ByScheme builds a Router. Keys are lower-case schemes such as "https".
func ByScheme(fetchers map[string]Fetcher) *Router {
	r := &Router{byScheme: make(map[string]Fetcher, len(fetchers))}
	for scheme, f := range fetchers {
		r.byScheme[strings.ToLower(scheme)] = f
	}
	return r
}

func (r *Router) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	f, ok := r.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
	}
	return f, nil
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, dest string) (int64, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, dest)
}

// FileNameFor returns the last path segment of rawURL, or a generated
// file_<hex>.zip name when the URL has none. Names always end in .zip.
func FileNameFor(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			if !strings.EqualFold(path.Ext(base), ".zip") {
				base += ".zip"
			}
			return base
		}
	}
	return "file_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + ".zip"
}

// FileNamesFor names every URL with FileNameFor, suffixing _2, _3, ... to
// repeated names so that no two downloads share a destination.
func FileNamesFor(rawURLs []string) []string {
	names := make([]string, len(rawURLs))
	taken := make(map[string]bool, len(rawURLs))
	for i, u := range rawURLs {
		name := FileNameFor(u)
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		taken[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}
