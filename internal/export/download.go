package export

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// URLResolver turns a server-relative export file path into an absolute
// URL. *erp.Client satisfies it.
type URLResolver interface {
	ResolveURL(filePath string) string
}

// TokenSource yields the current API credential. An empty string means
// the holder is not authenticated.
type TokenSource func() string

// Download is an open export file stream. The caller owns Body and must
// close it.
type Download struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
	Size        int64
}

// Downloader fetches finished export files from the reporting backend.
type Downloader struct {
	resolver   URLResolver
	token      TokenSource
	httpClient *http.Client
}

// NewDownloader creates a Downloader. timeout bounds the whole fetch
// including body transfer; zero means no limit.
func NewDownloader(resolver URLResolver, token TokenSource, timeout time.Duration) *Downloader {
	return &Downloader{
		resolver:   resolver,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the file behind filePath. The credential is checked
// before any network traffic: an unauthenticated caller gets
// ErrAuthenticationRequired without a request ever leaving the host.
// Backend answers map onto the sentinel taxonomy: 401 means the session
// the file was produced under has lapsed, 404 means the file has been
// reaped server-side, anything else non-2xx is a plain download
// failure.
func (d *Downloader) Fetch(ctx context.Context, filePath string) (*Download, error) {
	token := d.token()
	if token == "" {
		return nil, ErrAuthenticationRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.resolver.ResolveURL(filePath), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		res.Body.Close()
		return nil, ErrSessionExpired
	case res.StatusCode == http.StatusNotFound:
		res.Body.Close()
		return nil, ErrFileNotFound
	case res.StatusCode < 200 || res.StatusCode >= 300:
		res.Body.Close()
		return nil, fmt.Errorf("%w: reporting API returned %s", ErrDownloadFailed, res.Status)
	}

	return &Download{
		Body:        res.Body,
		FileName:    fileNameFromResponse(res, filePath),
		ContentType: res.Header.Get("Content-Type"),
		Size:        res.ContentLength,
	}, nil
}

// FetchTo downloads the file into dir and returns the local path. A
// partially written file is removed on error.
func (d *Downloader) FetchTo(ctx context.Context, filePath, dir string) (string, error) {
	dl, err := d.Fetch(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	dest := filepath.Join(dir, filepath.Base(dl.FileName))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	if _, err := io.Copy(f, dl.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return dest, nil
}

// fileNameFromResponse prefers the server's Content-Disposition
// filename and falls back to the last path segment.
func fileNameFromResponse(res *http.Response, filePath string) string {
	if cd := res.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	trimmed := strings.TrimRight(filePath, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "export.bin"
	}
	return trimmed
}
