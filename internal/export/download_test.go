package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/erp"
)

func testDownloader(t *testing.T, handler http.Handler, token string) (*Downloader, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := erp.NewClient(&config.ERP{Endpoint: srv.URL, Timeout: 5 * time.Second}, token)
	d := NewDownloader(client, func() string { return token }, 5*time.Second)
	return d, srv
}

func TestFetchRequiresCredential(t *testing.T) {
	requests := 0
	d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}), "")

	_, err := d.Fetch(context.Background(), "/files/report.xlsx")
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
	if requests != 0 {
		t.Errorf("unauthenticated fetch hit the network %d times", requests)
	}
}

func TestFetchMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr error
	}{
		{"session expired", http.StatusUnauthorized, ErrSessionExpired},
		{"file gone", http.StatusNotFound, ErrFileNotFound},
		{"server error", http.StatusInternalServerError, ErrDownloadFailed},
		{"bad gateway", http.StatusBadGateway, ErrDownloadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}), "tok")

			_, err := d.Fetch(context.Background(), "/files/report.xlsx")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("status %d: expected %v, got %v", tt.code, tt.wantErr, err)
			}
		})
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotAuth string
	d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/vnd.ms-excel")
		w.Header().Set("Content-Disposition", `attachment; filename="report (final).xlsx"`)
		io.WriteString(w, "spreadsheet-bytes")
	}), "tok-123")

	dl, err := d.Fetch(context.Background(), "/files/report.xlsx")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer dl.Body.Close()

	if gotAuth != "Bearer tok-123" {
		t.Errorf("credential not forwarded, got %q", gotAuth)
	}
	if dl.FileName != "report (final).xlsx" {
		t.Errorf("content-disposition name ignored, got %q", dl.FileName)
	}
	if dl.ContentType != "application/vnd.ms-excel" {
		t.Errorf("unexpected content type %q", dl.ContentType)
	}
	body, _ := io.ReadAll(dl.Body)
	if string(body) != "spreadsheet-bytes" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestFetchFallbackFileName(t *testing.T) {
	d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}), "tok")

	dl, err := d.Fetch(context.Background(), "/exports/2026/q3.pdf")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer dl.Body.Close()

	if dl.FileName != "q3.pdf" {
		t.Errorf("expected last path segment q3.pdf, got %q", dl.FileName)
	}
}

func TestFetchTo(t *testing.T) {
	d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "file-content")
	}), "tok")

	dir := t.TempDir()
	dest, err := d.FetchTo(context.Background(), "/files/out.xlsx", dir)
	if err != nil {
		t.Fatalf("FetchTo failed: %v", err)
	}
	if filepath.Base(dest) != "out.xlsx" {
		t.Errorf("unexpected destination %s", dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "file-content" {
		t.Errorf("unexpected contents %q", data)
	}
}

func TestFetchToCleansUpOnError(t *testing.T) {
	d, _ := testDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		io.WriteString(w, "short")
	}), "tok")

	dir := t.TempDir()
	_, err := d.FetchTo(context.Background(), "/files/broken.xlsx", dir)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed on truncated body, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}
