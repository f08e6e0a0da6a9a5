package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Downloader fetches PDFs into a scratch directory.
type Downloader struct {
	Dir        string
	HTTPClient *http.Client
	UserAgent  string
}

func NewDownloader(dir, userAgent string) *Downloader {
	return &Downloader{
		Dir:        dir,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		UserAgent:  userAgent,
	}
}

// Download stores the document at url in a new temp file and returns its
// path. The caller removes the file once it has been extracted.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download PDF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download PDF: status code %d", resp.StatusCode)
	}

	if d.Dir != "" {
		if err := os.MkdirAll(d.Dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create download dir: %w", err)
		}
	}

	f, err := os.CreateTemp(d.Dir, "paper-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}

	return f.Name(), nil
}
