package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/metropath/internal/common/logger"
)

const (
	UserAgent   = "metropath/1.0"
	maxFeedSize = 32 << 20
)

// Fetcher retrieves the raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context) (*Document, error)
	Source() string
}

type HTTPFetcher struct {
	url    string
	client *http.Client
	logger logger.Logger
}

func NewHTTPFetcher(url string, timeout time.Duration, logger logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (f *HTTPFetcher) Source() string {
	return f.url
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	f.logger.Debug("Fetching feed", "url", f.url)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Failed to execute request", "url", f.url, "error", err)
		return nil, fmt.Errorf("executing request to %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f.logger.Error("Feed returned error status",
			"status_code", resp.StatusCode,
			"url", f.url,
			"response_body", string(body))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Feed fetched", "url", f.url, "size_bytes", len(data), "lines", len(doc.Lines))
	return doc, nil
}

// FileFetcher reads a previously saved feed document from disk.
type FileFetcher struct {
	path string
}

func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

func (f *FileFetcher) Source() string {
	return "file://" + f.path
}

func (f *FileFetcher) Fetch(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}
	return Parse(data)
}
