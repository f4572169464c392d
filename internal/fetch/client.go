// Package fetch downloads match result files from a remote CSV feed.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/logger"
)

// ErrNoSource is returned when no feed URL is configured.
var ErrNoSource = errors.New("no match feed configured")

// Client provides access to the match feed
type Client struct {
	sourceURL  string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new feed client
func NewClient(sourceURL string, timeout time.Duration, maxRetries int) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// FetchMatches downloads and parses the configured feed.
func (c *Client) FetchMatches(ctx context.Context) (*dataset.LoadResult, error) {
	return c.FetchURL(ctx, c.sourceURL)
}

// FetchURL downloads and parses a match CSV from url.
func (c *Client) FetchURL(ctx context.Context, url string) (*dataset.LoadResult, error) {
	data, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}
	lr, err := dataset.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse match feed: %w", err)
	}
	return lr, nil
}

// Download saves the configured feed to path once it parses as a match file.
// The monitor picks the file up on its next cycle.
func (c *Client) Download(ctx context.Context, path string) (int, error) {
	data, err := c.download(ctx, c.sourceURL)
	if err != nil {
		return 0, err
	}
	lr, err := dataset.Load(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse match feed: %w", err)
	}
	if len(lr.Matches) == 0 {
		return 0, nil
	}
	if err := artifact.WriteFile(path, data); err != nil {
		return 0, err
	}
	logger.Info("Downloaded %d matches to %s", len(lr.Matches), path)
	return len(lr.Matches), nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrNoSource
	}
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read match feed: %w", err)
	}
	return data, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "text/csv")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			time.Sleep(time.Duration(i+1) * c.retryDelay)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(time.Duration(i+1) * c.retryDelay)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
