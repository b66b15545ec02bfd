// Package fetch performs the blocking HTTP GETs the bundle cache falls
// back to when backing data is not on disk.
package fetch

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Client wraps an HTTP client with the append-to-buffer fetch contract.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a fetch client logging through the given logger.
func NewClient(log zerolog.Logger) *Client {
	return &Client{http: &http.Client{}, log: log}
}

// Get fetches url and appends the response body to buf, returning the
// grown buffer. Any status other than 200 is an error.
func (c *Client) Get(url string, buf []byte) ([]byte, error) {
	c.log.Debug().Str("url", url).Msg("fetching")
	resp, err := c.http.Get(url)
	if err != nil {
		return buf, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return buf, fmt.Errorf("failed to fetch %s: status %s", url, resp.Status)
	}
	w := appendWriter{buf: buf}
	if _, err := io.Copy(&w, resp.Body); err != nil {
		return w.buf, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	c.log.Debug().Str("url", url).Int("bytes", len(w.buf)-len(buf)).Msg("fetched")
	return w.buf, nil
}

// appendWriter grows a byte slice, the shape the cache's reuse buffers want.
type appendWriter struct {
	buf []byte
}

func (w *appendWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
