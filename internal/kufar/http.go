package kufar

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxBodySize = 10 * 1024 * 1024

// readBody reads a response body, decompressing it when the server answered
// with an explicit gzip content encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// headerSummary renders selected response headers for error diagnostics.
func headerSummary(resp *http.Response) string {
	keys := []string{"Content-Type", "Content-Encoding", "Server", "X-Request-Id"}
	summary := ""
	for _, k := range keys {
		if v := resp.Header.Get(k); v != "" {
			summary += fmt.Sprintf(" %s=%q", k, v)
		}
	}
	if summary == "" {
		return "no diagnostic headers"
	}
	return summary[1:]
}
