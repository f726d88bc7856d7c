package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxFetchBytes bounds a single remote download.
const MaxFetchBytes = 200 << 20

// HTTPFetcher downloads provider-hosted media.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets a default with a timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPFetcher{client: client}
}

// Fetch returns the body and content type served at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &Error{Op: "fetch", Key: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &Error{Op: "fetch", Key: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &Error{Op: "fetch", Key: url, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes+1))
	if err != nil {
		return nil, "", &Error{Op: "fetch", Key: url, Err: err}
	}
	if len(blob) > MaxFetchBytes {
		return nil, "", &Error{Op: "fetch", Key: url, Err: fmt.Errorf("body exceeds %d bytes", MaxFetchBytes)}
	}
	return blob, resp.Header.Get("Content-Type"), nil
}
