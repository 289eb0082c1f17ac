package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher downloads the source of one module. Implementations must be
// safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, id ModuleID) (src []byte, url string, err error)
}

// maxModuleSize bounds a single downloaded module.
const maxModuleSize = 16 << 20

// HTTPFetcher reads modules from a static file server laid out as
// <BaseURL>/<namespace>/<path>/<leaf><Extension>.
type HTTPFetcher struct {
	BaseURL   string
	Extension string
	Client    *http.Client
}

// NewHTTPFetcher returns a fetcher for base with the given request timeout.
func NewHTTPFetcher(base string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: base, Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, id ModuleID) ([]byte, string, error) {
	u := id.RemoteURL(f.BaseURL, f.Extension)
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, u, &FetchError{ID: id, URL: u, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, u, &FetchError{ID: id, URL: u, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, u, &FetchError{ID: id, URL: u, Status: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, u, &FetchError{ID: id, URL: u, Err: err}
	}
	if len(b) > maxModuleSize {
		return nil, u, &FetchError{ID: id, URL: u, Err: fmt.Errorf("module larger than %d bytes", maxModuleSize)}
	}
	return b, u, nil
}
