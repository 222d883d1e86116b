package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	simerrors "github.com/wippyai/simbridge/errors"
)

// MaxModuleSize bounds how many bytes a fetch may return (256MB).
const MaxModuleSize = 256 << 20

// Fetcher retrieves module bytes for a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// Static returns a fetcher that serves data for every location.
func Static(data []byte) Fetcher {
	return FetcherFunc(func(context.Context, string) ([]byte, error) {
		return data, nil
	})
}

// DefaultFetcher reads local paths, file:// URLs and http(s) URLs.
type DefaultFetcher struct {
	Client *http.Client
}

// Fetch retrieves the module at location.
func (f *DefaultFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters.
		return readFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, location)
	default:
		return nil, simerrors.NotFound(simerrors.PhaseLoad, "fetcher for scheme", u.Scheme)
	}
}

func (f *DefaultFetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}
	return readLimited(resp.Body)
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxModuleSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxModuleSize {
		return nil, fmt.Errorf("module exceeds %d bytes", MaxModuleSize)
	}
	return data, nil
}
