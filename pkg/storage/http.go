package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Open returns a reader for the bytes at loc: the local file, or an HTTP GET
// of the signed URL. Callers close the reader.
func Open(ctx context.Context, loc *Location, client *http.Client) (io.ReadCloser, error) {
	if loc == nil {
		return nil, ErrVideoNotFound
	}
	if loc.IsLocal() {
		f, err := os.Open(loc.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrVideoNotFound
			}
			return nil, err
		}
		return f, nil
	}

	scheme, _, err := ParseURI(loc.URL)
	if err != nil {
		return nil, err
	}
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("cannot download %s:// locations", scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ReadAll reads the whole video at loc
func ReadAll(ctx context.Context, loc *Location, client *http.Client) ([]byte, error) {
	rc, err := Open(ctx, loc, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
