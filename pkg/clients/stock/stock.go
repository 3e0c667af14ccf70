// Package stock finds short stock footage clips on Pexels and Pixabay.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultPexelsURL  = "https://api.pexels.com/videos/search"
	DefaultPixabayURL = "https://pixabay.com/api/videos/"
)

var (
	// ErrNoProvider is returned when neither API key is configured
	ErrNoProvider = errors.New("no stock footage provider configured")
	// ErrNoResults is returned when no provider had a clip for the query
	ErrNoResults = errors.New("no stock footage found")
)

// Clip is one downloadable stock video
type Clip struct {
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

type Client struct {
	pexelsKey  string
	pixabayKey string
	pexelsURL  string
	pixabayURL string
	httpClient *http.Client
}

func New(pexelsKey, pixabayKey string) *Client {
	return &Client{
		pexelsKey:  pexelsKey,
		pixabayKey: pixabayKey,
		pexelsURL:  DefaultPexelsURL,
		pixabayURL: DefaultPixabayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithEndpoints overrides the provider URLs, mainly for tests
func (c *Client) WithEndpoints(pexelsURL, pixabayURL string) *Client {
	c.pexelsURL = pexelsURL
	c.pixabayURL = pixabayURL
	return c
}

// Configured reports whether at least one provider can be queried
func (c *Client) Configured() bool {
	return c.pexelsKey != "" || c.pixabayKey != ""
}

// Search returns the first clip for query, trying Pexels before Pixabay
func (c *Client) Search(ctx context.Context, query string) (*Clip, error) {
	if !c.Configured() {
		return nil, ErrNoProvider
	}

	var errs []error
	if c.pexelsKey != "" {
		clip, err := c.searchPexels(ctx, query)
		if err == nil {
			return clip, nil
		}
		errs = append(errs, fmt.Errorf("pexels: %w", err))
	}
	if c.pixabayKey != "" {
		clip, err := c.searchPixabay(ctx, query)
		if err == nil {
			return clip, nil
		}
		errs = append(errs, fmt.Errorf("pixabay: %w", err))
	}
	return nil, errors.Join(append([]error{ErrNoResults}, errs...)...)
}

type pexelsResponse struct {
	Videos []struct {
		VideoFiles []struct {
			Link string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (c *Client) searchPexels(ctx context.Context, query string) (*Clip, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", "1")
	q.Set("min_duration", "10")
	q.Set("max_duration", "60")

	var out pexelsResponse
	if err := c.getJSON(ctx, c.pexelsURL+"?"+q.Encode(), map[string]string{"Authorization": c.pexelsKey}, &out); err != nil {
		return nil, err
	}
	if len(out.Videos) == 0 || len(out.Videos[0].VideoFiles) == 0 || out.Videos[0].VideoFiles[0].Link == "" {
		return nil, ErrNoResults
	}
	return &Clip{URL: out.Videos[0].VideoFiles[0].Link, Provider: "pexels"}, nil
}

type pixabayResponse struct {
	Hits []struct {
		Videos struct {
			Small struct {
				URL string `json:"url"`
			} `json:"small"`
		} `json:"videos"`
	} `json:"hits"`
}

func (c *Client) searchPixabay(ctx context.Context, query string) (*Clip, error) {
	q := url.Values{}
	q.Set("key", c.pixabayKey)
	q.Set("q", query)

	var out pixabayResponse
	if err := c.getJSON(ctx, c.pixabayURL+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Hits) == 0 || out.Hits[0].Videos.Small.URL == "" {
		return nil, ErrNoResults
	}
	return &Clip{URL: out.Hits[0].Videos.Small.URL, Provider: "pixabay"}, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, headers map[string]string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Download saves the clip to dest and returns dest
func (c *Client) Download(ctx context.Context, clip *Clip, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clip.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download clip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download clip: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

// Query joins search keywords into one provider query
func Query(keywords []string, fallback string) string {
	q := strings.TrimSpace(strings.Join(keywords, " "))
	if q == "" {
		return fallback
	}
	return q
}
