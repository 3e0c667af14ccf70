package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// SupabaseConfig points at a Supabase project
type SupabaseConfig struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	Bucket string `yaml:"bucket"`
}

// supabaseClient speaks the storage and PostgREST APIs of one project
type supabaseClient struct {
	baseURL string
	key     string
	http    *http.Client
}

func (c *supabaseClient) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	return c.http.Do(req)
}

// call sends the request and decodes a JSON response into out when out is non-nil
func (c *supabaseClient) call(ctx context.Context, method, path string, body io.Reader, header http.Header, out interface{}) error {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError reports a failed response with the start of its body
func statusError(method, path string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("supabase %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
}

// supabaseObjects keeps files in a storage bucket; paths are "videos/<filename>"
type supabaseObjects struct {
	c      *supabaseClient
	bucket string
	now    func() time.Time
}

func (s *supabaseObjects) objectPath(path string) string {
	return "/storage/v1/object/" + s.bucket + "/" + path
}

func (s *supabaseObjects) Put(ctx context.Context, filename string, data []byte) (string, error) {
	path := objectKey(filename)
	header := http.Header{}
	header.Set("Content-Type", "video/mp4")
	if err := s.c.call(ctx, http.MethodPut, s.objectPath(path), bytes.NewReader(data), header, nil); err != nil {
		return "", err
	}
	return path, nil
}

func (s *supabaseObjects) Delete(ctx context.Context, path string) error {
	return s.c.call(ctx, http.MethodDelete, s.objectPath(path), nil, nil, nil)
}

func (s *supabaseObjects) Locate(ctx context.Context, path string) (*Location, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(SignedURLExpiry.Seconds())})
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	signPath := "/storage/v1/object/sign/" + s.bucket + "/" + path
	resp, err := s.c.do(ctx, http.MethodPost, signPath, bytes.NewReader(body), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrVideoNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(http.MethodPost, signPath, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode signed url: %w", err)
	}
	if out.SignedURL == "" {
		return nil, ErrVideoNotFound
	}

	signed := out.SignedURL
	if strings.HasPrefix(signed, "/") {
		signed = s.c.baseURL + "/storage/v1" + signed
	}
	return &Location{URL: signed, ExpiresAt: s.now().Add(SignedURLExpiry).UTC()}, nil
}

// supabaseMetadata keeps records in the "videos" table through PostgREST
type supabaseMetadata struct {
	c *supabaseClient
}

const supabaseTable = "/rest/v1/videos"

func representation() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Prefer", "return=representation")
	return h
}

func eqID(id string) string {
	return "?id=eq." + url.QueryEscape(id)
}

func (m *supabaseMetadata) Insert(ctx context.Context, rec *schemas.VideoRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.c.call(ctx, http.MethodPost, supabaseTable, bytes.NewReader(body), representation(), nil)
}

func (m *supabaseMetadata) Get(ctx context.Context, id string) (*schemas.VideoRecord, error) {
	var rows []*schemas.VideoRecord
	if err := m.c.call(ctx, http.MethodGet, supabaseTable+eqID(id), nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrVideoNotFound
	}
	return rows[0], nil
}

func (m *supabaseMetadata) List(ctx context.Context) ([]*schemas.VideoRecord, error) {
	var rows []*schemas.VideoRecord
	if err := m.c.call(ctx, http.MethodGet, supabaseTable+"?order=created_at.desc,id.asc", nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *supabaseMetadata) Update(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error) {
	body, err := json.Marshal(update.Columns())
	if err != nil {
		return nil, err
	}
	var rows []*schemas.VideoRecord
	if err := m.c.call(ctx, http.MethodPatch, supabaseTable+eqID(id), bytes.NewReader(body), representation(), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrVideoNotFound
	}
	return rows[0], nil
}

func (m *supabaseMetadata) Delete(ctx context.Context, id string) error {
	var rows []*schemas.VideoRecord
	if err := m.c.call(ctx, http.MethodDelete, supabaseTable+eqID(id), nil, representation(), &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (m *supabaseMetadata) Close() error { return nil }

// NewSupabaseBackend stores files in a Supabase storage bucket and metadata in
// its "videos" table. A list request against the table verifies the project.
func NewSupabaseBackend(ctx context.Context, cfg SupabaseConfig, client *http.Client, log *logger.Logger) (*Backend, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("supabase backend needs a URL and a key")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "videos"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	c := &supabaseClient{baseURL: strings.TrimRight(cfg.URL, "/"), key: cfg.Key, http: client}
	meta := &supabaseMetadata{c: c}
	if err := c.call(ctx, http.MethodGet, supabaseTable+"?limit=1", nil, nil, nil); err != nil {
		return nil, fmt.Errorf("supabase not reachable: %w", err)
	}

	objects := &supabaseObjects{c: c, bucket: cfg.Bucket, now: time.Now}
	return newBackend("supabase", objects, meta, log), nil
}
