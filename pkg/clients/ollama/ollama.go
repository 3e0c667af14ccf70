// Package ollama is a client for a local Ollama text generation server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama2"

	// JSONTemperature is used for every ExtractJSON call
	JSONTemperature = 0.2
)

// ErrNoJSON is returned when a response holds no parseable JSON object
var ErrNoJSON = errors.New("no JSON object in response")

// Client calls POST {base}/api/generate
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the transport, mainly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Model() string { return c.model }

// Sampling settings are only read from options
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate returns the model completion for prompt sampled at temperature
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("ollama returned an empty response")
	}
	return out.Response, nil
}

// ExtractJSON asks for a JSON-only answer at a low temperature and decodes
// the span from the first '{' to the last '}' into v
func (c *Client) ExtractJSON(ctx context.Context, prompt string, v interface{}) error {
	text, err := c.Generate(ctx, prompt+"\n\nYou MUST respond with ONLY valid JSON, no other text.", JSONTemperature)
	if err != nil {
		return err
	}
	return DecodeJSON(text, v)
}

// DecodeJSON decodes the outermost object embedded in free text
func DecodeJSON(text string, v interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return nil
}
