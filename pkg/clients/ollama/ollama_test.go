package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, reply string, gotTemp *float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama2", req.Model)
		assert.False(t, req.Stream)
		if gotTemp != nil {
			*gotTemp = req.Options.Temperature
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: reply})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	var temp float64
	srv := newTestServer(t, "hello there", &temp)

	out, err := New(srv.URL, "").Generate(context.Background(), "say hi", 0.9)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, 0.9, temp)
}

func TestGenerate_TemperatureSentAsOption(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "m").Generate(context.Background(), "p", 0.8)
	require.NoError(t, err)

	assert.Equal(t, "m", body["model"])
	assert.Equal(t, "p", body["prompt"])
	assert.Equal(t, false, body["stream"])
	assert.NotContains(t, body, "temperature")
	assert.Equal(t, map[string]interface{}{"temperature": 0.8}, body["options"])
}

func TestExtractJSON(t *testing.T) {
	var temp float64
	srv := newTestServer(t, "Sure! ```json\n{\"key_points\": [\"a\", \"b\"]}\n``` hope it helps", &temp)

	var out struct {
		KeyPoints []string `json:"key_points"`
	}
	err := New(srv.URL, "").ExtractJSON(context.Background(), "research cats", &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.KeyPoints)
	assert.Equal(t, 0.2, temp)
}

func TestExtractJSON_NoObject(t *testing.T) {
	srv := newTestServer(t, "I cannot do that", nil)

	var out map[string]interface{}
	err := New(srv.URL, "").ExtractJSON(context.Background(), "x", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestGenerate_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Generate(context.Background(), "x", 0.7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
