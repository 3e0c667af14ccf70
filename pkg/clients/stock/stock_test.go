package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_NoProvider(t *testing.T) {
	_, err := New("", "").Search(context.Background(), "cats")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestSearch_PexelsFirst(t *testing.T) {
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pk", r.Header.Get("Authorization"))
		assert.Equal(t, "cats", r.URL.Query().Get("query"))
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		assert.Equal(t, "10", r.URL.Query().Get("min_duration"))
		assert.Equal(t, "60", r.URL.Query().Get("max_duration"))
		w.Write([]byte(`{"videos":[{"video_files":[{"link":"https://pexels.example/cat.mp4"}]}]}`))
	}))
	defer pexels.Close()

	clip, err := New("pk", "xk").WithEndpoints(pexels.URL, "http://127.0.0.1:1").Search(context.Background(), "cats")
	require.NoError(t, err)
	assert.Equal(t, "pexels", clip.Provider)
	assert.Equal(t, "https://pexels.example/cat.mp4", clip.URL)
}

func TestSearch_FallsBackToPixabay(t *testing.T) {
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"videos":[]}`))
	}))
	defer pexels.Close()
	pixabay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xk", r.URL.Query().Get("key"))
		assert.Equal(t, "dogs", r.URL.Query().Get("q"))
		w.Write([]byte(`{"hits":[{"videos":{"small":{"url":"https://pixabay.example/dog.mp4"}}}]}`))
	}))
	defer pixabay.Close()

	clip, err := New("pk", "xk").WithEndpoints(pexels.URL, pixabay.URL).Search(context.Background(), "dogs")
	require.NoError(t, err)
	assert.Equal(t, "pixabay", clip.Provider)
	assert.Equal(t, "https://pixabay.example/dog.mp4", clip.URL)
}

func TestSearch_NothingFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New("pk", "xk").WithEndpoints(srv.URL, srv.URL).Search(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clip-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clips", "scene1.mp4")
	got, err := New("pk", "").Download(context.Background(), &Clip{URL: srv.URL + "/c.mp4"}, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "clip-bytes", string(data))
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "ocean waves", Query([]string{"ocean", "waves"}, "topic"))
	assert.Equal(t, "topic", Query(nil, "topic"))
}
