package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/videos"), r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("chart") == "mostPopular" {
			assert.Equal(t, "GB", r.URL.Query().Get("regionCode"))
			w.Write([]byte(`{"items":[
				{"id":"t1","snippet":{"title":"Space news","channelTitle":"NASA"},"statistics":{"viewCount":"2500000"}},
				{"id":"t2","snippet":{"title":"Cooking","channelTitle":"Chef"},"statistics":{"viewCount":"150000"}}
			]}`))
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("id"))
		w.Write([]byte(`{"items":[{"id":"abc","snippet":{"title":"Cats"},"statistics":{"viewCount":"1000","likeCount":"50","commentCount":"7"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTrending(t *testing.T) {
	srv := fakeAPI(t)
	c := New(Config{APIKey: "key", RegionCode: "GB", Endpoint: srv.URL + "/"}, logger.Nop())

	videos, err := c.Trending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "Space news", videos[0].Title)
	assert.Equal(t, "NASA", videos[0].ChannelTitle)
	assert.Equal(t, int64(2500000), videos[0].Views)
}

func TestStats(t *testing.T) {
	srv := fakeAPI(t)
	c := New(Config{APIKey: "key", Endpoint: srv.URL + "/"}, logger.Nop())

	stats, err := c.Stats(context.Background(), "abc")
	require.NoError(t, err)
	require.Contains(t, stats, "abc")
	assert.Equal(t, int64(1000), stats["abc"].Views)
	assert.Equal(t, int64(50), stats["abc"].Likes)
	assert.Equal(t, int64(7), stats["abc"].Comments)
	assert.Equal(t, "Cats", stats["abc"].Topic)
}

func TestUpload_AuthorizationMissing(t *testing.T) {
	c := New(Config{APIKey: "key", ClientID: "id"}, logger.Nop())
	assert.False(t, c.Authorized())

	_, err := c.Upload(context.Background(), UploadRequest{VideoPath: "x.mp4"})
	assert.ErrorIs(t, err, ErrAuthorizationMissing)

	_, err = c.Retention(context.Background(), "abc", time.Now().AddDate(0, 0, -7))
	assert.ErrorIs(t, err, ErrAuthorizationMissing)
}

func TestReadWithoutCredentials(t *testing.T) {
	c := New(Config{}, logger.Nop())
	assert.False(t, c.CanRead())

	_, err := c.Trending(context.Background(), 5)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", WatchURL("abc"))
}
