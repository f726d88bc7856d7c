package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "outputs/image/job-1.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/outputs/image/job-1.png", url)

	key, ok := store.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, "outputs/image/job-1.png", key)

	data, err := store.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	for _, key := range []string{"../etc/passwd", "..", " "} {
		_, err := store.Upload(context.Background(), key, []byte("x"), "")
		assert.Error(t, err, key)
		assert.True(t, errors.Is(err, domain.ErrStorage), key)
	}
	assert.Equal(t, "http://x/a/b.png", store.PublicURL("/a/./b.png"))
}

func TestFileStoreDownloadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	_, err = store.Download(context.Background(), "inputs/none.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestKeyFromForeignURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x/static")
	require.NoError(t, err)
	_, ok := store.KeyFromURL("https://provider.example.com/v.mp4")
	assert.False(t, ok)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "gone")
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = io.WriteString(w, "mp4-bytes")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client())
	data, ct, err := f.Fetch(context.Background(), srv.URL+"/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
	assert.Equal(t, "video/mp4", ct)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.Contains(t, err.Error(), "status 404")
}
