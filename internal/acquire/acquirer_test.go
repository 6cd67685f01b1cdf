package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	a := New("https://media.example.com/audio", time.Second, nil)

	tests := []struct {
		ref  string
		want string
	}{
		{"https://other.example.com/a.mp3", "https://other.example.com/a.mp3"},
		{"s3://bucket/key.mp3", "s3://bucket/key.mp3"},
		{"/var/audio/a.mp3", "/var/audio/a.mp3"},
		{"calls/2026/a.mp3", "https://media.example.com/audio/calls/2026/a.mp3"},
		{"/calls/a.mp3", "/calls/a.mp3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Resolve(tt.ref), "ref %q", tt.ref)
	}
}

func TestFetchHTTP(t *testing.T) {
	payload := []byte("fake-mp3-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "call.mp3")
	a := New("", 5*time.Second, nil)
	require.NoError(t, a.Fetch(context.Background(), srv.URL+"/call.mp3", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err), "temp file must not survive")
}

func TestFetchHTTPNotFoundIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "call.mp3")
	a := New("", 5*time.Second, nil)
	err := a.Fetch(context.Background(), srv.URL+"/missing.mp3", dest)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "404 must not be retried")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file may appear under the final name")
}

func TestFetchHTTPRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "call.mp3")
	a := New("", 5*time.Second, nil)
	require.NoError(t, a.Fetch(context.Background(), srv.URL+"/flaky.mp3", dest))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	require.NoError(t, os.WriteFile(src, []byte("wav-data"), 0o644))

	dest := filepath.Join(dir, "out", "dst.wav")
	a := New("", time.Second, nil)
	require.NoError(t, a.Fetch(context.Background(), src, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("wav-data"), got)
}

func TestFetchS3WithoutClient(t *testing.T) {
	a := New("", time.Second, nil)
	err := a.Fetch(context.Background(), "s3://bucket/key.mp3", filepath.Join(t.TempDir(), "x.mp3"))
	assert.Error(t, err)
}
