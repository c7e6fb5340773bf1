package downloader

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
	"go.uber.org/zap"

	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig() Config {
	return Config{
		RateLimit: 1000,
		Burst:     1000,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	d := New(testConfig())
	data, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	d := New(testConfig())
	data, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("finally"), data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(testConfig())
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransferWritesCompleteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "sub", "dir", "file.jpg")
	d := New(testConfig())

	n, err := d.Transfer(context.Background(), extractor.Source{URL: srv.URL}, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("image bytes")), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err), "part file must not survive a completed transfer")
}

func TestTransferInlineBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.bin")
	d := New(testConfig())

	n, err := d.Transfer(context.Background(), extractor.Source{Bytes: []byte("inline")}, path)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "inline", string(data))
}

func TestTransferExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.jpg")
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0o644))

	d := New(testConfig())
	_, err := d.Transfer(context.Background(), extractor.Source{URL: "https://unused.example/"}, path)
	assert.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data), "existing file untouched")
}

func TestTransferFailureLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "file.jpg")
	d := New(testConfig())

	_, err := d.Transfer(context.Background(), extractor.Source{URL: srv.URL}, path)
	assert.ErrorIs(t, err, ErrTransfer)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "neither the file nor a part file may exist after failure")
}

func TestTransferInterruptedBodyRemovesPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
		// close without sending the rest
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "file.jpg")
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	d := New(cfg)

	_, err := d.Transfer(context.Background(), extractor.Source{URL: srv.URL}, path)
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "incomplete download must never appear at the final path")
	_, statErr = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(statErr), "part file removed on failure")
}

func TestTransferCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(testConfig())
	_, err := d.Transfer(ctx, extractor.Source{URL: "https://unused.example/x.jpg"}, filepath.Join(t.TempDir(), "x.jpg"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithCookiesAttachesMatchingDomains(t *testing.T) {
	var got []*http.Cookie
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Cookies()
	}))
	defer srv.Close()

	d := New(testConfig()).WithCookies([]*http.Cookie{
		{Name: "everywhere", Value: "1"},
		{Name: "scoped", Value: "2", Domain: ".other.example"},
	})

	_, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "everywhere", got[0].Name)
}

func TestCookieMatches(t *testing.T) {
	tests := []struct {
		domain string
		host   string
		want   bool
	}{
		{"", "anything.example", true},
		{".example.com", "example.com", true},
		{".example.com", "sub.example.com", true},
		{"example.com", "sub.example.com", true},
		{".example.com", "otherexample.com", false},
		{".example.com", "example.org", false},
	}
	for _, tt := range tests {
		c := &http.Cookie{Domain: tt.domain}
		assert.Equal(t, tt.want, cookieMatches(c, tt.host), "%q vs %q", tt.domain, tt.host)
	}
}

func TestUserAgentHeader(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "test-agent/9"
	d := New(cfg)

	_, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "test-agent/9", ua)
}
