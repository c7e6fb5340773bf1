package auth

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrowserSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    BrowserRequest
		wantErr bool
	}{
		{spec: "firefox", want: BrowserRequest{Browser: "firefox"}},
		{spec: "Firefox", want: BrowserRequest{Browser: "firefox"}},
		{spec: "safari/x.com", want: BrowserRequest{Browser: "safari", Domain: "x.com"}},
		{spec: "", wantErr: true},
		{spec: "/x.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			req, err := ParseBrowserSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestSourceFromLookup(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    CookieSource
		wantErr bool
	}{
		{name: "string is a file path", value: "/tmp/cookies.txt", want: CookieSource{File: "/tmp/cookies.txt"}},
		{name: "mapping is inline pairs", value: map[string]any{"session": "abc"}, want: CookieSource{Pairs: map[string]string{"session": "abc"}}},
		{name: "list is a browser request", value: []any{"firefox"}, want: CookieSource{Browser: &BrowserRequest{Browser: "firefox"}}},
		{name: "list with domain", value: []any{"Safari", "x.com"}, want: CookieSource{Browser: &BrowserRequest{Browser: "safari", Domain: "x.com"}}},
		{name: "empty list", value: []any{}, wantErr: true},
		{name: "unsupported type", value: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := lookupWith(map[string]any{"cookies": tt.value})
			src, err := SourceFromLookup(opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src)
		})
	}
}

func TestSourceFromLookupAbsent(t *testing.T) {
	src, err := SourceFromLookup(lookupWith(nil))
	require.NoError(t, err)
	assert.True(t, src.IsZero())
}

func TestParseNetscapeFile(t *testing.T) {
	content := "# Netscape HTTP Cookie File\n" +
		"# This is a comment\n" +
		"\n" +
		".example.com\tTRUE\t/\tTRUE\t1893456000\tsession\tabc123\n" +
		"#HttpOnly_.example.com\tTRUE\t/\tFALSE\t0\ttoken\txyz\n" +
		"malformed line without tabs\n"

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cookies, err := ParseNetscapeFile(path)
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	assert.Equal(t, ".example.com", cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc123", cookies[0].Value)
	assert.False(t, cookies[0].HttpOnly)
	assert.Equal(t, time.Unix(1893456000, 0), cookies[0].Expires)

	assert.Equal(t, "token", cookies[1].Name)
	assert.True(t, cookies[1].HttpOnly)
	assert.False(t, cookies[1].Secure)
	assert.True(t, cookies[1].Expires.IsZero())
}

func TestParseNetscapeFileMissing(t *testing.T) {
	_, err := ParseNetscapeFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

type countingReader struct {
	calls   int
	cookies []*http.Cookie
}

func (r *countingReader) Cookies(_ context.Context, _ BrowserRequest) ([]*http.Cookie, error) {
	r.calls++
	return r.cookies, nil
}

func TestCookieProviderCachesBrowserReads(t *testing.T) {
	reader := &countingReader{cookies: []*http.Cookie{{Name: "session", Value: "abc"}}}
	p := NewCookieProvider(reader)
	src := CookieSource{Browser: &BrowserRequest{Browser: "firefox"}}

	first, err := p.Cookies(context.Background(), src)
	require.NoError(t, err)
	second, err := p.Cookies(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, reader.calls)
}

func TestCookieProviderBrowserUnavailable(t *testing.T) {
	p := NewCookieProvider(nil)
	_, err := p.Cookies(context.Background(), CookieSource{Browser: &BrowserRequest{Browser: "firefox"}})
	assert.Error(t, err)
}

func TestCookieProviderInlinePairs(t *testing.T) {
	p := NewCookieProvider(nil)
	cookies, err := p.Cookies(context.Background(), CookieSource{Pairs: map[string]string{"a": "1"}})
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "a", cookies[0].Name)
	assert.Equal(t, "1", cookies[0].Value)
}
