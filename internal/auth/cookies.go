package auth

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Guiraud/gallery-dl/internal/options"
)

// BrowserRequest names a browser cookie store to read, optionally scoped to
// one domain ("firefox", "safari/x.com").
type BrowserRequest struct {
	Browser string
	Domain  string
}

// ParseBrowserSpec parses a `browser[/domain]` specification.
func ParseBrowserSpec(spec string) (BrowserRequest, error) {
	browser, domain, _ := strings.Cut(spec, "/")
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		return BrowserRequest{}, eris.Errorf("auth: invalid browser spec %q", spec)
	}
	return BrowserRequest{Browser: browser, Domain: strings.TrimSpace(domain)}, nil
}

// BrowserCookieReader extracts cookies from a browser's cookie store. The
// implementation is platform specific and lives outside this package.
type BrowserCookieReader interface {
	Cookies(ctx context.Context, req BrowserRequest) ([]*http.Cookie, error)
}

// CookieSource is one of three cookie origins: a Netscape-format file, an
// inline name→value mapping, or a browser-extraction request.
type CookieSource struct {
	File    string
	Pairs   map[string]string
	Browser *BrowserRequest
}

// IsZero reports whether no cookie source is configured.
func (s CookieSource) IsZero() bool {
	return s.File == "" && s.Pairs == nil && s.Browser == nil
}

// SourceFromLookup reads the "cookies" option: a string is a file path, a
// mapping is inline cookies, and a list names a browser request
// (["firefox"] or ["firefox", "x.com"]).
func SourceFromLookup(opts options.Lookup) (CookieSource, error) {
	v, ok := opts.Get("cookies")
	if !ok || v == nil {
		return CookieSource{}, nil
	}
	switch t := v.(type) {
	case string:
		return CookieSource{File: options.Interpolate(t)}, nil
	case map[string]any:
		pairs := make(map[string]string, len(t))
		for k, vv := range t {
			if s, ok := vv.(string); ok {
				pairs[k] = s
			}
		}
		return CookieSource{Pairs: pairs}, nil
	case []any:
		if len(t) == 0 {
			return CookieSource{}, eris.New("auth: empty browser cookie request")
		}
		req := BrowserRequest{}
		if s, ok := t[0].(string); ok {
			req.Browser = strings.ToLower(s)
		}
		if len(t) > 1 {
			if s, ok := t[1].(string); ok {
				req.Domain = s
			}
		}
		if req.Browser == "" {
			return CookieSource{}, eris.New("auth: browser cookie request missing browser name")
		}
		return CookieSource{Browser: &req}, nil
	default:
		return CookieSource{}, eris.Errorf("auth: unsupported cookies option type %T", v)
	}
}

// CookieProvider resolves cookie sources, caching browser extractions for
// the lifetime of one job.
type CookieProvider struct {
	reader BrowserCookieReader

	mu    sync.Mutex
	cache map[BrowserRequest][]*http.Cookie
}

// NewCookieProvider creates a provider. reader may be nil when browser
// extraction is not available on this platform.
func NewCookieProvider(reader BrowserCookieReader) *CookieProvider {
	return &CookieProvider{
		reader: reader,
		cache:  make(map[BrowserRequest][]*http.Cookie),
	}
}

// Cookies materializes a cookie source into http.Cookie values.
func (p *CookieProvider) Cookies(ctx context.Context, src CookieSource) ([]*http.Cookie, error) {
	switch {
	case src.File != "":
		return ParseNetscapeFile(src.File)
	case src.Pairs != nil:
		cookies := make([]*http.Cookie, 0, len(src.Pairs))
		for name, value := range src.Pairs {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		return cookies, nil
	case src.Browser != nil:
		return p.fromBrowser(ctx, *src.Browser)
	default:
		return nil, nil
	}
}

func (p *CookieProvider) fromBrowser(ctx context.Context, req BrowserRequest) ([]*http.Cookie, error) {
	p.mu.Lock()
	cached, ok := p.cache[req]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	if p.reader == nil {
		return nil, eris.Errorf("auth: browser cookie extraction unavailable (requested %s)", req.Browser)
	}
	cookies, err := p.reader.Cookies(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "auth: read %s cookies", req.Browser)
	}

	p.mu.Lock()
	p.cache[req] = cookies
	p.mu.Unlock()
	return cookies, nil
}

// ParseNetscapeFile parses a Netscape-format cookies.txt file.
func ParseNetscapeFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "auth: open cookie file %s", path)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		httpOnly := false
		if rest, ok := strings.CutPrefix(line, "#HttpOnly_"); ok {
			line = rest
			httpOnly = true
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		cookie := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			cookie.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "auth: read cookie file %s", path)
	}
	return cookies, nil
}
