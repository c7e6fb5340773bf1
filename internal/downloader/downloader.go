// Package downloader performs the byte transfers of the pipeline: HTTP
// fetches with per-host rate limiting, retry on transient failures, and
// crash-safe writes through a temporary .part file.
package downloader

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/resilience"
)

// ErrTransfer marks a failed transfer after retries were exhausted. It
// fails only the item; sibling items continue.
var ErrTransfer = eris.New("downloader: transfer failed")

// ErrExists is returned when the destination file is already present.
var ErrExists = eris.New("downloader: file already exists")

// Config tunes the downloader.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig

	// RateLimit is the default per-host request rate; Burst its bucket
	// size. PerHost overrides the rate for specific hosts.
	RateLimit float64
	Burst     int
	PerHost   map[string]float64
}

// Downloader is shared by all jobs of one process. Per-job cookie scoping
// goes through WithCookies, which shares the transport and limiter table.
type Downloader struct {
	client  *http.Client
	cfg     Config
	cookies []*http.Cookie

	mu       *sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a downloader.
func New(cfg Config) *Downloader {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gallery-dl/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RateLimit)
	}
	return &Downloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		mu:       &sync.Mutex{},
		limiters: make(map[string]*rate.Limiter),
	}
}

// WithCookies returns a view of the downloader that attaches the given
// cookies to matching hosts. The HTTP client and limiter table are shared.
func (d *Downloader) WithCookies(cookies []*http.Cookie) *Downloader {
	clone := *d
	clone.cookies = cookies
	return &clone
}

// limiterFor returns the rate limiter for a host, creating the default one
// on first use. Requests to the same host share one limiter across workers.
func (d *Downloader) limiterFor(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lim, ok := d.limiters[host]; ok {
		return lim
	}
	limit := rate.Limit(d.cfg.RateLimit)
	if hostLimit, ok := d.cfg.PerHost[host]; ok && hostLimit > 0 {
		limit = rate.Limit(hostLimit)
	}
	lim := rate.NewLimiter(limit, d.cfg.Burst)
	d.limiters[host] = lim
	return lim
}

func (d *Downloader) attachCookies(req *http.Request) {
	host := req.URL.Hostname()
	for _, c := range d.cookies {
		if cookieMatches(c, host) {
			req.AddCookie(c)
		}
	}
}

func cookieMatches(c *http.Cookie, host string) bool {
	domain := strings.TrimPrefix(c.Domain, ".")
	if domain == "" {
		return true
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// get issues one rate-limited GET. Transient statuses are wrapped so the
// retry layer recognizes them.
func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "downloader: parse url %q", rawURL)
	}
	if err := d.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "downloader: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "downloader: create request")
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	d.attachCookies(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "downloader: request")
	}
	if resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		_ = resp.Body.Close()
		err := eris.Errorf("downloader: http %d from %s", status, rawURL)
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}
	return resp, nil
}

// Fetch retrieves a URL fully into memory, retrying transient failures.
// Used for remote resolution and by extractors for small documents.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return resilience.DoVal(ctx, d.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		resp, err := d.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "downloader: read body")
		}
		return data, nil
	})
}

// Transfer writes an item's bytes to path. The destination only appears
// once the content is complete: data streams into path+".part" which is
// renamed on success and removed on any failure, so an interrupted transfer
// never leaves a file that looks finished.
func (d *Downloader) Transfer(ctx context.Context, src extractor.Source, path string) (int64, error) {
	if _, err := os.Stat(path); err == nil {
		return 0, ErrExists
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "downloader: create directory")
	}

	if src.Bytes != nil {
		return d.writePart(path, func(w io.Writer) (int64, error) {
			n, err := w.Write(src.Bytes)
			return int64(n), err
		})
	}

	n, err := resilience.DoVal(ctx, d.cfg.Retry, func(ctx context.Context) (int64, error) {
		resp, err := d.get(ctx, src.URL)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return d.writePart(path, func(w io.Writer) (int64, error) {
			return io.Copy(w, resp.Body)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, eris.Wrapf(ErrTransfer, "%s: %v", src.URL, err)
	}

	zap.L().Debug("transfer complete",
		zap.String("url", src.URL),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return n, nil
}

// writePart streams into path+".part" and renames into place only on
// success.
func (d *Downloader) writePart(path string, write func(io.Writer) (int64, error)) (int64, error) {
	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, eris.Wrap(err, "downloader: create part file")
	}

	n, err := write(f)
	if err != nil {
		f.Close()
		os.Remove(part)
		return n, eris.Wrap(err, "downloader: write")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(part)
		return n, eris.Wrap(err, "downloader: sync")
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return n, eris.Wrap(err, "downloader: close")
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return n, eris.Wrap(err, "downloader: rename")
	}
	return n, nil
}
