package job

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/Guiraud/gallery-dl/internal/archive"
	"github.com/Guiraud/gallery-dl/internal/auth"
	"github.com/Guiraud/gallery-dl/internal/downloader"
	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/filter"
	"github.com/Guiraud/gallery-dl/internal/options"
	"github.com/Guiraud/gallery-dl/internal/registry"
)

// Config wires the runner's collaborators and per-run settings.
type Config struct {
	Registry   *registry.Registry
	Tree       *options.Tree
	Archive    archive.Store
	Downloader *downloader.Downloader
	Passwords  *auth.PasswordProvider
	Cookies    *auth.CookieProvider
	OAuth      *auth.OAuthFlow

	// PersistToken stores OAuth tokens back into the user's config.
	PersistToken auth.TokenPersister

	// Overrides holds -o key=value entries, the highest-precedence
	// option layer.
	Overrides map[string]any

	// CookieSource set from --cookies / --cookies-from-browser; overrides
	// any configured cookie source.
	CookieSource auth.CookieSource

	Mode           Mode
	Filter         filter.Predicate
	WriteMetadata  bool
	NoSkip         bool
	BaseDir        string
	Workers        int
	PostProcessors []PostProcessor

	// Out receives -g / --dump-json output. Defaults to stdout.
	Out io.Writer
}

// Runner executes a batch of inputs. Jobs run one after another; items
// within a job fan out to the worker pool.
type Runner struct {
	cfg Config
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Passwords == nil {
		cfg.Passwords = auth.NewPasswordProvider("", "")
	}
	if cfg.Cookies == nil {
		cfg.Cookies = auth.NewCookieProvider(nil)
	}
	return &Runner{cfg: cfg}
}

// Run resolves and executes every input. Unmatched inputs are logged and
// skipped, never aborting the batch; the summary carries the aggregate
// outcome and exit code.
func (r *Runner) Run(ctx context.Context, inputs []string) *Summary {
	sum := &Summary{}

	for _, input := range inputs {
		if ctx.Err() != nil {
			break
		}
		spec := registry.ParseInput(input)
		switch spec.Kind {
		case registry.KindOAuth:
			if err := r.runOAuth(ctx, spec); err != nil {
				zap.L().Error("oauth setup failed",
					zap.String("category", spec.OAuthCategory),
					zap.Error(err),
				)
				sum.addJobError()
			}

		case registry.KindRemote:
			r.runRemote(ctx, spec.Target, sum)

		default:
			r.resolveAndRun(ctx, spec.Target, sum)
		}
	}

	if ctx.Err() != nil {
		sum.Cancelled = true
	}
	sum.Log()
	return sum
}

func (r *Runner) resolveAndRun(ctx context.Context, input string, sum *Summary) {
	m, err := r.cfg.Registry.Resolve(input)
	if err != nil {
		if errors.Is(err, registry.ErrNoExtractor) {
			zap.L().Warn("no extractor matches input, skipping", zap.String("input", input))
			sum.addUnmatched()
			return
		}
		zap.L().Error("resolution failed", zap.String("input", input), zap.Error(err))
		sum.addJobError()
		return
	}
	r.runResolved(ctx, input, m, sum)
}

func (r *Runner) runResolved(ctx context.Context, input string, m *registry.Match, sum *Summary) {
	j := r.newJob(input, m)
	if err := j.run(ctx, sum); err != nil {
		if ctx.Err() != nil {
			return
		}
		j.log.Error("job failed", zap.Error(err))
		sum.addJobError()
	}
}

// runRemote fetches a document, harvests its embedded URLs, and feeds each
// one back through resolution. Links no extractor claims are dropped
// silently; this is documented behavior, not an error.
func (r *Runner) runRemote(ctx context.Context, target string, sum *Summary) {
	data, err := r.cfg.Downloader.Fetch(ctx, target)
	if err != nil {
		zap.L().Error("remote resolution fetch failed",
			zap.String("input", target),
			zap.Error(err),
		)
		sum.addJobError()
		return
	}

	base, _ := url.Parse(target)
	links, err := extractor.ScanLinks(bytes.NewReader(data), base)
	if err != nil {
		zap.L().Error("remote resolution scan failed",
			zap.String("input", target),
			zap.Error(err),
		)
		sum.addJobError()
		return
	}

	resolved := 0
	for _, link := range links {
		if ctx.Err() != nil {
			return
		}
		m, err := r.cfg.Registry.Resolve(link)
		if err != nil {
			continue
		}
		resolved++
		r.runResolved(ctx, link, m, sum)
	}
	zap.L().Info("remote resolution",
		zap.String("input", target),
		zap.Int("links", len(links)),
		zap.Int("resolved", resolved),
	)
}

func (r *Runner) runOAuth(ctx context.Context, spec registry.InputSpec) error {
	lookup := r.cfg.Tree.NewLookup(spec.OAuthCategory, "", r.cfg.Overrides)
	req, err := auth.RequestFromLookup(spec.OAuthCategory, spec.OAuthInstance, lookup)
	if err != nil {
		return err
	}
	return r.cfg.OAuth.Setup(ctx, req, r.cfg.PersistToken)
}
