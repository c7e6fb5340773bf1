// Package job drives one resolved input through the pipeline state machine:
// Resolved → Authenticating → Enumerating → Processing(item) → Completed,
// with Failed and Cancelled reachable from any state. Records are pulled
// from the extractor one at a time and fan out to a bounded worker pool for
// the transfer stage.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Guiraud/gallery-dl/internal/auth"
	"github.com/Guiraud/gallery-dl/internal/downloader"
	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/format"
	"github.com/Guiraud/gallery-dl/internal/registry"
)

// State is the job lifecycle position.
type State int

const (
	StateResolved State = iota
	StateAuthenticating
	StateEnumerating
	StateProcessing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateAuthenticating:
		return "authenticating"
	case StateEnumerating:
		return "enumerating"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Mode selects what Processing does with each record.
type Mode int

const (
	// ModeDownload transfers bytes to disk (the default).
	ModeDownload Mode = iota
	// ModeMetadata emits each record as JSON without downloading.
	ModeMetadata
	// ModeURLs prints each item's source URL without downloading.
	ModeURLs
)

// PostProcessor runs after a successful transfer with the finished file
// path and its record. Implementations are external collaborators.
type PostProcessor interface {
	Name() string
	Run(ctx context.Context, path string, rec *extractor.Record) error
}

// defaultTemplate names files when neither the CLI nor the config supplies
// a "filename" option.
const defaultTemplate = `{category}/{filename|id|"file"}.{extension|"bin"}`

// Job is one resolved input with its bound descriptor, options, and run
// state. The controller owns it and the extractor instance for its
// lifetime.
type Job struct {
	ID    string
	Input string
	Match *registry.Match

	state    State
	runner   *Runner
	log      *zap.Logger
	template *format.Template
	dl       *downloader.Downloader
	ident    singleflight.Group
}

func (r *Runner) newJob(input string, m *registry.Match) *Job {
	return &Job{
		ID:     uuid.New().String(),
		Input:  input,
		Match:  m,
		state:  StateResolved,
		runner: r,
		log: zap.L().With(
			zap.String("input", input),
			zap.String("category", m.Descriptor.Category),
			zap.String("subcategory", m.Descriptor.Subcategory),
		),
	}
}

func (j *Job) setState(s State) {
	j.state = s
	j.log.Debug("job state", zap.String("state", s.String()))
}

// run executes the job to completion, recording item outcomes into sum.
// The returned error is job-scoped (auth failure, extractor construction);
// item-scoped failures are counted, not returned.
func (j *Job) run(ctx context.Context, sum *Summary) error {
	cfg := j.runner.cfg
	d := j.Match.Descriptor
	lookup := cfg.Tree.NewLookup(d.Category, d.Subcategory, cfg.Overrides)

	ex, err := d.New(j.Match.Target, lookup)
	if err != nil {
		j.setState(StateFailed)
		return eris.Wrapf(err, "job: construct %s extractor", d.Category)
	}

	// Authenticating: a missing required credential fails the job; a
	// missing optional one proceeds.
	j.setState(StateAuthenticating)
	creds, haveCreds, err := cfg.Passwords.Credentials(d.Category, lookup)
	if err != nil {
		j.setState(StateFailed)
		return err
	}
	if login, ok := ex.(extractor.Authenticator); ok && haveCreds {
		if err := login.Login(ctx, creds.Username, creds.Password); err != nil {
			j.setState(StateFailed)
			return eris.Wrapf(auth.ErrLoginRejected, "category %s: %v", d.Category, err)
		}
	}

	j.dl = cfg.Downloader
	src := cfg.CookieSource
	if src.IsZero() {
		if src, err = auth.SourceFromLookup(lookup); err != nil {
			j.setState(StateFailed)
			return err
		}
	}
	if !src.IsZero() {
		cookies, err := cfg.Cookies.Cookies(ctx, src)
		if err != nil {
			j.setState(StateFailed)
			return err
		}
		j.dl = cfg.Downloader.WithCookies(cookies)
	}

	tmplSrc := lookup.String("filename", defaultTemplate)
	j.template, err = format.Compile(tmplSrc)
	if err != nil {
		j.setState(StateFailed)
		return eris.Wrapf(err, "job: filename template for %s", d.Category)
	}

	// Enumerating: records are pulled one at a time; the worker pool
	// provides the backpressure.
	j.setState(StateEnumerating)
	items := ex.Items(ctx)

	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	j.setState(StateProcessing)
	var enumErr error
	for {
		item, err := items.Next(gctx)
		if err != nil {
			if errors.Is(err, extractor.ErrEnd) {
				break
			}
			if gctx.Err() != nil {
				break
			}
			enumErr = eris.Wrapf(err, "job: enumerate %s", d.Category)
			break
		}
		g.Go(func() error {
			j.processItem(gctx, item, sum)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		j.setState(StateCancelled)
		return ctx.Err()
	}
	if enumErr != nil {
		j.setState(StateFailed)
		return enumErr
	}
	j.setState(StateCompleted)
	return nil
}

// processItem runs the Processing stage for one record. All failures here
// are item-scoped: they are counted and logged, never propagated.
func (j *Job) processItem(ctx context.Context, item *extractor.Item, sum *Summary) {
	cfg := j.runner.cfg
	category := j.Match.Descriptor.Category
	log := j.log.With(zap.String("identity", item.Identity))

	if cfg.Filter != nil && !cfg.Filter(item.Record) {
		sum.addFiltered()
		return
	}

	// Serialize per identity: two workers never process the same identity
	// concurrently, while distinct identities stay lock-free.
	_, err, _ := j.ident.Do(category+"\x00"+item.Identity, func() (any, error) {
		return nil, j.processIdentity(ctx, item, category, log, sum)
	})
	if err != nil && ctx.Err() == nil {
		sum.addFailed()
	}
}

func (j *Job) processIdentity(ctx context.Context, item *extractor.Item, category string, log *zap.Logger, sum *Summary) error {
	cfg := j.runner.cfg

	if !cfg.NoSkip && item.Identity != "" {
		seen, err := cfg.Archive.Seen(ctx, category, item.Identity)
		if err != nil {
			log.Error("archive lookup failed", zap.Error(err))
			return err
		}
		if seen {
			sum.addSkipped()
			return nil
		}
	}

	switch cfg.Mode {
	case ModeURLs:
		if !item.Source.IsZero() {
			fmt.Fprintln(cfg.Out, item.Source.URL)
		}
		sum.addDownloaded()
		return nil

	case ModeMetadata:
		data, err := json.MarshalIndent(item.Record, "", "  ")
		if err != nil {
			log.Error("marshal record failed", zap.Error(err))
			return err
		}
		fmt.Fprintln(cfg.Out, string(data))
		sum.addDownloaded()
		return nil
	}

	rel, err := j.template.Format(item.Record)
	if err != nil {
		var fe *format.FieldError
		if errors.As(err, &fe) {
			log.Error("filename template unresolved", zap.String("expr", fe.Expr))
		} else {
			log.Error("filename formatting failed", zap.Error(err))
		}
		return err
	}
	path := filepath.Join(cfg.BaseDir, filepath.FromSlash(rel))

	if item.Source.IsZero() {
		// Metadata-only record inside a download job: emit the sidecar
		// if requested, nothing to transfer.
		if cfg.WriteMetadata {
			if err := writeSidecar(path, item.Record); err != nil {
				log.Error("write sidecar failed", zap.Error(err))
				return err
			}
		}
		sum.addDownloaded()
		return nil
	}

	if cfg.NoSkip {
		_ = os.Remove(path)
	}

	_, err = j.dl.Transfer(ctx, item.Source, path)
	if errors.Is(err, downloader.ErrExists) {
		sum.addSkipped()
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("transfer failed",
			zap.String("url", item.Source.URL),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}

	// The file is confirmed complete on disk; only now is the identity
	// recorded, so an interrupted transfer is retried by the next run.
	if item.Identity != "" {
		if err := cfg.Archive.Record(ctx, category, item.Identity); err != nil {
			log.Error("archive record failed", zap.Error(err))
			return err
		}
	}

	if cfg.WriteMetadata {
		if err := writeSidecar(path, item.Record); err != nil {
			log.Error("write sidecar failed", zap.Error(err))
			return err
		}
	}

	for _, pp := range cfg.PostProcessors {
		if err := pp.Run(ctx, path, item.Record); err != nil {
			log.Warn("post-processor failed",
				zap.String("post_processor", pp.Name()),
				zap.Error(err),
			)
		}
	}

	sum.addDownloaded()
	return nil
}

// writeSidecar stores the record as a JSON document next to the file.
func writeSidecar(path string, rec *extractor.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrap(err, "job: marshal sidecar")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "job: sidecar directory")
	}
	return eris.Wrap(os.WriteFile(path+".json", append(data, '\n'), 0o644), "job: write sidecar")
}
