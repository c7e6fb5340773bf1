package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Guiraud/gallery-dl/internal/archive"
	"github.com/Guiraud/gallery-dl/internal/auth"
	"github.com/Guiraud/gallery-dl/internal/config"
	"github.com/Guiraud/gallery-dl/internal/downloader"
	"github.com/Guiraud/gallery-dl/internal/filter"
	"github.com/Guiraud/gallery-dl/internal/job"
	"github.com/Guiraud/gallery-dl/internal/options"
	"github.com/Guiraud/gallery-dl/internal/registry"
	"github.com/Guiraud/gallery-dl/internal/resilience"
)

var cfg *config.Config

var (
	flagGetURLs       bool
	flagUsername      string
	flagPassword      string
	flagOptions       []string
	flagCookies       string
	flagBrowser       string
	flagChapterFilter string
	flagWriteMetadata bool
	flagDumpJSON      bool
	flagDirectory     string
	flagConfigs       []string
	flagNoSkip        bool
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "gallery-dl [flags] URLS...",
	Short: "Download image galleries and collections",
	Long: "Resolves URLs (or extractor:target directives) to site extractors and " +
		"streams their items through a download pipeline with template-driven " +
		"filenames and an archive that prevents re-downloads.",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runnerCfg, cleanup, err := buildRunner(args)
		if err != nil {
			return err
		}
		defer cleanup()

		sum := job.NewRunner(*runnerCfg).Run(ctx, args)
		exitCode = sum.ExitCode()
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&flagGetURLs, "get-urls", "g", false, "print file URLs instead of downloading")
	f.StringVarP(&flagUsername, "username", "u", "", "username for login")
	f.StringVarP(&flagPassword, "password", "p", "", "password for login")
	f.StringArrayVarP(&flagOptions, "option", "o", nil, "override an option (key=value, repeatable)")
	f.StringVar(&flagCookies, "cookies", "", "Netscape-format cookie file")
	f.StringVar(&flagBrowser, "cookies-from-browser", "", "load cookies from a browser (browser[/domain])")
	f.StringVar(&flagChapterFilter, "chapter-filter", "", "boolean expression selecting items by record fields")
	f.BoolVar(&flagWriteMetadata, "write-metadata", false, "write a JSON sidecar next to each file")
	f.BoolVar(&flagDumpJSON, "dump-json", false, "print metadata records instead of downloading")
	f.StringVarP(&flagDirectory, "directory", "d", "", "base download directory")
	f.StringArrayVar(&flagConfigs, "config", nil, "additional configuration files (repeatable)")
	f.BoolVar(&flagNoSkip, "no-skip", false, "download even when the archive or disk already has the file")
}

// buildRunner assembles the runner configuration from flags, config files,
// and the application config.
func buildRunner(args []string) (*job.Config, func(), error) {
	tree, err := options.Load(append(config.OptionFilePaths(), flagConfigs...)...)
	if err != nil {
		return nil, nil, err
	}

	overrides, err := parseOverrides(flagOptions)
	if err != nil {
		return nil, nil, err
	}

	var pred filter.Predicate
	if flagChapterFilter != "" {
		pred, err = filter.Compile(flagChapterFilter)
		if err != nil {
			return nil, nil, err
		}
	}

	var cookieSource auth.CookieSource
	switch {
	case flagCookies != "" && flagBrowser != "":
		return nil, nil, eris.New("--cookies and --cookies-from-browser are mutually exclusive")
	case flagCookies != "":
		cookieSource = auth.CookieSource{File: flagCookies}
	case flagBrowser != "":
		req, err := auth.ParseBrowserSpec(flagBrowser)
		if err != nil {
			return nil, nil, err
		}
		cookieSource = auth.CookieSource{Browser: &req}
	}

	store, err := archive.Open(context.Background(), archiveDSN())
	if err != nil {
		return nil, nil, err
	}

	dl := downloader.New(downloader.Config{
		UserAgent: cfg.Download.UserAgent,
		Timeout:   time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		RateLimit: cfg.Download.RateLimit,
		Burst:     cfg.Download.RateBurst,
		PerHost:   cfg.Download.PerHost,
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Download.Retries,
		},
	})

	mode := job.ModeDownload
	if flagGetURLs {
		mode = job.ModeURLs
	}
	if flagDumpJSON {
		mode = job.ModeMetadata
	}

	baseDir := cfg.BaseDirectory
	if flagDirectory != "" {
		baseDir = flagDirectory
	}

	runnerCfg := &job.Config{
		Registry:      registry.New(registry.Builtin()...),
		Tree:          tree,
		Archive:       store,
		Downloader:    dl,
		Passwords:     auth.NewPasswordProvider(flagUsername, flagPassword),
		Cookies:       auth.NewCookieProvider(nil),
		OAuth:         &auth.OAuthFlow{Port: cfg.OAuth.Port},
		PersistToken:  persistToken,
		Overrides:     overrides,
		CookieSource:  cookieSource,
		Mode:          mode,
		Filter:        pred,
		WriteMetadata: flagWriteMetadata,
		NoSkip:        flagNoSkip,
		BaseDir:       options.Interpolate(baseDir),
		Workers:       cfg.Download.Workers,
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			zap.L().Warn("closing archive", zap.Error(err))
		}
	}
	return runnerCfg, cleanup, nil
}

// parseOverrides turns -o key=value flags into the highest-precedence
// option layer. Values are kept as strings; typed reads coerce them.
func parseOverrides(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, eris.Errorf("invalid -o option %q, expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func archiveDSN() string {
	return options.Interpolate(cfg.Archive.DSN)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
