// Package config loads the application's own settings (logging, archive
// location, concurrency, transfer tuning) from file and environment. The
// per-extractor option tree is separate; see internal/options.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	BaseDirectory string         `yaml:"base_directory" mapstructure:"base_directory"`
	Archive       ArchiveConfig  `yaml:"archive" mapstructure:"archive"`
	Download      DownloadConfig `yaml:"download" mapstructure:"download"`
	OAuth         OAuthConfig    `yaml:"oauth" mapstructure:"oauth"`
	Log           LogConfig      `yaml:"log" mapstructure:"log"`
}

// ArchiveConfig configures the dedup table backend.
type ArchiveConfig struct {
	// DSN is a SQLite file path or a postgres:// connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// DownloadConfig tunes the transfer stage.
type DownloadConfig struct {
	Workers     int                `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int                `yaml:"retries" mapstructure:"retries"`
	UserAgent   string             `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64            `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int                `yaml:"rate_burst" mapstructure:"rate_burst"`
	PerHost     map[string]float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
}

// OAuthConfig configures the loopback redirect listener.
type OAuthConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// The key delimiter must not be "." or per_host_rate entries keyed by
	// hostnames ("cdn.example.com") get split into nested maps.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	v.SetConfigName("gallery-dl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "gallery-dl"))
	}

	v.SetEnvPrefix("GALLERYDL")
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_directory", "./gallery-dl")
	v.SetDefault("archive::dsn", defaultArchivePath())
	v.SetDefault("download::workers", 4)
	v.SetDefault("download::timeout_secs", 30)
	v.SetDefault("download::retries", 4)
	v.SetDefault("download::user_agent", "gallery-dl/1.0")
	v.SetDefault("download::rate_limit", 8.0)
	v.SetDefault("download::rate_burst", 8)
	v.SetDefault("oauth::port", 6414)
	v.SetDefault("log::level", "info")
	v.SetDefault("log::format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func defaultArchivePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gallery-dl-archive.sqlite3"
	}
	return filepath.Join(dir, "gallery-dl", "archive.sqlite3")
}

// OptionFilePaths returns the default search order for extractor option
// files, lowest precedence first. Missing files are skipped at load time.
func OptionFilePaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "gallery-dl", "config.json"),
			filepath.Join(home, ".gallery-dl.conf"),
		)
	}
	paths = append(paths, "gallery-dl.conf")
	return paths
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
