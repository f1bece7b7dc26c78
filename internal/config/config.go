package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API     APIConfig
	Upload  UploadConfig
	Search  SearchConfig
	Storage StorageConfig
	Log     LogConfig
}

type APIConfig struct {
	// Origin is where the client runs. Loopback origins talk to DevURL,
	// anything else to the origin itself.
	Origin        string
	DevURL        string
	Timeout       time.Duration
	StreamTimeout time.Duration
	Retries       int
}

type UploadConfig struct {
	MaxBytes     int
	AllowedTypes string // comma-separated extensions
	Concurrency  int
}

type SearchConfig struct {
	Limit int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	Debug bool
}

func defaults() Config {
	return Config{
		API: APIConfig{
			Origin:        "http://localhost",
			DevURL:        "http://127.0.0.1:5000",
			Timeout:       30 * time.Second,
			StreamTimeout: 300 * time.Second,
			Retries:       3,
		},
		Upload: UploadConfig{
			MaxBytes:     16 << 20,
			AllowedTypes: "txt,pdf,docx,md",
			Concurrency:  2,
		},
		Search: SearchConfig{
			Limit: 5,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory (if
// any), the JSON file at $XDG_CONFIG_HOME/docchat/config.json, and DOCCHAT_*
// environment variables, in increasing order of precedence. Variables set in
// .env never replace ones already in the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.API.Origin) == "" {
		errs = append(errs, errors.New("api.origin must not be empty"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.API.StreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api.stream_timeout must be positive, got %s", c.API.StreamTimeout))
	}
	if c.API.Retries < 1 {
		errs = append(errs, fmt.Errorf("api.retries must be at least 1, got %d", c.API.Retries))
	}
	if c.Upload.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("upload.concurrency must be at least 1, got %d", c.Upload.Concurrency))
	}
	if c.Upload.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("upload.max_bytes must not be negative, got %d", c.Upload.MaxBytes))
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Types returns the allowed upload extensions, lower-cased and without dots.
func (u UploadConfig) Types() []string {
	var out []string
	for _, t := range strings.Split(u.AllowedTypes, ",") {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured level. Debug forces slog.LevelDebug.
func (l LogConfig) SlogLevel() slog.Level {
	if l.Debug {
		return slog.LevelDebug
	}
	if lvl, ok := levels[strings.ToLower(l.Level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
