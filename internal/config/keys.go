package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.origin", typ: kString, env: "DOCCHAT_API_ORIGIN",
		apply:   func(cfg *Config, v any) { cfg.API.Origin = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Origin },
	},
	{
		key: "api.dev_url", typ: kString, env: "DOCCHAT_API_DEV_URL",
		apply:   func(cfg *Config, v any) { cfg.API.DevURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.DevURL },
	},
	{
		key: "api.timeout", typ: kDuration, env: "DOCCHAT_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "api.stream_timeout", typ: kDuration, env: "DOCCHAT_API_STREAM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.StreamTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.StreamTimeout },
	},
	{
		key: "api.retries", typ: kInt, env: "DOCCHAT_API_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.API.Retries = v.(int) },
		extract: func(cfg Config) any { return cfg.API.Retries },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "DOCCHAT_UPLOAD_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "upload.allowed_types", typ: kString, env: "DOCCHAT_UPLOAD_ALLOWED_TYPES",
		apply:   func(cfg *Config, v any) { cfg.Upload.AllowedTypes = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.AllowedTypes },
	},
	{
		key: "upload.concurrency", typ: kInt, env: "DOCCHAT_UPLOAD_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Upload.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.Concurrency },
	},
	{
		key: "search.limit", typ: kInt, env: "DOCCHAT_SEARCH_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.Limit },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOCCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DOCCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.debug", typ: kBool, env: "DOCCHAT_LOG_DEBUG",
		apply:   func(cfg *Config, v any) { cfg.Log.Debug = v.(bool) },
		extract: func(cfg Config) any { return cfg.Log.Debug },
	},
}

// parse converts a raw string value to the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return raw, nil
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			if pv, err := s.parse(v); err == nil {
				s.apply(cfg, pv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
