package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if JURY_CONFIG is set
//  3. env (prefix JURY_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("JURY_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFile, err)
		}
	}

	// Environment variables: JURY_ADDR, JURY_LOG_LEVEL, JURY_STORE, ...
	// Map env keys like JURY_SQLITE_PATH -> sqlite_path (flat keys,
	// underscores preserved to match the koanf tags on the struct).
	envProvider := env.Provider("JURY_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "jury_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadEnv, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmarshal, err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalid)
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("%w: sqlite_path must not be empty when store is sqlite", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: unknown store %q", ErrInvalid, cfg.Store)
	}
	return &cfg, nil
}
