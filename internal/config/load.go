package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)
	cfg.ApplyDefaults()

	return &cfg, nil
}

func (c *Config) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}

// StorageDSN resolves a file-backed SQLite DSN against the config directory.
// In-memory and URI-style DSNs are returned unchanged.
func (c *Config) StorageDSN() string {
	dsn := c.Storage.DSN
	if dsn == "" || dsn == ":memory:" || filepath.IsAbs(dsn) || hasScheme(dsn) {
		return dsn
	}
	return c.resolvePath(dsn)
}

func hasScheme(dsn string) bool {
	return len(dsn) > 5 && dsn[:5] == "file:"
}
