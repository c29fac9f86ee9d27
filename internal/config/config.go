// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the YAML configuration recognized by the CLI and
// driver, mirroring the shape and defaulting style of the ambient
// codebase's pkg/ingestion.Config / cmd/cie.Config pair: a flat,
// yaml-tagged struct, a DefaultConfig() constructor, and environment
// variable overrides applied after unmarshaling.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".pygraph"
	defaultConfigFile = "project.yaml"
)

// Config is the top-level configuration recognized by pygraphctl and the
// driver, covering §6's "Configuration options" plus the ingestion-tuning
// fields the ambient codebase carries alongside them.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Snapshot  SnapshotConfig  `yaml:"snapshot,omitempty"`
	Repo      RepoConfig      `yaml:"repo"`
	CORS      CORSConfig      `yaml:"cors,omitempty"`
	Watcher   WatcherConfig   `yaml:"watcher,omitempty"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Validator ValidatorConfig `yaml:"validator,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
}

// StoreConfig selects and connects to the graph backend. URI follows the
// ambient codebase's `engine:path` convention (`mem:`, `rocksdb:/abs/path`).
type StoreConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// SnapshotConfig configures the optional JSON snapshot subsystem.
type SnapshotConfig struct {
	StorageDir string `yaml:"storage_dir,omitempty"`
}

// RepoConfig points at the source tree being indexed.
type RepoConfig struct {
	Path string `yaml:"path"`
}

// CORSConfig is parsed and carried through for an external HTTP
// collaborator; the core never reads it.
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"`
}

// WatcherConfig is parsed and carried through for an external file
// watcher; the core never reads it.
type WatcherConfig struct {
	DebounceSeconds int `yaml:"debounce_seconds,omitempty"`
}

// IngestionConfig mirrors the ambient codebase's IngestionConfig fields
// that still apply once gRPC batching and embeddings are out of scope.
// Only UseGitDelta is read (it selects the driver's delta detector);
// ExcludeGlobs, MaxFileSizeByte and ParseWorkers are parsed but not
// consulted: the builder skips a fixed set of directory names and sizes
// its worker pool from the CPU count.
type IngestionConfig struct {
	ExcludeGlobs    []string `yaml:"exclude_globs,omitempty"`
	MaxFileSizeByte int64    `yaml:"max_file_size_bytes,omitempty"`
	ParseWorkers    int      `yaml:"parse_workers,omitempty"`
	UseGitDelta     bool     `yaml:"use_git_delta"`
}

// ValidatorConfig overrides which decorators are treated as
// signature-transforming (§4.6).
type ValidatorConfig struct {
	SignatureTransformingDecorators []string `yaml:"signature_transforming_decorators,omitempty"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// DefaultConfig returns a config with sensible defaults for local,
// single-machine use: an in-memory store and the current directory as the
// repo root.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{URI: "mem:"},
		Repo:  RepoConfig{Path: "."},
		Ingestion: IngestionConfig{
			ExcludeGlobs: []string{
				".git/**", "node_modules/**", "vendor/**",
				"dist/**", "build/**", "**/__pycache__/**",
				".venv/**", "venv/**", "*.pyc",
			},
			MaxFileSizeByte: 1048576,
			ParseWorkers:    4,
			UseGitDelta:     true,
		},
	}
}

// LoadConfig loads configuration from path, or discovers
// .pygraph/project.yaml by walking up from the current directory when path
// is empty, following the ambient codebase's findConfigFile search order.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("PYGRAPH_CONFIG_PATH"); env != "" {
			path = env
		}
	}
	if path == "" {
		var err error
		path, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from user config or discovery
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// SaveConfig marshals cfg as YAML and writes it to path, creating parent
// directories as needed.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ConfigPath returns the path to the config file under dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	for {
		candidate := ConfigPath(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("no %s/%s found in %s or any parent directory", defaultConfigDir, defaultConfigFile, dir)
}

func (c *Config) applyEnvOverrides() {
	if uri := os.Getenv("PYGRAPH_STORE_URI"); uri != "" {
		c.Store.URI = uri
	}
	if path := os.Getenv("PYGRAPH_REPO_PATH"); path != "" {
		c.Repo.Path = path
	}
	if addr := os.Getenv("PYGRAPH_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
}

// Validate sanity-checks cfg and logs non-fatal warnings for options that
// are accepted but have no effect on the embedded backend this module
// ships, per §6's "documented, not silently dropped" requirement.
func (c *Config) Validate(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Store.URI == "" {
		return fmt.Errorf("store.uri must be set")
	}
	if (c.Store.User != "" || c.Store.Password != "") && !strings.HasPrefix(c.Store.URI, "http") {
		logger.Warn("config.validate.ignored_credentials",
			"uri", c.Store.URI,
			"msg", "store.user/store.password are ignored by the embedded backend")
	}
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path must be set")
	}
	return nil
}
