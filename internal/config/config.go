// Package config holds the process configuration for photark.
//
// Three bindings drive the core: the relational store (DB), the blob root
// (DATA_DIR) and the key-value cache directory (KV_DIR). Everything else is
// serving policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Defaults chosen for a single-node deployment.
const (
	DefaultListenAddr     = ":8283"
	DefaultMaxUploadBytes = int64(4) << 30 // 4 GiB
)

// Config is the resolved process configuration.
type Config struct {
	ListenAddr string

	// DBPath is the sqlite database file.
	DBPath string
	// DataDir is the blob store root (originals, derivatives, profile images).
	DataDir string
	// KVDir is the badger directory for the session lookaside cache.
	KVDir string

	// MaxUploadBytes bounds a single original upload.
	MaxUploadBytes int64

	// LogLevel is passed to the logger ("debug", "info", ...).
	LogLevel string
}

// FromEnv builds a Config from PHOTARK_* environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:     envOr("PHOTARK_LISTEN", DefaultListenAddr),
		DBPath:         os.Getenv("PHOTARK_DB"),
		DataDir:        os.Getenv("PHOTARK_DATA_DIR"),
		KVDir:          os.Getenv("PHOTARK_KV_DIR"),
		MaxUploadBytes: DefaultMaxUploadBytes,
		LogLevel:       os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("PHOTARK_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: invalid PHOTARK_MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}

	if cfg.DataDir != "" {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cfg.DataDir, "photark.db")
		}
		if cfg.KVDir == "" {
			cfg.KVDir = filepath.Join(cfg.DataDir, "kv")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the mandatory bindings are present.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: PHOTARK_DATA_DIR is required")
	}
	if c.DBPath == "" {
		return errors.New("config: PHOTARK_DB is required")
	}
	if c.KVDir == "" {
		return errors.New("config: PHOTARK_KV_DIR is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: max upload size must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
