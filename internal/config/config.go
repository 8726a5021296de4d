// Package config loads spkrepo's runtime configuration from a TOML file
// with environment variable overrides, mirroring the env/flag split the
// rest of the ambient stack (logging, CLI) expects at process start.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the server needs at boot. Field names match
// the environment variables named in spec.md §6, prefixed with SPKREPO_.
type Config struct {
	DataPath          string `toml:"data_path"`
	DatabaseURL       string `toml:"database_url"`
	ListenAddr        string `toml:"listen_addr"`
	BaseURL           string `toml:"base_url"`
	GnupgPath         string `toml:"gnupg_path"`
	GnupgTimestampURL string `toml:"gnupg_timestamp_url"`
	GnupgFingerprint  string `toml:"gnupg_fingerprint"`
	CacheTTLSeconds   int    `toml:"cache_ttl_seconds"`
	MaxUploadBytes    int64  `toml:"max_upload_bytes"`
	LogLevel          string `toml:"log_level"`
}

// Default returns the configuration used when no file is supplied, matching
// original_source/spkrepo/config.py's module-level defaults.
func Default() Config {
	return Config{
		DataPath:          "data",
		DatabaseURL:       "postgres://localhost/spkrepo",
		ListenAddr:        ":8080",
		BaseURL:           "http://localhost:8080",
		GnupgTimestampURL: "http://timestamp.synology.com/timestamp.php",
		GnupgFingerprint:  "",
		CacheTTLSeconds:   600,
		MaxUploadBytes:    170 * 1024 * 1024,
		LogLevel:          "info",
	}
}

// Load reads a TOML file at path (if non-empty) over the defaults, then
// applies SPKREPO_* environment overrides, which always win.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SPKREPO_DATA_PATH"); ok {
		cfg.DataPath = v
	}
	if v, ok := os.LookupEnv("SPKREPO_DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("SPKREPO_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("SPKREPO_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv("SPKREPO_GNUPG_PATH"); ok {
		cfg.GnupgPath = v
	}
	if v, ok := os.LookupEnv("SPKREPO_GNUPG_TIMESTAMP_URL"); ok {
		cfg.GnupgTimestampURL = v
	}
	if v, ok := os.LookupEnv("SPKREPO_GNUPG_FINGERPRINT"); ok {
		cfg.GnupgFingerprint = v
	}
	if v, ok := os.LookupEnv("SPKREPO_CACHE_TTL_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSeconds = n
		}
	}
	if v, ok := os.LookupEnv("SPKREPO_MAX_UPLOAD_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v, ok := os.LookupEnv("SPKREPO_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}
