// Package config loads server and CLI settings.
//
// LAYERS (later wins):
//
//	defaults → TOML file → environment variables
//
// The file is optional. Its path comes from --config or SNIPPETS_CONFIG;
// without either, "snippets.toml" in the working directory is tried.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sakif/snippet-catalog/internal/auth"
)

// Search backends.
const (
	BackendFTS5  = "fts5"
	BackendBleve = "bleve"
)

const defaultPath = "snippets.toml"

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Search   SearchConfig   `toml:"search"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port         int  `toml:"port"`
	SecureCookie bool `toml:"secure_cookie"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// AuthConfig enables the owner login. Both values must be set for write
// routes to be protected; with neither, writes are open.
type AuthConfig struct {
	JWTSecret         string        `toml:"jwt_secret"`
	OwnerPasswordHash string        `toml:"owner_password_hash"`
	SessionTTL        time.Duration `toml:"session_ttl"`
}

type SearchConfig struct {
	// Backend is "fts5" (SQLite's own index) or "bleve".
	Backend string `toml:"backend"`
	// IndexPath is where bleve keeps its index; empty = in memory.
	IndexPath         string        `toml:"index_path"`
	Timeout           time.Duration `toml:"timeout"`
	MaxHits           int           `toml:"max_hits"`
	HistoryQueueSize  int           `toml:"history_queue_size"`
	HighlightOpenTag  string        `toml:"highlight_open_tag"`
	HighlightCloseTag string        `toml:"highlight_close_tag"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "data/snippets.db"},
		Auth:     AuthConfig{SessionTTL: auth.DefaultTokenTTL},
		Search: SearchConfig{
			Backend:           BackendFTS5,
			Timeout:           2 * time.Second,
			MaxHits:           500,
			HistoryQueueSize:  256,
			HighlightOpenTag:  "<mark>",
			HighlightCloseTag: "</mark>",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
//
// path may be empty. A missing default file is fine; a missing explicit
// file, or any file that fails to parse, is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv("SNIPPETS_CONFIG"); path != "" {
			explicit = true
		} else {
			path = defaultPath
		}
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("OWNER_PASSWORD_HASH"); v != "" {
		cfg.Auth.OwnerPasswordHash = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SESSION_TTL %q", v)
		}
		cfg.Auth.SessionTTL = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SEARCH_INDEX_PATH"); v != "" {
		cfg.Search.IndexPath = v
	}
	if v := os.Getenv("SEARCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SEARCH_TIMEOUT %q", v)
		}
		cfg.Search.Timeout = d
	}
	if v := os.Getenv("SEARCH_MAX_HITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid SEARCH_MAX_HITS %q", v)
		}
		cfg.Search.MaxHits = n
	}
	if v := os.Getenv("HISTORY_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid HISTORY_QUEUE_SIZE %q", v)
		}
		cfg.Search.HistoryQueueSize = n
	}
	if os.Getenv("SECURE_COOKIE") == "true" || os.Getenv("SECURE_COOKIE") == "1" {
		cfg.Server.SecureCookie = true
	}
	return nil
}

// Validate reports every problem at once, joined.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Search.Backend {
	case BackendFTS5, BackendBleve:
	default:
		errs = append(errs, fmt.Errorf("search.backend %q must be %s or %s", c.Search.Backend, BackendFTS5, BackendBleve))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("search.timeout must be positive"))
	}
	if c.Search.MaxHits <= 0 {
		errs = append(errs, errors.New("search.max_hits must be positive"))
	}
	if c.Search.HistoryQueueSize <= 0 {
		errs = append(errs, errors.New("search.history_queue_size must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Auth.OwnerPasswordHash != "" {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required when an owner password is set"))
		}
		if err := auth.CheckHash(c.Auth.OwnerPasswordHash); err != nil {
			errs = append(errs, fmt.Errorf("auth.owner_password_hash: %w", err))
		}
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether write routes require the owner login.
func (c Config) AuthEnabled() bool {
	return c.Auth.OwnerPasswordHash != "" && c.Auth.JWTSecret != ""
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", l.Level)
	}
	return level, nil
}
