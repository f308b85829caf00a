package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Mode Mode `toml:"mode"`

	Port string `toml:"port"`

	StorageBackend string `toml:"storage_backend"` // "memory", "sqlite" or "firestore"
	GCPProjectID   string `toml:"gcp_project"`
	SQLitePath     string `toml:"sqlite_path"`

	// YAML file with persona display names, used by the memory backend
	PersonasFile string `toml:"personas_file"`

	JWTSecret string `toml:"jwt_secret"`

	// Per-user request budget; RateLimit <= 0 disables limiting
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`

	LogLevel string `toml:"log_level"`
}

// Default returns the local development configuration.
func Default() *Config {
	return &Config{
		Mode:           ModeLocal,
		Port:           "8080",
		StorageBackend: BackendMemory,
		SQLitePath:     "data/chats.db",
		RateLimit:      20,
		RateBurst:      50,
		LogLevel:       "info",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load builds the config from defaults, then the optional TOML file at path
// (or FARUM_CONFIG when path is empty), then env vars. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FARUM_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	switch getEnv("FARUM_MODE", string(cfg.Mode)) {
	case "gcp":
		cfg.Mode = ModeGCP
	default:
		cfg.Mode = ModeLocal
	}

	cfg.Port = getEnv("FARUM_PORT", getEnv("PORT", cfg.Port))
	cfg.StorageBackend = getEnv("FARUM_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.GCPProjectID = getEnv("FARUM_GCP_PROJECT", cfg.GCPProjectID)
	cfg.SQLitePath = getEnv("FARUM_SQLITE_PATH", cfg.SQLitePath)
	cfg.PersonasFile = getEnv("FARUM_PERSONAS_FILE", cfg.PersonasFile)
	cfg.JWTSecret = getEnv("FARUM_JWT_SECRET", cfg.JWTSecret)
	cfg.RateLimit = getFloatEnv("FARUM_RATE_LIMIT", cfg.RateLimit)
	cfg.RateBurst = getIntEnv("FARUM_RATE_BURST", cfg.RateBurst)
	cfg.LogLevel = getEnv("FARUM_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case BackendMemory, BackendSQLite, BackendFirestore:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	if c.StorageBackend == BackendFirestore && c.GCPProjectID == "" {
		errs = append(errs, errors.New("FARUM_GCP_PROJECT is required for Firestore storage backend"))
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("FARUM_GCP_PROJECT must be set in gcp mode"))
	}
	if c.StorageBackend == BackendSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("FARUM_SQLITE_PATH is required for sqlite storage backend"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("FARUM_JWT_SECRET is required"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("rate_burst must be at least 1 when rate limiting is on"))
	}

	return errors.Join(errs...)
}
