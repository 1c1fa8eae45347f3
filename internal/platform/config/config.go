package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "KOMERGE_"

type Config struct {
	Addr            string        `yaml:"addr"`
	DataDir         string        `yaml:"data_dir"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	FileTTL         time.Duration `yaml:"file_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	BasePath        string        `yaml:"base_path"`
	LogLevel        string        `yaml:"log_level"`
	LogHuman        bool          `yaml:"log_human"`
}

func Default() Config {
	return Config{
		Addr:            ":8000",
		DataDir:         "data",
		SessionTTL:      2 * time.Hour,
		FileTTL:         2 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		MaxUploadBytes:  100 << 20,
		CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8000"},
		LogLevel:        "info",
	}
}

// Load layers defaults, the optional YAML file at path and KOMERGE_* environment
// variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.BasePath = NormalizeBasePath(cfg.BasePath)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("ADDR", &cfg.Addr)
	str("DATA_DIR", &cfg.DataDir)
	str("BASE_PATH", &cfg.BasePath)
	str("LOG_LEVEL", &cfg.LogLevel)
	if err := dur("SESSION_TTL", &cfg.SessionTTL); err != nil {
		return err
	}
	if err := dur("FILE_TTL", &cfg.FileTTL); err != nil {
		return err
	}
	if err := dur("CLEANUP_INTERVAL", &cfg.CleanupInterval); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "MAX_UPLOAD_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parse %sMAX_UPLOAD_BYTES: %w", envPrefix, err)
		}
		cfg.MaxUploadBytes = n
	}
	if v, ok := lookup(envPrefix + "LOG_HUMAN"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sLOG_HUMAN: %w", envPrefix, err)
		}
		cfg.LogHuman = b
	}
	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.FileTTL <= 0 {
		return fmt.Errorf("file ttl must be positive, got %s", c.FileTTL)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", c.CleanupInterval)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func (c Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// NormalizeBasePath turns "komerge/", "/komerge" and "komerge" into "/komerge";
// "" and "/" mean a root deployment.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimRight(p, "/")
	return p
}
