package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"komerge/internal/platform/config"
)

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "komerge.yaml")
	body := "addr: \":9000\"\nsession_ttl: 30m\nfile_ttl: 3h\ncors_origins:\n  - https://example.org\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KOMERGE_FILE_TTL", "90m")
	t.Setenv("KOMERGE_BASE_PATH", "komerge/")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected session ttl 30m, got %s", cfg.SessionTTL)
	}
	if cfg.FileTTL != 90*time.Minute {
		t.Fatalf("expected env to override file ttl, got %s", cfg.FileTTL)
	}
	if cfg.CleanupInterval != 10*time.Minute {
		t.Fatalf("expected default cleanup interval, got %s", cfg.CleanupInterval)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://example.org" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
	if cfg.BasePath != "/komerge" {
		t.Fatalf("expected normalized base path, got %q", cfg.BasePath)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	lookup := func(key string) (string, bool) {
		if key == "KOMERGE_SESSION_TTL" {
			return "two hours", true
		}
		return "", false
	}
	if err := config.ApplyEnv(&cfg, lookup); err == nil {
		t.Fatalf("expected parse error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	bad := config.Default()
	bad.FileTTL = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero file ttl should fail")
	}
	bad = config.Default()
	bad.MaxUploadBytes = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("negative upload limit should fail")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":          "",
		"/":         "",
		"komerge":   "/komerge",
		"/komerge/": "/komerge",
		" /a/b ":    "/a/b",
	}
	for in, want := range cases {
		if got := config.NormalizeBasePath(in); got != want {
			t.Fatalf("NormalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
