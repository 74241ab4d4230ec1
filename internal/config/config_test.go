package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"WEB_ADDR", "SQ_BASE_URL", "SQ_ALLOW_ANONYMOUS_UPLOAD", "SQ_MAX_TORRENT_BYTES", "REDIS_URL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Addr != ":3000" {
		t.Errorf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.AllowAnonymous {
		t.Error("anonymous upload should default to off")
	}
	if cfg.MaxTorrentSize != 10<<20 {
		t.Errorf("expected 10 MiB cap, got %d", cfg.MaxTorrentSize)
	}
	if cfg.RedisURL != "" {
		t.Errorf("expected no redis by default, got %q", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SQ_BASE_URL", "https://tracker.example/")
	t.Setenv("SQ_ALLOW_ANONYMOUS_UPLOAD", "true")
	t.Setenv("SQ_UPSTREAM_TIMEOUT_SECONDS", "3")
	t.Setenv("SQ_SUBMIT_RATE_PER_MINUTE", "not-a-number")

	cfg := Load()
	if cfg.BaseURL != "https://tracker.example" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if !cfg.AllowAnonymous {
		t.Error("expected anonymous upload enabled")
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %s", cfg.UpstreamTimeout)
	}
	if cfg.SubmitRatePerMinute != 30 {
		t.Errorf("expected fallback rate for bad value, got %d", cfg.SubmitRatePerMinute)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yml")
	if err := os.WriteFile(path, []byte("Movies: [BluRay]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Config{CategoriesFile: path}
	cat, err := cfg.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if cat.Empty() {
		t.Fatal("expected a non-empty catalog")
	}

	empty, err := Config{}.LoadCatalog()
	if err != nil || !empty.Empty() {
		t.Errorf("expected empty catalog without a file, got %v, %v", empty, err)
	}
}
