package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IshaanNene/partscout/internal/types"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":3000" || cfg.Server.MaxSessions != 2 {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if got := cfg.Catalog(SiteSevenZap).BaseURL; got != "https://7zap.com/en/" {
		t.Errorf("sevenzap base = %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partscout.yaml")
	yaml := `
browser:
  headless: false
  navigation_timeout: 30s
catalogs:
  etka:
    username: garage
    password: secret
cache:
  ttl: 2h
storage:
  backends: [jsonl]
server:
  max_sessions: 4
logging:
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Browser.Headless {
		t.Error("headless should be false")
	}
	if cfg.Browser.NavigationTimeout != 30*time.Second {
		t.Errorf("navigation_timeout = %s", cfg.Browser.NavigationTimeout)
	}
	if cfg.Browser.NavigationRetries != 3 {
		t.Errorf("navigation_retries default lost: %d", cfg.Browser.NavigationRetries)
	}
	etka := cfg.Catalog(SiteEtka)
	if etka.Username != "garage" || etka.Password != "secret" {
		t.Errorf("etka credentials = %+v", etka)
	}
	if etka.BaseURL != "https://superetka.com/etka/" {
		t.Errorf("etka base_url default lost: %q", etka.BaseURL)
	}
	if cfg.Cache.TTL != 2*time.Hour || cfg.Server.MaxSessions != 4 || cfg.Logging.Format != "json" {
		t.Errorf("overrides not applied: ttl=%s sessions=%d format=%s", cfg.Cache.TTL, cfg.Server.MaxSessions, cfg.Logging.Format)
	}
	if len(cfg.Storage.Backends) != 1 || cfg.Storage.Backends[0] != "jsonl" {
		t.Errorf("backends = %v", cfg.Storage.Backends)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PARTSCOUT_SERVER_ADDR", ":8080")
	t.Setenv("PARTSCOUT_BROWSER_HEADLESS", "false")
	t.Setenv("ZAP_USER", "zapper")
	t.Setenv("ZAP_PASS", "zappass")
	t.Setenv("SSG_USER", "legacy")
	t.Setenv("PARTSCOUT_CATALOGS_SSG_USERNAME", "preferred")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Browser.Headless {
		t.Error("headless should be false")
	}
	zap, err := cfg.RequireCredentials(SiteSevenZap)
	if err != nil {
		t.Fatalf("sevenzap credentials: %v", err)
	}
	if zap.Username != "zapper" || zap.Password != "zappass" {
		t.Errorf("sevenzap credentials = %+v", zap)
	}
	if got := cfg.Catalog(SiteSSG).Username; got != "preferred" {
		t.Errorf("ssg username = %q, want the PARTSCOUT_ variable to win", got)
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.RequireCredentials(SiteEtka); !errors.Is(err, types.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
	cfg.Catalogs[SiteEtka] = CatalogConfig{Username: "u", Password: "p"}
	cc, err := cfg.RequireCredentials(SiteEtka)
	if err != nil {
		t.Fatal(err)
	}
	if cc.BaseURL != "https://superetka.com/etka/" {
		t.Errorf("base url fallback = %q", cc.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero browser timeout", func(c *Config) { c.Browser.Timeout = 0 }},
		{"no navigation retries", func(c *Config) { c.Browser.NavigationRetries = 0 }},
		{"inverted delay", func(c *Config) { c.Humanize.DelayMin, c.Humanize.DelayMax = time.Second, time.Millisecond }},
		{"negative press", func(c *Config) { c.Humanize.PressMin = -time.Millisecond }},
		{"zero steps", func(c *Config) { c.Humanize.MinSteps = 0 }},
		{"chance above one", func(c *Config) { c.Humanize.ThinkChance = 1.5 }},
		{"inverted scroll", func(c *Config) { c.Humanize.ScrollMin, c.Humanize.ScrollMax = 500, 100 }},
		{"ftp base url", func(c *Config) { c.Catalogs[SiteRealOEM] = CatalogConfig{BaseURL: "ftp://realoem.com"} }},
		{"bad proxy rotation", func(c *Config) { c.Proxy.Enabled, c.Proxy.Rotation = true, "sticky" }},
		{"bad proxy url", func(c *Config) { c.Proxy.Enabled, c.Proxy.URLs = true, []string{"not a url"} }},
		{"bad proxy check url", func(c *Config) { c.Proxy.Enabled, c.Proxy.CheckURL = true, "ftp://7zap.com" }},
		{"negative proxy check interval", func(c *Config) { c.Proxy.Enabled, c.Proxy.CheckInterval = true, -time.Second }},
		{"cache without ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backends = []string{"s3"} }},
		{"mongo without uri", func(c *Config) { c.Storage.Backends = []string{"mongodb"} }},
		{"zero sessions", func(c *Config) { c.Server.MaxSessions = 0 }},
		{"zero rate", func(c *Config) { c.Server.RateLimit = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled, c.Metrics.Port = true, 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	for _, u := range []string{"https://7zap.com/en/", "http://www.realoem.com"} {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v", u, err)
		}
	}
	for _, u := range []string{"", "7zap.com", "file:///etc/passwd", "https://"} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) accepted", u)
		}
	}
}
