package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/IshaanNene/partscout/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	b := cfg.Browser
	if b.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be > 0")
	}
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}
	if b.NavigationRetries < 1 {
		return fmt.Errorf("browser.navigation_retries must be >= 1, got %d", b.NavigationRetries)
	}
	if b.RetryDelay < 0 {
		return fmt.Errorf("browser.retry_delay must be >= 0")
	}
	if b.ViewportWidth < 1 || b.ViewportHeight < 1 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", b.ViewportWidth, b.ViewportHeight)
	}

	if err := validateHumanize(&cfg.Humanize); err != nil {
		return err
	}

	for site, cc := range cfg.Catalogs {
		if cc.BaseURL == "" {
			continue
		}
		if err := ValidateURL(cc.BaseURL); err != nil {
			return fmt.Errorf("catalogs.%s.base_url: %w", site, err)
		}
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			u, err := url.Parse(proxyURL)
			if err != nil || u.Host == "" {
				return fmt.Errorf("invalid proxy URL %q", proxyURL)
			}
		}
		if cfg.Proxy.CheckURL != "" {
			if err := ValidateURL(cfg.Proxy.CheckURL); err != nil {
				return fmt.Errorf("proxy.check_url: %w", err)
			}
		}
		if cfg.Proxy.CheckInterval < 0 {
			return fmt.Errorf("proxy.check_interval must be >= 0")
		}
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Path == "" {
			return fmt.Errorf("cache.path must be set when the cache is enabled")
		}
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be > 0")
		}
	}

	validBackends := map[string]bool{"jsonl": true, "mongodb": true}
	for _, backend := range cfg.Storage.Backends {
		if !validBackends[backend] {
			return fmt.Errorf("storage backend %q is not supported (valid: jsonl, mongodb)", backend)
		}
		if backend == "mongodb" && cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri must be set for the mongodb backend")
		}
		if backend == "jsonl" && cfg.Storage.OutputPath == "" {
			return fmt.Errorf("storage.output_path must be set for the jsonl backend")
		}
	}

	if cfg.Server.MaxSessions < 1 {
		return fmt.Errorf("server.max_sessions must be >= 1, got %d", cfg.Server.MaxSessions)
	}
	if cfg.Server.RateLimit <= 0 || cfg.Server.Burst < 1 {
		return fmt.Errorf("server.rate_limit must be > 0 and server.burst >= 1")
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateHumanize(h *HumanizeConfig) error {
	if h.MinSteps < 1 || h.MaxSteps < h.MinSteps {
		return fmt.Errorf("humanize steps must satisfy 1 <= min_steps <= max_steps, got %d..%d", h.MinSteps, h.MaxSteps)
	}
	if h.Wobble < 0 || h.JitterRadius < 0 || h.MaxJitterMoves < 0 {
		return fmt.Errorf("humanize wobble, jitter_radius and max_jitter_moves must be >= 0")
	}
	if h.ScrollMin < 0 || h.ScrollMax < h.ScrollMin {
		return fmt.Errorf("humanize scroll range invalid: %d..%d", h.ScrollMin, h.ScrollMax)
	}

	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"delay", h.DelayMin, h.DelayMax},
		{"hesitate", h.HesitateMin, h.HesitateMax},
		{"press", h.PressMin, h.PressMax},
		{"think", h.ThinkMin, h.ThinkMax},
		{"key_delay", h.KeyDelayMin, h.KeyDelayMax},
		{"typing_pause", h.TypingPauseMin, h.TypingPauseMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("humanize.%s range invalid: %s..%s", r.name, r.min, r.max)
		}
	}

	chances := map[string]float64{
		"think_chance":        h.ThinkChance,
		"typing_pause_chance": h.TypingPauseChance,
		"scroll_chance":       h.ScrollChance,
	}
	for name, p := range chances {
		if p < 0 || p > 1 {
			return fmt.Errorf("humanize.%s must be within [0, 1], got %v", name, p)
		}
	}
	return nil
}

// ValidateURL checks that a catalog URL is absolute http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// RequireCredentials reports ErrMissingCredentials when a login-gated site has no username or password.
func (c *Config) RequireCredentials(site string) (CatalogConfig, error) {
	cc := c.Catalog(site)
	if cc.Username == "" || cc.Password == "" {
		return cc, fmt.Errorf("%s: %w", site, types.ErrMissingCredentials)
	}
	return cc, nil
}
