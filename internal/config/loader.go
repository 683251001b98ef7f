package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PARTSCOUT_BROWSER_HEADLESS.
const EnvPrefix = "PARTSCOUT"

// legacyEnv maps config keys to the variable names the older scraper scripts read.
var legacyEnv = map[string][]string{
	"catalogs.sevenzap.username": {"ZAP_USER"},
	"catalogs.sevenzap.password": {"ZAP_PASS"},
	"catalogs.etka.username":     {"ETKA_USER"},
	"catalogs.etka.password":     {"ETKA_PASS"},
	"catalogs.ssg.username":      {"SSG_USER"},
	"catalogs.ssg.password":      {"SSG_PASS"},
}

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("partscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".partscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// bindLegacyEnv lets PARTSCOUT_* win over the bare legacy names when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, envName}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults registers default values in viper so that AutomaticEnv can see every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.locale", cfg.Browser.Locale)
	v.SetDefault("browser.timezone", cfg.Browser.Timezone)
	v.SetDefault("browser.viewport_width", cfg.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", cfg.Browser.ViewportHeight)
	v.SetDefault("browser.timeout", cfg.Browser.Timeout)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.navigation_retries", cfg.Browser.NavigationRetries)
	v.SetDefault("browser.retry_delay", cfg.Browser.RetryDelay)
	v.SetDefault("browser.block_resources", cfg.Browser.BlockResources)
	v.SetDefault("browser.diagnostics_dir", cfg.Browser.DiagnosticsDir)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)

	h := cfg.Humanize
	v.SetDefault("humanize.enabled", h.Enabled)
	v.SetDefault("humanize.min_steps", h.MinSteps)
	v.SetDefault("humanize.max_steps", h.MaxSteps)
	v.SetDefault("humanize.wobble", h.Wobble)
	v.SetDefault("humanize.jitter_radius", h.JitterRadius)
	v.SetDefault("humanize.max_jitter_moves", h.MaxJitterMoves)
	v.SetDefault("humanize.delay_min", h.DelayMin)
	v.SetDefault("humanize.delay_max", h.DelayMax)
	v.SetDefault("humanize.hesitate_min", h.HesitateMin)
	v.SetDefault("humanize.hesitate_max", h.HesitateMax)
	v.SetDefault("humanize.press_min", h.PressMin)
	v.SetDefault("humanize.press_max", h.PressMax)
	v.SetDefault("humanize.think_chance", h.ThinkChance)
	v.SetDefault("humanize.think_min", h.ThinkMin)
	v.SetDefault("humanize.think_max", h.ThinkMax)
	v.SetDefault("humanize.key_delay_min", h.KeyDelayMin)
	v.SetDefault("humanize.key_delay_max", h.KeyDelayMax)
	v.SetDefault("humanize.typing_pause_chance", h.TypingPauseChance)
	v.SetDefault("humanize.typing_pause_min", h.TypingPauseMin)
	v.SetDefault("humanize.typing_pause_max", h.TypingPauseMax)
	v.SetDefault("humanize.scroll_chance", h.ScrollChance)
	v.SetDefault("humanize.scroll_min", h.ScrollMin)
	v.SetDefault("humanize.scroll_max", h.ScrollMax)

	for site, cc := range cfg.Catalogs {
		v.SetDefault("catalogs."+site+".base_url", cc.BaseURL)
		v.SetDefault("catalogs."+site+".username", cc.Username)
		v.SetDefault("catalogs."+site+".password", cc.Password)
	}

	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)
	v.SetDefault("proxy.check_url", cfg.Proxy.CheckURL)
	v.SetDefault("proxy.check_interval", cfg.Proxy.CheckInterval)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("storage.backends", cfg.Storage.Backends)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.max_sessions", cfg.Server.MaxSessions)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.burst", cfg.Server.Burst)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("server.allow_origins", cfg.Server.AllowOrigins)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
