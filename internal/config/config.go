package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for partscout.
type Config struct {
	Browser  BrowserConfig            `mapstructure:"browser"  yaml:"browser"`
	Humanize HumanizeConfig           `mapstructure:"humanize" yaml:"humanize"`
	Catalogs map[string]CatalogConfig `mapstructure:"catalogs" yaml:"catalogs"`
	Fetcher  FetcherConfig            `mapstructure:"fetcher"  yaml:"fetcher"`
	Proxy    ProxyConfig              `mapstructure:"proxy"    yaml:"proxy"`
	Cache    CacheConfig              `mapstructure:"cache"    yaml:"cache"`
	Storage  StorageConfig            `mapstructure:"storage"  yaml:"storage"`
	Server   ServerConfig             `mapstructure:"server"   yaml:"server"`
	Logging  LoggingConfig            `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig            `mapstructure:"metrics"  yaml:"metrics"`
}

// BrowserConfig controls the Chromium instance driven by rod.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	UserDataDir       string        `mapstructure:"user_data_dir"      yaml:"user_data_dir"`
	UserAgent         string        `mapstructure:"user_agent"         yaml:"user_agent"`
	Locale            string        `mapstructure:"locale"             yaml:"locale"`
	Timezone          string        `mapstructure:"timezone"           yaml:"timezone"`
	ViewportWidth     int           `mapstructure:"viewport_width"     yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"    yaml:"viewport_height"`
	Timeout           time.Duration `mapstructure:"timeout"            yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NavigationRetries int           `mapstructure:"navigation_retries" yaml:"navigation_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"        yaml:"retry_delay"`
	BlockResources    bool          `mapstructure:"block_resources"    yaml:"block_resources"`
	DiagnosticsDir    string        `mapstructure:"diagnostics_dir"    yaml:"diagnostics_dir"`
	Stealth           bool          `mapstructure:"stealth"            yaml:"stealth"`
}

// HumanizeConfig holds the random ranges used to make input look manual.
// Durations are [min, max] pairs; probabilities are in [0, 1].
type HumanizeConfig struct {
	Enabled           bool          `mapstructure:"enabled"             yaml:"enabled"`
	MinSteps          int           `mapstructure:"min_steps"           yaml:"min_steps"`
	MaxSteps          int           `mapstructure:"max_steps"           yaml:"max_steps"`
	Wobble            float64       `mapstructure:"wobble"              yaml:"wobble"`
	JitterRadius      float64       `mapstructure:"jitter_radius"       yaml:"jitter_radius"`
	MaxJitterMoves    int           `mapstructure:"max_jitter_moves"    yaml:"max_jitter_moves"`
	DelayMin          time.Duration `mapstructure:"delay_min"           yaml:"delay_min"`
	DelayMax          time.Duration `mapstructure:"delay_max"           yaml:"delay_max"`
	HesitateMin       time.Duration `mapstructure:"hesitate_min"        yaml:"hesitate_min"`
	HesitateMax       time.Duration `mapstructure:"hesitate_max"        yaml:"hesitate_max"`
	PressMin          time.Duration `mapstructure:"press_min"           yaml:"press_min"`
	PressMax          time.Duration `mapstructure:"press_max"           yaml:"press_max"`
	ThinkChance       float64       `mapstructure:"think_chance"        yaml:"think_chance"`
	ThinkMin          time.Duration `mapstructure:"think_min"           yaml:"think_min"`
	ThinkMax          time.Duration `mapstructure:"think_max"           yaml:"think_max"`
	KeyDelayMin       time.Duration `mapstructure:"key_delay_min"       yaml:"key_delay_min"`
	KeyDelayMax       time.Duration `mapstructure:"key_delay_max"       yaml:"key_delay_max"`
	TypingPauseChance float64       `mapstructure:"typing_pause_chance" yaml:"typing_pause_chance"`
	TypingPauseMin    time.Duration `mapstructure:"typing_pause_min"    yaml:"typing_pause_min"`
	TypingPauseMax    time.Duration `mapstructure:"typing_pause_max"    yaml:"typing_pause_max"`
	ScrollChance      float64       `mapstructure:"scroll_chance"       yaml:"scroll_chance"`
	ScrollMin         int           `mapstructure:"scroll_min"          yaml:"scroll_min"`
	ScrollMax         int           `mapstructure:"scroll_max"          yaml:"scroll_max"`
}

// CatalogConfig is the per-site section under catalogs.<site>.
type CatalogConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// FetcherConfig controls the plain HTTP client used for server-rendered pages.
type FetcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// ProxyConfig controls proxy rotation for both the browser and HTTP client.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
	// CheckURL is requested through every proxy when the server starts and
	// then every CheckInterval. A zero interval checks once.
	CheckURL      string        `mapstructure:"check_url"      yaml:"check_url"`
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// CacheConfig controls the SQLite result cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Path    string        `mapstructure:"path"    yaml:"path"`
	TTL     time.Duration `mapstructure:"ttl"     yaml:"ttl"`
}

// StorageConfig controls archiving of scrape results.
type StorageConfig struct {
	Backends        []string `mapstructure:"backends"         yaml:"backends"`
	OutputPath      string   `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string   `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string   `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string   `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// ServerConfig controls the HTTP service.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"            yaml:"addr"`
	MaxSessions    int           `mapstructure:"max_sessions"    yaml:"max_sessions"`
	RateLimit      float64       `mapstructure:"rate_limit"      yaml:"rate_limit"`
	Burst          int           `mapstructure:"burst"           yaml:"burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AllowOrigins   []string      `mapstructure:"allow_origins"   yaml:"allow_origins"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Site names used as keys under catalogs.
const (
	SiteSevenZap = "sevenzap"
	SiteRealOEM  = "realoem"
	SiteEtka     = "etka"
	SiteMercedes = "mercedes"
	SiteSSG      = "ssg"
	SiteAutodoc  = "autodoc"
)

// DefaultUserAgent matches the desktop Chrome build the catalogs were tested against.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         DefaultUserAgent,
			Locale:            "en-US",
			Timezone:          "Africa/Cairo",
			ViewportWidth:     1366,
			ViewportHeight:    864,
			Timeout:           60 * time.Second,
			NavigationTimeout: 60 * time.Second,
			NavigationRetries: 3,
			RetryDelay:        3 * time.Second,
			BlockResources:    false,
			DiagnosticsDir:    "/tmp",
			Stealth:           true,
		},
		Humanize: HumanizeConfig{
			Enabled:           true,
			MinSteps:          18,
			MaxSteps:          42,
			Wobble:            0.35,
			JitterRadius:      1.5,
			MaxJitterMoves:    2,
			DelayMin:          180 * time.Millisecond,
			DelayMax:          580 * time.Millisecond,
			HesitateMin:       50 * time.Millisecond,
			HesitateMax:       180 * time.Millisecond,
			PressMin:          30 * time.Millisecond,
			PressMax:          90 * time.Millisecond,
			ThinkChance:       0.22,
			ThinkMin:          600 * time.Millisecond,
			ThinkMax:          1200 * time.Millisecond,
			KeyDelayMin:       55 * time.Millisecond,
			KeyDelayMax:       160 * time.Millisecond,
			TypingPauseChance: 0.06,
			TypingPauseMin:    220 * time.Millisecond,
			TypingPauseMax:    550 * time.Millisecond,
			ScrollChance:      0.35,
			ScrollMin:         180,
			ScrollMax:         800,
		},
		Catalogs: map[string]CatalogConfig{
			SiteSevenZap: {BaseURL: "https://7zap.com/en/"},
			SiteRealOEM:  {BaseURL: "http://www.realoem.com"},
			SiteEtka:     {BaseURL: "https://superetka.com/etka/"},
			SiteMercedes: {BaseURL: "https://mb-teilekatalog.info/?lang=E"},
			SiteSSG:      {BaseURL: "https://ssg.asia/"},
			SiteAutodoc:  {BaseURL: "https://www.autodoc.co.uk"},
		},
		Fetcher: FetcherConfig{
			Timeout:         30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MaxRedirects:    10,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
		},
		Proxy: ProxyConfig{
			Enabled:       false,
			Rotation:      "round_robin",
			CheckURL:      "https://7zap.com/en/",
			CheckInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "./partscout-cache.db",
			TTL:     24 * time.Hour,
		},
		Storage: StorageConfig{
			OutputPath:      "./output/results.jsonl",
			MongoDatabase:   "partscout",
			MongoCollection: "results",
		},
		Server: ServerConfig{
			Addr:           ":3000",
			MaxSessions:    2,
			RateLimit:      1,
			Burst:          5,
			RequestTimeout: 5 * time.Minute,
			AllowOrigins:   []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Catalog returns the section for site, falling back to the built-in default.
func (c *Config) Catalog(site string) CatalogConfig {
	cc, ok := c.Catalogs[site]
	def := DefaultConfig().Catalogs[site]
	if !ok {
		return def
	}
	if cc.BaseURL == "" {
		cc.BaseURL = def.BaseURL
	}
	return cc
}
