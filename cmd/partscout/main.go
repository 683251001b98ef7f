package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/types"
)

var (
	cfgFile string
	verbose bool
	noCache bool
	headful bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	fmt.Fprintf(os.Stderr, "EXITING_WITH=%d\n", code)
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return types.ExitCode(err)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	registry := catalog.Default(slog.New(slog.NewTextHandler(io.Discard, nil)))

	rootCmd := &cobra.Command{
		Use:   "partscout <site> <operation> <args...>",
		Short: "partscout - OEM part numbers and vehicle details from online parts catalogs",
		Long: `partscout drives a headless Chromium through online OEM parts catalogs
(7zap, RealOEM, ETKA, Mercedes, SSG) and autodoc, and prints the part
numbers or vehicle details it finds as JSON on stdout.

Logs go to stderr. The last stderr line is always EXITING_WITH=<code>.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return fmt.Errorf("%w: a site is required (known: %s)", types.ErrInvalidInput, strings.Join(registry.Sites(), ", "))
			}
			_, _, err := registry.Lookup(args[0], "")
			return err
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "skip the result cache")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "show the browser window")

	for _, site := range registry.Sites() {
		c, _ := registry.Get(site)
		rootCmd.AddCommand(siteCmd(registry, c, stdout))
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cacheCmd(stdout))
	rootCmd.AddCommand(configCmd(stdout))
	rootCmd.AddCommand(versionCmd(stdout))

	return rootCmd
}

// versionCmd creates the "version" subcommand.
func versionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "partscout %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			w := stdout
			fmt.Fprintf(w, "Browser:\n")
			fmt.Fprintf(w, "  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Fprintf(w, "  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Fprintf(w, "  Navigation:        %s timeout, %d retries\n", cfg.Browser.NavigationTimeout, cfg.Browser.NavigationRetries)
			fmt.Fprintf(w, "  Viewport:          %dx%d\n", cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight)
			fmt.Fprintf(w, "  Diagnostics Dir:   %s\n", cfg.Browser.DiagnosticsDir)
			fmt.Fprintf(w, "\nHumanize:\n")
			fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Humanize.Enabled)
			fmt.Fprintf(w, "  Delay:             %s - %s\n", cfg.Humanize.DelayMin, cfg.Humanize.DelayMax)
			fmt.Fprintf(w, "\nCatalogs:\n")
			for _, site := range sortedSites(cfg) {
				cc := cfg.Catalog(site)
				fmt.Fprintf(w, "  %-10s %s (user: %s)\n", site+":", cc.BaseURL, mask(cc.Username))
			}
			fmt.Fprintf(w, "\nProxy:\n")
			fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Proxy.Enabled)
			fmt.Fprintf(w, "  Rotation:          %s\n", cfg.Proxy.Rotation)
			fmt.Fprintf(w, "  Count:             %d\n", len(cfg.Proxy.URLs))
			fmt.Fprintf(w, "\nCache:\n")
			fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Cache.Enabled)
			fmt.Fprintf(w, "  Path:              %s\n", cfg.Cache.Path)
			fmt.Fprintf(w, "  TTL:               %s\n", cfg.Cache.TTL)
			fmt.Fprintf(w, "\nStorage:\n")
			fmt.Fprintf(w, "  Backends:          %s\n", strings.Join(cfg.Storage.Backends, ", "))
			fmt.Fprintf(w, "  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Fprintf(w, "\nServer:\n")
			fmt.Fprintf(w, "  Addr:              %s\n", cfg.Server.Addr)
			fmt.Fprintf(w, "  Max Sessions:      %d\n", cfg.Server.MaxSessions)
			fmt.Fprintf(w, "  Rate Limit:        %.2f/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.Burst)
			fmt.Fprintf(w, "\nMetrics:\n")
			fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Fprintf(w, "  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setup loads and validates the config and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load config: %v", types.ErrInvalidInput, err)
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid config: %v", types.ErrInvalidInput, err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)
	if v := os.Getenv("USE_CAMOUFOX"); v != "" {
		logger.Warn("USE_CAMOUFOX is ignored, Chromium is always used", "value", v)
	}
	return cfg, logger, nil
}

// setupLogger creates a structured logger on w.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func mask(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}

func sortedSites(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var sites []string
	for _, s := range []string{
		config.SiteSevenZap, config.SiteRealOEM, config.SiteEtka,
		config.SiteMercedes, config.SiteSSG, config.SiteAutodoc,
	} {
		seen[s] = true
		sites = append(sites, s)
	}
	var extra []string
	for s := range cfg.Catalogs {
		if !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(sites, extra...)
}
