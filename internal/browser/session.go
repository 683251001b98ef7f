package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/humanize"
	"github.com/IshaanNene/partscout/internal/observability"
)

// blockedResources are aborted when browser.block_resources is set.
var blockedResources = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeFont,
}

// Session owns one Chromium process. Pages opened from it share cookies.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      *config.Config
	proxyMgr *fetcher.ProxyManager
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithProxy routes the browser through the next proxy from pm.
func WithProxy(pm *fetcher.ProxyManager) Option {
	return func(s *Session) { s.proxyMgr = pm }
}

// WithMetrics records browser counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Launch starts Chromium and connects to it.
func Launch(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		logger: logger.With("component", "browser"),
	}
	for _, opt := range opts {
		opt(s)
	}

	controlURL, err := s.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		s.launcher.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(1)
	}

	s.logger.Info("browser ready",
		"headless", cfg.Browser.Headless,
		"stealth", cfg.Browser.Stealth,
		"block_resources", cfg.Browser.BlockResources,
	)
	return s, nil
}

// launchBrowser starts a Chromium instance with the anti-automation flags.
func (s *Session) launchBrowser() (string, error) {
	b := s.cfg.Browser
	l := launcher.New().
		Headless(b.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", b.Locale).
		Set("window-size", fmt.Sprintf("%d,%d", b.ViewportWidth, b.ViewportHeight))

	if b.Bin != "" {
		l = l.Bin(b.Bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	if b.UserDataDir != "" {
		l = l.UserDataDir(b.UserDataDir)
	}
	if s.proxyMgr != nil {
		if proxyURL := s.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
			if s.metrics != nil {
				s.metrics.ProxyRotations.Add(1)
			}
			s.logger.Debug("browser proxy", "host", proxyURL.Host)
		}
	}

	s.launcher = l
	return l.Launch()
}

// NewPage opens a tab with the configured identity and a fresh humanizer.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("browser session closed")
	}

	b := s.cfg.Browser
	var (
		rp  *rod.Page
		err error
	)
	if b.Stealth {
		rp, err = stealth.Page(s.browser)
	} else {
		rp, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := s.emulate(rp); err != nil {
		_ = rp.Close()
		return nil, err
	}

	p := &Page{
		rod:     rp.Context(ctx),
		ctx:     ctx,
		cfg:     s.cfg,
		human:   humanize.New(s.cfg.Humanize, s.logger),
		metrics: s.metrics,
		logger:  s.logger.With("page", len(s.pages)+1),
	}
	if b.BlockResources {
		p.router = s.blockResources(rp)
	}
	s.pages = append(s.pages, p)
	if s.metrics != nil {
		s.metrics.PagesOpened.Add(1)
	}
	return p, nil
}

// emulate applies user agent, locale, timezone and viewport.
func (s *Session) emulate(rp *rod.Page) error {
	b := s.cfg.Browser
	if err := rp.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      b.UserAgent,
		AcceptLanguage: b.Locale,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.ViewportWidth,
		Height:            b.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if b.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: b.Timezone}).Call(rp); err != nil {
			s.logger.Warn("timezone override failed", "timezone", b.Timezone, "error", err)
		}
	}
	if b.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: b.Locale}).Call(rp); err != nil {
			s.logger.Warn("locale override failed", "locale", b.Locale, "error", err)
		}
	}
	return nil
}

func (s *Session) blockResources(rp *rod.Page) *rod.HijackRouter {
	router := rp.HijackRequests()
	for _, rt := range blockedResources {
		err := router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err != nil {
			s.logger.Warn("resource blocking unavailable", "type", rt, "error", err)
		}
	}
	go router.Run()
	return router
}

// Close shuts the pages and the browser process.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for _, p := range s.pages {
		p.close()
	}
	s.pages = nil

	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(-1)
	}
	s.logger.Debug("browser closed")
	return err
}
