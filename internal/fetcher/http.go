package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// challengeMarkers appear in anti-bot interstitials served with a 200 or 403.
var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-platform",
	"Just a moment...",
	"Attention Required! | Cloudflare",
	"captcha-delivery.com",
}

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client      *http.Client
	cfg         *config.FetcherConfig
	userAgent   string
	locale      string
	proxyMgr    *ProxyManager
	limiter     *rate.Limiter
	metrics     *observability.Metrics
	maxAttempts int
	logger      *slog.Logger
}

// HTTPOption configures the HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithMetrics records request counters.
func WithMetrics(m *observability.Metrics) HTTPOption {
	return func(f *HTTPFetcher) { f.metrics = m }
}

// WithRateLimit spaces requests to at most r per second.
func WithRateLimit(r float64, burst int) HTTPOption {
	return func(f *HTTPFetcher) { f.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithMaxAttempts sets how many times a retryable failure is attempted.
func WithMaxAttempts(n int) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithProxyManager routes requests through pm instead of a manager built
// from the proxy config.
func WithProxyManager(pm *ProxyManager) HTTPOption {
	return func(f *HTTPFetcher) { f.proxyMgr = pm }
}

// WithTransport replaces the round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) HTTPOption {
	return func(f *HTTPFetcher) { f.client.Transport = rt }
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger, opts ...HTTPOption) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: max(1, cfg.Fetcher.MaxIdleConns/2),
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decompression (including brotli) is handled below
	}


	maxRedirects := cfg.Fetcher.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Fetcher.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("max redirects (%d) reached", maxRedirects)
			}
			return nil
		},
	}

	f := &HTTPFetcher{
		client:      client,
		cfg:         &cfg.Fetcher,
		userAgent:   cfg.Browser.UserAgent,
		locale:      cfg.Browser.Locale,
		maxAttempts: 2,
		logger:      logger.With("component", "http_fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.proxyMgr == nil && cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		f.proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}
	if f.proxyMgr != nil {
		transport.Proxy = f.proxyMgr.ProxyFunc()
	}
	if f.userAgent == "" {
		f.userAgent = config.DefaultUserAgent
	}
	return f, nil
}

// Fetch GETs rawURL, retrying retryable failures with a jittered back-off.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		resp, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var fe *types.FetchError
		if !errors.As(err, &fe) || !fe.Retryable || attempt == f.maxAttempts {
			break
		}
		wait := RandomDelay(time.Second)
		if fe.RetryAfter > 0 {
			wait = fe.RetryAfter
		}
		f.logger.Warn("fetch failed, retrying", "url", rawURL, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if f.metrics != nil {
		f.metrics.HTTPFailures.Add(1)
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}
	f.setBrowserHeaders(httpReq)

	if f.metrics != nil {
		f.metrics.HTTPRequests.Add(1)
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	// Handle 429 Too Many Requests, respecting Retry-After if present
	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s)", retryAfter),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	}

	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}
	if f.metrics != nil {
		f.metrics.BytesDownloaded.Add(int64(len(body)))
	}

	if isChallenge(httpResp.StatusCode, body) {
		return nil, &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: types.ErrChallenged}
	}
	if httpResp.StatusCode >= 500 {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", httpResp.StatusCode),
			Retryable:  true,
		}
	}
	if httpResp.StatusCode >= 400 {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", httpResp.StatusCode),
		}
	}

	finalURL := rawURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return &Response{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// setBrowserHeaders sends the header set a desktop Chrome navigation would.
func (f *HTTPFetcher) setBrowserHeaders(req *http.Request) {
	lang := f.locale
	if lang == "" {
		lang = "en-US"
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", lang+",en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Ch-Ua", `"Chromium";v="120", "Not?A_Brand";v="8", "Google Chrome";v="120"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
}

func isChallenge(status int, body []byte) bool {
	if status != http.StatusOK && status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false
	}
	head := body
	if len(head) > 16*1024 {
		head = head[:16*1024]
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(head, []byte(m)) {
			return true
		}
	}
	return false
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}
