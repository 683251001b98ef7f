// Package api serves catalog lookups over HTTP. It keeps the routes of the
// older Express wrappers and adds a generic, job-based endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/engine"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// Runner executes one catalog query.
type Runner interface {
	Run(ctx context.Context, q *types.Query, opts engine.RunOptions) (*engine.Result, error)
}

// statsRunner is a Runner that also reports run counters.
type statsRunner interface {
	Stats() *engine.Stats
}

// Server provides the REST API.
type Server struct {
	router    *gin.Engine
	cfg       config.ServerConfig
	runner    Runner
	sessions  *semaphore.Weighted
	limiter   *RateLimiter
	scheduler *engine.Scheduler
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts requests and rejections and serves a stats route.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates the API server. At most cfg.Server.MaxSessions queries
// run at once, across synchronous routes and background jobs.
func NewServer(cfg *config.Config, runner Runner, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.Server,
		runner:   runner,
		sessions: semaphore.NewWeighted(int64(max(1, cfg.Server.MaxSessions))),
		limiter:  NewRateLimiter(rate.Limit(cfg.Server.RateLimit), max(1, cfg.Server.Burst)),
		logger:   logger.With("component", "api_server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = engine.NewScheduler(s.runLimited, max(1, cfg.Server.MaxSessions), cfg.Server.RequestTimeout, logger)

	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLog(s.logger, s.metrics))

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.AllowOrigins) == 0 || (len(s.cfg.AllowOrigins) == 1 && s.cfg.AllowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	s.router.Use(cors.New(corsCfg))

	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Scheduler returns the background job scheduler.
func (s *Server) Scheduler() *engine.Scheduler {
	return s.scheduler
}

// ListenAndServe serves until ctx is cancelled, then drains running jobs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.scheduler.Start(ctx)
	go s.limiter.Cleanup(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", s.cfg.Addr, "max_sessions", s.cfg.MaxSessions)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.scheduler.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.scheduler.Stop()
	s.logger.Info("API server stopped")
	return err
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleHealth)

	limited := s.router.Group("/", rateLimit(s.limiter, s.metrics, s.logger))
	limited.POST("/find-part", s.handleFindPart)
	limited.GET("/get-car-details/:vin", s.handleCarDetails)
	limited.POST("/superetka/scrape", s.handleEtkaScrape)
	limited.POST("/superetka/getVehicleInfo", s.handleEtkaVehicle)

	v1 := limited.Group("/api/v1")
	v1.POST("/scrape", s.handleScrape)
	v1.GET("/jobs/:id", s.handleGetJob)

	s.router.GET("/api/v1/stats", s.handleStats)
	s.router.GET("/dashboard", s.handleDashboard)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Scraper services running",
		"version": config.Version,
	})
}

// handleFindPart is the RealOEM part lookup. The body is the JSON part
// list, exactly as the CLI prints it.
func (s *Server) handleFindPart(c *gin.Context) {
	var body struct {
		VIN  string `json:"vin"`
		Part string `json:"part"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.VIN == "" || body.Part == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vin and part are required."})
		return
	}
	res, err := s.runSync(c, config.SiteRealOEM, "find-part", body.VIN, body.Part)
	if err != nil {
		s.fail(c, err, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.JSON())
}

func (s *Server) handleCarDetails(c *gin.Context) {
	vin := c.Param("vin")
	if strings.TrimSpace(vin) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VIN is required."})
		return
	}
	res, err := s.runSync(c, config.SiteRealOEM, "vehicle", vin)
	if err != nil {
		s.fail(c, err, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.JSON())
}

// handleEtkaScrape looks up one AC part number. Older clients send the part
// as "part", newer ones as "partType".
func (s *Server) handleEtkaScrape(c *gin.Context) {
	var body struct {
		VIN      string `json:"vin"`
		Part     string `json:"part"`
		PartType string `json:"partType"`
	}
	_ = c.ShouldBindJSON(&body)
	part := body.Part
	if part == "" {
		part = body.PartType
	}
	if body.VIN == "" || part == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vin and part are required."})
		return
	}

	res, err := s.runSync(c, config.SiteEtka, "parts", body.VIN, strings.ToLower(part))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrNoMatch) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Part not found"})
			return
		}
		s.fail(c, err, gin.H{"success": false, "error": err.Error()})
		return
	}
	var num *string
	if err := json.Unmarshal(res.JSON(), &num); err != nil || num == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Part not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "part": *num})
}

func (s *Server) handleEtkaVehicle(c *gin.Context) {
	var body struct {
		VIN string `json:"vin"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.VIN == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "VIN is required."})
		return
	}

	res, err := s.runSync(c, config.SiteEtka, "vehicle", body.VIN)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrNoMatch) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No vehicle details found."})
			return
		}
		s.fail(c, err, gin.H{"success": false, "error": err.Error()})
		return
	}
	info, err := snakeKeys(res.JSON())
	if err != nil || info.Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No vehicle details found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vin": body.VIN, "vehicleInfo": info})
}

type scrapeRequest struct {
	Site      string   `json:"site"`
	Operation string   `json:"operation"`
	VIN       string   `json:"vin"`
	Query     string   `json:"query"`
	Args      []string `json:"args"`
	NoCache   bool     `json:"no_cache"`
	Wait      bool     `json:"wait"`
}

// handleScrape runs any catalog operation. By default it queues a job and
// answers 202; with "wait" it answers with the result.
func (s *Server) handleScrape(c *gin.Context) {
	var body scrapeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.Site == "" || body.Operation == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site and operation are required."})
		return
	}
	args := body.Args
	if body.Query != "" {
		args = append([]string{body.Query}, args...)
	}
	q, err := types.NewQuery(body.Site, body.Operation, body.VIN, args...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts := engine.RunOptions{NoCache: body.NoCache}

	if body.Wait {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		res, err := s.runLimited(ctx, q, opts)
		if err != nil {
			out := gin.H{"error": err.Error(), "exit_code": types.ExitCode(err)}
			if res != nil {
				out["result"] = json.RawMessage(res.JSON())
			}
			s.fail(c, err, out)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"result":      json.RawMessage(res.JSON()),
			"cached":      res.Cached,
			"duration_ms": res.Duration.Milliseconds(),
		})
		return
	}

	job, err := s.scheduler.Submit(q, opts)
	if err != nil {
		if s.metrics != nil {
			s.metrics.APIBusy.Add(1)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.scheduler.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleStats(c *gin.Context) {
	out := gin.H{
		"jobs_pending": s.scheduler.Pending(),
		"jobs_running": s.scheduler.Busy(),
	}
	if sr, ok := s.runner.(statsRunner); ok {
		out["runner"] = sr.Stats().Snapshot()
	}
	if s.metrics != nil {
		out["metrics"] = s.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, out)
}

// errBusy is returned when no session slot frees up before the deadline.
var errBusy = errors.New("all browser sessions are busy")

// runSync runs a query for a legacy route under the request timeout.
func (s *Server) runSync(c *gin.Context, site, op, vin string, args ...string) (*engine.Result, error) {
	q, err := types.NewQuery(site, op, vin, args...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	return s.runLimited(ctx, q, engine.RunOptions{})
}

// runLimited waits for a session slot, then runs q.
func (s *Server) runLimited(ctx context.Context, q *types.Query, opts engine.RunOptions) (*engine.Result, error) {
	if err := s.sessions.Acquire(ctx, 1); err != nil {
		if s.metrics != nil {
			s.metrics.APIBusy.Add(1)
		}
		return nil, fmt.Errorf("%w: %v", errBusy, err)
	}
	defer s.sessions.Release(1)
	return s.runner.Run(ctx, q, opts)
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// fail writes body with the status matching err.
func (s *Server) fail(c *gin.Context, err error, body gin.H) {
	c.JSON(statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, types.ErrUnsupportedPart),
		errors.Is(err, types.ErrUnsupportedGroup),
		errors.Is(err, types.ErrUnsupportedOperation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoMatch), errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var (
	keySpaceRe = regexp.MustCompile(`\s+`)
	keyDropRe  = regexp.MustCompile(`[^a-z0-9_]`)
)

// snakeKeys rewrites the keys of a JSON object to lower_snake_case,
// keeping their order.
func snakeKeys(raw []byte) (*types.Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	out := types.NewAttributes()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		key = keyDropRe.ReplaceAllString(keySpaceRe.ReplaceAllString(strings.ToLower(key), "_"), "")
		out.Set(key, v)
	}
	return out, nil
}
