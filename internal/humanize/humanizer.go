package humanize

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/partscout/internal/config"
)

// Pointer is the mouse surface a Humanizer drives.
type Pointer interface {
	MoveTo(p Point) error
	Down() error
	Up() error
	Scroll(dy float64) error
}

// Keyboard types a single character.
type Keyboard interface {
	TypeRune(r rune) error
}

// Humanizer tracks the cursor position of one page and paces input on it.
// It is safe for concurrent use, though a page is normally driven by one goroutine.
type Humanizer struct {
	cfg    config.HumanizeConfig
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
	pos Point
}

// Option configures a Humanizer.
type Option func(*Humanizer)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(h *Humanizer) { h.rng = rng }
}

// WithStart sets the initial cursor position.
func WithStart(p Point) Option {
	return func(h *Humanizer) { h.pos = p }
}

// New creates a Humanizer with the cursor parked somewhere near the top-left
// of the viewport, the way a freshly focused window usually has it.
func New(cfg config.HumanizeConfig, logger *slog.Logger, opts ...Option) *Humanizer {
	h := &Humanizer{
		cfg:    cfg,
		logger: logger.With("component", "humanize"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	h.pos = Point{X: float64(intBetween(h.rng, 30, 200)), Y: float64(intBetween(h.rng, 120, 300))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports whether pacing and curved motion are turned on.
func (h *Humanizer) Enabled() bool { return h.cfg.Enabled }

// Position returns the last cursor target.
func (h *Humanizer) Position() Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Params returns the path parameters derived from config.
func (h *Humanizer) Params() PathParams {
	return PathParams{
		MinSteps:     h.cfg.MinSteps,
		MaxSteps:     h.cfg.MaxSteps,
		Wobble:       h.cfg.Wobble,
		JitterRadius: h.cfg.JitterRadius,
		MaxJitter:    h.cfg.MaxJitterMoves,
	}
}

// Plan computes the path from the current position to target without moving.
func (h *Humanizer) Plan(target Point) Path {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cfg.Enabled {
		return Path{Curve: Curve{Start: h.pos, C1: h.pos, C2: target, End: target}, Points: []Point{target}}
	}
	return NewPath(h.pos, target, h.Params(), h.rng)
}

// Move drives the pointer along a planned path to target. Move errors are
// logged and dropped; the remembered position becomes target either way.
func (h *Humanizer) Move(ctx context.Context, p Pointer, target Point) {
	path := h.Plan(target)
	h.logger.Debug("mouse move",
		"start", path.Curve.Start,
		"end", target,
		"c1", path.Curve.C1,
		"c2", path.Curve.C2,
		"steps", len(path.Points),
		"jitter", len(path.Jitter),
	)

	for _, pt := range path.All() {
		if ctx.Err() != nil {
			break
		}
		if err := p.MoveTo(pt); err != nil {
			h.logger.Debug("mouse move failed", "x", pt.X, "y", pt.Y, "error", err)
		}
	}

	h.mu.Lock()
	h.pos = target
	h.mu.Unlock()
}

// Click moves into box, hesitates, then presses and releases the button.
func (h *Humanizer) Click(ctx context.Context, p Pointer, box Box) error {
	h.mu.Lock()
	target := PointIn(box, h.rng)
	h.mu.Unlock()

	h.Move(ctx, p, target)
	if err := h.Sleep(ctx, h.cfg.HesitateMin, h.cfg.HesitateMax); err != nil {
		return err
	}
	if err := p.Down(); err != nil {
		return err
	}
	if err := h.Sleep(ctx, h.cfg.PressMin, h.cfg.PressMax); err != nil {
		_ = p.Up()
		return err
	}
	if err := p.Up(); err != nil {
		return err
	}
	return h.Delay(ctx)
}

// Type sends text one rune at a time with per-key delays and the occasional pause.
func (h *Humanizer) Type(ctx context.Context, kb Keyboard, text string) error {
	h.logger.Debug("typing text", "length", len(text), "masked", strings.Repeat("*", min(28, len(text))))
	for _, r := range text {
		h.mu.Lock()
		pause := h.cfg.Enabled && h.rng.Float64() < h.cfg.TypingPauseChance
		h.mu.Unlock()
		if pause {
			if err := h.Sleep(ctx, h.cfg.TypingPauseMin, h.cfg.TypingPauseMax); err != nil {
				return err
			}
		}
		if err := kb.TypeRune(r); err != nil {
			return err
		}
		if err := h.Sleep(ctx, h.cfg.KeyDelayMin, h.cfg.KeyDelayMax); err != nil {
			return err
		}
	}
	return nil
}

// Delay waits the standard between-action pause.
func (h *Humanizer) Delay(ctx context.Context) error {
	return h.Sleep(ctx, h.cfg.DelayMin, h.cfg.DelayMax)
}

// MaybeThink occasionally waits a longer pause.
func (h *Humanizer) MaybeThink(ctx context.Context) error {
	h.mu.Lock()
	think := h.cfg.Enabled && h.rng.Float64() < h.cfg.ThinkChance
	h.mu.Unlock()
	if !think {
		h.logger.Debug("long think skipped")
		return nil
	}
	h.logger.Debug("long think triggered")
	return h.Sleep(ctx, h.cfg.ThinkMin, h.cfg.ThinkMax)
}

// MaybeScroll occasionally scrolls the page down a little.
func (h *Humanizer) MaybeScroll(ctx context.Context, p Pointer) error {
	h.mu.Lock()
	scroll := h.cfg.Enabled && h.rng.Float64() < h.cfg.ScrollChance
	px := intBetween(h.rng, h.cfg.ScrollMin, h.cfg.ScrollMax)
	h.mu.Unlock()
	if !scroll {
		h.logger.Debug("skipping scroll")
		return nil
	}
	h.logger.Debug("scrolling", "pixels", px)
	if err := p.Scroll(float64(px)); err != nil {
		h.logger.Debug("scroll failed", "error", err)
	}
	return h.Sleep(ctx, 200*time.Millisecond, 500*time.Millisecond)
}

// Sleep waits a uniform duration in [lo, hi] unless disabled or ctx ends first.
func (h *Humanizer) Sleep(ctx context.Context, lo, hi time.Duration) error {
	if !h.cfg.Enabled {
		return ctx.Err()
	}
	h.mu.Lock()
	d := lo
	if hi > lo {
		d += time.Duration(h.rng.Int63n(int64(hi-lo) + 1))
	}
	h.mu.Unlock()
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
