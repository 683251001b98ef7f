// Package catalog holds one navigation flow per parts-catalog site. A flow
// drives a browser page (or, for autodoc, a plain HTTP fetcher) to the page
// that lists the requested parts, snapshots it and hands it to the parser.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// Handler runs one operation. The returned value is marshalled as the result.
type Handler func(ctx context.Context, env *Env, q *types.Query) (any, error)

// Operation is one command a catalog supports.
type Operation struct {
	Name  string
	Usage string
	Kind  types.ResultKind

	// NeedVIN is false only for lookups keyed by part number.
	NeedVIN bool
	// MinArgs is the number of words required after the VIN.
	MinArgs int

	Run Handler
}

// Check validates q against the operation's arity.
func (op *Operation) Check(q *types.Query) error {
	if op.NeedVIN && q.VIN == "" {
		return fmt.Errorf("%w: %s %s needs a VIN (usage: %s)", types.ErrInvalidInput, q.Site, op.Name, op.Usage)
	}
	if len(q.Args) < op.MinArgs {
		return fmt.Errorf("%w: %s %s (usage: %s)", types.ErrInvalidInput, q.Site, op.Name, op.Usage)
	}
	return nil
}

// Catalog is one site and its operations.
type Catalog struct {
	Site string
	// Credentials marks sites that require catalogs.<site>.username/password.
	Credentials bool

	ops   map[string]*Operation
	order []string
}

// NewCatalog creates a catalog with the given operations.
func NewCatalog(site string, credentials bool, ops ...*Operation) *Catalog {
	c := &Catalog{Site: site, Credentials: credentials, ops: make(map[string]*Operation)}
	for _, op := range ops {
		c.ops[op.Name] = op
		c.order = append(c.order, op.Name)
	}
	return c
}

// Operation returns the named operation.
func (c *Catalog) Operation(name string) (*Operation, bool) {
	op, ok := c.ops[strings.ToLower(name)]
	return op, ok
}

// Operations returns the operations in registration order.
func (c *Catalog) Operations() []*Operation {
	out := make([]*Operation, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.ops[name])
	}
	return out
}

// PageOpener hands out browser tabs. *browser.Session implements it.
type PageOpener interface {
	NewPage(ctx context.Context) (*browser.Page, error)
}

// Env is what a flow may use.
type Env struct {
	Config  *config.Config
	Browser PageOpener
	Fetcher fetcher.Fetcher
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// page opens a tab, or fails when the environment has no browser.
func (e *Env) page(ctx context.Context) (*browser.Page, error) {
	if e.Browser == nil {
		return nil, fmt.Errorf("no browser available")
	}
	return e.Browser.NewPage(ctx)
}

// flowLogger scopes the logger to one query.
func (e *Env) flowLogger(q *types.Query) *slog.Logger {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	l = l.With("site", q.Site, "operation", q.Operation)
	if q.VIN != "" {
		l = l.With("vin", q.VIN)
	}
	return l
}

// step logs a named stage of a flow at info level.
func step(l *slog.Logger, name string, args ...any) {
	l.Info("step", append([]any{"step", name}, args...)...)
}

// unsupported builds an error listing the accepted values.
func unsupported(sentinel error, got string, allowed []string) error {
	return fmt.Errorf("%w: %q (allowed: %s)", sentinel, got, strings.Join(allowed, ", "))
}

// clickLabel clicks the first element showing text, trying the selectors in
// order. Only the first selector gets the full timeout.
func clickLabel(p *browser.Page, text string, timeout time.Duration, sels ...string) error {
	var lastErr error
	for i, sel := range sels {
		if i > 0 {
			timeout = 2 * time.Second
		}
		if lastErr = p.ClickText(sel, text, timeout); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
