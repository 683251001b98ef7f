package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/IshaanNene/partscout/internal/types"
)

// Registry maps site names to catalogs.
type Registry struct {
	catalogs map[string]*Catalog
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		catalogs: make(map[string]*Catalog),
		logger:   logger.With("component", "catalog_registry"),
	}
}

// Default returns a registry holding every built-in site.
func Default(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, c := range []*Catalog{
		SevenZap(),
		RealOEM(),
		Etka(),
		Mercedes(),
		SSG(),
		Autodoc(),
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a catalog.
func (r *Registry) Register(c *Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.catalogs[c.Site]; exists {
		return fmt.Errorf("catalog %q already registered", c.Site)
	}
	r.catalogs[c.Site] = c
	r.logger.Debug("catalog registered", "site", c.Site, "operations", len(c.order))
	return nil
}

// Get returns a catalog by site name.
func (r *Registry) Get(site string) (*Catalog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.catalogs[strings.ToLower(site)]
	return c, ok
}

// Lookup resolves a site and operation.
func (r *Registry) Lookup(site, operation string) (*Catalog, *Operation, error) {
	c, ok := r.Get(site)
	if !ok {
		return nil, nil, fmt.Errorf("%w: site %q (known: %s)", types.ErrUnsupportedOperation, site, strings.Join(r.Sites(), ", "))
	}
	op, ok := c.Operation(operation)
	if !ok {
		names := make([]string, 0, len(c.order))
		names = append(names, c.order...)
		return nil, nil, fmt.Errorf("%w: %s %q (known: %s)", types.ErrUnsupportedOperation, site, operation, strings.Join(names, ", "))
	}
	return c, op, nil
}

// Sites returns the registered site names, sorted.
func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sites := make([]string, 0, len(r.catalogs))
	for s := range r.catalogs {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}
