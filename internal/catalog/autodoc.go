package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/types"
)

const (
	autodocCookieReject = ".notification-popup__reject"
	autodocListing      = ".listing-item__name"
	autodocOEItems      = ".product-oem__list li"
)

// Autodoc is the autodoc.co.uk shop, searched by part number for OE
// cross-references. Pages are fetched over plain HTTP first; a browser is
// only used when the shop serves a challenge.
func Autodoc() *Catalog {
	return NewCatalog(config.SiteAutodoc, false,
		&Operation{
			Name:    "oe",
			Usage:   "autodoc oe <part-number>",
			Kind:    types.KindList,
			MinArgs: 1,
			Run:     autodocOE,
		},
	)
}

// AutodocSearchURL is the search page for a part number.
func AutodocSearchURL(base, partNumber string) string {
	return strings.TrimRight(base, "/") + "/spares-search?keyword=" + url.QueryEscape(parser.CapitalizePartNumber(partNumber))
}

func autodocOE(ctx context.Context, env *Env, q *types.Query) (any, error) {
	part := strings.Join(q.Args, " ")
	log := env.flowLogger(q).With("part_number", part)
	base := env.Config.Catalog(config.SiteAutodoc).BaseURL
	search := AutodocSearchURL(base, part)

	if env.Fetcher != nil {
		nums, err := autodocFetch(ctx, env, search, base)
		switch {
		case err == nil:
			log.Info("oe numbers found", "count", len(nums), "via", "http")
			return nums, nil
		case !fallbackToBrowser(err):
			return nil, err
		}
		log.Info("http lookup blocked, using browser", "error", err)
	}

	nums, err := autodocBrowse(ctx, env, search)
	if err != nil {
		return nil, err
	}
	log.Info("oe numbers found", "count", len(nums), "via", "browser")
	return nums, nil
}

// autodocFetch resolves the first listing and reads its OE list over HTTP.
func autodocFetch(ctx context.Context, env *Env, search, base string) ([]string, error) {
	resp, err := env.Fetcher.Fetch(ctx, search)
	if err != nil {
		return nil, err
	}
	link, err := parser.ParseAutodocFirstListing(string(resp.Body), resp.FinalURL)
	if err != nil {
		return nil, err
	}
	if link == "" {
		return nil, fmt.Errorf("%w: no listing for %s", types.ErrNotFound, search)
	}
	product, err := env.Fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	return parser.ParseAutodocOE(string(product.Body))
}

// fallbackToBrowser reports whether an HTTP failure is worth retrying in a
// real browser. Listings rendered client-side also come back empty.
func fallbackToBrowser(err error) bool {
	if errors.Is(err, types.ErrChallenged) || errors.Is(err, types.ErrNotFound) {
		return true
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		switch fe.StatusCode {
		case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		}
	}
	return false
}

func autodocBrowse(ctx context.Context, env *Env, search string) ([]string, error) {
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(search); err != nil {
		return nil, err
	}
	if p.IsVisible(autodocCookieReject) {
		_ = p.Click(autodocCookieReject)
	}

	first, err := p.Nth(autodocListing, 0, env.Config.Browser.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: no listing: %v", types.ErrNotFound, err)
	}
	if err := p.ClickElement(first, autodocListing); err != nil {
		return nil, err
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	if err := p.WaitCount(autodocOEItems, 0, 10*time.Second); err != nil {
		return []string{}, nil
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	return parser.ParseAutodocOE(snap.HTML)
}
