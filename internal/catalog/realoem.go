package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/types"
)

const (
	realoemAdblockClose = "span.ggmtgz"
	realoemVIN          = "#vin"
	realoemSearch       = "input[type='submit'][value='Search']"
	realoemTitles       = ".title"
	realoemPartsList    = "#partsList"
	realoemPartsRows    = "#partsList > tbody tr"
	realoemDiagram      = "#partsimg > img"
)

// RealOEM is the realoem.com BMW catalog. No account is needed.
func RealOEM() *Catalog {
	return NewCatalog(config.SiteRealOEM, false,
		&Operation{
			Name:    "vehicle",
			Usage:   "realoem vehicle <vin>",
			Kind:    types.KindObject,
			NeedVIN: true,
			Run:     realoemVehicle,
		},
		&Operation{
			Name:    "find-part",
			Usage:   "realoem find-part <vin> <keyword>",
			Kind:    types.KindList,
			NeedVIN: true,
			MinArgs: 1,
			Run:     realoemFindPart,
		},
		&Operation{
			Name:    "group",
			Usage:   `realoem group <vin> "<group>" [subgroup filters...]`,
			Kind:    types.KindGroup,
			NeedVIN: true,
			MinArgs: 1,
			Run:     realoemGroup,
		},
		&Operation{
			Name:    "subgroups",
			Usage:   `realoem subgroups <vin> "<group>"`,
			Kind:    types.KindSubgroups,
			NeedVIN: true,
			MinArgs: 1,
			Run:     realoemSubgroups,
		},
	)
}

func realoemVehicle(ctx context.Context, env *Env, q *types.Query) (any, error) {
	log := env.flowLogger(q)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := realoemEnter(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}

	if err := p.WaitCount("option[selected]", 1, env.Config.Browser.Timeout); err != nil {
		return nil, fmt.Errorf("%w: vehicle selector: %v", types.ErrNotFound, err)
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	return parser.ParseSelectedOptions(snap.HTML)
}

func realoemFindPart(ctx context.Context, env *Env, q *types.Query) (any, error) {
	keyword := q.Term()
	plan, ok := lookupPlan(keyword)
	if !ok {
		return nil, unsupported(types.ErrUnsupportedPart, keyword, RealOEMKeywords())
	}

	log := env.flowLogger(q).With("keyword", keyword)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := realoemEnter(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	if err := realoemOpenGroup(p, log, env.Config, plan.Group); err != nil {
		return nil, err
	}

	step(log, "diagram", "titles", plan.Titles)
	if err := realoemClickDiagram(p, plan); err != nil {
		p.Diagnose("realoem_diagram_missing")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	if err := p.WaitCount(realoemPartsRows, 0, env.Config.Browser.Timeout); err != nil {
		return nil, fmt.Errorf("%w: parts table: %v", types.ErrNotFound, err)
	}
	snap, err := p.Snapshot(realoemPartsList)
	if err != nil {
		return nil, err
	}
	rows, err := parser.ParsePartsTable(snap.HTML)
	if err != nil {
		return nil, err
	}

	list, err := plan.collect(rows, log, env.Metrics)
	if err != nil {
		return nil, err
	}
	log.Info("parts found", "rows", len(rows), "kept", list.Len())
	return list, nil
}

func realoemGroup(ctx context.Context, env *Env, q *types.Query) (any, error) {
	groupArg, filters := q.Args[0], q.Args[1:]
	title, ok := RealOEMGroup(groupArg)
	if !ok {
		return nil, unsupported(types.ErrUnsupportedGroup, groupArg, RealOEMGroupNames())
	}

	log := env.flowLogger(q).With("group", title)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := realoemEnter(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	if err := realoemOpenGroup(p, log, env.Config, title); err != nil {
		return nil, err
	}

	titles, err := realoemTitleList(p, env.Config.Browser.Timeout)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		titles = parser.FilterSubgroups(titles, filters)
		if len(titles) == 0 {
			return nil, fmt.Errorf("%w: no subgroup of %s matches %q", types.ErrNoMatch, title, filters)
		}
	}

	base := env.Config.Catalog(config.SiteRealOEM).BaseURL
	result := types.GroupResult{Subgroups: []types.Subgroup{}}
	for _, t := range titles {
		if t.Kit {
			continue
		}
		sub, err := realoemReadSubgroup(p, env.Config, base, t)
		if err != nil {
			log.Warn("subgroup failed", "subgroup", t.Name, "error", err)
		} else {
			result.Subgroups = append(result.Subgroups, *sub)
			log.Info("subgroup parsed", "subgroup", t.Name, "rows", len(sub.Parts))
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.Back(); err != nil {
			log.Warn("back failed", "subgroup", t.Name, "error", err)
		}
	}
	return result, nil
}

func realoemSubgroups(ctx context.Context, env *Env, q *types.Query) (any, error) {
	groupArg := q.Args[0]
	title, ok := RealOEMGroup(groupArg)
	if !ok {
		return nil, unsupported(types.ErrUnsupportedGroup, groupArg, RealOEMGroupNames())
	}

	log := env.flowLogger(q).With("group", title)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := realoemEnter(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	if err := realoemOpenGroup(p, log, env.Config, title); err != nil {
		return nil, err
	}

	p.DefuseOverlays()
	titles, err := realoemTitleList(p, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return types.SubgroupList{Subgroups: parser.SubgroupNames(titles)}, nil
}

// realoemEnter opens the catalog and searches the VIN.
func realoemEnter(p *browser.Page, log *slog.Logger, cfg *config.Config, vin string) error {
	base := cfg.Catalog(config.SiteRealOEM).BaseURL
	step(log, "home", "url", base)
	if err := p.Navigate(base); err != nil {
		return err
	}
	realoemDismissAdblock(p)

	step(log, "vin search")
	if err := p.ClickText("a, button", "enter BMW catalog", cfg.Browser.Timeout); err != nil {
		return fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)
	if err := p.Fill(realoemVIN, vin); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInputMissing, err)
	}
	search, err := p.Nth(realoemSearch, 0, cfg.Browser.Timeout)
	if err != nil {
		return err
	}
	if err := p.ClickElement(search, realoemSearch); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)

	_ = p.Sleep(time.Second)
	realoemDismissAdblock(p)
	return nil
}

// realoemOpenGroup goes to "Browse Parts" and opens a main group.
func realoemOpenGroup(p *browser.Page, log *slog.Logger, cfg *config.Config, title string) error {
	step(log, "browse parts")
	if err := p.ClickText("a, button", "Browse Parts", cfg.Browser.Timeout); err != nil {
		p.Diagnose("realoem_browse_parts")
		return fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)

	step(log, "main group", "title", title)
	if el, err := p.FindText("a", exactTitle(title), 5*time.Second); err == nil {
		if err := p.ClickElement(el, title); err == nil {
			p.WaitSettled(cfg.Browser.NavigationTimeout)
			return nil
		}
	}
	if err := p.ClickText("a", title, cfg.Browser.Timeout); err != nil {
		p.Diagnose("realoem_group_missing")
		return fmt.Errorf("%w: main group %s: %v", types.ErrNavigationFailed, title, err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)
	return nil
}

// realoemClickDiagram clicks the first title pattern that matches.
func realoemClickDiagram(p *browser.Page, plan partPlan) error {
	var lastErr error
	for _, pat := range plan.titlePatterns() {
		el, err := p.FindText(plan.TitleSel, pat, 5*time.Second)
		if err != nil {
			lastErr = err
			continue
		}
		if err := p.ClickElement(el, pat); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// realoemTitleList waits for the diagram titles and reads them.
func realoemTitleList(p *browser.Page, timeout time.Duration) ([]parser.SubgroupTitle, error) {
	if err := p.WaitCount(realoemTitles, 1, timeout); err != nil {
		return nil, fmt.Errorf("%w: subgroup titles: %v", types.ErrNotFound, err)
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	return parser.ParseSubgroupTitles(snap.HTML)
}

// realoemReadSubgroup opens one diagram and reads its table and image.
func realoemReadSubgroup(p *browser.Page, cfg *config.Config, base string, t parser.SubgroupTitle) (*types.Subgroup, error) {
	el, err := p.Nth(realoemTitles, t.Index, cfg.Browser.Timeout)
	if err != nil {
		return nil, err
	}
	if err := p.ClickElement(el, t.Name); err != nil {
		return nil, err
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)

	text, err := p.Text(realoemPartsList, cfg.Browser.Timeout)
	if err != nil {
		return nil, err
	}
	src, err := p.Attr(realoemDiagram, "src", 5*time.Second)
	if err != nil {
		src = ""
	}
	return &types.Subgroup{
		Name:         t.Name,
		DiagramImage: resolveURL(base, src),
		Parts:        parser.ParsePartsListText(text),
	}, nil
}

func realoemDismissAdblock(p *browser.Page) {
	if !p.IsVisible(realoemAdblockClose) {
		return
	}
	if err := p.ClickText(realoemAdblockClose, "×", 2*time.Second); err != nil {
		p.DefuseOverlays()
	}
}

// resolveURL resolves ref against base. An empty ref yields "".
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
