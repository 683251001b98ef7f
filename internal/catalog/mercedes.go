package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/types"
)

const (
	mbEnglish      = "a[title='English']"
	mbVIN          = "input[name='vin']"
	mbSubmit       = "button[type='submit']"
	mbCatalog      = "a.btn.btn-success.btn-sm"
	mbHeating      = "HEATING AND VENTILATION"
	mbTableHeaders = "table.table-striped.table-condensed.table-hover tbody > tr > th"
	mbTable        = "table.table-striped.table-condensed.table-hover"
)

// Mercedes is the mb-teilekatalog.info catalog. No account is needed.
func Mercedes() *Catalog {
	return NewCatalog(config.SiteMercedes, false,
		&Operation{
			Name:    "vehicle",
			Usage:   "mercedes vehicle <vin>",
			Kind:    types.KindObject,
			NeedVIN: true,
			Run:     mercedesVehicle,
		},
		&Operation{
			Name:    "parts",
			Usage:   "mercedes parts <vin> <compressor|a/c compressor|expansion valve|valve|condenser|evaporator>",
			Kind:    types.KindObject,
			NeedVIN: true,
			MinArgs: 1,
			Run:     mercedesParts,
		},
	)
}

func mercedesVehicle(ctx context.Context, env *Env, q *types.Query) (any, error) {
	log := env.flowLogger(q)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := mercedesSearch(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}

	if err := p.WaitCount("h3", 0, env.Config.Browser.Timeout); err != nil {
		return nil, fmt.Errorf("%w: vehicle data: %v", types.ErrNotFound, err)
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	return parser.ParseMercedesVehicle(snap.HTML)
}

func mercedesParts(ctx context.Context, env *Env, q *types.Query) (any, error) {
	part := q.Term()
	mp, ok := parser.LookupMercedesPart(part)
	if !ok {
		return nil, unsupported(types.ErrUnsupportedPart, part, parser.MercedesPartNames())
	}

	log := env.flowLogger(q).With("part", part, "section", mp.Section)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := mercedesSearch(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	timeout := env.Config.Browser.Timeout

	step(log, "catalog")
	if err := p.Click(mbCatalog); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)
	if err := clickLabel(p, mbHeating, timeout, "a", "td, li, span, div"); err != nil {
		p.Diagnose("mercedes_heating_missing")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	step(log, "section")
	if err := clickLabel(p, mp.Section, timeout, "a", "td, li, span, div"); err != nil {
		p.Diagnose("mercedes_section_missing")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	if err := p.WaitCount(mbTableHeaders, 0, timeout); err != nil {
		return nil, fmt.Errorf("%w: parts table: %v", types.ErrNotFound, err)
	}

	snap, err := p.Snapshot(mbTable)
	if err != nil {
		return nil, err
	}
	attrs, err := parser.ParseMercedesParts(snap.HTML, mp.Patterns)
	if err != nil {
		return nil, err
	}
	log.Info("parts found", "count", attrs.Len())
	return attrs, nil
}

// mercedesSearch switches the catalog to English and submits the VIN.
func mercedesSearch(p *browser.Page, log *slog.Logger, cfg *config.Config, vin string) error {
	base := cfg.Catalog(config.SiteMercedes).BaseURL
	step(log, "home", "url", base)
	if err := p.Navigate(base); err != nil {
		return err
	}
	if err := p.Click(mbEnglish); err != nil {
		log.Warn("language switch failed", "error", err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)

	step(log, "vin search")
	if err := p.Fill(mbVIN, vin); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInputMissing, err)
	}
	submit, err := p.Nth(mbSubmit, 0, 10*time.Second)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	if err := p.ClickElement(submit, mbSubmit); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	p.WaitSettled(cfg.Browser.NavigationTimeout)
	return nil
}
