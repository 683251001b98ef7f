package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/types"
)

const (
	etkaLogin       = `input[name="lgn"]`
	etkaPassword    = `input[name="pwd"]`
	etkaLoginSubmit = "button[name='go']"
	etkaVINSearch   = "#vinSearch"
	etkaVINButton   = "#buttonVinSearch"
	etkaModal       = "div.modal-content.ui-draggable"
	etkaModalClose  = "#Modal2 > div > div > div.modal-footer.ui-draggable-handle > button"
	etkaMainTiles   = ".etka_newImg_mainTable li"
	etkaSubgroups   = "table.subGrTable"
	etkaSubgroupRow = "table.subGrTable tr"
	etkaDetailsRow  = "table.detailsTable tr"
	etkaDetailCells = "table.detailsTable td.etkTd"
	etkaServiceTabs = "#nav-epc > div.topButtons > table > tbody > tr"
	etkaSpareRows   = "#spareContent0 > table > tbody > tr"

	etkaACTile = "Air cond. system"

	// etkaSlow covers the VIN decode and tree rendering, which can take
	// minutes on a busy day.
	etkaSlow = 120 * time.Second
)

// Etka is the superetka.com VAG catalog. Every operation needs an account.
func Etka() *Catalog {
	return NewCatalog(config.SiteEtka, true,
		&Operation{
			Name:    "vehicle",
			Usage:   "etka vehicle <vin>",
			Kind:    types.KindObject,
			NeedVIN: true,
			Run:     etkaVehicle,
		},
		&Operation{
			Name:    "parts",
			Usage:   "etka parts <vin> <compressor|condenser|evaporator|expansion>",
			Kind:    types.KindScalar,
			NeedVIN: true,
			MinArgs: 1,
			Run:     etkaParts,
		},
		&Operation{
			Name:    "maintenance",
			Usage:   "etka maintenance <vin> <part>",
			Kind:    types.KindList,
			NeedVIN: true,
			MinArgs: 1,
			Run:     etkaMaintenance,
		},
	)
}

// EtkaPartKey maps a requested AC part to the key ETKA lookups use.
func EtkaPartKey(part string) (string, bool) {
	part = parser.NormalizeText(part)
	if strings.HasPrefix(part, "expansion") {
		return "expansion", true
	}
	for _, k := range parser.EtkaACParts {
		if k == part {
			return k, true
		}
	}
	return "", false
}

func etkaVehicle(ctx context.Context, env *Env, q *types.Query) (any, error) {
	log := env.flowLogger(q)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := etkaSearch(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}

	if err := p.WaitCount(etkaModal+" table tbody tr", 0, env.Config.Browser.Timeout); err != nil {
		return nil, fmt.Errorf("%w: vehicle table: %v", types.ErrNotFound, err)
	}
	snap, err := p.Snapshot(etkaModal)
	if err != nil {
		return nil, err
	}
	return parser.ParseKeyValueRows(snap.HTML)
}

func etkaParts(ctx context.Context, env *Env, q *types.Query) (any, error) {
	key, ok := EtkaPartKey(q.Term())
	if !ok {
		return nil, unsupported(types.ErrUnsupportedPart, q.Term(), parser.EtkaACParts)
	}

	log := env.flowLogger(q).With("part", key)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := etkaSearch(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	etkaCloseModal(p, log, true)

	step(log, "air conditioning")
	if err := p.WaitVisible(etkaMainTiles, etkaSlow); err != nil {
		return nil, fmt.Errorf("%w: main groups: %v", types.ErrNavigationFailed, err)
	}
	if err := p.ClickText(etkaMainTiles, etkaACTile, env.Config.Browser.Timeout); err != nil {
		p.Diagnose("etka_ac_tile")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	if err := p.WaitCount(etkaSubgroups, 0, etkaSlow); err != nil {
		return nil, fmt.Errorf("%w: subgroups: %v", types.ErrNavigationFailed, err)
	}
	if _, err := p.Eval(`(sel) => { const t = document.querySelector(sel); if (t) t.scrollIntoView({block: 'center'}); }`, etkaSubgroups); err != nil {
		log.Debug("scroll subgroups", "error", err)
	}

	step(log, "subgroup")
	n, err := p.MarkActiveRows(etkaSubgroupRow, parser.EtkaActiveColor)
	if err != nil {
		return nil, err
	}
	log.Debug("active subgroup rows", "count", n)
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	idx, found, err := parser.SelectEtkaSubgroup(snap.HTML, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no active subgroup for %s", types.ErrNotFound, key)
	}
	row, err := p.Nth(etkaSubgroupRow, idx, env.Config.Browser.Timeout)
	if err != nil {
		return nil, err
	}
	if err := p.ClickElement(row, "subgroup row"); err != nil {
		return nil, err
	}

	step(log, "details")
	if err := p.WaitAnyText(etkaDetailCells, key, etkaSlow); err != nil {
		return nil, fmt.Errorf("%w: details for %s: %v", types.ErrNotFound, key, err)
	}
	if _, err := p.MarkActiveRows(etkaDetailsRow, parser.EtkaActiveColor); err != nil {
		return nil, err
	}
	snap, err = p.Snapshot("")
	if err != nil {
		return nil, err
	}
	detail, err := parser.ParseEtkaDetails(snap.HTML, key)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, key)
	}
	log.Info("part found", "num", detail.Num, "text", detail.Text)
	return detail.Num, nil
}

func etkaMaintenance(ctx context.Context, env *Env, q *types.Query) (any, error) {
	category, withQty, ok := parser.MaintenanceCategory(q.Term())
	if !ok {
		return nil, unsupported(types.ErrUnsupportedPart, q.Term(), parser.MaintenanceParts())
	}

	log := env.flowLogger(q).With("category", category)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := etkaSearch(p, log, env.Config, q.VIN); err != nil {
		return nil, err
	}
	etkaCloseModal(p, log, false)

	step(log, "service tab")
	tabs, err := p.Nth(etkaServiceTabs, 0, env.Config.Browser.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	cells, err := tabs.Elements("td")
	if err != nil || len(cells) < 2 {
		return nil, &types.ActionError{Step: "service tab", Selector: etkaServiceTabs, Err: types.ErrElementNotFound}
	}
	if err := p.ClickElement(cells[1], "service tab"); err != nil {
		return nil, err
	}

	step(log, "category")
	el, err := p.FindText("a, li, td, span, div, button", exactTitle(category), env.Config.Browser.Timeout)
	if err != nil {
		p.Diagnose("etka_category_missing")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	if err := p.ClickElement(el, category); err != nil {
		return nil, err
	}
	_ = p.Sleep(time.Second)

	if err := p.WaitCount(etkaSpareRows, 0, env.Config.Browser.Timeout); err != nil {
		return nil, fmt.Errorf("%w: spares for %s: %v", types.ErrNotFound, category, err)
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	list, err := parser.ParseEtkaSpares(snap.HTML, withQty)
	if err != nil {
		return nil, err
	}
	log.Info("spares found", "count", list.Len())
	return list, nil
}

// etkaSearch signs in when the login form is shown, then decodes the VIN
// and waits for the vehicle dialog.
func etkaSearch(p *browser.Page, log *slog.Logger, cfg *config.Config, vin string) error {
	creds := cfg.Catalog(config.SiteEtka)
	step(log, "home", "url", creds.BaseURL)
	if err := p.Navigate(creds.BaseURL); err != nil {
		return err
	}

	if p.Has(etkaLogin) {
		step(log, "login")
		if err := p.Fill(etkaLogin, creds.Username); err != nil {
			return err
		}
		if err := p.Fill(etkaPassword, creds.Password); err != nil {
			return err
		}
		if err := p.Click(etkaLoginSubmit); err != nil {
			return err
		}
		p.WaitSettled(cfg.Browser.NavigationTimeout)
	} else {
		log.Debug("no login form, assuming session")
	}

	step(log, "vin search")
	if err := p.WaitVisible(etkaVINSearch, cfg.Browser.Timeout); err != nil {
		if p.Has(etkaLogin) {
			p.Diagnose("etka_login_stuck")
			return fmt.Errorf("%w: %v", types.ErrLoginStuck, err)
		}
		return fmt.Errorf("%w: %v", types.ErrSearchInputMissing, err)
	}
	if err := p.Fill(etkaVINSearch, vin); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	if err := p.Click(etkaVINButton); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	if err := p.WaitVisible(etkaModal, etkaSlow); err != nil {
		p.Diagnose("etka_vin_modal")
		return fmt.Errorf("%w: vehicle dialog: %v", types.ErrNotFound, err)
	}
	return nil
}

// etkaCloseModal dismisses the vehicle dialog, by Escape or by its footer
// button, and waits for it to go away.
func etkaCloseModal(p *browser.Page, log *slog.Logger, escapeFirst bool) {
	closers := []func() error{
		func() error { return p.Press(input.Escape) },
		func() error {
			btn, err := p.Find(etkaModalClose, 5*time.Second)
			if err != nil {
				return err
			}
			return p.ClickElement(btn, etkaModalClose)
		},
	}
	if !escapeFirst {
		closers[0], closers[1] = closers[1], closers[0]
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Debug("close dialog", "error", err)
			continue
		}
		if err := p.WaitHidden(etkaModal, 15*time.Second); err == nil {
			return
		}
	}
	log.Warn("vehicle dialog still open")
	p.DefuseOverlays()
}
