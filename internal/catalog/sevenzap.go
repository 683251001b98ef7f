package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/parser"
	"github.com/IshaanNene/partscout/internal/types"
)

const (
	zapLoginIcon     = "div.row.px-md-4.py-md-2 > div > div.d-none.d-md-block.p-2.px-0.ml-lg-5.__text-center__.d-md-flex.align-content-center.flex-wrap > a > i"
	zapLoginPanel    = "#head > div.modal-mask.d-flex.align-content-center.flex-wrap1.dev1.pt-5 > div > div > div > div > div.cabinet-panel-on"
	zapPanelOn       = "div.cabinet-panel-on"
	zapModalClose    = ".modal .btn-close, .modal [data-dismiss='modal'], .modal .close"
	zapSearchButton  = "button[aria-label*='search' i], [role='button'][aria-label*='search' i]"
	zapSearchBox     = ".search.w-100"
	zapMainSearch    = "#mainSearchInput"
	zapModifications = "#htmlTableModifications"
	zapNodeTitle     = ".zp-element-title.nodeTitle"
	zapPartRows      = "div.px-1.flex-grow-1 > span"
)

// zapVINInputs are tried in order; the search box markup changes between
// layouts.
var zapVINInputs = []string{
	zapMainSearch,
	"input[name='vin']",
	"input[id*='SearchInput' i]",
	"input[placeholder*='VIN' i]",
	"input[type='search']",
	"input[name*='search' i]",
}

// zapRoute is the tree path under "Air Conditioning" to one part's diagram.
type zapRoute struct {
	Section string
	Diagram string
	Label   string
}

var zapRoutes = map[string]zapRoute{
	"compressor":      {"Compressor / Parts", "HEATING & AIR CONDITIONING - COMPRESSOR[]", "COMPRESSOR ASSY"},
	"evaporator":      {"Controls / Regulation", "HEATING & AIR CONDITIONING - COOLER UNIT", "EVAPORATOR SUB-ASSY"},
	"expansion valve": {"Controls / Regulation", "HEATING & AIR CONDITIONING - COOLER UNIT", "VALVE"},
}

// SevenZapParts lists the parts the 7zap lookup accepts.
func SevenZapParts() []string {
	names := make([]string, 0, len(zapRoutes))
	for k := range zapRoutes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SevenZap is the 7zap.com catalog. Both operations need an account.
func SevenZap() *Catalog {
	return NewCatalog(config.SiteSevenZap, true,
		&Operation{
			Name:    "vehicle",
			Usage:   "sevenzap vehicle <vin>",
			Kind:    types.KindObject,
			NeedVIN: true,
			Run:     zapVehicle,
		},
		&Operation{
			Name:    "parts",
			Usage:   "sevenzap parts <vin> <compressor|evaporator|expansion valve>",
			Kind:    types.KindList,
			NeedVIN: true,
			MinArgs: 1,
			Run:     zapParts,
		},
	)
}

func zapVehicle(ctx context.Context, env *Env, q *types.Query) (any, error) {
	log := env.flowLogger(q)
	creds := env.Config.Catalog(config.SiteSevenZap)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}

	step(log, "home", "url", creds.BaseURL)
	if err := p.Navigate(creds.BaseURL); err != nil {
		return nil, err
	}
	if err := zapLogin(p, log, creds, false); err != nil {
		return nil, err
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	step(log, "search")
	if err := p.Click(zapSearchBox); err != nil {
		return nil, err
	}
	if err := p.Fill(zapMainSearch, q.VIN); err != nil {
		return nil, err
	}
	timeout := env.Config.Browser.Timeout
	if err := p.WaitCount(zapModifications+" tbody tr td", 0, timeout); err != nil {
		p.Diagnose("zap_modifications_missing")
		return nil, fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	snap, err := p.Snapshot(zapModifications)
	if err != nil {
		return nil, err
	}
	return parser.ParseHeaderValueTable(snap.HTML)
}

func zapParts(ctx context.Context, env *Env, q *types.Query) (any, error) {
	part := q.Term()
	route, ok := zapRoutes[part]
	if !ok {
		return nil, unsupported(types.ErrUnsupportedPart, part, SevenZapParts())
	}

	log := env.flowLogger(q).With("part", part)
	creds := env.Config.Catalog(config.SiteSevenZap)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	bcfg := env.Config.Browser

	step(log, "home", "url", creds.BaseURL)
	if err := p.Navigate(creds.BaseURL); err != nil {
		return nil, err
	}
	if err := p.Delay(); err != nil {
		return nil, err
	}
	_ = p.MaybeScroll()
	p.DismissOverlays()

	if err := zapLogin(p, log, creds, true); err != nil {
		return nil, err
	}
	p.WaitSettled(bcfg.NavigationTimeout)
	_ = p.Sleep(300 * time.Millisecond)
	p.DismissOverlays()

	step(log, "vin search")
	p.InputInventory()
	vinInput, err := zapFindVINInput(p, log, bcfg.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	if err := p.HumanType(vinInput, "vin", q.VIN); err != nil {
		p.InputInventory()
		p.Diagnose("vin_interact_fail")
		return nil, fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	if err := p.Think(); err != nil {
		return nil, err
	}

	step(log, "first modification")
	mod, err := p.Find(zapModifications+" a", bcfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	_ = p.MaybeScroll()
	if err := p.HumanClick(mod, "first modification"); err != nil {
		return nil, err
	}
	p.WaitSettled(bcfg.NavigationTimeout)
	if err := p.Delay(); err != nil {
		return nil, err
	}

	step(log, "air conditioning")
	if err := p.WaitCount(zapNodeTitle, 3, 20*time.Second); err != nil {
		p.Diagnose("ac_node_click_fail")
		return nil, fmt.Errorf("%w: catalog tree not ready: %v", types.ErrNavigationFailed, err)
	}
	if err := p.ClickText(zapNodeTitle, "Air Conditioning", 8*time.Second); err != nil {
		p.Diagnose("ac_node_click_fail")
		return nil, fmt.Errorf("%w: %v", types.ErrNavigationFailed, err)
	}
	_ = p.Sleep(400 * time.Millisecond)
	if err := p.Human().Sleep(ctx, 1500*time.Millisecond, 2200*time.Millisecond); err != nil {
		return nil, err
	}

	step(log, "branch", "section", route.Section, "diagram", route.Diagram)
	if err := p.ClickText(zapNodeTitle, route.Section, 8*time.Second); err != nil {
		return nil, err
	}
	_ = p.Sleep(300 * time.Millisecond)
	if err := p.ClickText(zapNodeTitle, route.Diagram, 8*time.Second); err != nil {
		return nil, err
	}
	p.WaitSettled(bcfg.NavigationTimeout)

	return zapPartRowNumbers(p, log, route.Label)
}

// partRowsPage is the slice of *browser.Page the part table reader uses.
type partRowsPage interface {
	WaitAnyText(sel, text string, timeout time.Duration) error
	Snapshot(sel string) (*types.Snapshot, error)
	Diagnose(tag string)
}

// zapPartRowNumbers waits for a part row labelled label and returns the part
// numbers listed next to it. A table that never shows the label is a failed
// navigation, not an empty result, so it is never cached.
func zapPartRowNumbers(p partRowsPage, log *slog.Logger, label string) ([]string, error) {
	if err := p.WaitAnyText(zapPartRows, label, 15*time.Second); err != nil {
		p.Diagnose("zap_part_rows_missing")
		return nil, fmt.Errorf("%w: no %q rows in parts table: %v", types.ErrNavigationFailed, label, err)
	}
	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	nums, err := parser.ParseSpanStrongNumbers(snap.HTML, label)
	if err != nil {
		return nil, err
	}
	if nums == nil {
		nums = []string{}
	}
	log.Info("parts found", "count", len(nums))
	return nums, nil
}

// zapLogin opens the account panel and signs in. With humanly set the
// pointer and keyboard are driven by the humanizer; otherwise fields are
// filled directly.
func zapLogin(p *browser.Page, log *slog.Logger, creds config.CatalogConfig, humanly bool) error {
	step(log, "login")
	timeout := 15 * time.Second

	icon, err := p.Find(zapLoginIcon, timeout)
	if err != nil {
		return err
	}
	if humanly {
		err = p.HumanClick(icon, "login icon")
	} else {
		err = p.ClickElement(icon, "login icon")
	}
	if err != nil {
		return err
	}
	if err := p.Think(); err != nil {
		return err
	}

	form, err := p.Nth(zapLoginPanel+" div", 0, timeout)
	if err != nil {
		return err
	}
	inputs, err := form.Elements("input")
	if err != nil || len(inputs) < 2 {
		p.Diagnose("login_form_missing")
		return &types.ActionError{Step: "login form", Selector: zapLoginPanel, Err: types.ErrElementNotFound}
	}

	fields := []struct {
		el    *rod.Element
		label string
		value string
	}{
		{inputs[0], "username", creds.Username},
		{inputs[1], "password", creds.Password},
	}
	for _, f := range fields {
		if humanly {
			err = p.HumanType(f.el, f.label, f.value)
		} else {
			err = p.FillElement(f.el, f.label, f.value)
		}
		if err != nil {
			return err
		}
		if err := p.Delay(); err != nil {
			return err
		}
	}

	submit, err := form.Timeout(timeout).Element("div > div:nth-child(2) > div > button")
	if err != nil {
		return &types.ActionError{Step: "login submit", Selector: zapLoginPanel, Err: types.ErrElementNotFound}
	}
	submit = submit.CancelTimeout()
	if humanly {
		err = p.HumanClick(submit, "login submit")
	} else {
		err = p.ClickElement(submit, "login submit")
	}
	if err != nil {
		return err
	}

	if err := p.WaitHidden(zapPanelOn, 10*time.Second); err == nil {
		log.Debug("login panel hidden")
		return nil
	}
	if btn, err := p.Find(zapModalClose, 1500*time.Millisecond); err == nil {
		if err := p.ClickElement(btn, "modal close"); err == nil {
			if err := p.WaitHidden(zapPanelOn, 5*time.Second); err == nil {
				log.Debug("login panel closed by close button")
				return nil
			}
		}
	}
	p.Diagnose("login_panel_stuck")
	return types.ErrLoginStuck
}

// zapFindVINInput opens the search UI and looks for the VIN box, retrying
// once after clearing overlays.
func zapFindVINInput(p *browser.Page, log *slog.Logger, settle time.Duration) (*rod.Element, error) {
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			p.DismissOverlays()
			p.WaitSettled(settle)
			_ = p.Sleep(300 * time.Millisecond)
		}
		zapOpenSearch(p, log)
		el, sel, err := p.FindFirst(8*time.Second, zapVINInputs...)
		if err == nil {
			log.Debug("vin input found", "selector", sel, "attempt", attempt)
			return el, nil
		}
		log.Warn("vin input not found", "attempt", attempt)
	}
	p.InputInventory()
	p.Diagnose("vin_input_missing")
	return nil, types.ErrSearchInputMissing
}

// zapOpenSearch tries the search button, then the header search box, then
// the "/" shortcut.
func zapOpenSearch(p *browser.Page, log *slog.Logger) {
	defer func() { _ = p.Sleep(400 * time.Millisecond) }()

	if el, err := p.Find(zapSearchButton, time.Second); err == nil {
		if err := p.ClickElement(el, "search button"); err == nil {
			log.Debug("search opened", "via", "button")
			return
		}
	}
	if el, err := p.Find(zapSearchBox, time.Second); err == nil {
		if err := p.ClickElement(el, zapSearchBox); err == nil {
			log.Debug("search opened", "via", zapSearchBox)
			return
		}
	}
	if err := p.Press(input.Slash); err == nil {
		log.Debug("search opened", "via", "slash key")
	}
}
