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
	ssgLoginLink   = "#login > div.menulogin > div > a.cboxElement"
	ssgLoginBox    = "#cboxLoadedContent"
	ssgUser        = "#iduserlogin"
	ssgPassword    = "#iduserpassword"
	ssgLoginRows   = "#cboxLoadedContent > form > table > tbody > tr"
	ssgArticle     = "#article"
	ssgArticleCell = "#art_val > td"
	ssgCarDetails  = "div.car-row > div.col-md-2 > a.btn.btn-outline-secondary.btn-sm.btn-block"
)

// SSG is the ssg.asia catalog. It needs an account.
func SSG() *Catalog {
	return NewCatalog(config.SiteSSG, true,
		&Operation{
			Name:    "vehicle",
			Usage:   "ssg vehicle <vin>",
			Kind:    types.KindObject,
			NeedVIN: true,
			Run:     ssgVehicle,
		},
	)
}

func ssgVehicle(ctx context.Context, env *Env, q *types.Query) (any, error) {
	log := env.flowLogger(q)
	p, err := env.page(ctx)
	if err != nil {
		return nil, err
	}
	creds := env.Config.Catalog(config.SiteSSG)
	step(log, "home", "url", creds.BaseURL)
	if err := p.Navigate(creds.BaseURL); err != nil {
		return nil, err
	}
	if err := ssgLogin(p, log, env.Config.Browser.Timeout, creds); err != nil {
		return nil, err
	}

	step(log, "vin search")
	if err := p.Fill(ssgArticle, q.VIN); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchInputMissing, err)
	}
	cell, err := p.Nth(ssgArticleCell, 1, env.Config.Browser.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	submit, err := cell.Timeout(5 * time.Second).Element("input")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	if err := p.ClickElement(submit, "article search"); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchInteractFailed, err)
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	step(log, "car details")
	if err := p.Click(ssgCarDetails); err != nil {
		p.Diagnose("ssg_car_details")
		return nil, fmt.Errorf("%w: no vehicle for VIN: %v", types.ErrNotFound, err)
	}
	p.WaitSettled(env.Config.Browser.NavigationTimeout)

	snap, err := p.Snapshot("")
	if err != nil {
		return nil, err
	}
	return parser.ParseSSGVehicle(snap.HTML)
}

// ssgLogin signs in through the colorbox dialog and waits for it to close.
func ssgLogin(p *browser.Page, log *slog.Logger, timeout time.Duration, creds config.CatalogConfig) error {
	step(log, "login")
	if err := p.Click(ssgLoginLink); err != nil {
		return fmt.Errorf("%w: login link: %v", types.ErrNavigationFailed, err)
	}
	if err := p.WaitVisible(ssgLoginBox, timeout); err != nil {
		return fmt.Errorf("%w: login dialog: %v", types.ErrNavigationFailed, err)
	}
	if err := p.Fill(ssgUser, creds.Username); err != nil {
		return err
	}
	if err := p.Fill(ssgPassword, creds.Password); err != nil {
		return err
	}

	row, err := p.Nth(ssgLoginRows, 2, timeout)
	if err != nil {
		return err
	}
	cells, err := row.Elements("td")
	if err != nil || len(cells) < 2 {
		return &types.ActionError{Step: "login submit", Selector: ssgLoginRows, Err: types.ErrElementNotFound}
	}
	submit, err := cells[1].Timeout(5 * time.Second).Element("input")
	if err != nil {
		return &types.ActionError{Step: "login submit", Selector: ssgLoginRows + " td input", Err: err}
	}
	if err := p.ClickElement(submit, "login submit"); err != nil {
		return err
	}

	if err := p.WaitHidden(ssgLoginBox, timeout); err != nil {
		p.Diagnose("ssg_login_stuck")
		return fmt.Errorf("%w: %v", types.ErrLoginStuck, err)
	}
	p.WaitSettled(timeout)
	return nil
}
