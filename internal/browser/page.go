package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/humanize"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// diagnosticHTMLLimit caps the HTML written next to a failure screenshot.
const diagnosticHTMLLimit = 8000

// consentButtons are tried in order by DismissOverlays. An empty text
// matches any button under the selector.
var consentButtons = []struct {
	selector string
	text     string
}{
	{"button", "Accept"},
	{"[id*='consent'] button", "Accept"},
	{"[class*='consent'] button", ""},
	{"button", "I agree"},
	{"button", "Got it"},
}

// Page is one browser tab with humanized input helpers.
type Page struct {
	rod     *rod.Page
	ctx     context.Context
	cfg     *config.Config
	human   *humanize.Humanizer
	router  *rod.HijackRouter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Rod exposes the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.rod }

// Human returns the page's humanizer.
func (p *Page) Human() *humanize.Humanizer { return p.human }

// Context returns the context bound to the page.
func (p *Page) Context() context.Context { return p.ctx }

// URL returns the current location, or "" if it cannot be read.
func (p *Page) URL() string {
	info, err := p.rod.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Navigate loads url, retrying failed attempts after the configured delay.
func (p *Page) Navigate(url string) error {
	b := p.cfg.Browser
	attempts := max(1, b.NavigationRetries)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := p.rod.Timeout(b.NavigationTimeout).Navigate(url)
		if err == nil {
			err = p.rod.Timeout(b.NavigationTimeout).WaitLoad()
		}
		if err == nil {
			p.logger.Debug("navigated", "url", url, "attempt", i)
			return nil
		}
		lastErr = err
		p.logger.Warn("navigation failed", "url", url, "attempt", i, "of", attempts, "error", err)
		if i < attempts {
			if p.metrics != nil {
				p.metrics.NavigationRetries.Add(1)
			}
			if err := sleep(p.ctx, b.RetryDelay); err != nil {
				return err
			}
		}
	}
	return &types.ActionError{Step: "navigate", Selector: url, Err: fmt.Errorf("%w: %v", types.ErrNavigationFailed, lastErr)}
}

// WaitSettled waits for the load event and then for the DOM to stop changing.
// A DOM that never settles is logged and tolerated.
func (p *Page) WaitSettled(timeout time.Duration) {
	if err := p.rod.Timeout(timeout).WaitLoad(); err != nil {
		p.logger.Debug("wait load", "error", err)
	}
	if err := p.rod.Timeout(timeout).WaitDOMStable(500*time.Millisecond, 0); err != nil {
		p.logger.Debug("dom not stable", "error", err)
	}
}

// Find waits up to timeout for sel to match.
func (p *Page) Find(sel string, timeout time.Duration) (*rod.Element, error) {
	el, err := p.rod.Timeout(timeout).Element(sel)
	if err != nil {
		return nil, &types.ActionError{Step: "find", Selector: sel, Err: fmt.Errorf("%w: %v", types.ErrElementNotFound, err)}
	}
	return el.CancelTimeout(), nil
}

// FindText waits for an element under sel whose text matches pattern, a JS
// regex such as "Accept" or "/^spark plugs$/i".
func (p *Page) FindText(sel, pattern string, timeout time.Duration) (*rod.Element, error) {
	el, err := p.rod.Timeout(timeout).ElementR(sel, pattern)
	if err != nil {
		return nil, &types.ActionError{Step: "find text " + pattern, Selector: sel, Err: fmt.Errorf("%w: %v", types.ErrElementNotFound, err)}
	}
	return el.CancelTimeout(), nil
}

// FindFirst polls the candidate selectors until one matches a visible element.
func (p *Page) FindFirst(timeout time.Duration, sels ...string) (*rod.Element, string, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range sels {
			ok, el, err := p.rod.Has(sel)
			if err != nil || !ok {
				continue
			}
			if visible, _ := el.Visible(); visible {
				return el, sel, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, "", &types.ActionError{Step: "find any", Selector: fmt.Sprint(sels), Err: types.ErrElementNotFound}
		}
		if err := sleep(p.ctx, 250*time.Millisecond); err != nil {
			return nil, "", err
		}
	}
}

// Nth waits until sel matches more than idx elements and returns element idx.
func (p *Page) Nth(sel string, idx int, timeout time.Duration) (*rod.Element, error) {
	if err := p.WaitCount(sel, idx, timeout); err != nil {
		return nil, err
	}
	els, err := p.rod.Elements(sel)
	if err != nil || len(els) <= idx {
		return nil, &types.ActionError{Step: fmt.Sprintf("nth(%d)", idx), Selector: sel, Err: types.ErrElementNotFound}
	}
	return els[idx], nil
}

// Has reports whether sel currently matches, without waiting.
func (p *Page) Has(sel string) bool {
	ok, _, err := p.rod.Has(sel)
	return err == nil && ok
}

// Count returns how many elements currently match sel.
func (p *Page) Count(sel string) int {
	els, err := p.rod.Elements(sel)
	if err != nil {
		return 0
	}
	return len(els)
}

// IsVisible reports whether the first match of sel is rendered.
func (p *Page) IsVisible(sel string) bool {
	res, err := p.rod.Eval(jsVisible, sel)
	return err == nil && res.Value.Bool()
}

// Click finds sel and clicks it through the fallback chain.
func (p *Page) Click(sel string) error {
	el, err := p.Find(sel, p.cfg.Browser.Timeout)
	if err != nil {
		return err
	}
	return p.ClickElement(el, sel)
}

// ClickElement tries a normal click, then a DOM click, then a pointer click
// at the element centre.
func (p *Page) ClickElement(el *rod.Element, label string) error {
	strategies := []struct {
		name string
		fn   func() error
	}{
		{"click", func() error {
			_ = el.ScrollIntoView()
			return el.Timeout(5*time.Second).Click(proto.InputMouseButtonLeft, 1)
		}},
		{"dom", func() error {
			_, err := el.Eval(`() => this.click()`)
			return err
		}},
		{"force", func() error {
			box, err := elementBox(el)
			if err != nil {
				return err
			}
			c := box.Center()
			if err := p.rod.Mouse.MoveTo(proto.Point{X: c.X, Y: c.Y}); err != nil {
				return err
			}
			return p.rod.Mouse.Click(proto.InputMouseButtonLeft, 1)
		}},
	}

	var lastErr error
	for i, s := range strategies {
		if err := s.fn(); err != nil {
			lastErr = err
			p.logger.Warn("click strategy failed", "strategy", s.name, "target", label, "error", err)
			continue
		}
		if i > 0 && p.metrics != nil {
			p.metrics.ClickFallbacks.Add(1)
		}
		return nil
	}
	return &types.ActionError{Step: "click", Selector: label, Err: lastErr}
}

// HumanClick scrolls el into view and clicks a random point inside it along
// a curved pointer path. With humanizing off, or for elements without a box,
// it falls back to ClickElement.
func (p *Page) HumanClick(el *rod.Element, label string) error {
	if !p.humanly() {
		return p.ClickElement(el, label)
	}
	_ = el.ScrollIntoView()
	box, err := elementBox(el)
	if err != nil {
		p.logger.Debug("no box for human click, falling back", "target", label, "error", err)
		return p.ClickElement(el, label)
	}
	if err := p.human.Click(p.ctx, pointer{p.rod}, box); err != nil {
		return &types.ActionError{Step: "human click", Selector: label, Err: err}
	}
	return nil
}

// humanly reports whether input goes through the humanizer.
func (p *Page) humanly() bool {
	return p.human != nil && p.human.Enabled()
}

// HumanClickSel finds sel and human-clicks it.
func (p *Page) HumanClickSel(sel string, timeout time.Duration) error {
	el, err := p.Find(sel, timeout)
	if err != nil {
		return err
	}
	return p.HumanClick(el, sel)
}

// HumanType focuses el with a human click and types text key by key. With
// humanizing off the text is inserted in one step.
func (p *Page) HumanType(el *rod.Element, label, text string) error {
	if !p.humanly() {
		if err := p.ClickElement(el, label); err != nil {
			return err
		}
		if err := el.Input(text); err != nil {
			return &types.ActionError{Step: "type", Selector: label, Err: err}
		}
		return nil
	}
	if err := p.HumanClick(el, label); err != nil {
		return err
	}
	if err := p.human.Sleep(p.ctx, 80*time.Millisecond, 200*time.Millisecond); err != nil {
		return err
	}
	if err := p.human.Type(p.ctx, keyboard{p.rod}, text); err != nil {
		return &types.ActionError{Step: "type", Selector: label, Err: err}
	}
	return nil
}

// Fill clears sel and inserts text in one step.
func (p *Page) Fill(sel, text string) error {
	el, err := p.Find(sel, p.cfg.Browser.Timeout)
	if err != nil {
		return err
	}
	return p.FillElement(el, sel, text)
}

// FillElement clears el and inserts text.
func (p *Page) FillElement(el *rod.Element, label, text string) error {
	if _, err := el.Eval(`() => { this.value = ''; this.dispatchEvent(new Event('input', {bubbles: true})); }`); err != nil {
		return &types.ActionError{Step: "clear", Selector: label, Err: err}
	}
	if err := el.Input(text); err != nil {
		return &types.ActionError{Step: "fill", Selector: label, Err: err}
	}
	return nil
}

// ClickText clicks the first element under sel whose text contains text.
// It tries a located click first and falls back to a JS scan.
func (p *Page) ClickText(sel, text string, timeout time.Duration) error {
	el, err := p.FindText(sel, regexp.QuoteMeta(text), timeout)
	if err == nil {
		if err = p.ClickElement(el, sel+" "+text); err == nil {
			return nil
		}
	}
	p.logger.Debug("located text click failed, trying JS", "selector", sel, "text", text, "error", err)
	res, jsErr := p.rod.Eval(jsClickByText, sel, text)
	if jsErr != nil {
		return &types.ActionError{Step: "click text " + text, Selector: sel, Err: jsErr}
	}
	if !res.Value.Bool() {
		return &types.ActionError{Step: "click text " + text, Selector: sel, Err: types.ErrElementNotFound}
	}
	return nil
}

// Press sends a single key.
func (p *Page) Press(key input.Key) error {
	return p.rod.Keyboard.Press(key)
}

// Back navigates to the previous history entry and waits for load.
func (p *Page) Back() error {
	if err := p.rod.NavigateBack(); err != nil {
		return &types.ActionError{Step: "back", Err: err}
	}
	return p.rod.Timeout(p.cfg.Browser.NavigationTimeout).WaitLoad()
}

// DismissOverlays clicks the first visible consent button it finds.
func (p *Page) DismissOverlays() bool {
	for _, c := range consentButtons {
		var (
			el  *rod.Element
			err error
		)
		if c.text == "" {
			el, err = p.Find(c.selector, 1200*time.Millisecond)
		} else {
			el, err = p.FindText(c.selector, regexp.QuoteMeta(c.text), 1200*time.Millisecond)
		}
		if err != nil {
			continue
		}
		if visible, _ := el.Visible(); !visible {
			continue
		}
		if err := p.ClickElement(el, c.selector); err != nil {
			continue
		}
		p.logger.Debug("overlay dismissed", "selector", c.selector, "text", c.text)
		if p.metrics != nil {
			p.metrics.OverlaysDismissed.Add(1)
		}
		_ = sleep(p.ctx, 250*time.Millisecond)
		return true
	}
	return false
}

// DefuseOverlays hides ad and consent layers that would swallow clicks.
func (p *Page) DefuseOverlays() int {
	res, err := p.rod.Eval(jsDefuseOverlays)
	if err != nil {
		p.logger.Debug("defuse overlays", "error", err)
		return 0
	}
	n := res.Value.Int()
	if n > 0 {
		p.logger.Debug("overlays defused", "count", n)
	}
	return n
}

// WaitJS waits until the JS predicate returns true.
func (p *Page) WaitJS(js string, timeout time.Duration, args ...interface{}) error {
	if err := p.rod.Timeout(timeout).Wait(rod.Eval(js, args...)); err != nil {
		return &types.ActionError{Step: "wait", Err: err}
	}
	return nil
}

// WaitCount waits until more than n elements match sel.
func (p *Page) WaitCount(sel string, n int, timeout time.Duration) error {
	if err := p.WaitJS(jsCountAbove, timeout, sel, n); err != nil {
		return &types.ActionError{Step: fmt.Sprintf("wait count > %d", n), Selector: sel, Err: err}
	}
	return nil
}

// WaitHidden waits until sel is detached or not rendered.
func (p *Page) WaitHidden(sel string, timeout time.Duration) error {
	if err := p.WaitJS(jsHidden, timeout, sel); err != nil {
		return &types.ActionError{Step: "wait hidden", Selector: sel, Err: err}
	}
	return nil
}

// WaitVisible waits until sel is rendered.
func (p *Page) WaitVisible(sel string, timeout time.Duration) error {
	if err := p.WaitJS(jsVisible, timeout, sel); err != nil {
		return &types.ActionError{Step: "wait visible", Selector: sel, Err: err}
	}
	return nil
}

// WaitText waits until the text of sel contains text, case-insensitively.
func (p *Page) WaitText(sel, text string, timeout time.Duration) error {
	if err := p.WaitJS(jsContainsText, timeout, sel, text); err != nil {
		return &types.ActionError{Step: "wait text " + text, Selector: sel, Err: err}
	}
	return nil
}

// WaitAnyText waits until any match of sel contains text, case-insensitively.
func (p *Page) WaitAnyText(sel, text string, timeout time.Duration) error {
	if err := p.WaitJS(jsAnyContainsText, timeout, sel, text); err != nil {
		return &types.ActionError{Step: "wait any text " + text, Selector: sel, Err: err}
	}
	return nil
}

// MarkActiveRows tags rows under rowSel holding a cell coloured hex with
// data-ps-active="1", on both the cell and the row. It returns the row count.
func (p *Page) MarkActiveRows(rowSel, hex string) (int, error) {
	res, err := p.rod.Eval(jsMarkActive, rowSel, hex)
	if err != nil {
		return 0, &types.ActionError{Step: "mark active", Selector: rowSel, Err: err}
	}
	return res.Value.Int(), nil
}

// Text returns the innerText of the first match of sel.
func (p *Page) Text(sel string, timeout time.Duration) (string, error) {
	el, err := p.Find(sel, timeout)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// Attr returns an attribute of the first match of sel, or "" when absent.
func (p *Page) Attr(sel, name string, timeout time.Duration) (string, error) {
	el, err := p.Find(sel, timeout)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// Snapshot captures the outer HTML of the first match of sel, or of the
// whole document when sel is empty.
func (p *Page) Snapshot(sel string) (*types.Snapshot, error) {
	res, err := p.rod.Eval(jsOuterHTML, sel)
	if err != nil {
		return nil, &types.ActionError{Step: "snapshot", Selector: sel, Err: err}
	}
	html := res.Value.Str()
	if html == "" {
		return nil, &types.ActionError{Step: "snapshot", Selector: sel, Err: types.ErrElementNotFound}
	}
	return types.NewSnapshot(p.URL(), html), nil
}

// Eval runs a JS function expression in the page.
func (p *Page) Eval(js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return p.rod.Eval(js, args...)
}

// Diagnose saves a screenshot and the head of the HTML under the diagnostics
// directory. Failures are logged, never returned.
func (p *Page) Diagnose(tag string) {
	dir := p.cfg.Browser.DiagnosticsDir
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, fmt.Sprintf("%s-%s", tag, uuid.NewString()))
	url := p.URL()

	if shot, err := p.rod.Screenshot(true, nil); err != nil {
		p.logger.Warn("diagnostic screenshot failed", "tag", tag, "error", err)
	} else if err := os.WriteFile(base+".png", shot, 0o644); err != nil {
		p.logger.Warn("write diagnostic screenshot", "path", base+".png", "error", err)
	}

	if html, err := p.rod.HTML(); err == nil {
		if len(html) > diagnosticHTMLLimit {
			html = html[:diagnosticHTMLLimit]
		}
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			p.logger.Warn("write diagnostic html", "path", base+".html", "error", err)
		}
	}

	if p.metrics != nil {
		p.metrics.DiagnosticsSaved.Add(1)
	}
	p.logger.Info("diagnostics saved", "tag", tag, "url", url, "path", base+".png")
}

// InputSummary describes one <input> on the page.
type InputSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
	Visible     bool   `json:"visible"`
}

// InputInventory logs the inputs on the page at debug level.
func (p *Page) InputInventory() []InputSummary {
	res, err := p.rod.Eval(jsInputInventory)
	if err != nil {
		p.logger.Debug("input inventory", "error", err)
		return nil
	}
	raw, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil
	}
	var inputs []InputSummary
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil
	}
	for i, in := range inputs {
		p.logger.Debug("input", "index", i, "id", in.ID, "name", in.Name, "type", in.Type,
			"placeholder", in.Placeholder, "visible", in.Visible)
	}
	return inputs
}

// Delay waits the standard humanized pause between actions.
func (p *Page) Delay() error { return p.human.Delay(p.ctx) }

// Think occasionally waits a longer pause.
func (p *Page) Think() error { return p.human.MaybeThink(p.ctx) }

// MaybeScroll occasionally scrolls the page a little.
func (p *Page) MaybeScroll() error { return p.human.MaybeScroll(p.ctx, pointer{p.rod}) }

// Sleep waits d regardless of humanize settings.
func (p *Page) Sleep(d time.Duration) error { return sleep(p.ctx, d) }

func (p *Page) close() {
	if p.router != nil {
		_ = p.router.Stop()
	}
	_ = p.rod.Close()
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
