package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/extract"
)

const readyJS = `(sel, attr) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const v = el.getAttribute(attr);
	return !!v && v.trim() !== "";
}`

const valueJS = `(sel, attr) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	return attr ? el.getAttribute(attr) : el.textContent;
}`

// Page is a rod page used for a single work item. It implements extract.Page.
type Page struct {
	page   *rod.Page
	router routeStopper
}

// Intercept routes every request of the page through f.
func (p *Page) Intercept(f extract.RequestFilter) error {
	router, err := hijack(p.page, f.Blocks)
	if err != nil {
		return err
	}
	p.router = router
	return nil
}

// Navigate loads url and waits for DOMContentLoaded, not the full load.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return eris.Wrap(err, "browser: navigate")
	}
	wait()
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "browser: wait DOMContentLoaded")
	}
	return nil
}

// WaitReady polls until selector carries a non-empty attr.
func (p *Page) WaitReady(ctx context.Context, selector, attr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.page.Context(ctx).Wait(rod.Eval(readyJS, selector, attr)); err != nil {
		return eris.Wrap(err, "browser: readiness poll")
	}
	return nil
}

// Value reads attr of selector, or its text content when attr is empty.
func (p *Page) Value(ctx context.Context, selector, attr string) (string, error) {
	res, err := p.page.Context(ctx).Eval(valueJS, selector, attr)
	if err != nil {
		return "", eris.Wrap(err, "browser: read value")
	}
	if res.Value.Nil() {
		return "", eris.Errorf("browser: %s not found", selector)
	}
	return res.Value.Str(), nil
}

// routeStopper is the part of a rod.HijackRouter a page shuts down.
type routeStopper interface {
	Stop() error
}

// Close stops the request router and closes the page.
func (p *Page) Close() error {
	p.stopRouter()
	if err := p.page.Close(); err != nil {
		return eris.Wrap(err, "browser: close page")
	}
	return nil
}

// stopRouter stops the request router, if any. A failed stop is logged only;
// the page is closing anyway.
func (p *Page) stopRouter() {
	if p.router == nil {
		return
	}
	if err := p.router.Stop(); err != nil {
		zap.L().Debug("browser: stop hijack router", zap.Error(err))
	}
	p.router = nil
}

var (
	_ extract.Page          = (*Page)(nil)
	_ extract.PageOpener    = (*Context)(nil)
	_ extract.RequestFilter = (*Filter)(nil)
)
