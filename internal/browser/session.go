// Package browser owns the shared headless Chrome process, the request filter
// applied to every extraction page, and the rod-backed page implementation.
package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/extract"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// Config controls how the browser is started.
type Config struct {
	// Bin is the Chrome executable. Empty lets the launcher resolve one.
	Bin string
	// DebuggerURL connects to an already running Chrome instead of launching.
	DebuggerURL string
	Headless    bool
	// Stealth opens pages with go-rod/stealth evasions applied.
	Stealth bool
	// Flags are Chrome switches, with or without leading dashes ("no-sandbox",
	// "--window-size=1280,800").
	Flags []string
}

// Session owns at most one browser process and one incognito context.
// Acquire and Close are safe to call from multiple goroutines.
type Session struct {
	cfg   Config
	start startFunc

	mu  sync.Mutex
	cur *handle
}

// closer is the part of a rod browser the session tears down.
type closer interface {
	Close() error
}

// handle is one started browser. browser is nil for a remote Chrome, which
// belongs to someone else; kill is nil when nothing was launched.
type handle struct {
	browser   closer
	incognito closer
	kill      func()
	ctx       *Context
}

type startFunc func(ctx context.Context, cfg Config) (*handle, error)

// NewSession creates a Session. No process is started until Acquire.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg, start: startRod}
}

// Acquire starts (or connects to) Chrome and returns a fresh incognito
// context. A browser left over from an earlier Acquire is force-closed first;
// problems closing it are logged, never returned.
func (s *Session) Acquire(ctx context.Context) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		leak := resilience.ResourceLeak("browser: acquire", eris.New("previous browser still open"))
		zap.L().Warn("browser: closing stale browser before reacquire", zap.Error(leak))
		if err := s.closeLocked(); err != nil {
			zap.L().Warn("browser: stale browser close failed", zap.Error(err))
		}
	}

	h, err := s.start(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.cur = h
	zap.L().Info("browser: session acquired",
		zap.Bool("headless", s.cfg.Headless),
		zap.Bool("stealth", s.cfg.Stealth),
		zap.Bool("remote", s.cfg.DebuggerURL != ""),
	)
	return h.ctx, nil
}

// Close tears down the context and the browser. Calling it again, or without
// a prior Acquire, is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// Active reports whether a browser is currently held.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

func (s *Session) closeLocked() error {
	h := s.cur
	if h == nil {
		return nil
	}
	s.cur = nil

	var errs []error
	if h.incognito != nil {
		if err := h.incognito.Close(); err != nil {
			errs = append(errs, eris.Wrap(err, "browser: close context"))
		}
	}
	if h.browser != nil {
		if err := h.browser.Close(); err != nil {
			errs = append(errs, eris.Wrap(err, "browser: close browser"))
		}
	}
	if h.kill != nil {
		h.kill()
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// startRod launches Chrome, or connects to cfg.DebuggerURL, and opens an
// incognito context on it.
func startRod(ctx context.Context, cfg Config) (*handle, error) {
	h := &handle{}
	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		for _, raw := range cfg.Flags {
			name, vals := parseFlag(raw)
			if name == "" {
				continue
			}
			l = l.Set(name, vals...)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "browser: launch chrome")
		}
		h.kill = func() {
			l.Kill()
			l.Cleanup()
		}
		controlURL = u
	}

	conn := rod.New().ControlURL(controlURL).Context(ctx)
	if err := conn.Connect(); err != nil {
		if h.kill != nil {
			h.kill()
		}
		return nil, eris.Wrap(err, "browser: connect to chrome")
	}
	// The session outlives the context used to connect.
	b := conn.Context(context.Background())
	if err := b.IgnoreCertErrors(true); err != nil {
		zap.L().Debug("browser: ignore cert errors not applied", zap.Error(err))
	}

	incognito, err := b.Incognito()
	if err != nil {
		_ = b.Close()
		if h.kill != nil {
			h.kill()
		}
		return nil, eris.Wrap(err, "browser: incognito context")
	}

	// A remote browser belongs to someone else; only drop our context.
	if cfg.DebuggerURL == "" {
		h.browser = b
	}
	h.incognito = incognito
	h.ctx = &Context{browser: incognito, stealth: cfg.Stealth}
	return h, nil
}

// parseFlag splits "--name=a,b" into the launcher flag and its values.
func parseFlag(raw string) (flags.Flag, []string) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "-")
	name, val, hasVal := strings.Cut(raw, "=")
	if !hasVal {
		return flags.Flag(name), nil
	}
	return flags.Flag(name), []string{val}
}

// Context is an isolated browsing context handed out by Session.Acquire.
// It implements extract.PageOpener.
type Context struct {
	browser *rod.Browser
	stealth bool
}

// Open creates a blank page in the context.
func (c *Context) Open(ctx context.Context) (extract.Page, error) {
	var (
		p   *rod.Page
		err error
	)
	b := c.browser.Context(ctx)
	if c.stealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, eris.Wrap(err, "browser: open page")
	}
	return &Page{page: p}, nil
}
