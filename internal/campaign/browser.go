package campaign

import (
	"context"

	"github.com/zhfmzl/priceUpdate-BTB/internal/browser"
	"github.com/zhfmzl/priceUpdate-BTB/internal/extract"
)

// SessionBrowser starts extractors on a shared browser session.
type SessionBrowser struct {
	session *browser.Session
	filter  extract.RequestFilter
	cfg     extract.Config
}

// NewSessionBrowser returns a Browser backed by session. Every page opened
// by its extractors gets filter installed before navigation.
func NewSessionBrowser(session *browser.Session, filter extract.RequestFilter, cfg extract.Config) *SessionBrowser {
	return &SessionBrowser{session: session, filter: filter, cfg: cfg}
}

// Start acquires a fresh browsing context.
func (b *SessionBrowser) Start(ctx context.Context) (Extractor, error) {
	bctx, err := b.session.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return extract.New(bctx, b.filter, b.cfg), nil
}

// Stop closes the browser. Safe to call more than once.
func (b *SessionBrowser) Stop() error {
	return b.session.Close()
}
