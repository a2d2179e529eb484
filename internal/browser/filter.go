package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
)

// Verdict is the outcome of the request filter for one request.
type Verdict int

const (
	Allow Verdict = iota
	Block
)

func (v Verdict) String() string {
	if v == Block {
		return "block"
	}
	return "allow"
}

// DefaultBlockedTypes are the CDP resource types aborted on extraction pages.
// Only the document and its scripts are needed to render the price.
var DefaultBlockedTypes = []string{
	"image",
	"font",
	"stylesheet",
	"media",
	"texttrack",
	"fetch",
	"xhr",
	"eventsource",
	"websocket",
	"manifest",
	"other",
}

// Filter decides which subresource requests a page may issue.
// Immutable after construction, safe for concurrent use.
type Filter struct {
	types map[string]struct{}
	hosts *HostMatcher
}

// NewFilter builds a Filter. Empty lists fall back to the defaults.
func NewFilter(blockedTypes, blockedDomains []string) *Filter {
	if len(blockedTypes) == 0 {
		blockedTypes = DefaultBlockedTypes
	}
	types := make(map[string]struct{}, len(blockedTypes))
	for _, t := range blockedTypes {
		types[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Filter{types: types, hosts: NewHostMatcher(blockedDomains)}
}

// Decide returns Block when the resource type is blocked or the URL targets
// a blocked domain. Type comparison ignores case, so CDP's "XHR" and "xhr"
// are the same.
func (f *Filter) Decide(resourceType, rawURL string) Verdict {
	if _, ok := f.types[strings.ToLower(resourceType)]; ok {
		return Block
	}
	if f.hosts.MatchURL(rawURL) {
		return Block
	}
	return Allow
}

// Blocks reports whether Decide returns Block.
func (f *Filter) Blocks(resourceType, rawURL string) bool {
	return f.Decide(resourceType, rawURL) == Block
}

// hijack installs a request router on page that applies blocks to every
// request. The router must be running before the first navigation.
func hijack(page *rod.Page, blocks func(resourceType, rawURL string) bool) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if blocks(string(h.Request.Type()), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, eris.Wrap(err, "browser: add hijack route")
	}
	go router.Run()
	return router, nil
}
