package browser

import (
	"net/url"
	"path"
	"strings"
)

// defaultBlockedDomains are used when no custom domains are provided.
var defaultBlockedDomains = []string{
	"google-analytics.com",
	"doubleclick.net",
}

// HostMatcher matches request hosts against a domain list.
// A plain domain matches itself and every subdomain; a pattern containing
// glob characters ("*.ads.example") goes through path.Match.
type HostMatcher struct {
	domains []string
}

// NewHostMatcher creates a HostMatcher from domains (e.g. "doubleclick.net").
// Falls back to default domains if none are provided.
func NewHostMatcher(domains []string) *HostMatcher {
	if len(domains) == 0 {
		domains = defaultBlockedDomains
	}
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = normalizeHost(d)
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return &HostMatcher{domains: normalized}
}

// Domains returns the configured domains.
func (m *HostMatcher) Domains() []string {
	return m.domains
}

// MatchURL reports whether rawURL targets a listed host. Unparsable URLs and
// URLs without a host never match.
func (m *HostMatcher) MatchURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return m.MatchHost(u.Hostname())
}

// MatchHost reports whether host is a listed domain or one of its subdomains.
func (m *HostMatcher) MatchHost(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, d := range m.domains {
		if matchDomain(d, host) {
			return true
		}
	}
	return false
}

// matchDomain matches "doubleclick.net" against "doubleclick.net" and
// "stats.g.doubleclick.net" but not "notdoubleclick.net".
func matchDomain(domain, host string) bool {
	if strings.ContainsAny(domain, "*?[") {
		ok, _ := path.Match(domain, host)
		return ok
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
