package cleaner

import (
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// matches reports whether every populated field of c holds for u.
// A nil condition always matches.
func (c *Condition) matches(u *url.URL, j *Job) bool {
	if c == nil {
		return true
	}
	params := j.snap.config.Params
	host := normalizeHost(u.Hostname())

	if len(c.HostIs) > 0 && !slices.Contains(c.HostIs, host) {
		return false
	}
	if len(c.HostSuffix) > 0 && !slices.ContainsFunc(c.HostSuffix, func(s string) bool {
		return hasDomainSuffix(host, s)
	}) {
		return false
	}
	if len(c.RegDomainIs) > 0 {
		reg, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil || !slices.Contains(c.RegDomainIs, reg) {
			return false
		}
	}
	if c.PathPrefix != "" && !strings.HasPrefix(u.EscapedPath(), c.PathPrefix) {
		return false
	}
	if c.QueryHas != "" && !u.Query().Has(c.QueryHas) {
		return false
	}
	if c.Flag != "" && !params.HasFlag(c.Flag) {
		return false
	}
	if c.NotFlag != "" && params.HasFlag(c.NotFlag) {
		return false
	}
	for name, want := range c.Var {
		got, ok := j.lookupVar(name)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// hasDomainSuffix reports whether host is suffix or a subdomain of it.
func hasDomainSuffix(host, suffix string) bool {
	suffix = normalizeHost(suffix)
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
