package cleaner

import (
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// HostParts describes a host. Exactly one field is set.
type HostParts struct {
	Domain *DomainParts `json:"domain,omitempty"`
	IPv4   *IPParts     `json:"ipv4,omitempty"`
	IPv6   *IPParts     `json:"ipv6,omitempty"`
}

// DomainParts splits a domain around its public suffix.
// For "a.b.example.co.uk": subdomain "a.b", not_suffix "a.b.example",
// middle "example", reg_domain "example.co.uk", suffix "co.uk".
type DomainParts struct {
	Whole     string  `json:"whole"`
	Subdomain *string `json:"subdomain"`
	NotSuffix *string `json:"not_suffix"`
	Middle    *string `json:"middle"`
	RegDomain *string `json:"reg_domain"`
	Suffix    *string `json:"suffix"`
}

// IPParts holds an IP host as given.
type IPParts struct {
	Whole string `json:"whole"`
}

// hostProfile validates labels without STD3 rules, so "_dmarc.example.com"
// is a domain. Characters a URL host can never contain are checked separately.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

const forbiddenHostChars = " \t\n\r#%/:<>?@[\\]^|\x00\x7f"

// ParseHostParts classifies host as a domain, IPv4 or IPv6 address.
func ParseHostParts(host string) (*HostParts, error) {
	if host == "" {
		return nil, ErrInvalidHost
	}

	if inner, ok := strings.CutPrefix(host, "["); ok {
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok {
			return nil, ErrInvalidHost
		}
		addr, err := netip.ParseAddr(inner)
		if err != nil || !addr.Is6() {
			return nil, ErrInvalidHost
		}
		return &HostParts{IPv6: &IPParts{Whole: host}}, nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Is4() {
			return &HostParts{IPv4: &IPParts{Whole: host}}, nil
		}
		return &HostParts{IPv6: &IPParts{Whole: host}}, nil
	}

	domain := normalizeHost(host)
	if domain == "" || strings.ContainsAny(domain, forbiddenHostChars) {
		return nil, ErrInvalidHost
	}
	if _, err := hostProfile.ToASCII(domain); err != nil {
		return nil, ErrInvalidHost
	}
	return &HostParts{Domain: splitDomain(host, domain)}, nil
}

// splitDomain finds the suffix boundaries on the lower-cased domain and
// slices the parts out of whole, so they keep the caller's spelling.
func splitDomain(whole, domain string) *DomainParts {
	parts := &DomainParts{Whole: whole}

	given := strings.TrimSuffix(whole, ".")
	if len(given) != len(domain) {
		given = domain
	}
	head := func(n int) *string { v := given[:n]; return &v }
	tail := func(n int) *string { v := given[len(given)-n:]; return &v }

	suffix, _ := publicsuffix.PublicSuffix(domain)
	parts.Suffix = tail(len(suffix))

	if domain != suffix {
		parts.NotSuffix = head(len(domain) - len(suffix) - 1)
	}

	reg, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return parts
	}
	parts.RegDomain = tail(len(reg))

	middle := (*parts.RegDomain)[:len(reg)-len(suffix)-1]
	parts.Middle = &middle

	if domain != reg {
		parts.Subdomain = head(len(domain) - len(reg) - 1)
	}
	return parts
}
