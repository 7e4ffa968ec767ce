package utils

import (
	"net"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// GetApexDomain returns the registrable domain (eTLD+1) for host, e.g.
// "ads.tracker.co.uk" -> "tracker.co.uk". IP literals and names the public
// suffix list cannot resolve are returned canonicalized but otherwise as-is.
func GetApexDomain(host string) string {
	name := CanonicalHost(host)
	if net.ParseIP(name) != nil {
		return name
	}
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name
	}
	return apexDomain
}

// HostFromURL extracts the canonical host from a raw URL. Scheme-less inputs
// such as "example.com/path" are accepted.
func HostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return ""
		}
	}
	return CanonicalHost(u.Host)
}
