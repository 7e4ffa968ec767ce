package utils

import (
	"net"
	"strings"
)

// CanonicalHost returns a host in canonical form:
// - Port removed ("example.com:443" -> "example.com")
// - IPv6 brackets removed ("[::1]:443" -> "::1")
// - Lowercased and trimmed of surrounding whitespace
// - No trailing dot
func CanonicalHost(hostport string) string {
	host := strings.TrimSpace(hostport)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.ToLower(host)
	for strings.HasSuffix(host, ".") {
		host = strings.TrimSuffix(host, ".")
	}
	return host
}
