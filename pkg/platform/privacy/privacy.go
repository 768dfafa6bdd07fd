// Package privacy reduces identifiers to log-safe forms.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP truncates an address to its network prefix (/24 for IPv4, /48
// for IPv6). Unparseable input is returned as "invalid".
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "invalid"
	}
	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}

// MaskKey keeps the first four characters of a credential.
func MaskKey(key string) string {
	const visible = 4
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return key[:visible] + strings.Repeat("*", len(key)-visible)
}
