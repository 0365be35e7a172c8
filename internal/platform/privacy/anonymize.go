// Package privacy reduces client addresses to network prefixes before they
// reach logs or the audit ledger.
package privacy

import "net/netip"

const (
	Unknown = "unknown"
	Invalid = "invalid"
)

// AnonymizeIP keeps the /24 of an IPv4 address and the /48 of an IPv6
// address. IPv4-mapped IPv6 addresses are treated as IPv4.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == Unknown {
		return Unknown
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Invalid
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return Invalid
	}
	return prefix.String()
}
