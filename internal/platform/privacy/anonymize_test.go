package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0/24"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0/24"},
		{"ipv4 mapped ipv6", "::ffff:10.1.2.3", "10.1.2.0/24"},
		{"ipv6 compressed", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::/48"},
		{"ipv6 loopback", "::1", "::/48"},
		{"ipv6 with zone", "fe80::1%eth0", "fe80::/48"},
		{"empty", "", Unknown},
		{"unknown", "unknown", Unknown},
		{"garbage", "not-an-ip", Invalid},
		{"host and port", "10.0.0.1:8080", Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AnonymizeIP(tt.input))
		})
	}
}
