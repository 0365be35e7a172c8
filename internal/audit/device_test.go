package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"empty header", "", ""},
		{"desktop chrome", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "Chrome on Linux x86_64"},
		{"crawler", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "bot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeviceLabel(tt.ua))
		})
	}

	t.Run("unparseable agent still gets a label", func(t *testing.T) {
		assert.Contains(t, DeviceLabel("curl/8.4.0"), " on ")
	})
}
