//go:build e2e

package admin

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// uniqueEmail keeps scenarios independent against a long-lived server.
func uniqueEmail(name string) string {
	slug := strings.ToLower(strings.NewReplacer(" ", ".", ".", "").Replace(name))
	return fmt.Sprintf("%s.%s@e2e.rekamed.test", slug, uuid.NewString()[:8])
}
