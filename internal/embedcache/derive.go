package embedcache

import (
	"strings"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// DeriveText returns the text an alert's embedding is computed from:
// title, description and location joined by single spaces.
func DeriveText(a *types.Alert) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{a.Title, a.Description, a.Location} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
