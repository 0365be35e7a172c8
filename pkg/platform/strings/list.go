// Package strings holds small helpers for list-valued settings.
package strings

import (
	"slices"
	"strings"
)

// SplitList parses a comma separated setting such as a broker or origin
// list. Entries are trimmed; blanks and repeats are dropped in order.
func SplitList(s string) []string {
	return Compact(strings.Split(s, ","))
}

// Compact trims every value and keeps the first occurrence of each
// non-blank one.
func Compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
