package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanField trims a sub-field, collapses runs of whitespace, and rewrites
// comma spacing so that "a ,b" and "a,b" both become "a, b". Empty comma
// segments are dropped. The result is stable under repeated application.
func CleanField(s string) string {
	s = norm.NFC.String(s)
	if !strings.Contains(s, ",") {
		return strings.Join(strings.Fields(s), " ")
	}
	return collapseSegments(s)
}

// collapseSegments splits on commas, normalizes whitespace inside each
// segment, drops empty segments, and rejoins with ", ".
func collapseSegments(s string) string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
