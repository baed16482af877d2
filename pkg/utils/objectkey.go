package utils

import (
	"path"
	"strings"
)

// CleanSegment reduces s to a single safe object-key segment. Anything other
// than letters, digits, '.', '-' and '_' becomes '_', and dot-only segments
// are replaced so a key can never climb out of its prefix.
func CleanSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}

// ObjectKey joins cleaned segments with '/'
func ObjectKey(segments ...string) string {
	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		cleaned = append(cleaned, CleanSegment(s))
	}
	return path.Join(cleaned...)
}
