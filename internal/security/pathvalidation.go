// Package security holds filename hygiene for user-controlled identifiers.
// Camera IDs arrive over the network and end up embedded in plot filenames,
// so they are sanitized before touching the filesystem.
package security

import "strings"

// SanitizeFilename makes a safe filename fragment from an arbitrary string.
// Characters outside ASCII letters, digits, dot, underscore and dash become a
// single underscore, runs of replacements collapse, and the result is trimmed
// of leading and trailing separators and capped in length. Empty input and
// input that sanitizes to nothing both come back as "unknown".
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}

	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
