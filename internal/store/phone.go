package store

import (
	"fmt"
	"strings"
)

// CanonicalPhone normalizes a raw recipient identifier into the single
// canonical form used everywhere in the system: digits only, country-code
// prefixed, no "+", no separators, no JID suffix.
//
// Accepted inputs include "+1 (555) 123-4567", "15551234567",
// "15551234567@s.whatsapp.net". Group JIDs ("...@g.us") keep their suffix
// stripped too; the digit-count bounds reject obviously invalid ids.
func CanonicalPhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty recipient")
	}
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		s = s[:idx]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("invalid recipient %q: %d digits", raw, len(digits))
	}
	return digits, nil
}

// MergeSet unions add into base preserving base order, then first-seen order
// of additions. Commutative and idempotent over repeated application.
func MergeSet(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, v := range base {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	for _, v := range add {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
