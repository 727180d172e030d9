package resolver

import (
	"regexp"
	"strings"

	platformstrings "skyreg/pkg/platform/strings"
)

var nonHex = regexp.MustCompile(`[^0-9A-Fa-f]`)

// Candidates derives the ordered normalized variants of a raw identifier:
// verbatim, lower-case, upper-case, plus the prefix-stripped forms when the
// identifier already carries the registration prefix, or the prefixed forms
// when it does not. Duplicates are removed preserving first position.
func Candidates(identifier, prefix string) []string {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil
	}

	variants := []string{id, strings.ToLower(id), strings.ToUpper(id)}
	if prefix != "" {
		if strings.HasPrefix(strings.ToUpper(id), strings.ToUpper(prefix)) {
			bare := id[len(prefix):]
			variants = append(variants, bare, strings.ToLower(bare), strings.ToUpper(bare))
		} else {
			prefixed := prefix + id
			variants = append(variants, prefixed, strings.ToLower(prefixed), strings.ToUpper(prefixed))
		}
	}
	return platformstrings.DedupeAndTrim(variants)
}

// DerivedCode extracts a Mode S style code from a hardware-address hint:
// strip non-hex characters and keep the trailing six, upper-cased. Returns
// "" when fewer than six hex characters remain.
func DerivedCode(hint string) string {
	hex := nonHex.ReplaceAllString(hint, "")
	if len(hex) < 6 {
		return ""
	}
	return strings.ToUpper(hex[len(hex)-6:])
}
