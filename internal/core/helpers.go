package core

import (
	"strings"
	"unicode/utf8"
)

// SidebarLabelLimit is the number of runes shown for a dataset name in the
// sidebar before it is truncated.
const SidebarLabelLimit = 20

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalizeName returns the comparison key used for duplicate detection.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// truncateLabel shortens s to limit runes followed by "...".
func truncateLabel(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// PrimaryLanguage returns the primary subtag of a locale such as "ar_SA" or
// "en-US". An empty locale yields "en".
func PrimaryLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return "en"
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
