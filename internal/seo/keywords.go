package seo

import "strings"

func splitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// MainKeyword returns the first comma-separated entry of raw, trimmed.
func MainKeyword(raw string) string {
	return splitKeywords(raw)[0]
}

// AdditionalKeywords returns every entry after the first joined with ", ".
// It reports false when raw holds a single entry.
func AdditionalKeywords(raw string) (string, bool) {
	parts := splitKeywords(raw)
	if len(parts) < 2 {
		return "", false
	}
	return strings.Join(parts[1:], ", "), true
}

func acceptMainKeyword(raw string) (string, bool) {
	if isBlank(raw) {
		return "", false
	}
	return MainKeyword(raw), true
}

func acceptAdditionalKeywords(raw string) (string, bool) {
	if isBlank(raw) {
		return "", false
	}
	return AdditionalKeywords(raw)
}
