package validators

import (
	"strings"
	"unicode"
)

// SanitizeText trims input, drops control characters Stripe would store
// verbatim in dashboards and receipts, and cuts it to maxRunes characters
// without splitting a multi-byte rune.
func SanitizeText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// SanitizeMetadata trims keys and values and drops entries whose key is
// blank after trimming. A nil or empty map stays nil.
func SanitizeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
