// Package phone normalizes Israeli phone numbers to E.164 and extracts
// candidate numbers from free text. It backs both recipient resolution and
// the conversation guard's contact-capture fallback.
package phone

import (
	"regexp"
	"strings"
)

const ilCountryPrefix = "+972"

// candidatePattern matches phone-like digit runs in free text. A leading
// plus is optional; separators (spaces, parentheses, hyphens) may appear
// between digits.
var candidatePattern = regexp.MustCompile(`[+]?\d[\d\s()\-]{7,}`)

var separatorReplacer = strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "", "-", "")

// NormalizeIL converts a raw phone string to E.164 form for Israel.
//
// Accepted shapes after stripping the "whatsapp:" prefix and separators:
//
//	+<digits>      passed through unchanged
//	0XXXXXXXXX     local 10-digit form, 0 replaced by +972
//	5XXXXXXXX      bare 9-digit mobile form, prefixed with +972
//
// The second return value reports whether the input was recognized.
func NormalizeIL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	s = separatorReplacer.Replace(s)

	if s == "" {
		return "", false
	}

	if strings.HasPrefix(s, "+") {
		if !allDigits(s[1:]) || len(s) < 10 {
			return "", false
		}
		return s, true
	}

	if !allDigits(s) {
		return "", false
	}

	switch {
	case len(s) == 10 && s[0] == '0':
		return ilCountryPrefix + s[1:], true
	case len(s) == 9 && s[0] == '5':
		return ilCountryPrefix + s, true
	}
	return "", false
}

// Extract finds all distinct valid phone numbers in free text, normalized to
// E.164. Candidates that do not normalize to a +-prefixed number of at least
// 10 characters are discarded. Duplicate mentions of the same number count
// once.
func Extract(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, match := range candidatePattern.FindAllString(text, -1) {
		normalized, ok := NormalizeIL(match)
		if !ok || !strings.HasPrefix(normalized, "+") || len(normalized) < 10 {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
