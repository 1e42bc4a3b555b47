package transcript

import (
	"strings"
	"unicode"
)

// lowercaseSentenceAbbreviations should stay lowercase even at sentence
// starts.
var lowercaseSentenceAbbreviations = map[string]struct{}{
	"e.g": {},
	"etc": {},
	"i.e": {},
	"vs":  {},
}

// nonTerminalAbbreviations are tokens whose trailing period does not end a
// sentence in dictated text.
var nonTerminalAbbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "cf": {}, "etc": {}, "vs": {},
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {},
	"ch": {}, "eq": {}, "fig": {}, "ref": {}, "sec": {},
	"hr": {}, "hrs": {}, "lb": {}, "lbs": {}, "min": {}, "mins": {},
	"oz": {}, "tbsp": {}, "tsp": {},
}

// isSentenceBoundaryPeriod decides whether the period at idx terminates a
// sentence. Decimals, embedded tokens (file.wav), known abbreviations, and
// initialisms (u.s.) do not.
func isSentenceBoundaryPeriod(runes []rune, idx int) bool {
	if idx < 0 || idx >= len(runes) || runes[idx] != '.' {
		return false
	}

	if idx > 0 && idx+1 < len(runes) && unicode.IsDigit(runes[idx-1]) && unicode.IsDigit(runes[idx+1]) {
		return false
	}
	if idx+1 < len(runes) {
		next := runes[idx+1]
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.' {
			return false
		}
	}

	token := strings.ToLower(tokenBeforePeriod(runes, idx))
	if token == "" {
		return true
	}
	if _, ok := nonTerminalAbbreviations[token]; ok {
		return false
	}
	if looksLikeInitialism(token) {
		// Conservative: treat as boundary only when the next word is
		// already capitalized.
		return nextWordIsCapitalized(runes, idx+1)
	}
	return true
}

func isLowercaseSentenceAbbreviation(token string) bool {
	_, ok := lowercaseSentenceAbbreviations[token]
	return ok
}

func tokenBeforePeriod(runes []rune, idx int) string {
	if idx <= 0 || idx >= len(runes) {
		return ""
	}
	start := idx - 1
	for start >= 0 {
		if r := runes[start]; unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}
	return strings.Trim(string(runes[start+1:idx]), ".")
}

// looksLikeInitialism reports dotted single-letter tokens such as u.s.
func looksLikeInitialism(token string) bool {
	if !strings.ContainsRune(token, '.') {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		runes := []rune(part)
		if len(runes) != 1 || !unicode.IsLetter(runes[0]) {
			return false
		}
	}
	return true
}

func nextWordIsCapitalized(runes []rune, start int) bool {
	for i := start; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r) || isSentencePrefixRune(r):
			continue
		case unicode.IsLetter(r):
			return unicode.IsUpper(r)
		default:
			return false
		}
	}
	return false
}
