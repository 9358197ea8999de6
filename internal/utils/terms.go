package utils

import "strings"

var termAliases = map[string][]string{
	"go":         {"golang"},
	"golang":     {"go"},
	"javascript": {"js"},
	"typescript": {"ts"},
	"kubernetes": {"k8s"},
	"postgresql": {"postgres"},
	"postgres":   {"postgresql"},
}

// ContainsTerm reports whether text names term as a whole token, ignoring
// case. A term edge made of an ASCII letter, digit, '+' or '#' must not touch
// another such character, so "Java" is not found in "JavaScript" and "Go" is
// not found in "Django" or "ago". Non-ASCII edges match anywhere.
func ContainsTerm(text, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	text = strings.ToLower(text)

	if containsToken(text, term) {
		return true
	}
	for _, alias := range termAliases[term] {
		if containsToken(text, alias) {
			return true
		}
	}
	return false
}

// SameTerm reports whether either name contains the other as a whole token.
func SameTerm(a, b string) bool {
	return ContainsTerm(a, b) || ContainsTerm(b, a)
}

func containsToken(text, term string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)

		leftOK := start == 0 || !isTermByte(term[0]) || !isTermByte(text[start-1])
		rightOK := end == len(text) || !isTermByte(term[len(term)-1]) || !isTermByte(text[end])
		if leftOK && rightOK {
			return true
		}
		from = start + 1
	}
	return false
}

func isTermByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '+' || b == '#':
		return true
	}
	return false
}
