// SPDX-License-Identifier: Apache-2.0

// Package normalize canonicalizes free text so that supply names, people
// names and labels written by different authors can be compared.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the fixpoint loop in String. Real input settles after
// one or two passes.
const maxPasses = 8

var (
	dimensionPattern = regexp.MustCompile(`(\d)\s*x\s*(\d)`)
	unitPattern      = regexp.MustCompile(`(\d)\s+(mm|cm|ml|mg|cc|kg|g)\b`)
	standardPattern  = regexp.MustCompile(`\bstandard(s?)\b`)
)

// titleTokens are honorifics dropped from people names before comparison.
var titleTokens = map[string]bool{
	"dr":     true,
	"dra":    true,
	"md":     true,
	"m.d":    true,
	"doctor": true,
}

// Fold removes diacritics while preserving case and punctuation.
func Fold(s string) string {
	// transformers carry state, so each call builds its own chain
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// String returns the canonical form of s. It is total and idempotent:
// String(String(s)) == String(s) for every input, including "".
func String(s string) string {
	current := s
	for i := 0; i < maxPasses; i++ {
		next := pass(current)
		if next == current {
			return next
		}
		current = next
	}
	return current
}

func pass(s string) string {
	s = strings.ToLower(Fold(s))
	s = strings.ReplaceAll(s, "×", "x")

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '.', r == ',', r == '-', r == '/':
			return r
		default:
			return ' '
		}
	}, s)

	fields := strings.Fields(s)
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,-/")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	s = strings.Join(tokens, " ")

	for {
		joined := dimensionPattern.ReplaceAllString(s, "${1}x${2}")
		if joined == s {
			break
		}
		s = joined
	}
	s = unitPattern.ReplaceAllString(s, "${1}${2}")
	s = standardPattern.ReplaceAllString(s, "estandar${1}")

	return strings.TrimSpace(s)
}

// Name normalizes a person's name and drops honorifics such as "Dr." or "MD".
func Name(s string) string {
	tokens := strings.Fields(String(s))
	kept := tokens[:0]
	for _, tok := range tokens {
		if !titleTokens[tok] {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// Digits keeps only the decimal digits of s. Identity numbers are compared
// this way so that "1.020.304" and "1020304" agree.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
