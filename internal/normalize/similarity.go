// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio is the edit-distance similarity of a and b on a 0-1 scale, where
// 1 means identical. Two empty strings are identical.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// Similarity compares two strings independently of word order: both sides
// are normalized, their tokens sorted, and the results compared with Ratio.
func Similarity(a, b string) float64 {
	return Ratio(sortTokens(String(a)), sortTokens(String(b)))
}

// PartialSimilarity scores how well the shorter string fits inside the
// longer one. It is used for loosely written fields such as procedures.
func PartialSimilarity(a, b string) float64 {
	short, long := []rune(String(a)), []rune(String(b))
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 1.0
		}
		return 0.0
	}

	best := 0.0
	for start := 0; start+len(short) <= len(long); start++ {
		r := Ratio(string(short), string(long[start:start+len(short)]))
		if r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
