// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/normalize"
)

type MatchStatus string

const (
	MatchExact       MatchStatus = "matched"
	MatchEquivalence MatchStatus = "matched_via_equivalence"
	MatchFuzzy       MatchStatus = "matched_fuzzy"
	Unmatched        MatchStatus = "unmatched"
)

// Mention is a supply line found in the hospital record or the surgical
// description, i.e. a candidate for an internal item.
type Mention struct {
	Source document.Type
	Item   document.SupplyLineItem
	// index is the position in the reconciler's candidate list.
	index int
}

// Match is the outcome of a Matcher that accepted an item.
type Match struct {
	Status    MatchStatus
	Score     float64
	Mention   Mention
	Canonical string
}

// Matcher is one strategy in the reconciliation chain. Matchers are tried in
// order and the first one that returns ok decides the item.
type Matcher interface {
	Name() string
	Match(item document.SupplyLineItem, candidates []Mention, resolver equivalence.Resolver) (Match, bool)
}

// DefaultMatchers is the standard chain: exact, equivalence, fuzzy.
func DefaultMatchers(fuzzyThreshold float64) []Matcher {
	return []Matcher{
		ExactMatcher{},
		EquivalenceMatcher{},
		FuzzyMatcher{Threshold: fuzzyThreshold},
	}
}

// ExactMatcher accepts the first candidate with an identical normalized name.
type ExactMatcher struct{}

func (ExactMatcher) Name() string { return "exact" }

func (ExactMatcher) Match(item document.SupplyLineItem, candidates []Mention, _ equivalence.Resolver) (Match, bool) {
	if item.NormalizedName == "" {
		return Match{}, false
	}
	for _, c := range candidates {
		if c.Item.NormalizedName == item.NormalizedName {
			return Match{Status: MatchExact, Score: 1.0, Mention: c}, true
		}
	}
	return Match{}, false
}

// EquivalenceMatcher accepts the first candidate that resolves to the same
// canonical name as the item.
type EquivalenceMatcher struct{}

func (EquivalenceMatcher) Name() string { return "equivalence" }

func (EquivalenceMatcher) Match(item document.SupplyLineItem, candidates []Mention, resolver equivalence.Resolver) (Match, bool) {
	if resolver == nil {
		return Match{}, false
	}
	canonical, ok := resolver.Resolve(item.NormalizedName)
	if !ok {
		return Match{}, false
	}
	for _, c := range candidates {
		if other, ok := resolver.Resolve(c.Item.NormalizedName); ok && other == canonical {
			return Match{Status: MatchEquivalence, Score: 1.0, Mention: c, Canonical: canonical}, true
		}
	}
	return Match{}, false
}

// FuzzyMatcher accepts the most similar candidate when it reaches Threshold.
// Ties keep the earliest candidate.
type FuzzyMatcher struct {
	Threshold float64
}

func (FuzzyMatcher) Name() string { return "fuzzy" }

func (m FuzzyMatcher) Match(item document.SupplyLineItem, candidates []Mention, _ equivalence.Resolver) (Match, bool) {
	best, score, found := bestCandidate(item.NormalizedName, candidates)
	if !found || score < m.Threshold {
		return Match{}, false
	}
	return Match{Status: MatchFuzzy, Score: score, Mention: best}, true
}

func bestCandidate(name string, candidates []Mention) (Mention, float64, bool) {
	var (
		best  Mention
		score = -1.0
	)
	for _, c := range candidates {
		s := normalize.Similarity(name, c.Item.NormalizedName)
		if s > score {
			best, score = c, s
		}
	}
	return best, score, score >= 0
}
