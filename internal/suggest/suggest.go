// SPDX-License-Identifier: Apache-2.0

// Package suggest proposes equivalences for supply items that a report left
// unmatched. Suggestions are for human review; nothing here writes to the
// equivalence store.
package suggest

import (
	"sort"

	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/normalize"
	"github.com/vgmedical/casecheck/internal/report"
)

type Source string

const (
	// SourceStore suggestions point at an existing canonical entry.
	SourceStore Source = "equivalence_store"
	// SourceCaseMention suggestions propose the closest mention of the same
	// case as a new alias of the item.
	SourceCaseMention Source = "case_mention"
)

// Suggestion proposes registering Alias under CandidateCanonical.
type Suggestion struct {
	Item               string  `json:"item"`
	ItemNormalized     string  `json:"item_normalized"`
	CandidateCanonical string  `json:"candidate_canonical"`
	Alias              string  `json:"alias"`
	MatchedName        string  `json:"matched_name"`
	Score              float64 `json:"score"`
	Source             Source  `json:"source"`
	itemOrder          int
}

// Catalog is the read side of the equivalence store.
type Catalog interface {
	Entries() []equivalence.Entry
}

type Engine struct {
	lower float64
	upper float64
}

// NewEngine suggests candidates scoring in [lower, upper). upper is the
// supply match threshold: anything at or above it would already have
// matched.
func NewEngine(lower, upper float64) *Engine {
	return &Engine{lower: lower, upper: upper}
}

func (e *Engine) inBand(score float64) bool {
	return score >= e.lower && score < e.upper
}

// Suggest ranks candidates by score, then by item order in the internal
// document, then by canonical name.
func (e *Engine) Suggest(r *report.VerificationReport, catalog Catalog) []Suggestion {
	out := []Suggestion{}
	if r == nil {
		return out
	}

	var entries []equivalence.Entry
	if catalog != nil {
		entries = catalog.Entries()
	}

	for order, item := range r.UnmatchedItems() {
		name := item.Item.NormalizedName
		best := map[string]Suggestion{}

		for _, entry := range entries {
			score, matched := bestName(name, entry)
			if !e.inBand(score) {
				continue
			}
			best[entry.CanonicalName] = Suggestion{
				Item:               item.Item.RawName,
				ItemNormalized:     name,
				CandidateCanonical: entry.CanonicalName,
				Alias:              name,
				MatchedName:        matched,
				Score:              score,
				Source:             SourceStore,
				itemOrder:          order,
			}
		}

		if item.BestCandidate != "" && e.inBand(item.BestScore) {
			mention := normalize.String(item.BestCandidate)
			if _, taken := best[name]; !taken && mention != "" && mention != name {
				best[name] = Suggestion{
					Item:               item.Item.RawName,
					ItemNormalized:     name,
					CandidateCanonical: name,
					Alias:              mention,
					MatchedName:        mention,
					Score:              item.BestScore,
					Source:             SourceCaseMention,
					itemOrder:          order,
				}
			}
		}

		for _, s := range best {
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.itemOrder != b.itemOrder {
			return a.itemOrder < b.itemOrder
		}
		return a.CandidateCanonical < b.CandidateCanonical
	})
	return out
}

// bestName scores name against an entry's canonical name and aliases and
// returns the highest score with the name that produced it.
func bestName(name string, entry equivalence.Entry) (float64, string) {
	best, matched := normalize.Similarity(name, entry.CanonicalName), entry.CanonicalName
	for _, alias := range entry.Aliases {
		if s := normalize.Similarity(name, alias); s > best {
			best, matched = s, alias
		}
	}
	return best, matched
}
