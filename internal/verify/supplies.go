// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/normalize"
)

// ItemResult is the reconciliation record of one internal supply item.
type ItemResult struct {
	Item   document.SupplyLineItem `json:"item"`
	Status MatchStatus             `json:"status"`
	Score  float64                 `json:"score"`
	// Matcher names the strategy that accepted the item.
	Matcher     string        `json:"matcher,omitempty"`
	MatchedName string        `json:"matched_name,omitempty"`
	MatchedIn   document.Type `json:"matched_in,omitempty"`
	Canonical   string        `json:"canonical,omitempty"`
	// BestCandidate and BestScore describe the closest mention of an
	// unmatched item.
	BestCandidate string  `json:"best_candidate,omitempty"`
	BestScore     float64 `json:"best_score,omitempty"`
}

// ExtraMention is a hospital or description mention that no internal item
// explains.
type ExtraMention struct {
	Source         document.Type `json:"source"`
	RawName        string        `json:"raw_name"`
	NormalizedName string        `json:"normalized_name"`
	Quantity       *int          `json:"quantity,omitempty"`
	BestScore      float64       `json:"best_score"`
}

type Summary struct {
	Total                 int `json:"total"`
	Matched               int `json:"matched"`
	MatchedViaEquivalence int `json:"matched_via_equivalence"`
	MatchedFuzzy          int `json:"matched_fuzzy"`
	Unmatched             int `json:"unmatched"`
	Extra                 int `json:"extra"`
}

type SupplyResult struct {
	Items         []ItemResult   `json:"items"`
	Extras        []ExtraMention `json:"extra_mentions"`
	Summary       Summary        `json:"summary"`
	MatchRatio    float64        `json:"match_ratio"`
	Discrepancies []Discrepancy  `json:"-"`
}

// MatchedCount is the number of internal items accepted by any matcher.
func (s Summary) MatchedCount() int {
	return s.Matched + s.MatchedViaEquivalence + s.MatchedFuzzy
}

// Reconciler matches the internal supply list against the mentions found in
// the hospital record and the surgical description.
type Reconciler struct {
	matchers  []Matcher
	plausible float64
}

// NewReconciler builds a reconciler with the given matcher chain. Mentions
// that score below extraThreshold against every internal item are reported
// as extra mentions.
func NewReconciler(extraThreshold float64, matchers ...Matcher) *Reconciler {
	return &Reconciler{matchers: matchers, plausible: extraThreshold}
}

// ExtraThreshold is the plausibility score below which an unmatched mention
// is reported as extra.
func (r *Reconciler) ExtraThreshold() float64 { return r.plausible }

// Candidates lists hospital mentions followed by description mentions, each
// in document order.
func Candidates(hospital, description document.ParsedDocument) []Mention {
	out := make([]Mention, 0, len(hospital.Supplies)+len(description.Supplies))
	for _, d := range []document.ParsedDocument{hospital, description} {
		for _, item := range d.Supplies {
			out = append(out, Mention{Source: d.Type, Item: item, index: len(out)})
		}
	}
	return out
}

// Reconcile runs the matcher chain for every internal item. resolver may be
// nil, in which case equivalence matching never succeeds.
func (r *Reconciler) Reconcile(internal, hospital, description document.ParsedDocument, resolver equivalence.Resolver) SupplyResult {
	candidates := Candidates(hospital, description)
	result := SupplyResult{
		Items:  make([]ItemResult, 0, len(internal.Supplies)),
		Extras: []ExtraMention{},
	}
	used := make([]bool, len(candidates))

	for _, item := range internal.Supplies {
		ir := r.reconcileItem(item, candidates, resolver)
		result.Items = append(result.Items, ir.ItemResult)
		if ir.matched {
			used[ir.mention.index] = true
		}

		switch ir.Status {
		case MatchExact:
			result.Summary.Matched++
		case MatchEquivalence:
			result.Summary.MatchedViaEquivalence++
		case MatchFuzzy:
			result.Summary.MatchedFuzzy++
		default:
			result.Summary.Unmatched++
			detail := fmt.Sprintf("%q was not found in the hospital record or the surgical description", item.RawName)
			if ir.BestCandidate != "" {
				detail += fmt.Sprintf(" (closest mention %q, score %.2f)", ir.BestCandidate, ir.BestScore)
			}
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Type:        TypeSupplyUnmatched,
				FieldOrItem: item.RawName,
				Detail:      detail,
				Severity:    SeverityCritical,
				Component:   ComponentSupplies,
			})
		}

		if ir.matched && item.Quantity != nil && ir.mention.Item.Quantity != nil &&
			*item.Quantity != *ir.mention.Item.Quantity {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Type:        TypeSupplyQuantityMismatch,
				FieldOrItem: item.RawName,
				Detail: fmt.Sprintf("internal record lists %d, %s mentions %d",
					*item.Quantity, ir.mention.Source, *ir.mention.Item.Quantity),
				Severity:  SeverityWarning,
				Component: ComponentSupplies,
			})
		}
	}
	result.Summary.Total = len(internal.Supplies)

	for i, c := range candidates {
		if used[i] {
			continue
		}
		score, ok := r.explained(c, internal.Supplies, resolver)
		if ok {
			continue
		}
		result.Extras = append(result.Extras, ExtraMention{
			Source:         c.Source,
			RawName:        c.Item.RawName,
			NormalizedName: c.Item.NormalizedName,
			Quantity:       c.Item.Quantity,
			BestScore:      score,
		})
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Type:        TypeExtraSupplyMention,
			FieldOrItem: c.Item.RawName,
			Detail:      fmt.Sprintf("%s mentions %q, which has no counterpart in the internal supply list", c.Source, c.Item.RawName),
			Severity:    SeverityWarning,
			Component:   ComponentSupplies,
		})
	}
	result.Summary.Extra = len(result.Extras)

	switch {
	case result.Summary.Total > 0:
		result.MatchRatio = float64(result.Summary.MatchedCount()) / float64(result.Summary.Total)
	case len(candidates) == 0:
		// nothing to reconcile on either side
		result.MatchRatio = 1.0
	}

	if result.Summary.Total == 0 && internal.TextExtracted {
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Type:        TypeSupplyListEmpty,
			FieldOrItem: string(document.TypeInternal),
			Detail:      "the internal record lists no supplies",
			Severity:    SeverityWarning,
			Component:   ComponentSupplies,
		})
	}
	return result
}

type itemOutcome struct {
	ItemResult
	matched bool
	mention Mention
}

func (r *Reconciler) reconcileItem(item document.SupplyLineItem, candidates []Mention, resolver equivalence.Resolver) itemOutcome {
	for _, m := range r.matchers {
		match, ok := m.Match(item, candidates, resolver)
		if !ok {
			continue
		}
		return itemOutcome{
			ItemResult: ItemResult{
				Item:        item,
				Status:      match.Status,
				Score:       match.Score,
				Matcher:     m.Name(),
				MatchedName: match.Mention.Item.RawName,
				MatchedIn:   match.Mention.Source,
				Canonical:   match.Canonical,
			},
			matched: true,
			mention: match.Mention,
		}
	}

	out := itemOutcome{ItemResult: ItemResult{Item: item, Status: Unmatched}}
	if best, score, ok := bestCandidate(item.NormalizedName, candidates); ok {
		out.BestCandidate = best.Item.RawName
		out.BestScore = score
	}
	return out
}

// explained reports whether some internal item plausibly accounts for the
// mention, and the best similarity seen.
func (r *Reconciler) explained(c Mention, items []document.SupplyLineItem, resolver equivalence.Resolver) (float64, bool) {
	var mentionCanonical string
	var resolved bool
	if resolver != nil {
		mentionCanonical, resolved = resolver.Resolve(c.Item.NormalizedName)
	}

	best := 0.0
	for _, item := range items {
		if item.NormalizedName == c.Item.NormalizedName {
			return 1.0, true
		}
		if resolved {
			if canonical, ok := resolver.Resolve(item.NormalizedName); ok && canonical == mentionCanonical {
				return 1.0, true
			}
		}
		if s := normalize.Similarity(item.NormalizedName, c.Item.NormalizedName); s > best {
			best = s
		}
	}
	return best, best >= r.plausible
}
