// SPDX-License-Identifier: Apache-2.0

package suggest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/normalize"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/suggest"
	"github.com/vgmedical/casecheck/internal/verify"
)

func itemResult(raw string, status verify.MatchStatus) verify.ItemResult {
	return verify.ItemResult{
		Item:   document.SupplyLineItem{RawName: raw, NormalizedName: normalize.String(raw)},
		Status: status,
	}
}

func reportWith(items ...verify.ItemResult) *report.VerificationReport {
	return &report.VerificationReport{Supplies: verify.SupplyResult{Items: items}}
}

func seededStore(t *testing.T) *equivalence.Store {
	t.Helper()
	s := equivalence.NewStore()
	ctx := context.Background()
	_, err := s.CreateOrUpdate(ctx, "clavo tibial", []string{"clavo tib"}, false)
	require.NoError(t, err)
	_, err = s.CreateOrUpdate(ctx, "placa bloqueada 4 orificios", nil, false)
	require.NoError(t, err)
	return s
}

func TestSuggest_CandidateBand(t *testing.T) {
	s := seededStore(t)
	r := reportWith(itemResult("Clavo Femoral", verify.Unmatched))

	got := suggest.NewEngine(0.60, 0.80).Suggest(r, s.Snapshot())
	require.Len(t, got, 1)
	assert.Equal(t, "clavo tibial", got[0].CandidateCanonical)
	assert.Equal(t, "clavo femoral", got[0].Alias)
	assert.Equal(t, suggest.SourceStore, got[0].Source)
	assert.InDelta(t, 0.615, got[0].Score, 0.01)
	assert.GreaterOrEqual(t, got[0].Score, 0.60)
	assert.Less(t, got[0].Score, 0.80)
}

func TestSuggest_OnlyUnmatchedItems(t *testing.T) {
	s := seededStore(t)
	r := reportWith(
		itemResult("clavo femoral", verify.MatchFuzzy),
		itemResult("clavo femoral", verify.MatchExact),
		itemResult("clavo femoral", verify.MatchEquivalence),
	)
	assert.Empty(t, suggest.NewEngine(0.60, 0.80).Suggest(r, s.Snapshot()))
}

func TestSuggest_NeverMutatesStore(t *testing.T) {
	s := seededStore(t)
	before := s.Snapshot()
	entries := before.Entries()

	r := reportWith(itemResult("clavo femoral", verify.Unmatched), itemResult("placa bloqueada 3 orificios", verify.Unmatched))
	got := suggest.NewEngine(0.60, 0.80).Suggest(r, s.Snapshot())
	require.NotEmpty(t, got)

	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, entries, s.Snapshot().Entries())
}

func TestSuggest_CaseMentionAndRanking(t *testing.T) {
	s := seededStore(t)

	femoral := itemResult("clavo femoral", verify.Unmatched)
	mention := itemResult("tornillo cortical 3.5x40", verify.Unmatched)
	mention.BestCandidate = "tornillo cort 3.5"
	mention.BestScore = normalize.Similarity("tornillo cortical 3.5x40", "tornillo cort 3.5")
	require.GreaterOrEqual(t, mention.BestScore, 0.60)
	require.Less(t, mention.BestScore, 0.80)

	far := itemResult("gasa esteril", verify.Unmatched)
	far.BestCandidate = "compresa"
	far.BestScore = 0.2

	got := suggest.NewEngine(0.60, 0.80).Suggest(reportWith(femoral, mention, far), s.Snapshot())
	require.Len(t, got, 2)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	var fromCase *suggest.Suggestion
	for i := range got {
		if got[i].Source == suggest.SourceCaseMention {
			fromCase = &got[i]
		}
	}
	require.NotNil(t, fromCase)
	assert.Equal(t, "tornillo cortical 3.5x40", fromCase.CandidateCanonical)
	assert.Equal(t, "tornillo cort 3.5", fromCase.Alias)
}

func TestSuggest_TiesOrderByItemThenCanonical(t *testing.T) {
	catalog := staticCatalog{
		{CanonicalName: "placa zb"},
		{CanonicalName: "placa za"},
	}
	// both canonicals score the same against each item
	r := reportWith(itemResult("placa xx", verify.Unmatched), itemResult("placa yy", verify.Unmatched))

	got := suggest.NewEngine(0.60, 0.80).Suggest(r, catalog)
	require.Len(t, got, 4)
	var order []string
	for _, s := range got {
		order = append(order, s.ItemNormalized+"->"+s.CandidateCanonical)
	}
	assert.Equal(t, []string{"placa xx->placa za", "placa xx->placa zb", "placa yy->placa za", "placa yy->placa zb"}, order)
}

func TestSuggest_NilInputs(t *testing.T) {
	e := suggest.NewEngine(0.60, 0.80)
	assert.Empty(t, e.Suggest(nil, nil))
	assert.Empty(t, e.Suggest(reportWith(itemResult("clavo femoral", verify.Unmatched)), nil))
}

type staticCatalog []equivalence.Entry

func (c staticCatalog) Entries() []equivalence.Entry { return c }
