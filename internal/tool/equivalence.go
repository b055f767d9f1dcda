// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/suggest"
)

// MetadataCreateOrUpdateEquivalence describes the create_or_update_equivalence tool.
var MetadataCreateOrUpdateEquivalence = &mcp.Tool{
	Name: "create_or_update_equivalence",
	Description: "Register aliases for a canonical supply name, for example the hospital's wording of an " +
		"item from the internal catalog. Names are normalized (case, accents, spacing). " +
		"An alias that already belongs to another canonical name is rejected unless override=true, " +
		"which moves it. New equivalences apply to every later verification.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"canonical_name", "aliases"},
		"properties": map[string]interface{}{
			"canonical_name": map[string]interface{}{
				"type":        "string",
				"description": "The supply name as written in the internal record.",
			},
			"aliases": map[string]interface{}{
				"type":        "array",
				"description": "Other names used for the same supply.",
				"items":       map[string]interface{}{"type": "string"},
			},
			"override": map[string]interface{}{
				"type":        "boolean",
				"description": "Move aliases already owned by another canonical name.",
			},
		},
	},
}

type InputCreateOrUpdateEquivalence struct {
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Override      bool     `json:"override"`
}

type OutputCreateOrUpdateEquivalence struct {
	Equivalence equivalence.Entry `json:"equivalence"`
}

func (t *Tools) CreateOrUpdateEquivalence(ctx context.Context, _ *mcp.CallToolRequest, input InputCreateOrUpdateEquivalence) (*mcp.CallToolResult, OutputCreateOrUpdateEquivalence, error) {
	e, err := t.store.CreateOrUpdate(ctx, input.CanonicalName, input.Aliases, input.Override)
	if err != nil {
		return nil, OutputCreateOrUpdateEquivalence{}, err
	}
	return nil, OutputCreateOrUpdateEquivalence{Equivalence: e}, nil
}

// MetadataListEquivalences describes the list_equivalences tool.
var MetadataListEquivalences = &mcp.Tool{
	Name:        "list_equivalences",
	Description: "List every known equivalence with its aliases and how many matches it has explained.",
	InputSchema: map[string]interface{}{"type": "object"},
}

type InputListEquivalences struct{}

type OutputListEquivalences struct {
	Equivalences []equivalence.Entry `json:"equivalences"`
	Count        int                 `json:"count"`
}

func (t *Tools) ListEquivalences(_ context.Context, _ *mcp.CallToolRequest, _ InputListEquivalences) (*mcp.CallToolResult, OutputListEquivalences, error) {
	entries := t.store.List()
	if entries == nil {
		entries = []equivalence.Entry{}
	}
	return nil, OutputListEquivalences{Equivalences: entries, Count: len(entries)}, nil
}

// MetadataSuggestEquivalences describes the suggest_equivalences tool.
var MetadataSuggestEquivalences = &mcp.Tool{
	Name: "suggest_equivalences",
	Description: "Propose equivalences for the supplies a stored case left unmatched. Candidates come from " +
		"the existing equivalences and from the closest mention in the case's own documents, ranked by " +
		"similarity. Suggestions are never applied automatically; confirm them with create_or_update_equivalence.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"case_id"},
		"properties": map[string]interface{}{
			"case_id": map[string]interface{}{
				"type":        "string",
				"description": "Case id or case number returned by verify_case.",
			},
		},
	},
}

type InputSuggestEquivalences struct {
	CaseID string `json:"case_id"`
}

type OutputSuggestEquivalences struct {
	CaseNumber  string               `json:"case_number"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
}

func (t *Tools) SuggestEquivalences(ctx context.Context, _ *mcp.CallToolRequest, input InputSuggestEquivalences) (*mcp.CallToolResult, OutputSuggestEquivalences, error) {
	r, err := t.report(ctx, input.CaseID, false)
	if err != nil {
		return nil, OutputSuggestEquivalences{}, err
	}
	return nil, OutputSuggestEquivalences{
		CaseNumber:  r.CaseNumber,
		Suggestions: t.suggester.Suggest(r, t.store.Snapshot()),
	}, nil
}
