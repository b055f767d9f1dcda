// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/suggest"
	"github.com/vgmedical/casecheck/internal/verify"
)

func screwDocuments() []InputDocument {
	return []InputDocument{
		{Type: "internal", Content: "PACIENTE: María Gómez Ruiz\nFECHA: 05/03/2025\nMÉDICO: Dr. Juan Pérez\n" +
			"Tornillo cortical 3.5x40 (2) REF: TC-3540 LOT: 2024A\n"},
		{Type: "hospital", Content: "Nombre del paciente: Maria Gomez Ruiz\nFecha de cirugía: 2025-03-05\n" +
			"Médico tratante: Juan Perez\n\nINSUMOS:\n- tornillo cort 3.5 (2)\n"},
		{Type: "description", Content: "Paciente: María Gómez Ruiz\nFecha: 05/03/2025\nCirujano: Juan Pérez\n" +
			"Se realiza reducción abierta sin complicaciones.\n"},
	}
}

// ---------------------------------------------------------------------------
// verify_case
// ---------------------------------------------------------------------------

func TestVerifyCase_InvalidDocumentSet(t *testing.T) {
	tools := newTestTools()
	docs := screwDocuments()

	tests := []struct {
		name string
		docs []InputDocument
	}{
		{name: "missing document", docs: docs[:2]},
		{name: "duplicate type", docs: []InputDocument{docs[0], docs[1], docs[1]}},
		{name: "unknown type", docs: []InputDocument{docs[0], docs[1], {Type: "factura"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tools.VerifyCase(context.Background(), &mcp.CallToolRequest{}, InputVerifyCase{Documents: tt.docs})
			var invalid *engine.InvalidInputError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

// TestCaseWorkflow follows an operator: verify, read suggestions, confirm one,
// verify again.
func TestCaseWorkflow(t *testing.T) {
	ctx := context.Background()
	req := &mcp.CallToolRequest{}
	tools := newTestTools()

	_, verified, err := tools.VerifyCase(ctx, req, InputVerifyCase{Documents: screwDocuments()})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusProcessed, verified.Case.Status)
	assert.Regexp(t, `^VG_\d{8}_\d{6}_[0-9a-f]{8}$`, verified.Case.CaseNumber)
	require.NotNil(t, verified.Report)
	assert.True(t, verified.Report.RequiresReview)
	require.Len(t, verified.Report.UnmatchedItems(), 1)

	_, suggested, err := tools.SuggestEquivalences(ctx, req, InputSuggestEquivalences{CaseID: verified.Case.CaseNumber})
	require.NoError(t, err)
	require.NotEmpty(t, suggested.Suggestions)
	top := suggested.Suggestions[0]
	assert.Equal(t, suggest.SourceCaseMention, top.Source)
	assert.Equal(t, "tornillo cort 3.5", top.Alias)
	assert.GreaterOrEqual(t, top.Score, 0.60)
	assert.Less(t, top.Score, 0.80)
	assert.Empty(t, tools.store.List(), "suggesting never writes equivalences")

	_, created, err := tools.CreateOrUpdateEquivalence(ctx, req, InputCreateOrUpdateEquivalence{
		CanonicalName: top.CandidateCanonical,
		Aliases:       []string{top.Alias},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tornillo cort 3.5"}, created.Equivalence.Aliases)

	_, stale, err := tools.GetCaseReport(ctx, req, InputGetCaseReport{CaseID: verified.Case.CaseID})
	require.NoError(t, err)
	assert.Equal(t, verified.Report.VerificationScore, stale.Report.VerificationScore, "stored report is returned as is")

	_, fresh, err := tools.GetCaseReport(ctx, req, InputGetCaseReport{CaseID: verified.Case.CaseID, Reverify: true, Format: "yaml"})
	require.NoError(t, err)
	assert.Equal(t, verify.MatchEquivalence, fresh.Report.Supplies.Items[0].Status)
	assert.False(t, fresh.Report.RequiresReview)
	assert.Equal(t, report.StatusApproved, fresh.Report.OverallStatus)
	assert.Greater(t, fresh.Report.VerificationScore, verified.Report.VerificationScore)
	assert.Contains(t, fresh.YAML, "verification_score: 1")

	_, listed, err := tools.ListEquivalences(ctx, req, InputListEquivalences{})
	require.NoError(t, err)
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, int64(1), listed.Equivalences[0].TimesUsed)
}

// ---------------------------------------------------------------------------
// get_case_report / equivalences
// ---------------------------------------------------------------------------

func TestGetCaseReport_Errors(t *testing.T) {
	tools := newTestTools()
	req := &mcp.CallToolRequest{}

	_, _, err := tools.GetCaseReport(context.Background(), req, InputGetCaseReport{})
	assert.ErrorContains(t, err, "case_id is required")

	_, _, err = tools.GetCaseReport(context.Background(), req, InputGetCaseReport{CaseID: "VG_20250101_000000_deadbeef"})
	assert.ErrorIs(t, err, casestore.ErrNotFound)

	_, _, err = tools.GetCaseReport(context.Background(), req, InputGetCaseReport{CaseID: "x", Format: "xml"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestCreateOrUpdateEquivalence_Conflict(t *testing.T) {
	ctx := context.Background()
	req := &mcp.CallToolRequest{}
	tools := newTestTools()

	_, _, err := tools.CreateOrUpdateEquivalence(ctx, req, InputCreateOrUpdateEquivalence{
		CanonicalName: "Placa LCP 4.5", Aliases: []string{"placa bloqueada"},
	})
	require.NoError(t, err)

	_, _, err = tools.CreateOrUpdateEquivalence(ctx, req, InputCreateOrUpdateEquivalence{
		CanonicalName: "Placa DCP 4.5", Aliases: []string{"Placa Bloqueada"},
	})
	var conflict *equivalence.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "placa bloqueada", conflict.Alias)

	_, moved, err := tools.CreateOrUpdateEquivalence(ctx, req, InputCreateOrUpdateEquivalence{
		CanonicalName: "Placa DCP 4.5", Aliases: []string{"Placa Bloqueada"}, Override: true,
	})
	require.NoError(t, err)
	assert.True(t, moved.Equivalence.HasAlias("placa bloqueada"))

	_, _, err = tools.CreateOrUpdateEquivalence(ctx, req, InputCreateOrUpdateEquivalence{CanonicalName: "  "})
	assert.ErrorIs(t, err, equivalence.ErrEmptyCanonical)
}
