// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/verify"
)

var (
	fixedNow = time.Date(2025, time.March, 6, 8, 30, 0, 0, time.UTC)
	fixedID  = uuid.MustParse("3f1c2b4a-9d8e-4f00-a1b2-c3d4e5f60718")
)

func newService(store *equivalence.Store) *engine.Service {
	return engine.NewService(engine.DefaultSettings(), store,
		engine.WithClock(func() time.Time { return fixedNow }),
		engine.WithIDGenerator(func() uuid.UUID { return fixedID }),
	)
}

func textDoc(t document.Type, text string) document.Document {
	return document.Document{Type: t, Name: string(t) + ".txt", ContentType: "text/plain", Content: []byte(text)}
}

const (
	screwInternal = `REPORTE DE GASTO QUIRURGICO
PACIENTE: María Gómez Ruiz
FECHA: 05/03/2025
MÉDICO: Dr. Juan Pérez

Tornillo encefálico 3.5x55 mm (2) REF: 1234 LOT: AB56
`
	screwHospital = `Nombre del paciente: Maria Gomez Ruiz
Fecha de cirugía: 2025-03-05
Médico tratante: Juan Perez

INSUMOS:
- tornillo 3.5x55 (2)
`
	screwDescription = `Paciente: María Gómez Ruiz
Fecha: 05/03/2025
Cirujano: Juan Pérez
Se realiza osteosíntesis sin complicaciones.
`
)

func screwCase() []document.Document {
	return []document.Document{
		textDoc(document.TypeInternal, screwInternal),
		textDoc(document.TypeHospital, screwHospital),
		textDoc(document.TypeDescription, screwDescription),
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_CaseIdentity(t *testing.T) {
	c, err := newService(nil).Ingest(context.Background(), screwCase()...)
	require.NoError(t, err)

	assert.Equal(t, fixedID.String(), c.ID)
	assert.Equal(t, "VG_20250306_083000_3f1c2b4a", c.CaseNumber)
	assert.Equal(t, engine.StatusProcessed, c.Status)
	assert.Equal(t, engine.IngestResponse{CaseID: c.ID, CaseNumber: c.CaseNumber, Status: engine.StatusProcessed}, c.Response())
	require.Len(t, c.Documents, 3)
	for _, d := range c.Ordered() {
		assert.True(t, d.TextExtracted, d.Type)
	}
}

func TestIngest_InvalidDocumentSet(t *testing.T) {
	docs := screwCase()
	tests := []struct {
		name string
		docs []document.Document
	}{
		{name: "too few", docs: docs[:2]},
		{name: "too many", docs: append(screwCase(), textDoc(document.TypeHospital, "x"))},
		{name: "duplicate type", docs: []document.Document{docs[0], docs[1], textDoc(document.TypeHospital, "x")}},
		{name: "unknown type", docs: []document.Document{docs[0], docs[1], textDoc("factura", "x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(nil).Ingest(context.Background(), tt.docs...)
			var invalid *engine.InvalidInputError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestIngest_ImageOnlyDocumentDegrades(t *testing.T) {
	docs := screwCase()
	docs[1] = document.Document{Type: document.TypeHospital, Name: "scan.png", Content: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")}

	c, r, err := newService(nil).Run(context.Background(), docs...)
	require.NoError(t, err, "an unreadable document never fails ingestion")
	assert.Equal(t, engine.StatusProcessed, c.Status)
	assert.False(t, c.Documents[document.TypeHospital].TextExtracted)

	assert.True(t, r.RequiresReview)
	assert.False(t, r.TextExtracted[document.TypeHospital])
	var types []string
	for _, d := range r.Discrepancies {
		types = append(types, d.Type)
	}
	assert.Contains(t, types, verify.TypeDocumentTextMissing)
}

// ---------------------------------------------------------------------------
// VerifyCase
// ---------------------------------------------------------------------------

func TestVerifyCase_IdenticalDocuments(t *testing.T) {
	docs := []document.Document{
		textDoc(document.TypeInternal, `PACIENTE: María Gómez Ruiz
FECHA: 05/03/2025
MÉDICO: Dr. Juan Pérez
Placa bloqueada 4 orificios (1) REF: PL-778 LOT: L2024/01
`),
		textDoc(document.TypeHospital, `Nombre del paciente: Maria Gomez Ruiz
Fecha de cirugía: 2025-03-05
Médico tratante: Juan Perez

INSUMOS:
- placa bloqueada 4 orificios (1)
`),
		textDoc(document.TypeDescription, `Paciente: María Gómez Ruiz
Fecha: 05/03/2025
Cirujano: Juan Pérez
MATERIALES: placa bloqueada 4 orificios (1).
`),
	}

	_, r, err := newService(equivalence.NewStore()).Run(context.Background(), docs...)
	require.NoError(t, err)

	assert.Equal(t, 1.0, r.VerificationScore)
	assert.False(t, r.RequiresReview)
	assert.Empty(t, r.Discrepancies)
	assert.Equal(t, report.StatusApproved, r.OverallStatus)
	assert.Equal(t, verify.MatchExact, r.Supplies.Items[0].Status)
	assert.Equal(t, fixedNow, r.GeneratedAt)
}

func TestVerifyCase_LearningAnEquivalence(t *testing.T) {
	ctx := context.Background()
	store := equivalence.NewStore()
	svc := newService(store)

	c, err := svc.Ingest(ctx, screwCase()...)
	require.NoError(t, err)

	before, err := svc.VerifyCase(ctx, c)
	require.NoError(t, err)
	require.Len(t, before.Supplies.Items, 1)
	assert.Equal(t, verify.Unmatched, before.Supplies.Items[0].Status)
	assert.True(t, before.RequiresReview)
	require.NotEmpty(t, before.Discrepancies)
	assert.Equal(t, verify.TypeSupplyUnmatched, before.Discrepancies[0].Type)
	assert.Equal(t, verify.SeverityCritical, before.Discrepancies[0].Severity)
	assert.True(t, before.Traceability.AllValid)

	_, err = store.CreateOrUpdate(ctx, "tornillo encefalico 3.5x55 mm", []string{"tornillo 3.5x55"}, false)
	require.NoError(t, err)

	after, err := svc.VerifyCase(ctx, c)
	require.NoError(t, err)
	item := after.Supplies.Items[0]
	assert.Equal(t, verify.MatchEquivalence, item.Status)
	assert.Equal(t, 1.0, item.Score)
	assert.Equal(t, 1.0, after.Supplies.MatchRatio)
	assert.Equal(t, 1.0, after.Traceability.ValidRatio)
	assert.Equal(t, 1.0, after.VerificationScore)
	assert.False(t, after.RequiresReview)
	assert.Empty(t, after.Discrepancies)
	assert.Greater(t, after.VerificationScore, before.VerificationScore)

	entry, ok := store.Get("tornillo encefalico 3.5x55mm")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.TimesUsed)
}

func TestVerifyCase_IncompleteCase(t *testing.T) {
	svc := newService(nil)
	var invalid *engine.InvalidInputError

	_, err := svc.VerifyCase(context.Background(), nil)
	require.ErrorAs(t, err, &invalid)

	_, err = svc.VerifyCase(context.Background(), &engine.Case{
		CaseNumber: "VG_x",
		Documents:  map[document.Type]document.ParsedDocument{document.TypeInternal: {}},
	})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "hospital")
}

func TestVerifyCase_CustomMatcherChain(t *testing.T) {
	ctx := context.Background()
	store := equivalence.NewStore()
	_, err := store.CreateOrUpdate(ctx, "tornillo encefalico 3.5x55 mm", []string{"tornillo 3.5x55"}, false)
	require.NoError(t, err)

	svc := engine.NewService(engine.DefaultSettings(), store, engine.WithMatchers(verify.ExactMatcher{}))
	_, r, err := svc.Run(ctx, screwCase()...)
	require.NoError(t, err)
	assert.Equal(t, verify.Unmatched, r.Supplies.Items[0].Status, "equivalences are ignored without the equivalence matcher")
}

func TestNewCaseNumber(t *testing.T) {
	assert.Equal(t, "VG_20250306_083000_3f1c2b4a", engine.NewCaseNumber(fixedNow, fixedID))
}
