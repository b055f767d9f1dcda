// SPDX-License-Identifier: Apache-2.0

package parsers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/document/parsers"
)

const internalRecord = `REPORTE DE GASTO QUIRURGICO
PACIENTE: MARÍA GÓMEZ RUIZ    ID: 1.020.304
FECHA: 05/03/2025
CIUDAD: Bogotá
MÉDICO: Dr. Juan Pérez
PROCEDIMIENTO: Osteosíntesis de fémur

Tornillo encefálico 3.5x55 mm (2) REF: 1234 LOT: AB56 [UDI]
Placa bloqueada 4 orificios (1) REF: PL-778 LOT: L2024/01
Gasa estéril (10)
`

func TestInternalParser_Parse(t *testing.T) {
	p := parsers.NewInternalParser()
	doc, err := p.Parse(context.Background(), internalRecord)
	require.NoError(t, err)

	assert.Equal(t, "MARÍA GÓMEZ RUIZ", doc.PatientName)
	assert.Equal(t, "1020304", doc.PatientID)
	assert.Equal(t, "Dr. Juan Pérez", doc.DoctorName)
	assert.Equal(t, "Bogotá", doc.City)
	assert.Equal(t, "Osteosíntesis de fémur", doc.Procedure)
	require.NotNil(t, doc.SurgeryDate)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), *doc.SurgeryDate)

	require.Len(t, doc.Supplies, 3)

	screw := doc.Supplies[0]
	assert.Equal(t, "Tornillo encefálico 3.5x55 mm", screw.RawName)
	assert.Equal(t, "tornillo encefalico 3.5x55mm", screw.NormalizedName)
	require.NotNil(t, screw.Quantity)
	assert.Equal(t, 2, *screw.Quantity)
	assert.Equal(t, "1234", screw.RefCode)
	assert.Equal(t, "AB56", screw.LotCode)
	assert.True(t, screw.UDILabel)
	assert.Equal(t, 0, screw.Position)

	plate := doc.Supplies[1]
	assert.Equal(t, "PL-778", plate.RefCode)
	assert.Equal(t, "L2024/01", plate.LotCode)
	assert.False(t, plate.UDILabel)

	gauze := doc.Supplies[2]
	assert.Empty(t, gauze.RefCode)
	assert.Empty(t, gauze.LotCode)
	assert.Equal(t, 2, gauze.Position)
}

func TestInternalParser_TableRows(t *testing.T) {
	text := `| Insumo | Cantidad | REF | LOT |
|---|---|---|---|
| Tornillo cortical 3.5x40mm | 4 | TC-340 | 9981 |
| Arandela | 1 | | |`

	doc, err := parsers.NewInternalParser().Parse(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, doc.Supplies, 2)
	assert.Equal(t, "tornillo cortical 3.5x40mm", doc.Supplies[0].NormalizedName)
	assert.Equal(t, 4, *doc.Supplies[0].Quantity)
	assert.Equal(t, "TC-340", doc.Supplies[0].RefCode)
	assert.Equal(t, "9981", doc.Supplies[0].LotCode)
	assert.Equal(t, "arandela", doc.Supplies[1].NormalizedName)
	assert.Empty(t, doc.Supplies[1].RefCode)
}

func TestInternalParser_MissingRefBeforeLot(t *testing.T) {
	doc, err := parsers.NewInternalParser().Parse(context.Background(), "Placa recta (1) REF: LOT: 77")
	require.NoError(t, err)
	require.Len(t, doc.Supplies, 1)
	assert.Empty(t, doc.Supplies[0].RefCode)
	assert.Equal(t, "77", doc.Supplies[0].LotCode)
}

func TestInternalParser_SkipsNamelessItem(t *testing.T) {
	doc, err := parsers.NewInternalParser().Parse(context.Background(), "- ... (3)\nClavo femoral (1)")
	require.NoError(t, err)
	require.Len(t, doc.Supplies, 1)
	assert.Equal(t, "clavo femoral", doc.Supplies[0].NormalizedName)
	assert.Equal(t, 0, doc.Supplies[0].Position)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, document.WarnSkippedItem, doc.Warnings[0].Code)
}

func TestHospitalParser_Parse(t *testing.T) {
	text := `HOSPITAL SAN RAFAEL
Nombre del paciente: Maria Gomez Ruiz
Fecha de cirugía: 2025-03-05
Médico tratante: Juan Perez

INSUMOS:
- tornillo 3.5x55 (2)
- 1 placa bloqueada 4 orificios

Gasas estériles (10)
Durante el procedimiento se utilizaron dos clavos femorales.`

	doc, err := parsers.NewHospitalParser().Parse(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, "Maria Gomez Ruiz", doc.PatientName)
	assert.Equal(t, "Juan Perez", doc.DoctorName)
	require.NotNil(t, doc.SurgeryDate)
	assert.Equal(t, "2025-03-05", doc.SurgeryDate.Format("2006-01-02"))

	var names []string
	for _, s := range doc.Supplies {
		names = append(names, s.NormalizedName)
		assert.Empty(t, s.RefCode)
	}
	assert.Equal(t, []string{
		"tornillo 3.5x55",
		"placa bloqueada 4 orificios",
		"gasas esteriles",
		"clavos femorales",
	}, names)
	assert.Equal(t, 2, *doc.Supplies[0].Quantity)
	assert.Equal(t, 1, *doc.Supplies[1].Quantity)
	assert.Equal(t, 2, *doc.Supplies[3].Quantity)
}

func TestDescriptionParser_Parse(t *testing.T) {
	text := `Paciente en decúbito supino. Se realiza abordaje lateral del fémur.
Se utilizaron 2 tornillos corticales 3.5x40mm, una placa bloqueada 4 orificios y clavo femoral (1). Cierre por planos.`

	doc, err := parsers.NewDescriptionParser().Parse(context.Background(), text)
	require.NoError(t, err)

	require.Len(t, doc.Supplies, 3)
	assert.Equal(t, "tornillos corticales 3.5x40mm", doc.Supplies[0].NormalizedName)
	assert.Equal(t, 2, *doc.Supplies[0].Quantity)
	assert.Equal(t, "placa bloqueada 4 orificios", doc.Supplies[1].NormalizedName)
	assert.Equal(t, 1, *doc.Supplies[1].Quantity)
	assert.Equal(t, "clavo femoral", doc.Supplies[2].NormalizedName)
	assert.Equal(t, 1, *doc.Supplies[2].Quantity)
	assert.Empty(t, doc.PatientName)
}

func TestDescriptionParser_LongDate(t *testing.T) {
	doc, err := parsers.NewDescriptionParser().Parse(context.Background(),
		"Cirugía realizada el 5 de marzo de 2025. MATERIALES: placa recta.")
	require.NoError(t, err)
	require.NotNil(t, doc.SurgeryDate)
	assert.Equal(t, "2025-03-05", doc.SurgeryDate.Format("2006-01-02"))
	require.Len(t, doc.Supplies, 1)
	assert.Nil(t, doc.Supplies[0].Quantity)
}

func TestParsers_CanHandle(t *testing.T) {
	tests := []struct {
		parser document.Parser
		want   document.Type
	}{
		{parser: parsers.NewInternalParser(), want: document.TypeInternal},
		{parser: parsers.NewHospitalParser(), want: document.TypeHospital},
		{parser: parsers.NewDescriptionParser(), want: document.TypeDescription},
	}
	for _, tt := range tests {
		t.Run(tt.parser.Name(), func(t *testing.T) {
			for _, docType := range document.Types {
				assert.Equal(t, docType == tt.want, tt.parser.CanHandle(docType))
			}
		})
	}
}

func TestParsers_UnreadableDateWarns(t *testing.T) {
	doc, err := parsers.NewHospitalParser().Parse(context.Background(), "FECHA: mañana temprano")
	require.NoError(t, err)
	assert.Nil(t, doc.SurgeryDate)
	require.NotEmpty(t, doc.Warnings)
	assert.Equal(t, document.WarnBadDate, doc.Warnings[0].Code)
}
