// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/base64"
	"os"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/suggest"
)

func newTestTools() *Tools {
	store := equivalence.NewStore()
	settings := engine.DefaultSettings()
	return New(
		engine.NewService(settings, store),
		store,
		casestore.NewMemoryStore(),
		suggest.NewEngine(0.60, settings.SupplyThreshold),
	)
}

func TestParseDocument(t *testing.T) {
	ctx := context.Background()
	req := &mcp.CallToolRequest{}
	tools := newTestTools()

	tests := []struct {
		name           string
		input          InputParseDocument
		wantErr        bool
		errContains    string
		validateOutput func(t *testing.T, output OutputParseDocument)
	}{
		{
			name:        "unknown document type returns error",
			input:       InputParseDocument{Type: "factura", Content: "PACIENTE: Ana"},
			wantErr:     true,
			errContains: "unknown document type",
		},
		{
			name:        "content and content_base64 together return error",
			input:       InputParseDocument{Type: "internal", Content: "x", ContentBase64: "eA=="},
			wantErr:     true,
			errContains: "not both",
		},
		{
			name:        "invalid base64 returns error",
			input:       InputParseDocument{Type: "internal", ContentBase64: "%%%"},
			wantErr:     true,
			errContains: "not valid base64",
		},
		{
			name: "internal record yields fields and supplies",
			input: InputParseDocument{
				Type:    "internal",
				Content: "PACIENTE: José Pérez\nFECHA: 05/03/2025\nClavo femoral (1) REF: CF-10 LOT: L77\n",
			},
			validateOutput: func(t *testing.T, output OutputParseDocument) {
				assert.Equal(t, document.TypeInternal, output.Document.Type)
				assert.True(t, output.Document.TextExtracted)
				assert.Equal(t, "José Pérez", output.Document.PatientName)
				require.Len(t, output.Document.Supplies, 1)
				assert.Equal(t, "CF-10", output.Document.Supplies[0].RefCode)
				assert.Equal(t, "plain_text", output.Extractor)
				assert.Equal(t, "internal", output.Document.Parser)
			},
		},
		{
			name: "document type is case-insensitive and base64 content is decoded",
			input: InputParseDocument{
				Type:          "Hospital",
				ContentBase64: base64.StdEncoding.EncodeToString([]byte("INSUMOS:\n- placa recta (1)\n")),
			},
			validateOutput: func(t *testing.T, output OutputParseDocument) {
				assert.Equal(t, document.TypeHospital, output.Document.Type)
				require.Len(t, output.Document.Supplies, 1)
				assert.Equal(t, "placa recta", output.Document.Supplies[0].NormalizedName)
			},
		},
		{
			name: "scanned image degrades to text_extracted=false",
			input: InputParseDocument{
				Type:          "description",
				ContentBase64: base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")),
			},
			validateOutput: func(t *testing.T, output OutputParseDocument) {
				assert.False(t, output.Document.TextExtracted)
				assert.Empty(t, output.Extractor)
				assert.Equal(t, "image/png", output.MIME)
				require.NotEmpty(t, output.Document.Warnings)
				assert.Equal(t, document.WarnNoText, output.Document.Warnings[0].Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := tools.ParseDocument(ctx, req, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			if tt.validateOutput != nil {
				tt.validateOutput(t, output)
			}
		})
	}
}

func TestParseDocument_PDF(t *testing.T) {
	pdf, err := os.ReadFile("../extract/testdata/hospital_record.pdf")
	require.NoError(t, err)

	_, output, err := newTestTools().ParseDocument(context.Background(), &mcp.CallToolRequest{}, InputParseDocument{
		Type:          "hospital",
		Name:          "hospital_record.pdf",
		ContentType:   "application/pdf",
		ContentBase64: base64.StdEncoding.EncodeToString(pdf),
	})
	require.NoError(t, err)
	assert.Equal(t, "pdf_text", output.Extractor)
	assert.Equal(t, "hospital", output.Document.Parser)
	assert.True(t, output.Document.TextExtracted)
	assert.Equal(t, "Maria Gomez Ruiz", output.Document.PatientName)
	require.Len(t, output.Document.Supplies, 1)
	assert.Equal(t, "tornillo cort 3.5", output.Document.Supplies[0].NormalizedName)
	require.NotNil(t, output.Document.Supplies[0].Quantity)
	assert.Equal(t, 2, *output.Document.Supplies[0].Quantity)
}

func TestToolMetadata(t *testing.T) {
	for _, tool := range []*mcp.Tool{
		MetadataParseDocument,
		MetadataVerifyCase,
		MetadataGetCaseReport,
		MetadataCreateOrUpdateEquivalence,
		MetadataListEquivalences,
		MetadataSuggestEquivalences,
	} {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		schema, ok := tool.InputSchema.(map[string]interface{})
		require.True(t, ok, tool.Name)
		assert.Equal(t, "object", schema["type"], tool.Name)
	}
}
