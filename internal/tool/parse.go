// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vgmedical/casecheck/internal/document"
)

// MetadataParseDocument describes the parse_document tool.
var MetadataParseDocument = &mcp.Tool{
	Name: "parse_document",
	Description: "Extract the text of a single surgical case document and return its structured fields: " +
		"patient name, patient id, doctor, surgery date, city, procedure and the supply line items " +
		"(name, quantity, REF, LOT, UDI label). " +
		"Nothing is stored and no verification is run; use this to check how a document will be read " +
		"before submitting a case with verify_case. " +
		"The output names the text extractor and the document parser that read it. " +
		"Documents whose text cannot be extracted come back with text_extracted=false and a warning.",
	InputSchema: documentSchema,
}

type InputParseDocument = InputDocument

// OutputParseDocument is the output for the ParseDocument tool.
type OutputParseDocument struct {
	Document document.ParsedDocument `json:"document"`
	// Extractor names the text extractor that produced the text, empty when
	// none could.
	Extractor string `json:"extractor"`
	// MIME is the detected content type.
	MIME string `json:"mime"`
}

// ParseDocument runs text extraction and the document parser for one
// document.
func (t *Tools) ParseDocument(ctx context.Context, _ *mcp.CallToolRequest, input InputParseDocument) (*mcp.CallToolResult, OutputParseDocument, error) {
	doc, err := input.toDocument()
	if err != nil {
		return nil, OutputParseDocument{}, err
	}

	parsed, res, err := t.service.ParseDocument(ctx, doc)
	if err != nil {
		return nil, OutputParseDocument{}, err
	}

	return nil, OutputParseDocument{
		Document:  parsed,
		Extractor: res.Extractor,
		MIME:      res.MIME,
	}, nil
}
