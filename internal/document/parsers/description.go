// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"context"

	"github.com/vgmedical/casecheck/internal/document"
)

// DescriptionParser mines the surgeon's narrative for supply mentions.
// Labeled case fields are read when the narrative happens to carry them.
type DescriptionParser struct{}

func NewDescriptionParser() *DescriptionParser {
	return &DescriptionParser{}
}

func (p *DescriptionParser) Name() string {
	return "description"
}

func (p *DescriptionParser) CanHandle(docType document.Type) bool {
	return docType == document.TypeDescription
}

func (p *DescriptionParser) Parse(ctx context.Context, text string) (document.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return document.ParsedDocument{}, err
	}

	var doc document.ParsedDocument
	extractFields(text, &doc)

	b := &builder{}
	mineSections(text, b)
	doc.Supplies = b.items
	doc.Warnings = append(doc.Warnings, b.warnings...)
	return doc, nil
}
