// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"fmt"
	"strings"
)

type Pipeline struct {
	parsers []Parser
}

// NewPipeline creates a new Pipeline with the provided parsers. Order
// matters: the first parser that can handle a document type is used.
func NewPipeline(parsers ...Parser) *Pipeline {
	return &Pipeline{parsers: parsers}
}

// Parse extracts a ParsedDocument from text. Missing or unstructured text
// degrades to an empty document carrying a warning; the only error is a
// document type no registered parser understands, or a cancelled context.
func (p *Pipeline) Parse(ctx context.Context, docType Type, text string) (ParsedDocument, error) {
	parser, err := p.selectParser(docType)
	if err != nil {
		return ParsedDocument{}, err
	}

	if strings.TrimSpace(text) == "" {
		return ParsedDocument{
			Type:          docType,
			Parser:        parser.Name(),
			Supplies:      []SupplyLineItem{},
			TextExtracted: false,
			Warnings: []ParseWarning{{
				Code:    WarnNoText,
				Message: fmt.Sprintf("no extractable text in %s document", docType),
			}},
		}, nil
	}

	parsed, err := parser.Parse(ctx, text)
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("parser %q failed: %w", parser.Name(), err)
	}

	parsed.Type = docType
	parsed.Parser = parser.Name()
	parsed.TextExtracted = true
	if parsed.Supplies == nil {
		parsed.Supplies = []SupplyLineItem{}
	}
	if !parsed.HasEvidence() {
		parsed.Warnings = append(parsed.Warnings, ParseWarning{
			Code:    WarnNoStructure,
			Message: fmt.Sprintf("%s document has text but no recognizable fields or supplies", docType),
		})
	}
	return parsed, nil
}

// selectParser returns the first registered parser that can handle the given type.
func (p *Pipeline) selectParser(docType Type) (Parser, error) {
	for _, parser := range p.parsers {
		if parser.CanHandle(docType) {
			return parser, nil
		}
	}
	return nil, fmt.Errorf("unsupported document type: no parser found for %q", docType)
}
