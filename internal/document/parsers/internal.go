// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"context"
	"regexp"
	"strings"

	"github.com/vgmedical/casecheck/internal/document"
)

// InternalParser parses the internal operating-room expense record. Besides
// the labeled case fields it reads the itemized supply list, one item per
// line ("name (qty) REF: x LOT: y [UDI]") or one per table row.
type InternalParser struct{}

// NewInternalParser creates a new InternalParser.
func NewInternalParser() *InternalParser {
	return &InternalParser{}
}

func (p *InternalParser) Name() string {
	return "internal"
}

func (p *InternalParser) CanHandle(docType document.Type) bool {
	return docType == document.TypeInternal
}

func (p *InternalParser) Parse(ctx context.Context, text string) (document.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return document.ParsedDocument{}, err
	}

	var doc document.ParsedDocument
	extractFields(text, &doc)

	b := &builder{}
	for _, line := range strings.Split(text, "\n") {
		if name, qty, ref, lot, udi, ok := parseTableRow(line); ok {
			b.add(name, qty, ref, lot, udi)
			continue
		}
		name, qty, rest, ok := parseItemLine(line)
		if !ok {
			continue
		}
		b.add(name, qty, codeAfter(refCode, rest), codeAfter(lotCode, rest), udiLabel.MatchString(rest))
	}

	doc.Supplies = b.items
	doc.Warnings = append(doc.Warnings, b.warnings...)
	return doc, nil
}

// codeAfter returns the code following a REF/LOT marker. An empty marker
// directly followed by the next marker ("REF: LOT: 77") yields "".
func codeAfter(marker *regexp.Regexp, rest string) string {
	m := marker.FindStringSubmatch(rest)
	if m == nil {
		return ""
	}
	switch strings.ToUpper(m[1]) {
	case "REF", "REFERENCIA", "LOT", "LOTE":
		return ""
	}
	return m[1]
}
