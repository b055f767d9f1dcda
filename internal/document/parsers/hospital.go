// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"context"
	"strings"

	"github.com/vgmedical/casecheck/internal/document"
)

// HospitalParser parses the hospital's own expense record. Supplies are
// mentioned without traceability codes: as "name (qty)" lines, as bullets
// under a MATERIALES/INSUMOS heading, or inside narrative sentences.
type HospitalParser struct{}

func NewHospitalParser() *HospitalParser {
	return &HospitalParser{}
}

func (p *HospitalParser) Name() string {
	return "hospital"
}

func (p *HospitalParser) CanHandle(docType document.Type) bool {
	return docType == document.TypeHospital
}

func (p *HospitalParser) Parse(ctx context.Context, text string) (document.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return document.ParsedDocument{}, err
	}

	var doc document.ParsedDocument
	extractFields(text, &doc)

	b := &builder{}
	var narrative []string
	inList := false
	for _, line := range strings.Split(text, "\n") {
		if headingOnly.MatchString(line) {
			inList = true
			continue
		}
		if inList {
			if m := bulletLine.FindStringSubmatch(line); m != nil {
				name, qty := parseMention(m[1])
				b.add(name, qty, "", "", false)
				continue
			}
			inList = false
		}
		if name, qty, _, _, _, ok := parseTableRow(line); ok {
			b.add(name, qty, "", "", false)
			continue
		}
		if name, qty, _, ok := parseItemLine(line); ok {
			b.add(name, qty, "", "", false)
			continue
		}
		if !isLabelLine(line) {
			narrative = append(narrative, line)
		}
	}
	mineSections(strings.Join(narrative, "\n"), b)

	doc.Supplies = b.items
	doc.Warnings = append(doc.Warnings, b.warnings...)
	return doc, nil
}

func isLabelLine(line string) bool {
	for _, segment := range segmentSplit.Split(line, -1) {
		for _, rule := range labelRules {
			if rule.pattern.MatchString(segment) {
				return true
			}
		}
	}
	return false
}
