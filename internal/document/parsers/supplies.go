// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/normalize"
)

var (
	// "Tornillo encefálico 3.5x55mm (2) REF: ABC123 LOT: DEF456 [UDI]"
	itemLine   = regexp.MustCompile(`^\s*(?:[-*•]\s*|\d+[.)]\s+)?(.+?)\s*\(\s*(\d+)\s*\)\s*(.*)$`)
	refCode    = regexp.MustCompile(`(?i)\bREF(?:ERENCIA)?\s*[:#.]?\s*([A-Za-z0-9][A-Za-z0-9.\-/]*)`)
	lotCode    = regexp.MustCompile(`(?i)\bLOT(?:E)?\s*[:#.]?\s*([A-Za-z0-9][A-Za-z0-9.\-/]*)`)
	udiLabel   = regexp.MustCompile(`(?i)\[\s*UDI\s*\]`)
	bulletLine = regexp.MustCompile(`^\s*[-*•]\s*(.+?)\s*$`)

	leadingQty  = regexp.MustCompile(`^(\d+)\s+(.+)$`)
	trailingQty = regexp.MustCompile(`^(.+?)\s*\(\s*(\d+)\s*\)$`)
	fragmentSep = regexp.MustCompile(`(?i)\s*(?:;|,\s|•|\s-\s|\s+y\s+|\s+e\s+)\s*`)

	// supply section openers in accent-folded text
	sectionStart = regexp.MustCompile(`(?i)(?:^|[^a-z])(materiales(?:\s+utilizados)?|insumos(?:\s+utilizados)?|implantes|se\s+utiliz(?:o|aron)|se\s+usaron|se\s+coloc(?:o|aron))\s*:?\s*`)
	sectionEnd   = regexp.MustCompile(`\.(?:\s|$)|\n\s*\n`)
	headingOnly  = regexp.MustCompile(`(?i)^\s*(?:materiales|insumos|implantes)(?:\s+utilizados)?\s*:?\s*$`)
)

var numberWords = map[string]int{
	"un": 1, "una": 1, "uno": 1, "dos": 2, "tres": 3, "cuatro": 4,
	"cinco": 5, "seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
}

// builder accumulates supply items and assigns positions in document order.
type builder struct {
	items    []document.SupplyLineItem
	warnings []document.ParseWarning
}

func (b *builder) add(raw string, qty *int, ref, lot string, udi bool) {
	raw = strings.Trim(strings.TrimSpace(raw), ".,;:-")
	name := normalize.String(raw)
	if name == "" {
		b.warnings = append(b.warnings, document.ParseWarning{
			Code:    document.WarnSkippedItem,
			Message: "supply entry without a usable name: " + strconv.Quote(raw),
		})
		return
	}
	b.items = append(b.items, document.SupplyLineItem{
		RawName:        raw,
		NormalizedName: name,
		Quantity:       qty,
		RefCode:        ref,
		LotCode:        lot,
		UDILabel:       udi,
		Position:       len(b.items),
	})
}

// parseItemLine reads one itemized line. Lines that carry a field label are
// not items.
func parseItemLine(line string) (name string, qty *int, rest string, ok bool) {
	m := itemLine.FindStringSubmatch(line)
	if m == nil || strings.Contains(m[1], ":") {
		return "", nil, "", false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", nil, "", false
	}
	return m[1], &n, m[3], true
}

// parseTableRow reads "| name | qty | ref | lot | udi |" rows. Header and
// separator rows are rejected because their quantity cell is not a number.
func parseTableRow(line string) (name string, qty *int, ref, lot string, udi bool, ok bool) {
	if !strings.Contains(line, "|") {
		return "", nil, "", "", false, false
	}
	var cells []string
	for _, c := range strings.Split(line, "|") {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	if len(cells) < 2 {
		return "", nil, "", "", false, false
	}
	n, err := strconv.Atoi(cells[1])
	if err != nil {
		return "", nil, "", "", false, false
	}
	if len(cells) > 2 {
		ref = cells[2]
	}
	if len(cells) > 3 {
		lot = cells[3]
	}
	for _, c := range cells[2:] {
		if udiLabel.MatchString(c) || strings.EqualFold(c, "udi") {
			udi = true
		}
	}
	if udi && strings.EqualFold(ref, "udi") {
		ref = ""
	}
	return cells[0], &n, ref, lot, udi, true
}

// parseMention splits a free-text fragment such as "2 tornillos 3.5x40",
// "dos placas" or "placa recta (1)" into name and quantity.
func parseMention(fragment string) (string, *int) {
	fragment = strings.Trim(strings.TrimSpace(fragment), ".,;:-")
	if m := trailingQty.FindStringSubmatch(fragment); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], &n
	}
	if m := leadingQty.FindStringSubmatch(fragment); m != nil {
		n, _ := strconv.Atoi(m[1])
		return m[2], &n
	}
	if first, rest, found := strings.Cut(fragment, " "); found {
		if n, ok := numberWords[strings.ToLower(first)]; ok {
			return rest, &n
		}
	}
	return fragment, nil
}

// mineSections collects supply mentions from narrative sections opened by
// keywords such as "MATERIALES:" or "se utilizaron", up to the end of the
// sentence.
func mineSections(text string, b *builder) {
	folded := normalize.Fold(text)
	for {
		loc := sectionStart.FindStringSubmatchIndex(folded)
		if loc == nil {
			return
		}
		body := folded[loc[1]:]
		if end := sectionEnd.FindStringIndex(body); end != nil {
			folded = body[end[1]:]
			body = body[:end[0]]
		} else {
			folded = ""
		}
		for _, fragment := range fragmentSep.Split(strings.ReplaceAll(body, "\n", " "), -1) {
			if strings.TrimSpace(fragment) == "" {
				continue
			}
			name, qty := parseMention(fragment)
			b.add(name, qty, "", "", false)
		}
	}
}
