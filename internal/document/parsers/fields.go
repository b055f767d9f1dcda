// SPDX-License-Identifier: Apache-2.0

package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/normalize"
)

// labelRule maps a labeled field ("PACIENTE: ...") to a ParsedDocument field.
type labelRule struct {
	field   string
	pattern *regexp.Regexp
}

const (
	fieldPatient   = "patient_name"
	fieldPatientID = "patient_id"
	fieldDoctor    = "doctor_name"
	fieldDate      = "surgery_date"
	fieldCity      = "city"
	fieldProcedure = "procedure"
)

func label(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\s*(?:` + alternatives + `)\s*[:\-]\s*(.+?)\s*$`)
}

// labelRules are evaluated per segment in order; the first match wins for a
// segment, and the first segment found wins for a field.
var labelRules = []labelRule{
	{field: fieldDate, pattern: label(`fecha(?:\s+de\s+(?:la\s+)?(?:cirug[ií]a|procedimiento|intervenci[oó]n))?`)},
	{field: fieldPatientID, pattern: label(`identificaci[oó]n|c[eé]dula|documento|c\.\s?c\.?|id`)},
	{field: fieldPatient, pattern: label(`nombre\s+del\s+paciente|paciente|nombre`)},
	{field: fieldDoctor, pattern: label(`nombre\s+del\s+m[eé]dico|m[eé]dico(?:\s+tratante)?|doctor(?:a)?|cirujano(?:\s+principal)?|especialista`)},
	{field: fieldCity, pattern: label(`ciudad|lugar`)},
	{field: fieldProcedure, pattern: label(`procedimiento|cirug[ií]a|operaci[oó]n`)},
}

var (
	segmentSplit = regexp.MustCompile(`\t|\|`)
	nextLabel    = regexp.MustCompile(`\s{2,}[\p{L}.]+(?:\s[\p{L}.]+)?\s*:`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})\b`)
	longDate     = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+([a-z]+)\s+(?:de|del)\s+(\d{4})\b`)
)

var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
}

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

// extractFields fills the labeled case fields of doc from text. Dates that
// are labeled but unreadable leave a warning.
func extractFields(text string, doc *document.ParsedDocument) {
	found := map[string]string{}

	for _, line := range strings.Split(text, "\n") {
		pending := segmentSplit.Split(line, -1)
		for len(pending) > 0 {
			segment := pending[0]
			pending = pending[1:]
			for _, rule := range labelRules {
				m := rule.pattern.FindStringSubmatch(segment)
				if m == nil {
					continue
				}
				value, rest := splitValue(m[1])
				if rest != "" {
					pending = append(pending, rest)
				}
				if _, ok := found[rule.field]; !ok && value != "" {
					found[rule.field] = value
				}
				break
			}
		}
	}

	doc.PatientName = found[fieldPatient]
	doc.DoctorName = found[fieldDoctor]
	doc.City = found[fieldCity]
	doc.Procedure = found[fieldProcedure]
	if id := normalize.Digits(found[fieldPatientID]); id != "" {
		doc.PatientID = id
	}

	if raw, ok := found[fieldDate]; ok {
		if d, ok := parseDate(raw); ok {
			doc.SurgeryDate = &d
		} else {
			doc.Warnings = append(doc.Warnings, document.ParseWarning{
				Code:    document.WarnBadDate,
				Message: "unreadable surgery date " + strconv.Quote(raw),
			})
		}
		return
	}
	// unlabeled documents: first date anywhere in the text
	if d, ok := parseDate(text); ok {
		doc.SurgeryDate = &d
	}
}

// parseDate finds the first date in s and returns it at midnight UTC.
func parseDate(s string) (time.Time, bool) {
	if m := datePattern.FindString(s); m != "" {
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, m); err == nil {
				return d, true
			}
		}
	}
	if m := longDate.FindStringSubmatch(normalize.Fold(s)); m != nil {
		month, ok := spanishMonths[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if d.Day() != day {
			return time.Time{}, false
		}
		return d, true
	}
	return time.Time{}, false
}

// splitValue cuts a value where a second label on the same line starts
// ("PACIENTE: ANA RUIZ    ID: 123") and returns the remainder separately.
func splitValue(v string) (value, rest string) {
	if loc := nextLabel.FindStringIndex(v); loc != nil {
		v, rest = v[:loc[0]], strings.TrimSpace(v[loc[0]:])
	}
	return strings.Trim(strings.TrimSpace(v), ".,;:-"), rest
}
