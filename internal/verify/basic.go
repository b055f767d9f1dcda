// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"strings"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/normalize"
)

type FieldStatus string

const (
	FieldMatched       FieldStatus = "matched"
	FieldMismatched    FieldStatus = "mismatched"
	FieldNotVerifiable FieldStatus = "not_verifiable"
)

const (
	FieldPatientName = "patient_name"
	FieldDoctorName  = "doctor_name"
	FieldSurgeryDate = "surgery_date"
	FieldPatientID   = "patient_id"
	FieldCity        = "city"
	FieldProcedure   = "procedure"
)

// PairResult is the comparison of one field between two documents.
type PairResult struct {
	Left   document.Type `json:"left"`
	Right  document.Type `json:"right"`
	Status FieldStatus   `json:"status"`
	Score  float64       `json:"score"`
}

type FieldResult struct {
	Status FieldStatus `json:"status"`
	// Score is the lowest score among verifiable pairs, 0 when none is.
	Score  float64                   `json:"score"`
	Values map[document.Type]*string `json:"values"`
	Pairs  []PairResult              `json:"pairs"`
	// Core fields feed the basic-data match ratio.
	Core bool `json:"core"`
}

type BasicResult struct {
	Fields        map[string]FieldResult `json:"fields"`
	MatchRatio    float64                `json:"match_ratio"`
	Discrepancies []Discrepancy          `json:"-"`
}

type fieldSpec struct {
	name      string
	core      bool
	value     func(document.ParsedDocument) string
	score     func(a, b string) float64
	threshold float64
	severity  Severity
}

// BasicVerifier cross-checks the case facts shared by the three documents.
type BasicVerifier struct {
	fields []fieldSpec
}

// NewBasicVerifier builds a verifier that accepts names scoring at least
// nameThreshold and procedures scoring at least procedureThreshold.
func NewBasicVerifier(nameThreshold, procedureThreshold float64) *BasicVerifier {
	nameScore := func(a, b string) float64 {
		return normalize.Similarity(normalize.Name(a), normalize.Name(b))
	}
	exact := func(a, b string) float64 {
		if a == b {
			return 1.0
		}
		return 0.0
	}
	normalizedExact := func(a, b string) float64 {
		return exact(normalize.String(a), normalize.String(b))
	}
	digitsExact := func(a, b string) float64 {
		return exact(normalize.Digits(a), normalize.Digits(b))
	}

	return &BasicVerifier{fields: []fieldSpec{
		{name: FieldPatientName, core: true, value: func(d document.ParsedDocument) string { return d.PatientName },
			score: nameScore, threshold: nameThreshold, severity: SeverityCritical},
		{name: FieldDoctorName, core: true, value: func(d document.ParsedDocument) string { return d.DoctorName },
			score: nameScore, threshold: nameThreshold, severity: SeverityCritical},
		{name: FieldSurgeryDate, core: true, value: dateValue,
			score: exact, threshold: 1.0, severity: SeverityCritical},
		{name: FieldPatientID, value: func(d document.ParsedDocument) string { return d.PatientID },
			score: digitsExact, threshold: 1.0, severity: SeverityWarning},
		{name: FieldCity, value: func(d document.ParsedDocument) string { return d.City },
			score: normalizedExact, threshold: 1.0, severity: SeverityWarning},
		{name: FieldProcedure, value: func(d document.ParsedDocument) string { return d.Procedure },
			score: normalize.PartialSimilarity, threshold: procedureThreshold, severity: SeverityWarning},
	}}
}

func dateValue(d document.ParsedDocument) string {
	if d.SurgeryDate == nil {
		return ""
	}
	return d.SurgeryDate.Format("2006-01-02")
}

// Verify compares every field pairwise across internal, hospital and
// description. A missing value makes a pair not verifiable; it is never a
// mismatch on its own.
func (v *BasicVerifier) Verify(internal, hospital, description document.ParsedDocument) BasicResult {
	docs := []document.ParsedDocument{internal, hospital, description}
	result := BasicResult{Fields: make(map[string]FieldResult, len(v.fields))}

	for _, d := range docs {
		if !d.TextExtracted {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Type:        TypeDocumentTextMissing,
				FieldOrItem: string(d.Type),
				Detail:      fmt.Sprintf("no text could be extracted from the %s document; its evidence is missing", d.Type),
				Severity:    SeverityWarning,
				Component:   ComponentBasicData,
			})
		}
	}

	coreTotal, coreMatched := 0, 0
	for _, spec := range v.fields {
		field := v.verifyField(spec, docs)
		result.Fields[spec.name] = field

		if spec.core {
			coreTotal++
			if field.Status == FieldMatched {
				coreMatched++
			}
		}
		if field.Status == FieldMismatched {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Type:        TypeBasicDataMismatch,
				FieldOrItem: spec.name,
				Detail:      mismatchDetail(spec.name, field),
				Severity:    spec.severity,
				Component:   ComponentBasicData,
			})
		}
	}

	if coreTotal > 0 {
		result.MatchRatio = float64(coreMatched) / float64(coreTotal)
	}
	return result
}

func (v *BasicVerifier) verifyField(spec fieldSpec, docs []document.ParsedDocument) FieldResult {
	field := FieldResult{
		Status: FieldNotVerifiable,
		Values: make(map[document.Type]*string, len(docs)),
		Core:   spec.core,
	}
	values := make([]string, len(docs))
	for i, d := range docs {
		values[i] = spec.value(d)
		if values[i] != "" {
			val := values[i]
			field.Values[d.Type] = &val
		} else {
			field.Values[d.Type] = nil
		}
	}

	verifiable := 0
	lowest := 1.0
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			pair := PairResult{Left: docs[i].Type, Right: docs[j].Type, Status: FieldNotVerifiable}
			if values[i] != "" && values[j] != "" {
				pair.Score = spec.score(values[i], values[j])
				pair.Status = FieldMatched
				if pair.Score < spec.threshold {
					pair.Status = FieldMismatched
				}
				verifiable++
				if pair.Score < lowest {
					lowest = pair.Score
				}
				if pair.Status == FieldMismatched {
					field.Status = FieldMismatched
				}
			}
			field.Pairs = append(field.Pairs, pair)
		}
	}

	if verifiable > 0 {
		field.Score = lowest
		if field.Status != FieldMismatched {
			field.Status = FieldMatched
		}
	}
	return field
}

func mismatchDetail(name string, field FieldResult) string {
	var parts []string
	for _, p := range field.Pairs {
		if p.Status != FieldMismatched {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q vs %s=%q (score %.2f)",
			p.Left, deref(field.Values[p.Left]), p.Right, deref(field.Values[p.Right]), p.Score))
	}
	return fmt.Sprintf("%s differs: %s", name, strings.Join(parts, "; "))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
