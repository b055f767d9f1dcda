// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/normalize"
)

// DefaultCodePattern accepts manufacturer codes of 2 to 30 characters made of
// letters, digits and the separators . - /.
const DefaultCodePattern = `^[A-Za-z0-9][A-Za-z0-9.\-/]{1,29}$`

// TraceabilityRules configures which items need REF/LOT codes and what a
// valid code looks like.
type TraceabilityRules struct {
	RefPattern *regexp.Regexp
	LotPattern *regexp.Regexp
	// Keywords selects the items that require traceability by substring of
	// the normalized name. Empty means every item.
	Keywords        []string
	RequireUDILabel bool
}

func DefaultTraceabilityRules() TraceabilityRules {
	return TraceabilityRules{
		RefPattern: regexp.MustCompile(DefaultCodePattern),
		LotPattern: regexp.MustCompile(DefaultCodePattern),
	}
}

type TraceItemResult struct {
	RawName  string   `json:"raw_name"`
	RefCode  string   `json:"ref_code,omitempty"`
	LotCode  string   `json:"lot_code,omitempty"`
	Required bool     `json:"required"`
	RefValid bool     `json:"ref_valid"`
	LotValid bool     `json:"lot_valid"`
	UDILabel bool     `json:"udi_label"`
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues,omitempty"`
}

type TraceabilityResult struct {
	Items         []TraceItemResult `json:"items"`
	Required      int               `json:"required"`
	ValidCount    int               `json:"valid"`
	AllValid      bool              `json:"all_valid"`
	ValidRatio    float64           `json:"valid_ratio"`
	Discrepancies []Discrepancy     `json:"-"`
}

type TraceabilityValidator struct {
	rules    TraceabilityRules
	keywords []string
}

func NewTraceabilityValidator(rules TraceabilityRules) *TraceabilityValidator {
	if rules.RefPattern == nil {
		rules.RefPattern = regexp.MustCompile(DefaultCodePattern)
	}
	if rules.LotPattern == nil {
		rules.LotPattern = regexp.MustCompile(DefaultCodePattern)
	}
	v := &TraceabilityValidator{rules: rules}
	for _, k := range rules.Keywords {
		if n := normalize.String(k); n != "" {
			v.keywords = append(v.keywords, n)
		}
	}
	return v
}

func (v *TraceabilityValidator) requires(item document.SupplyLineItem) bool {
	if len(v.keywords) == 0 {
		return true
	}
	for _, k := range v.keywords {
		if strings.Contains(item.NormalizedName, k) {
			return true
		}
	}
	return false
}

// Validate checks the REF and LOT codes of every internal item that requires
// traceability. With no required items the ratio is 1.
func (v *TraceabilityValidator) Validate(internal document.ParsedDocument) TraceabilityResult {
	result := TraceabilityResult{Items: make([]TraceItemResult, 0, len(internal.Supplies))}

	for _, item := range internal.Supplies {
		tr := TraceItemResult{
			RawName:  item.RawName,
			RefCode:  item.RefCode,
			LotCode:  item.LotCode,
			Required: v.requires(item),
			UDILabel: item.UDILabel,
		}
		tr.RefValid, tr.Issues = checkCode("REF", item.RefCode, v.rules.RefPattern, tr.Issues)
		tr.LotValid, tr.Issues = checkCode("LOT", item.LotCode, v.rules.LotPattern, tr.Issues)
		if v.rules.RequireUDILabel && !item.UDILabel {
			tr.Issues = append(tr.Issues, "UDI label missing")
		}

		if !tr.Required {
			tr.Valid = true
			tr.Issues = nil
			result.Items = append(result.Items, tr)
			continue
		}

		result.Required++
		tr.Valid = len(tr.Issues) == 0
		if tr.Valid {
			result.ValidCount++
		} else {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Type:        TypeTraceabilityInvalid,
				FieldOrItem: item.RawName,
				Detail:      fmt.Sprintf("%s: %s", item.RawName, strings.Join(tr.Issues, ", ")),
				Severity:    SeverityCritical,
				Component:   ComponentTraceability,
			})
		}
		result.Items = append(result.Items, tr)
	}

	result.AllValid = result.ValidCount == result.Required
	result.ValidRatio = 1.0
	if result.Required > 0 {
		result.ValidRatio = float64(result.ValidCount) / float64(result.Required)
	}
	return result
}

func checkCode(label, code string, pattern *regexp.Regexp, issues []string) (bool, []string) {
	switch {
	case code == "":
		return false, append(issues, label+" missing")
	case !pattern.MatchString(code):
		return false, append(issues, fmt.Sprintf("%s %q malformed", label, code))
	}
	return true, issues
}
