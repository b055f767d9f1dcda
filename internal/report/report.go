// SPDX-License-Identifier: Apache-2.0

// Package report joins the three verification results of a case into a
// scored VerificationReport.
package report

import (
	"encoding/json"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/verify"
)

type OverallStatus string

const (
	StatusApproved       OverallStatus = "APROBADO"
	StatusRequiresReview OverallStatus = "REQUIERE_REVISION"
	StatusRejected       OverallStatus = "RECHAZADO"
)

// VerificationReport is a derived view of a case. It can always be rebuilt
// from the parsed documents.
type VerificationReport struct {
	CaseID            string                    `json:"case_id"`
	CaseNumber        string                    `json:"case_number"`
	Status            string                    `json:"status"`
	BasicData         verify.BasicResult        `json:"basic_data_verification"`
	Supplies          verify.SupplyResult       `json:"supplies_verification"`
	Traceability      verify.TraceabilityResult `json:"traceability_verification"`
	Discrepancies     []verify.Discrepancy      `json:"discrepancies"`
	VerificationScore float64                   `json:"verification_score"`
	RequiresReview    bool                      `json:"requires_review"`
	OverallStatus     OverallStatus             `json:"overall_status"`
	ReviewReasons     []string                  `json:"review_reasons"`
	Recommendations   []string                  `json:"recommendations"`
	TextExtracted     map[document.Type]bool    `json:"text_extracted"`
	GeneratedAt       time.Time                 `json:"generated_at"`
}

// UnmatchedItems returns the internal items the reconciler could not match,
// in internal document order.
func (r *VerificationReport) UnmatchedItems() []verify.ItemResult {
	var out []verify.ItemResult
	for _, it := range r.Supplies.Items {
		if it.Status == verify.Unmatched {
			out = append(out, it)
		}
	}
	return out
}

// YAML renders the report with the same keys as its JSON form.
func (r *VerificationReport) YAML() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return yaml.JSONToYAML(data)
}
