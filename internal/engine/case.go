// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vgmedical/casecheck/internal/document"
)

type CaseStatus string

const (
	StatusProcessed CaseStatus = "processed"
	StatusFailed    CaseStatus = "failed"
)

// Case groups the three parsed documents of one surgery.
type Case struct {
	ID         string                                    `json:"case_id"`
	CaseNumber string                                    `json:"case_number"`
	Status     CaseStatus                                `json:"status"`
	Documents  map[document.Type]document.ParsedDocument `json:"documents"`
	CreatedAt  time.Time                                 `json:"created_at"`
}

// IngestResponse is what a transport returns after a successful ingestion.
type IngestResponse struct {
	CaseID     string     `json:"case_id"`
	CaseNumber string     `json:"case_number"`
	Status     CaseStatus `json:"status"`
}

func (c *Case) Response() IngestResponse {
	return IngestResponse{CaseID: c.ID, CaseNumber: c.CaseNumber, Status: c.Status}
}

// Ordered returns the documents as internal, hospital, description.
func (c *Case) Ordered() []document.ParsedDocument {
	out := make([]document.ParsedDocument, 0, len(document.Types))
	for _, t := range document.Types {
		out = append(out, c.Documents[t])
	}
	return out
}

func (c *Case) validate() error {
	if c == nil {
		return &InvalidInputError{Reason: "no case given"}
	}
	for _, t := range document.Types {
		if _, ok := c.Documents[t]; !ok {
			return &InvalidInputError{Reason: fmt.Sprintf("case %s has no %s document", c.CaseNumber, t)}
		}
	}
	return nil
}

// NewCaseNumber formats VG_<yyyymmdd_hhmmss>_<first 8 chars of id>.
func NewCaseNumber(now time.Time, id uuid.UUID) string {
	return fmt.Sprintf("VG_%s_%s", now.Format("20060102_150405"), id.String()[:8])
}

// InvalidInputError reports a case that cannot be verified as submitted,
// such as a missing or duplicated document type.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid case input: " + e.Reason
}
