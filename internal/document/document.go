// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Type identifies which of the three case documents a text came from.
type Type string

const (
	TypeInternal    Type = "internal"
	TypeHospital    Type = "hospital"
	TypeDescription Type = "description"
)

// Types lists the document types of a case in component order.
var Types = []Type{TypeInternal, TypeHospital, TypeDescription}

// ParseType accepts the wire name of a document type, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q (want internal, hospital or description)", s)
}

// Document is a raw uploaded document before text extraction.
type Document struct {
	Type        Type
	Name        string
	ContentType string
	// Content holds the whole upload; it is read exactly once.
	Content []byte
}

type SupplyLineItem struct {
	RawName        string `json:"raw_name"`
	NormalizedName string `json:"normalized_name"`
	Quantity       *int   `json:"quantity,omitempty"`
	RefCode        string `json:"ref_code,omitempty"`
	LotCode        string `json:"lot_code,omitempty"`
	UDILabel       bool   `json:"udi_label,omitempty"`
	// Position is the zero-based order of appearance within its document.
	Position int `json:"position"`
}

// ParseWarning records a recoverable extraction problem. It is stored on the
// ParsedDocument and never returned as an error.
type ParseWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnNoText      = "no_text"
	WarnNoStructure = "no_structure"
	WarnSkippedItem = "skipped_item"
	WarnBadDate     = "unparsed_date"
)

func (w ParseWarning) String() string {
	return w.Code + ": " + w.Message
}

// ParsedDocument is the structured, immutable view of one document.
// Empty strings and a nil SurgeryDate mean the value was not found.
type ParsedDocument struct {
	Type          Type             `json:"document_type"`
	Parser        string           `json:"parser,omitempty"`
	PatientName   string           `json:"patient_name,omitempty"`
	PatientID     string           `json:"patient_id,omitempty"`
	DoctorName    string           `json:"doctor_name,omitempty"`
	SurgeryDate   *time.Time       `json:"surgery_date,omitempty"`
	City          string           `json:"city,omitempty"`
	Procedure     string           `json:"procedure,omitempty"`
	Supplies      []SupplyLineItem `json:"supplies"`
	TextExtracted bool             `json:"text_extracted"`
	Warnings      []ParseWarning   `json:"warnings,omitempty"`
}

// HasEvidence reports whether any field or supply was recognized.
func (d ParsedDocument) HasEvidence() bool {
	return d.PatientName != "" || d.PatientID != "" || d.DoctorName != "" ||
		d.SurgeryDate != nil || d.City != "" || d.Procedure != "" || len(d.Supplies) > 0
}

// Parser turns the extracted text of one document type into a ParsedDocument.
type Parser interface {
	CanHandle(docType Type) bool
	Parse(ctx context.Context, text string) (ParsedDocument, error)
	Name() string
}
