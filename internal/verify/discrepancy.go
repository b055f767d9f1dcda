// SPDX-License-Identifier: Apache-2.0

// Package verify holds the three independent case checks: basic data,
// supply reconciliation and traceability. Each check is a pure function of
// the parsed documents and reports its findings as Discrepancy records.
package verify

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Component identifies which check produced a discrepancy. Reports list
// discrepancies of equal severity in component order.
type Component int

const (
	ComponentBasicData Component = iota
	ComponentSupplies
	ComponentTraceability
)

const (
	TypeBasicDataMismatch      = "basic_data_mismatch"
	TypeDocumentTextMissing    = "document_text_missing"
	TypeSupplyUnmatched        = "supply_unmatched"
	TypeExtraSupplyMention     = "extra_supply_mention"
	TypeSupplyQuantityMismatch = "supply_quantity_mismatch"
	TypeSupplyListEmpty        = "supply_list_empty"
	TypeTraceabilityInvalid    = "traceability_invalid"
)

type Discrepancy struct {
	Type        string    `json:"type"`
	FieldOrItem string    `json:"field_or_item"`
	Detail      string    `json:"detail"`
	Severity    Severity  `json:"severity"`
	Component   Component `json:"-"`
}
