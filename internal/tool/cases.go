// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/logging"
	"github.com/vgmedical/casecheck/internal/report"
)

// MetadataVerifyCase describes the verify_case tool.
var MetadataVerifyCase = &mcp.Tool{
	Name: "verify_case",
	Description: "Verify a surgical case. Send exactly three documents: the internal expense record " +
		"(document_type=internal), the hospital record (hospital) and the surgical description (description). " +
		"The case is stored and a verification report is returned with the basic-data, supply and traceability " +
		"results, every discrepancy ordered by severity, a verification score between 0 and 1 and whether the " +
		"case requires human review. Unmatched supplies can be resolved with suggest_equivalences and " +
		"create_or_update_equivalence, then re-checked with get_case_report (reverify=true).",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"documents"},
		"properties": map[string]interface{}{
			"documents": map[string]interface{}{
				"type":        "array",
				"description": "The three case documents, one of each type.",
				"minItems":    3,
				"maxItems":    3,
				"items":       documentSchema,
			},
		},
	},
}

type InputVerifyCase struct {
	Documents []InputDocument `json:"documents"`
}

type OutputVerifyCase struct {
	Case   engine.IngestResponse      `json:"case"`
	Report *report.VerificationReport `json:"report"`
}

// VerifyCase ingests the documents, verifies the case and stores both.
func (t *Tools) VerifyCase(ctx context.Context, _ *mcp.CallToolRequest, input InputVerifyCase) (*mcp.CallToolResult, OutputVerifyCase, error) {
	docs := make([]document.Document, 0, len(input.Documents))
	for _, in := range input.Documents {
		doc, err := in.toDocument()
		if err != nil {
			return nil, OutputVerifyCase{}, err
		}
		docs = append(docs, doc)
	}

	c, r, err := t.service.Run(ctx, docs...)
	if err != nil {
		return nil, OutputVerifyCase{}, err
	}
	if err := t.cases.Save(ctx, casestore.Record{Case: c, Report: r}); err != nil {
		return nil, OutputVerifyCase{}, fmt.Errorf("store case %s: %w", c.CaseNumber, err)
	}

	return nil, OutputVerifyCase{Case: c.Response(), Report: r}, nil
}

// MetadataGetCaseReport describes the get_case_report tool.
var MetadataGetCaseReport = &mcp.Tool{
	Name: "get_case_report",
	Description: "Return the verification report of a stored case by case id or case number " +
		"(VG_yyyymmdd_hhmmss_xxxxxxxx). With reverify=true the case is verified again against the current " +
		"equivalences and the stored report is replaced; use this after registering new equivalences. " +
		"format=yaml additionally renders the report as YAML.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"case_id"},
		"properties": map[string]interface{}{
			"case_id": map[string]interface{}{
				"type":        "string",
				"description": "Case id or case number returned by verify_case.",
			},
			"reverify": map[string]interface{}{
				"type":        "boolean",
				"description": "Verify the stored documents again before returning the report.",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "json (default) or yaml.",
				"enum":        []string{"json", "yaml"},
			},
		},
	},
}

type InputGetCaseReport struct {
	CaseID   string `json:"case_id"`
	Reverify bool   `json:"reverify"`
	Format   string `json:"format"`
}

type OutputGetCaseReport struct {
	Report *report.VerificationReport `json:"report"`
	// YAML is set when format=yaml was requested.
	YAML string `json:"yaml,omitempty"`
}

func (t *Tools) GetCaseReport(ctx context.Context, _ *mcp.CallToolRequest, input InputGetCaseReport) (*mcp.CallToolResult, OutputGetCaseReport, error) {
	format := strings.ToLower(input.Format)
	if format != "" && format != "json" && format != "yaml" {
		return nil, OutputGetCaseReport{}, fmt.Errorf("unsupported format %q", input.Format)
	}

	r, err := t.report(ctx, input.CaseID, input.Reverify)
	if err != nil {
		return nil, OutputGetCaseReport{}, err
	}

	out := OutputGetCaseReport{Report: r}
	if format == "yaml" {
		data, err := r.YAML()
		if err != nil {
			return nil, OutputGetCaseReport{}, fmt.Errorf("render report: %w", err)
		}
		out.YAML = string(data)
	}
	return nil, out, nil
}

// report loads a stored case and returns its report, verifying it first when
// asked to or when it has never been verified.
func (t *Tools) report(ctx context.Context, key string, reverify bool) (*report.VerificationReport, error) {
	if key == "" {
		return nil, fmt.Errorf("case_id is required")
	}
	rec, err := t.cases.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", key, err)
	}
	if rec.Report != nil && !reverify {
		return rec.Report, nil
	}

	r, err := t.service.VerifyCase(ctx, rec.Case)
	if err != nil {
		return nil, err
	}
	rec.Report = r
	if err := t.cases.Save(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("case_number", rec.Case.CaseNumber).Msg("store re-verified report")
	}
	return r, nil
}
