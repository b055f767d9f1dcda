// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/verify"
)

const (
	approveThreshold = 0.95
	rejectThreshold  = 0.50
)

// Weights of each component in the verification score. They are expected to
// sum to 1; config.Validate enforces it.
type Weights struct {
	Basic        float64
	Supplies     float64
	Traceability float64
}

func DefaultWeights() Weights {
	return Weights{Basic: 0.4, Supplies: 0.4, Traceability: 0.2}
}

// Input carries everything the builder joins.
type Input struct {
	CaseID       string
	CaseNumber   string
	Status       string
	Documents    []document.ParsedDocument
	Basic        verify.BasicResult
	Supplies     verify.SupplyResult
	Traceability verify.TraceabilityResult
}

type Builder struct {
	weights         Weights
	reviewThreshold float64
	now             func() time.Time
}

type BuilderOption func(*Builder)

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(weights Weights, reviewThreshold float64, opts ...BuilderOption) *Builder {
	b := &Builder{weights: weights, reviewThreshold: reviewThreshold, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build scores the case and decides whether a human has to review it.
func (b *Builder) Build(in Input) *VerificationReport {
	r := &VerificationReport{
		CaseID:        in.CaseID,
		CaseNumber:    in.CaseNumber,
		Status:        in.Status,
		BasicData:     in.Basic,
		Supplies:      in.Supplies,
		Traceability:  in.Traceability,
		TextExtracted: make(map[document.Type]bool, len(in.Documents)),
		GeneratedAt:   b.now().UTC(),
	}
	for _, d := range in.Documents {
		r.TextExtracted[d.Type] = d.TextExtracted
	}

	r.VerificationScore = b.score(in)
	r.Discrepancies = collect(in.Basic.Discrepancies, in.Supplies.Discrepancies, in.Traceability.Discrepancies)
	r.ReviewReasons = b.reviewReasons(r, in.Documents)
	r.RequiresReview = len(r.ReviewReasons) > 0

	switch {
	case !r.RequiresReview && r.VerificationScore >= approveThreshold:
		r.OverallStatus = StatusApproved
	case r.VerificationScore < rejectThreshold:
		r.OverallStatus = StatusRejected
	default:
		r.OverallStatus = StatusRequiresReview
	}
	r.Recommendations = recommendations(r)
	return r
}

func (b *Builder) score(in Input) float64 {
	s := b.weights.Basic*in.Basic.MatchRatio +
		b.weights.Supplies*in.Supplies.MatchRatio +
		b.weights.Traceability*in.Traceability.ValidRatio
	s = math.Max(0, math.Min(1, s))
	return math.Round(s*1e4) / 1e4
}

// collect concatenates in component order, then orders by severity. The sort
// is stable, so component order survives within a severity.
func collect(groups ...[]verify.Discrepancy) []verify.Discrepancy {
	out := []verify.Discrepancy{}
	for _, g := range groups {
		out = append(out, g...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Component < out[j].Component
	})
	return out
}

func (b *Builder) reviewReasons(r *VerificationReport, docs []document.ParsedDocument) []string {
	reasons := []string{}
	if r.VerificationScore < b.reviewThreshold {
		reasons = append(reasons, fmt.Sprintf("verification score %.4f is below the review threshold %.2f", r.VerificationScore, b.reviewThreshold))
	}
	if n := r.Supplies.Summary.Unmatched; n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d supply item(s) unmatched", n))
	}
	if n := r.Traceability.Required - r.Traceability.ValidCount; n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d item(s) with invalid traceability", n))
	}
	for _, d := range docs {
		if !d.TextExtracted {
			reasons = append(reasons, fmt.Sprintf("no text extracted from the %s document", d.Type))
		}
	}
	return reasons
}

func recommendations(r *VerificationReport) []string {
	out := []string{}
	if r.BasicData.MatchRatio < 1 {
		out = append(out, "Revisar y corregir inconsistencias en datos básicos del paciente")
	}
	if r.Supplies.Summary.Unmatched > 0 || r.Supplies.Summary.Extra > 0 {
		if r.Supplies.MatchRatio < 0.70 {
			out = append(out, "Revisar exhaustivamente las cantidades y nombres de insumos")
		} else {
			out = append(out, "Verificar insumos con discrepancias menores")
		}
	}
	if !r.Traceability.AllValid {
		if r.Traceability.ValidRatio < 0.80 {
			out = append(out, "Completar información de trazabilidad (REF/LOT/UDI) faltante")
		} else {
			out = append(out, "Verificar etiquetas UDI en insumos faltantes")
		}
	}
	for _, ok := range r.TextExtracted {
		if !ok {
			out = append(out, "Cargar una versión legible de los documentos sin texto extraíble")
			break
		}
	}
	if r.RequiresReview {
		out = append(out, "Se recomienda revisión manual completa antes de aprobar")
	}
	return out
}
