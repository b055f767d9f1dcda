// SPDX-License-Identifier: Apache-2.0

// Package engine runs a surgical case end to end: text extraction, parsing,
// the three verifications and the report.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/document/parsers"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/extract"
	"github.com/vgmedical/casecheck/internal/logging"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/telemetry"
	"github.com/vgmedical/casecheck/internal/verify"
)

// Settings are the tunable thresholds of a verification. Build them with
// DefaultSettings or from config.Config.
type Settings struct {
	BasicThreshold        float64
	ProcedureThreshold    float64
	SupplyThreshold       float64
	ExtraMentionThreshold float64
	ReviewThreshold       float64
	Weights               report.Weights
	Traceability          verify.TraceabilityRules
	ExtractTimeout        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		BasicThreshold:        0.85,
		ProcedureThreshold:    0.70,
		SupplyThreshold:       0.80,
		ExtraMentionThreshold: 0.60,
		ReviewThreshold:       0.90,
		Weights:               report.DefaultWeights(),
		Traceability:          verify.DefaultTraceabilityRules(),
		ExtractTimeout:        10 * time.Second,
	}
}

// TextExtractor is satisfied by *extract.Chain.
type TextExtractor interface {
	Extract(ctx context.Context, doc document.Document) extract.Result
}

type Service struct {
	extractor  TextExtractor
	pipeline   *document.Pipeline
	basic      *verify.BasicVerifier
	reconciler *verify.Reconciler
	trace      *verify.TraceabilityValidator
	builder    *report.Builder
	store      *equivalence.Store
	metrics    *telemetry.Metrics
	now        func() time.Time
	newID      func() uuid.UUID
}

type Option func(*Service)

func WithExtractor(e TextExtractor) Option {
	return func(s *Service) { s.extractor = e }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) { s.newID = newID }
}

// WithMatchers replaces the default exact, equivalence, fuzzy chain.
func WithMatchers(matchers ...verify.Matcher) Option {
	return func(s *Service) {
		s.reconciler = verify.NewReconciler(s.reconciler.ExtraThreshold(), matchers...)
	}
}

// NewService wires a verification service. store may be nil, in which case
// no equivalences are known.
func NewService(settings Settings, store *equivalence.Store, opts ...Option) *Service {
	s := &Service{
		extractor:  extract.Default(settings.ExtractTimeout),
		pipeline:   parsers.NewDefaultPipeline(),
		basic:      verify.NewBasicVerifier(settings.BasicThreshold, settings.ProcedureThreshold),
		reconciler: verify.NewReconciler(settings.ExtraMentionThreshold, verify.DefaultMatchers(settings.SupplyThreshold)...),
		trace:      verify.NewTraceabilityValidator(settings.Traceability),
		store:      store,
		now:        time.Now,
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = report.NewBuilder(settings.Weights, settings.ReviewThreshold, report.WithClock(s.now))
	return s
}

// Ingest extracts and parses exactly one document of each type. Documents
// whose text cannot be read are kept with TextExtracted=false; only a wrong
// set of document types fails the case.
func (s *Service) Ingest(ctx context.Context, docs ...document.Document) (*Case, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.Ingest", attribute.Int("documents", len(docs)))
	defer span.End()

	if err := checkDocumentSet(docs); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	parsed := make([]document.ParsedDocument, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			p, _, err := s.ParseDocument(gctx, doc)
			parsed[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	id := s.newID()
	now := s.now()
	c := &Case{
		ID:         id.String(),
		CaseNumber: NewCaseNumber(now, id),
		Status:     StatusProcessed,
		Documents:  make(map[document.Type]document.ParsedDocument, len(parsed)),
		CreatedAt:  now.UTC(),
	}
	for _, p := range parsed {
		c.Documents[p.Type] = p
	}
	span.SetAttributes(attribute.String("case_number", c.CaseNumber))

	logger := logging.FromContext(ctx)
	for _, p := range c.Ordered() {
		for _, w := range p.Warnings {
			logger.Warn().Str("case_number", c.CaseNumber).Str("document_type", string(p.Type)).
				Str("code", w.Code).Msg(w.Message)
		}
	}
	logger.Info().Str("case_id", c.ID).Str("case_number", c.CaseNumber).Msg("case ingested")
	return c, nil
}

// ParseDocument extracts the text of a single document and parses it
// according to its type.
func (s *Service) ParseDocument(ctx context.Context, doc document.Document) (document.ParsedDocument, extract.Result, error) {
	res := s.extractor.Extract(ctx, doc)
	if !res.TextExtracted && s.metrics != nil {
		s.metrics.ExtractionFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("document_type", string(doc.Type))))
	}
	p, err := s.pipeline.Parse(ctx, doc.Type, res.Text)
	if err != nil {
		return document.ParsedDocument{}, res, fmt.Errorf("parse %s document %q: %w", doc.Type, doc.Name, err)
	}
	return p, res, nil
}

func checkDocumentSet(docs []document.Document) error {
	if len(docs) != len(document.Types) {
		return &InvalidInputError{Reason: fmt.Sprintf("exactly %d documents are required, got %d", len(document.Types), len(docs))}
	}
	seen := map[document.Type]bool{}
	for _, d := range docs {
		if _, err := document.ParseType(string(d.Type)); err != nil {
			return &InvalidInputError{Reason: err.Error()}
		}
		if seen[d.Type] {
			return &InvalidInputError{Reason: fmt.Sprintf("document type %s given more than once", d.Type)}
		}
		seen[d.Type] = true
	}
	return nil
}

// VerifyCase runs the basic-data, supply and traceability checks
// concurrently and joins them into a report. It can be called again at any
// time, for example after new equivalences were learned.
func (s *Service) VerifyCase(ctx context.Context, c *Case) (*report.VerificationReport, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "engine.VerifyCase", attribute.String("case_number", c.CaseNumber))
	defer span.End()
	start := time.Now()

	internal := c.Documents[document.TypeInternal]
	hospital := c.Documents[document.TypeHospital]
	description := c.Documents[document.TypeDescription]

	var resolver equivalence.Resolver
	if s.store != nil {
		resolver = s.store.Snapshot()
	}

	var (
		basic    verify.BasicResult
		supplies verify.SupplyResult
		trace    verify.TraceabilityResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, sp := telemetry.StartSpan(gctx, "verify.basic_data")
		defer sp.End()
		basic = s.basic.Verify(internal, hospital, description)
		return gctx.Err()
	})
	g.Go(func() error {
		_, sp := telemetry.StartSpan(gctx, "verify.supplies")
		defer sp.End()
		supplies = s.reconciler.Reconcile(internal, hospital, description, resolver)
		return gctx.Err()
	})
	g.Go(func() error {
		_, sp := telemetry.StartSpan(gctx, "verify.traceability")
		defer sp.End()
		trace = s.trace.Validate(internal)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("verify case %s: %w", c.CaseNumber, err)
	}

	r := s.builder.Build(report.Input{
		CaseID:       c.ID,
		CaseNumber:   c.CaseNumber,
		Status:       string(c.Status),
		Documents:    c.Ordered(),
		Basic:        basic,
		Supplies:     supplies,
		Traceability: trace,
	})

	if s.store != nil {
		var used []string
		for _, it := range supplies.Items {
			if it.Status == verify.MatchEquivalence {
				used = append(used, it.Canonical)
			}
		}
		s.store.RecordUse(ctx, used...)
	}

	s.record(ctx, r, time.Since(start))
	span.SetAttributes(
		attribute.Float64("verification_score", r.VerificationScore),
		attribute.Bool("requires_review", r.RequiresReview),
	)
	logging.FromContext(ctx).Info().
		Str("case_number", c.CaseNumber).
		Float64("score", r.VerificationScore).
		Bool("requires_review", r.RequiresReview).
		Int("discrepancies", len(r.Discrepancies)).
		Msg("case verified")
	return r, nil
}

func (s *Service) record(ctx context.Context, r *report.VerificationReport, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.CasesVerified.Add(ctx, 1)
	if r.RequiresReview {
		s.metrics.CasesNeedingReview.Add(ctx, 1)
	}
	s.metrics.VerificationScore.Record(ctx, r.VerificationScore)
	s.metrics.VerifyDuration.Record(ctx, float64(elapsed.Milliseconds()))

	sum := r.Supplies.Summary
	for status, n := range map[verify.MatchStatus]int{
		verify.MatchExact:       sum.Matched,
		verify.MatchEquivalence: sum.MatchedViaEquivalence,
		verify.MatchFuzzy:       sum.MatchedFuzzy,
		verify.Unmatched:        sum.Unmatched,
	} {
		if n > 0 {
			s.metrics.SupplyMatches.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", string(status))))
		}
	}
}

// Run ingests and verifies in one call.
func (s *Service) Run(ctx context.Context, docs ...document.Document) (*Case, *report.VerificationReport, error) {
	c, err := s.Ingest(ctx, docs...)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.VerifyCase(ctx, c)
	if err != nil {
		return c, nil, err
	}
	return c, r, nil
}
