// SPDX-License-Identifier: Apache-2.0

// Package extract turns uploaded document bytes into text. Extraction is
// the only blocking step of a verification; every call is bounded by a
// timeout and a failure yields an empty text instead of an error.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/logging"
)

var (
	ErrNoText         = errors.New("document contains no extractable text")
	ErrOCRUnavailable = errors.New("optical text recognition is not available")
)

// Extractor reads the text of the documents it can handle.
type Extractor interface {
	Name() string
	CanHandle(doc document.Document) bool
	Extract(ctx context.Context, doc document.Document) (string, error)
}

// Result is the outcome of running a Chain on one document.
type Result struct {
	Text          string
	TextExtracted bool
	Extractor     string
	MIME          string
}

// Chain tries each extractor that can handle a document, in order, until one
// returns text.
type Chain struct {
	extractors []Extractor
	timeout    time.Duration
}

func NewChain(timeout time.Duration, extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors, timeout: timeout}
}

// Default reads plain text, then the embedded text of PDFs, and falls back
// to the OCR stub, which always fails.
func Default(timeout time.Duration) *Chain {
	return NewChain(timeout, PlainText{}, PDFText{}, NoopOCR{})
}

// Extract never fails: when no extractor produces text the result has
// TextExtracted=false and an empty Text.
func (c *Chain) Extract(ctx context.Context, doc document.Document) Result {
	res := Result{MIME: mimetype.Detect(doc.Content).String()}
	logger := logging.FromContext(ctx).With().
		Str("document_type", string(doc.Type)).
		Str("document_name", doc.Name).
		Str("mime", res.MIME).
		Logger()

	for _, e := range c.extractors {
		if !e.CanHandle(doc) {
			continue
		}
		text, err := c.run(ctx, e, doc)
		if err != nil {
			logger.Warn().Err(err).Str("extractor", e.Name()).Msg("text extraction failed")
			continue
		}
		if strings.TrimSpace(text) == "" {
			logger.Debug().Str("extractor", e.Name()).Msg("extractor returned no text")
			continue
		}
		res.Text, res.TextExtracted, res.Extractor = text, true, e.Name()
		return res
	}

	logger.Warn().Msg("no text extracted; document will be flagged for review")
	return res
}

func (c *Chain) run(ctx context.Context, e Extractor, doc document.Document) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := e.Extract(ctx, doc)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("extractor %s: %w", e.Name(), ctx.Err())
	}
}

// PlainText handles any text/* content. Input that is not valid UTF-8 is
// decoded as Windows-1252, the usual encoding of exported Spanish records.
type PlainText struct{}

func (PlainText) Name() string { return "plain_text" }

func (PlainText) CanHandle(doc document.Document) bool {
	if strings.HasPrefix(strings.ToLower(doc.ContentType), "text/") {
		return true
	}
	for m := mimetype.Detect(doc.Content); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func (PlainText) Extract(_ context.Context, doc document.Document) (string, error) {
	data := bytes.TrimPrefix(doc.Content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", doc.Name, err)
		}
		data = decoded
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// PDFText reads the text layer of a PDF, one output line per text row, top
// to bottom. Scanned PDFs without a text layer fail with ErrNoText.
type PDFText struct{}

func (PDFText) Name() string { return "pdf_text" }

func (PDFText) CanHandle(doc document.Document) bool {
	if strings.EqualFold(doc.ContentType, "application/pdf") {
		return true
	}
	return mimetype.Detect(doc.Content).Is("application/pdf")
}

func (PDFText) Extract(ctx context.Context, doc document.Document) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf %s: %v", doc.Name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", doc.Name, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("read pdf %s page %d: %w", doc.Name, i, err)
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })
		for _, row := range rows {
			words := row.Content
			sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })
			for _, w := range words {
				b.WriteString(w.S)
			}
			b.WriteByte('\n')
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", ErrNoText
	}
	return b.String(), nil
}

// NoopOCR stands in for an optical text recognition backend. It accepts
// every document and always fails, so scanned images end up with
// TextExtracted=false.
type NoopOCR struct{}

func (NoopOCR) Name() string { return "ocr_unavailable" }

func (NoopOCR) CanHandle(document.Document) bool { return true }

func (NoopOCR) Extract(context.Context, document.Document) (string, error) {
	return "", ErrOCRUnavailable
}
