// SPDX-License-Identifier: Apache-2.0

// Package tool exposes case verification and equivalence management as MCP
// tools.
package tool

import (
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/document"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/suggest"
)

// Tools holds the dependencies shared by the tool handlers.
type Tools struct {
	service   *engine.Service
	store     *equivalence.Store
	cases     casestore.Store
	suggester *suggest.Engine
}

func New(service *engine.Service, store *equivalence.Store, cases casestore.Store, suggester *suggest.Engine) *Tools {
	return &Tools{service: service, store: store, cases: cases, suggester: suggester}
}

// Register adds every tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, MetadataParseDocument, t.ParseDocument)
	mcp.AddTool(server, MetadataVerifyCase, t.VerifyCase)
	mcp.AddTool(server, MetadataGetCaseReport, t.GetCaseReport)
	mcp.AddTool(server, MetadataCreateOrUpdateEquivalence, t.CreateOrUpdateEquivalence)
	mcp.AddTool(server, MetadataListEquivalences, t.ListEquivalences)
	mcp.AddTool(server, MetadataSuggestEquivalences, t.SuggestEquivalences)
}

// InputDocument is one uploaded document. Text goes in content; binary files
// (PDF, images) go base64-encoded in content_base64.
type InputDocument struct {
	Type          string `json:"document_type"`
	Name          string `json:"name"`
	ContentType   string `json:"content_type"`
	Content       string `json:"content"`
	ContentBase64 string `json:"content_base64"`
}

var documentSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"document_type"},
	"properties": map[string]interface{}{
		"document_type": map[string]interface{}{
			"type":        "string",
			"description": "Which case document this is.",
			"enum":        []string{"internal", "hospital", "description"},
		},
		"name": map[string]interface{}{
			"type":        "string",
			"description": "Optional file name, used in logs and error messages.",
		},
		"content_type": map[string]interface{}{
			"type":        "string",
			"description": "Optional MIME type hint. Detected from the content when omitted.",
		},
		"content": map[string]interface{}{
			"type":        "string",
			"description": "Document text. Leave empty when sending content_base64.",
		},
		"content_base64": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded file for binary uploads such as PDF or scanned images.",
		},
	},
}

func (d InputDocument) toDocument() (document.Document, error) {
	typ, err := document.ParseType(d.Type)
	if err != nil {
		return document.Document{}, &engine.InvalidInputError{Reason: err.Error()}
	}
	if d.Content != "" && d.ContentBase64 != "" {
		return document.Document{}, &engine.InvalidInputError{
			Reason: fmt.Sprintf("%s document: give either content or content_base64, not both", typ),
		}
	}

	content := []byte(d.Content)
	if d.ContentBase64 != "" {
		content, err = base64.StdEncoding.DecodeString(d.ContentBase64)
		if err != nil {
			return document.Document{}, &engine.InvalidInputError{
				Reason: fmt.Sprintf("%s document: content_base64 is not valid base64: %v", typ, err),
			}
		}
	}

	name := d.Name
	if name == "" {
		name = string(typ)
	}
	return document.Document{Type: typ, Name: name, ContentType: d.ContentType, Content: content}, nil
}
