// SPDX-License-Identifier: Apache-2.0

// Package casestore keeps ingested cases and their latest report so a report
// can be fetched again by case id or case number.
package casestore

import (
	"context"
	"errors"
	"sync"

	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/report"
)

var ErrNotFound = errors.New("case not found")

// Record is a stored case. Report is nil until the case has been verified.
type Record struct {
	Case   *engine.Case               `json:"case"`
	Report *report.VerificationReport `json:"report,omitempty"`
}

// Store persists case records. Get accepts either the case id or the case
// number.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
}

// MemoryStore is an in-process Store. It never expires records.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Record
	idByCase map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     map[string]Record{},
		idByCase: map[string]string{},
	}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.Case == nil || rec.Case.ID == "" {
		return errors.New("case record without an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[rec.Case.ID] = rec
	m.idByCase[rec.Case.CaseNumber] = rec.Case.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.byID[key]; ok {
		return rec, nil
	}
	if id, ok := m.idByCase[key]; ok {
		return m.byID[id], nil
	}
	return Record{}, ErrNotFound
}
