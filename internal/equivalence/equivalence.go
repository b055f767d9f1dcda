// SPDX-License-Identifier: Apache-2.0

// Package equivalence holds the canonical-name to alias mappings learned by
// operators. It is the only shared mutable state of the verification engine.
package equivalence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Entry groups the aliases known to refer to one canonical supply name.
// Names are stored normalized.
type Entry struct {
	CanonicalName string    `json:"canonical_name" yaml:"canonical_name"`
	Aliases       []string  `json:"aliases" yaml:"aliases"`
	TimesUsed     int64     `json:"times_used" yaml:"times_used"`
	Version       int64     `json:"version" yaml:"version"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasAlias reports whether alias (normalized) belongs to the entry.
func (e Entry) HasAlias(alias string) bool {
	i := sort.SearchStrings(e.Aliases, alias)
	return i < len(e.Aliases) && e.Aliases[i] == alias
}

// ConflictError is returned when an alias is already owned by a different
// canonical entry and no override was requested.
type ConflictError struct {
	Alias     string
	Owner     string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("alias %q already belongs to %q, cannot assign it to %q without override", e.Alias, e.Owner, e.Requested)
}

var (
	ErrEmptyCanonical   = errors.New("canonical name is empty after normalization")
	ErrOverrideDisabled = errors.New("alias override is disabled by configuration")
	ErrNotFound         = errors.New("equivalence not found")
	// ErrStaleEntry signals that another writer persisted a newer version of
	// the entry first.
	ErrStaleEntry = errors.New("equivalence was modified concurrently")
)

// Repository persists equivalences. Save receives every entry touched by one
// logical write and must apply them atomically.
type Repository interface {
	LoadAll(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, canonical string) error
	RecordUsage(ctx context.Context, canonical string, n int64) error
}

// Resolver maps a normalized name to its canonical entry name.
type Resolver interface {
	Resolve(name string) (canonical string, ok bool)
}
