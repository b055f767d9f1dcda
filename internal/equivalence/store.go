// SPDX-License-Identifier: Apache-2.0

package equivalence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vgmedical/casecheck/internal/normalize"
)

// Store is a concurrency-safe equivalence store. Reads are lock-free against
// the current Snapshot. Structural writes (create, update, delete, load) are
// serialized by one write lock held across persistence and publication.
// Usage counts are published without that lock; a structural write rebases
// onto the counts that landed while it was persisting.
type Store struct {
	repo          Repository
	allowOverride bool
	now           func() time.Time

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

type Option func(*Store)

// WithRepository persists every write through repo before it is published.
func WithRepository(repo Repository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithOverridePolicy controls whether callers may move an alias between
// canonical entries. Overrides are allowed by default.
func WithOverridePolicy(allow bool) Option {
	return func(s *Store) { s.allowOverride = allow }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store. Call Load to populate it from the
// repository.
func NewStore(opts ...Option) *Store {
	s := &Store{allowOverride: true, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(emptySnapshot())
	return s
}

// Load replaces the in-memory state with the repository contents. Without a
// repository it is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load equivalences: %w", err)
	}
	for i := range entries {
		sort.Strings(entries[i].Aliases)
	}
	s.snap.Store(newSnapshot(entries))
	log.Debug().Int("entries", len(entries)).Msg("equivalence store loaded")
	return nil
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

func (s *Store) Get(canonical string) (Entry, bool) {
	return s.Snapshot().Get(normalize.String(canonical))
}

func (s *Store) List() []Entry {
	return s.Snapshot().Entries()
}

// CreateOrUpdate merges aliases into the entry for canonical, creating it if
// needed. An alias owned by another entry fails with *ConflictError unless
// override is set and the store's policy allows it.
func (s *Store) CreateOrUpdate(ctx context.Context, canonical string, aliases []string, override bool) (Entry, error) {
	canon := normalize.String(canonical)
	if canon == "" {
		return Entry{}, ErrEmptyCanonical
	}
	if override && !s.allowOverride {
		return Entry{}, ErrOverrideDisabled
	}
	normalized := normalizeAliases(canon, aliases)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	cur := s.snap.Load()
	next, changed, err := cur.merge(canon, normalized, override, s.now().UTC())
	if err != nil {
		return Entry{}, err
	}
	if changed == nil {
		e, _ := cur.Get(canon)
		return e, nil
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, changed); err != nil {
			return Entry{}, fmt.Errorf("persist equivalence %q: %w", canon, err)
		}
	}
	next = s.publish(cur, next)

	e, _ := next.Get(canon)
	log.Info().
		Str("canonical", canon).
		Strs("aliases", e.Aliases).
		Bool("override", override).
		Int("changed_entries", len(changed)).
		Msg("equivalence saved")
	return e, nil
}

// Delete removes a canonical entry and all its aliases.
func (s *Store) Delete(ctx context.Context, canonical string) error {
	canon := normalize.String(canonical)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, ok := cur.Get(canon); !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, canon)
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, canon); err != nil {
			return fmt.Errorf("delete equivalence %q: %w", canon, err)
		}
	}
	s.publish(cur, cur.without(canon))
	return nil
}

// publish swaps base for next. Only RecordUse publishes without holding s.mu,
// so a lost swap means usage counts moved and next takes them over.
func (s *Store) publish(base, next *Snapshot) *Snapshot {
	for !s.snap.CompareAndSwap(base, next) {
		base = s.snap.Load()
		next = next.withUsageOf(base)
	}
	return next
}

// RecordUse counts equivalence-based matches per canonical name. Usage is
// statistics only; persistence failures are logged and otherwise ignored.
func (s *Store) RecordUse(ctx context.Context, canonicals ...string) {
	if len(canonicals) == 0 {
		return
	}
	counts := map[string]int64{}
	for _, c := range canonicals {
		counts[c]++
	}
	for {
		cur := s.snap.Load()
		if s.snap.CompareAndSwap(cur, cur.withUsage(counts)) {
			break
		}
	}
	if s.repo == nil {
		return
	}
	for c, n := range counts {
		if err := s.repo.RecordUsage(ctx, c, n); err != nil {
			log.Warn().Err(err).Str("canonical", c).Msg("record equivalence usage")
		}
	}
}

func normalizeAliases(canonical string, aliases []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		n := normalize.String(a)
		if n == "" || n == canonical || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
