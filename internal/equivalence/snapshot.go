// SPDX-License-Identifier: Apache-2.0

package equivalence

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the store. Reconciliation runs against a
// snapshot, so a write landing mid-run is simply not seen by that run.
type Snapshot struct {
	entries map[string]Entry
	// owner maps every alias and every canonical name to its canonical name.
	owner map[string]string
}

func emptySnapshot() *Snapshot {
	return &Snapshot{entries: map[string]Entry{}, owner: map[string]string{}}
}

func newSnapshot(entries []Entry) *Snapshot {
	s := emptySnapshot()
	for _, e := range entries {
		s.entries[e.CanonicalName] = e
		s.owner[e.CanonicalName] = e.CanonicalName
		for _, a := range e.Aliases {
			s.owner[a] = e.CanonicalName
		}
	}
	return s
}

// Resolve maps an alias or canonical name to its canonical name.
func (s *Snapshot) Resolve(name string) (string, bool) {
	c, ok := s.owner[name]
	return c, ok
}

// Get returns the entry for a canonical name.
func (s *Snapshot) Get(canonical string) (Entry, bool) {
	e, ok := s.entries[canonical]
	return e, ok
}

// Entries returns all entries sorted by canonical name.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		entries: make(map[string]Entry, len(s.entries)+1),
		owner:   make(map[string]string, len(s.owner)+4),
	}
	for k, v := range s.entries {
		next.entries[k] = v
	}
	for k, v := range s.owner {
		next.owner[k] = v
	}
	return next
}

// merge computes the snapshot that results from adding aliases to canonical.
// It returns the entries that changed, or a nil slice when nothing changes.
// Inputs must already be normalized and deduplicated.
func (s *Snapshot) merge(canonical string, aliases []string, override bool, now time.Time) (*Snapshot, []Entry, error) {
	existing, exists := s.entries[canonical]

	// owner -> aliases taken from it
	released := map[string][]string{}

	if !exists {
		if owner, ok := s.owner[canonical]; ok {
			if !override {
				return nil, nil, &ConflictError{Alias: canonical, Owner: owner, Requested: canonical}
			}
			released[owner] = append(released[owner], canonical)
		}
	}

	var added []string
	for _, a := range aliases {
		owner, ok := s.owner[a]
		switch {
		case !ok:
			added = append(added, a)
		case owner == canonical:
			// already ours
		case a == owner:
			// another entry's canonical name can never be taken over
			return nil, nil, &ConflictError{Alias: a, Owner: owner, Requested: canonical}
		case !override:
			return nil, nil, &ConflictError{Alias: a, Owner: owner, Requested: canonical}
		default:
			released[owner] = append(released[owner], a)
			added = append(added, a)
		}
	}

	if exists && len(added) == 0 && len(released) == 0 {
		return s, nil, nil
	}

	next := s.clone()
	var changed []Entry

	owners := make([]string, 0, len(released))
	for owner := range released {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		prev := next.entries[owner]
		drop := map[string]bool{}
		for _, a := range released[owner] {
			drop[a] = true
			delete(next.owner, a)
		}
		kept := make([]string, 0, len(prev.Aliases))
		for _, a := range prev.Aliases {
			if !drop[a] {
				kept = append(kept, a)
			}
		}
		prev.Aliases = kept
		prev.Version++
		prev.UpdatedAt = now
		next.entries[owner] = prev
		changed = append(changed, prev)
	}

	entry := existing
	if !exists {
		entry = Entry{CanonicalName: canonical, CreatedAt: now}
	}
	merged := make([]string, 0, len(entry.Aliases)+len(added))
	merged = append(merged, entry.Aliases...)
	merged = append(merged, added...)
	sort.Strings(merged)
	entry.Aliases = merged
	entry.Version++
	entry.UpdatedAt = now

	next.entries[canonical] = entry
	next.owner[canonical] = canonical
	for _, a := range added {
		next.owner[a] = canonical
	}
	changed = append(changed, entry)

	return next, changed, nil
}

// without returns a snapshot lacking the canonical entry and its aliases.
func (s *Snapshot) without(canonical string) *Snapshot {
	next := s.clone()
	if e, ok := next.entries[canonical]; ok {
		for _, a := range e.Aliases {
			delete(next.owner, a)
		}
		delete(next.owner, canonical)
		delete(next.entries, canonical)
	}
	return next
}

// withUsage returns a snapshot where each canonical's TimesUsed grew by the
// given count. Unknown names are ignored.
func (s *Snapshot) withUsage(counts map[string]int64) *Snapshot {
	next := s.clone()
	for canonical, n := range counts {
		if e, ok := next.entries[canonical]; ok {
			e.TimesUsed += n
			next.entries[canonical] = e
		}
	}
	return next
}

// withUsageOf returns a copy of s whose TimesUsed values are taken from
// latest for every entry both snapshots hold.
func (s *Snapshot) withUsageOf(latest *Snapshot) *Snapshot {
	next := s.clone()
	for canonical, e := range next.entries {
		if l, ok := latest.entries[canonical]; ok {
			e.TimesUsed = l.TimesUsed
			next.entries[canonical] = e
		}
	}
	return next
}
