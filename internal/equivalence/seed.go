// SPDX-License-Identifier: Apache-2.0

package equivalence

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// seedSchema constrains seed files. Definitions are closed, so misspelled
// keys are rejected instead of silently ignored.
const seedSchema = `
#Equivalence: {
	canonical_name: string & =~"\\S"
	aliases: [...string] | *[]
	override: bool | *false
}

#Seed: {
	equivalences: [...#Equivalence]
}
`

// SeedEntry is one equivalence declared in a seed file.
type SeedEntry struct {
	CanonicalName string   `json:"canonical_name" yaml:"canonical_name"`
	Aliases       []string `json:"aliases" yaml:"aliases"`
	Override      bool     `json:"override" yaml:"override"`
}

type seedFile struct {
	Equivalences []SeedEntry `json:"equivalences" yaml:"equivalences"`
}

// ParseSeed validates a YAML (or JSON) seed document against the seed schema
// and returns its entries in file order.
func ParseSeed(data []byte) ([]SeedEntry, error) {
	asJSON, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed YAML: %w", err)
	}

	cctx := cuecontext.New()
	schema := cctx.CompileString(seedSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile seed schema: %w", err)
	}

	value := cctx.CompileBytes(asJSON)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed document: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Seed")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid seed document: %w", err)
	}

	var seed seedFile
	if err := unified.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed document: %w", err)
	}
	return seed.Equivalences, nil
}

// LoadSeedFile reads and validates the seed file at path.
func LoadSeedFile(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// Import applies seed entries in order. It stops at the first failing entry
// and reports how many were applied before it.
func (s *Store) Import(ctx context.Context, entries []SeedEntry) (int, error) {
	for i, e := range entries {
		if _, err := s.CreateOrUpdate(ctx, e.CanonicalName, e.Aliases, e.Override); err != nil {
			return i, fmt.Errorf("seed entry %d (%q): %w", i, e.CanonicalName, err)
		}
	}
	return len(entries), nil
}

// Seed applies seed entries at startup. Unlike Import it skips, with a
// warning, entries whose aliases now belong to another canonical name. Any
// other error stops the run.
func (s *Store) Seed(ctx context.Context, entries []SeedEntry) (applied, skipped int, err error) {
	for i, e := range entries {
		_, err = s.CreateOrUpdate(ctx, e.CanonicalName, e.Aliases, e.Override)
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			log.Warn().
				Str("canonical", e.CanonicalName).
				Str("alias", conflict.Alias).
				Str("owner", conflict.Owner).
				Msg("seed entry skipped, alias owned elsewhere")
			skipped++
		case err != nil:
			return applied, skipped, fmt.Errorf("seed entry %d (%q): %w", i, e.CanonicalName, err)
		default:
			applied++
		}
	}
	return applied, skipped, nil
}
