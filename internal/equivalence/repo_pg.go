// SPDX-License-Identifier: Apache-2.0

package equivalence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGRepository stores equivalences in PostgreSQL (tables created by the
// migrations in internal/db). Alias uniqueness is enforced by the primary
// key of equivalence_aliases, which backs the in-memory conflict check when
// several processes share one database.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.canonical_name, e.times_used, e.version, e.created_at, e.updated_at,
			COALESCE(array_agg(a.alias ORDER BY a.alias) FILTER (WHERE a.alias IS NOT NULL), '{}')
		FROM equivalences e
		LEFT JOIN equivalence_aliases a ON a.canonical_name = e.canonical_name
		GROUP BY e.canonical_name
		ORDER BY e.canonical_name`)
	if err != nil {
		return nil, fmt.Errorf("query equivalences: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CanonicalName, &e.TimesUsed, &e.Version, &e.CreatedAt, &e.UpdatedAt, &e.Aliases); err != nil {
			return nil, fmt.Errorf("scan equivalence: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equivalences: %w", err)
	}
	return entries, nil
}

// Save writes all entries in one transaction. Each canonical row is locked
// first and its stored version must be older than the incoming one, so two
// processes cannot overwrite each other's alias sets.
func (r *PGRepository) Save(ctx context.Context, entries []Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if err := upsertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	// aliases go in after every entry released what it gave up
	for _, e := range entries {
		for _, alias := range e.Aliases {
			if err := insertAlias(ctx, tx, e.CanonicalName, alias); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit equivalences: %w", err)
	}
	return nil
}

func upsertEntry(ctx context.Context, q queryable, e Entry) error {
	var stored int64
	err := q.QueryRow(ctx, `SELECT version FROM equivalences WHERE canonical_name = $1 FOR UPDATE`, e.CanonicalName).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("lock equivalence %q: %w", e.CanonicalName, err)
	case stored >= e.Version:
		return fmt.Errorf("%w: %q stored version %d, writing %d", ErrStaleEntry, e.CanonicalName, stored, e.Version)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO equivalences (canonical_name, times_used, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (canonical_name) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		e.CanonicalName, e.TimesUsed, e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert equivalence %q: %w", e.CanonicalName, err)
	}

	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	_, err = q.Exec(ctx, `DELETE FROM equivalence_aliases WHERE canonical_name = $1 AND NOT (alias = ANY($2))`, e.CanonicalName, aliases)
	if err != nil {
		return fmt.Errorf("prune aliases of %q: %w", e.CanonicalName, err)
	}
	return nil
}

func insertAlias(ctx context.Context, q queryable, canonical, alias string) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO equivalence_aliases (alias, canonical_name) VALUES ($1, $2)
		ON CONFLICT (alias) DO NOTHING`, alias, canonical)
	if err != nil {
		return fmt.Errorf("insert alias %q: %w", alias, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var owner string
	if err := q.QueryRow(ctx, `SELECT canonical_name FROM equivalence_aliases WHERE alias = $1`, alias).Scan(&owner); err != nil {
		return fmt.Errorf("read owner of alias %q: %w", alias, err)
	}
	if owner != canonical {
		return &ConflictError{Alias: alias, Owner: owner, Requested: canonical}
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, canonical string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM equivalences WHERE canonical_name = $1`, canonical)
	if err != nil {
		return fmt.Errorf("delete equivalence %q: %w", canonical, err)
	}
	return nil
}

func (r *PGRepository) RecordUsage(ctx context.Context, canonical string, n int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE equivalences SET times_used = times_used + $2 WHERE canonical_name = $1`, canonical, n)
	if err != nil {
		return fmt.Errorf("record usage of %q: %w", canonical, err)
	}
	return nil
}
