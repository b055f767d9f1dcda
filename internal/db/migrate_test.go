// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgmedical/casecheck/internal/db"
	"github.com/vgmedical/casecheck/internal/equivalence"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := db.NewMigrator(nil, db.Migrations()).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_equivalences.sql", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS equivalence_aliases")
}

func TestLoadMigrations_OrderAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"010_later.sql":     {Data: []byte("SELECT 10")},
		"002_second.sql":    {Data: []byte("SELECT 2")},
		"001_first.sql":     {Data: []byte("SELECT 1")},
		"README.md":         {Data: []byte("docs")},
		"draft.sql":         {Data: []byte("SELECT 0")},
		"abc_notnumber.sql": {Data: []byte("SELECT -1")},
	}
	migrations, err := db.NewMigrator(nil, files).LoadMigrations()
	require.NoError(t, err)

	var versions []int
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []int{1, 2, 10}, versions)
	assert.Equal(t, "SELECT 2", migrations[1].SQL)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1")},
		"1_b.sql":   {Data: []byte("SELECT 1")},
	}
	_, err := db.NewMigrator(nil, files).LoadMigrations()
	assert.ErrorContains(t, err, "share version 1")
}

// ---------------------------------------------------------------------------
// PostgreSQL (needs TEST_DATABASE_URL)
// ---------------------------------------------------------------------------

func TestMigrateAndRepository(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 4, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	m := db.NewMigrator(pool, db.Migrations())
	_, err = m.Up(ctx)
	require.NoError(t, err)
	again, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "a second run applies nothing")

	status, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.True(t, s.Applied, s.Name)
	}

	repo := equivalence.NewPGRepository(pool)
	store := equivalence.NewStore(equivalence.WithRepository(repo))
	require.NoError(t, store.Load(ctx))

	canonical := "placa de prueba " + t.Name()
	t.Cleanup(func() { _ = store.Delete(context.Background(), canonical) })
	created, err := store.CreateOrUpdate(ctx, canonical, []string{"alias de prueba " + t.Name()}, false)
	require.NoError(t, err)
	store.RecordUse(ctx, created.CanonicalName)

	reloaded := equivalence.NewStore(equivalence.WithRepository(repo))
	require.NoError(t, reloaded.Load(ctx))
	entry, ok := reloaded.Get(canonical)
	require.True(t, ok)
	assert.Len(t, entry.Aliases, 1)
	assert.Equal(t, int64(1), entry.TimesUsed)
}
