package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-items-server/store"
)

func newSqliteStore(t *testing.T, opts ...store.Option) *store.SqliteStore {
	t.Helper()
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqliteStore(t *testing.T) {
	runStoreTests(t, newSqliteStore(t), "999")
}

func TestSqliteStoreSequential(t *testing.T) {
	runSequentialTests(t, newSqliteStore(t))
}

func TestSqliteStoreScenario(t *testing.T) {
	runScenario(t, newSqliteStore(t, store.WithClock(frozenClock())))
}

func TestSqliteStoreRejectsUnencodable(t *testing.T) {
	runUnencodableTests(t, newSqliteStore(t))
}

func TestSqliteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := store.NewSqliteStore(path)
	require.NoError(t, err)
	created, err := s1.Create(ctx, map[string]any{"name": "widget", "meta": map[string]any{"a": "b"}})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := store.NewSqliteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	it, err := s2.FindByID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, "widget", it["name"])
	assert.Equal(t, map[string]any{"a": "b"}, it["meta"])
	assert.True(t, created.LastUpdate().Equal(it.LastUpdate()))
}
