package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/space"
	"github.com/signalnine/rundown/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpace(t *testing.T, upper float64) *space.Space {
	t.Helper()
	sp, err := space.New([]space.Hyperparameter{
		{Name: "solver", Kind: space.KindCategorical, Choices: []string{"plain", "restart"}},
		{Name: "interval", Kind: space.KindInt, Lower: 1, Upper: upper, Default: "10", Parent: "solver", ParentValues: []string{"restart"}},
	})
	require.NoError(t, err)
	return sp
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	sp := testSpace(t, 100)
	restart, err := sp.Configuration(map[string]string{"solver": "restart", "interval": "20"})
	require.NoError(t, err)

	l := ledger.New(sp)
	require.NoError(t, l.Add(sp.Default(), "i1", 0, ledger.RunValue{Cost: 5}))
	require.NoError(t, l.Add(sp.Default(), "i1", 0, ledger.RunValue{Cost: 7}))
	require.NoError(t, l.Add(restart, "i2", 3, ledger.RunValue{Cost: 10, Status: ledger.StatusTimeout}))
	require.NoError(t, l.Add(restart, "i1", 4, ledger.RunValue{Cost: 1.5, Origin: ledger.Estimated}))

	s := openStore(t)
	require.NoError(t, s.Save(ctx, l))

	got, err := s.Load(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, l.Keys(), got.Keys())
	for _, k := range l.Keys() {
		assert.ElementsMatch(t, l.Observations(k), got.Observations(k), "key %s", k)
	}
	v, ok := got.Get(ledger.RunKey{ConfigID: sp.Default().ID(), Instance: "i1", Seed: 0})
	require.True(t, ok)
	assert.Equal(t, 6.0, v.Cost)
	assert.True(t, got.Space().Compatible(sp))
}

func TestSaveReplacesContent(t *testing.T) {
	ctx := context.Background()
	sp := testSpace(t, 100)
	s := openStore(t)

	first := ledger.New(sp)
	require.NoError(t, first.Add(sp.Default(), "i1", 0, ledger.RunValue{Cost: 5}))
	require.NoError(t, s.Save(ctx, first))

	second := ledger.New(sp)
	require.NoError(t, second.Add(sp.Default(), "i2", 0, ledger.RunValue{Cost: 1}))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx, sp)
	require.NoError(t, err)
	assert.Equal(t, second.Keys(), got.Keys())
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := ledger.New(testSpace(t, 100))
	require.NoError(t, l.Add(l.Space().Default(), "i1", 0, ledger.RunValue{Cost: 5}))
	require.NoError(t, s.Save(ctx, l))

	other := testSpace(t, 50)
	_, err := s.Load(ctx, other)
	assert.True(t, errors.Is(err, ledger.ErrSchemaMismatch))
	err = s.Save(ctx, ledger.New(other))
	assert.True(t, errors.Is(err, ledger.ErrSchemaMismatch))

	got, err := s.Load(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len(), "failed save must not clear the store")
}

func TestLoadEmptyStore(t *testing.T) {
	_, err := openStore(t).Load(context.Background(), nil)
	assert.Error(t, err)
}
