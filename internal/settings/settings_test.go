package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = Snapshot{DistanceKm: DefaultDistanceKm, AccuracyMeters: 200}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fileStore.Close() })

	memStore, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { memStore.Close() })

	return map[string]Store{
		"memory":        NewMemoryStore(),
		"sqlite-file":   fileStore,
		"sqlite-memory": memStore,
	}
}

func TestStore_GetPut(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			v, err := store.GetInt(ctx, "missing", 42)
			require.NoError(t, err)
			assert.Equal(t, 42, v)

			require.NoError(t, store.PutInt(ctx, FakeLocationDistance, 100))
			v, err = store.GetInt(ctx, FakeLocationDistance, 10)
			require.NoError(t, err)
			assert.Equal(t, 100, v)

			// Overwrite
			require.NoError(t, store.PutInt(ctx, FakeLocationDistance, 500))
			v, err = store.GetInt(ctx, FakeLocationDistance, 10)
			require.NoError(t, err)
			assert.Equal(t, 500, v)
		})
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := Load(ctx, store, defaults)
			require.NoError(t, err)
			assert.Equal(t, defaults, snap)

			require.NoError(t, SetFakeLocationEnabled(ctx, store, true))
			_, err = SetDistance(ctx, store, "12.1")
			require.NoError(t, err)
			require.NoError(t, SetAccuracy(ctx, store, 750))

			snap, err = Load(ctx, store, defaults)
			require.NoError(t, err)
			assert.Equal(t, Snapshot{FakeLocationEnabled: true, DistanceKm: 13, AccuracyMeters: 750}, snap)

			require.NoError(t, SetFakeLocationEnabled(ctx, store, false))
			snap, err = Load(ctx, store, defaults)
			require.NoError(t, err)
			assert.False(t, snap.FakeLocationEnabled)
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.PutInt(ctx, FakeLocationEnabled, 1))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.GetInt(ctx, FakeLocationEnabled, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSQLiteStore_MalformedValueReadsDefault(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.ExecContext(ctx, `INSERT INTO settings (name, value) VALUES (?, ?)`, FakeLocationDistance, "ten")
	require.NoError(t, err)

	v, err := store.GetInt(ctx, FakeLocationDistance, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestParseDistance(t *testing.T) {
	cases := map[string]int{
		"10":      10,
		" 100 ":   100,
		"500":     500,
		"0":       0,
		"0.2":     1,
		"12.0001": 13,
		"40000":   40000,
		"39999.5": 40000,
	}
	for input, want := range cases {
		got, err := ParseDistance(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseDistance("   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	for _, bad := range []string{"-1", "40000.1", "custom", "NaN", "1e9"} {
		_, err := ParseDistance(bad)
		assert.ErrorIs(t, err, ErrInvalidDistance, bad)
	}
}

func TestSetDistance_RejectsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := SetDistance(ctx, store, "-3")
	assert.ErrorIs(t, err, ErrInvalidDistance)

	v, err := store.GetInt(ctx, FakeLocationDistance, DefaultDistanceKm)
	require.NoError(t, err)
	assert.Equal(t, DefaultDistanceKm, v)

	assert.ErrorIs(t, SetAccuracy(ctx, store, 0), ErrInvalidAccuracy)
}

func TestDistanceSummary(t *testing.T) {
	assert.Equal(t, "100 km", DistanceSummary(100))
	assert.Equal(t, "42 km (custom)", DistanceSummary(42))
}
