package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

var _ domain.StateStore = (*Store)(nil)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetMissing(t *testing.T) {
	s := openMemory(t)

	v, ok, err := s.Get(context.Background(), domain.RefreshTokenKey)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestStore_SetOverwriteDelete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	require.NoError(t, s.Set(ctx, domain.SettingsKey, `{"portFront":4001}`))
	require.NoError(t, s.Set(ctx, domain.SettingsKey, `{"portFront":5000}`))

	v, ok, err := s.Get(ctx, domain.SettingsKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"portFront":5000}`, v)

	require.NoError(t, s.Delete(ctx, domain.SettingsKey))
	require.NoError(t, s.Delete(ctx, domain.SettingsKey))
	_, ok, err = s.Get(ctx, domain.SettingsKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, domain.RefreshTokenKey, "refresh-1"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, domain.RefreshTokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "refresh-1", v)
}
