package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxBytes int) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), maxBytes)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t, 0)

	value, ok, err := s.Get(KeyTheme)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, value)
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	s := newTestStore(t, 0)

	require.NoError(t, s.Set(KeyTheme, "light"))
	require.NoError(t, s.Set(KeyTheme, "dark"))

	value, ok, err := s.Get(KeyTheme)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dark", value)
}

func TestSQLiteStore_CapacityExceeded(t *testing.T) {
	s := newTestStore(t, 16)

	require.NoError(t, s.Set(KeySessions, "[]"))
	err := s.Set(KeySessions, strings.Repeat("x", 17))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCapacityExceeded))

	// The previous value survives a rejected write.
	value, _, err := s.Get(KeySessions)
	require.NoError(t, err)
	require.Equal(t, "[]", value)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t, 0)

	require.NoError(t, s.Set(KeyPrimaryAPIKey, "abc"))
	require.NoError(t, s.Delete(KeyPrimaryAPIKey))

	_, ok, err := s.Get(KeyPrimaryAPIKey)
	require.NoError(t, err)
	require.False(t, ok)
}
