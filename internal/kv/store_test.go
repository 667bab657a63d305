package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	db, err := NewSQLite(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("token")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("token", []byte("abc")))
			v, ok, err := s.Get("token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "abc", string(v))

			require.NoError(t, s.Set("token", []byte(`{"a@b.c":3}`)))
			v, _, err = s.Get("token")
			require.NoError(t, err)
			assert.Equal(t, `{"a@b.c":3}`, string(v))

			require.NoError(t, s.Delete("token"))
			_, ok, err = s.Get("token")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete("missing"))
		})
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("login_attempts", []byte(`{"x":2}`)))

	second, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := second.Get("login_attempts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"x":2}`, string(v))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_ValuesAreByteExact(t *testing.T) {
	value := []byte{'a', 0xff, 0xfe, 0x00, 'b', 0xc3}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("raw", value))
			v, ok, err := s.Get("raw")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, value, v)
		})
	}
}

func TestFile_NonUTF8SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	value := []byte("tok\xff\x80en")

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", value))

	second, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := second.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, v)
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFile(path)
	assert.Error(t, err)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", []byte("jwt")))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	v, ok, err := second.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "jwt", string(v))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{BackendMemory, BackendFile, BackendSQLite} {
		s, closeFn, err := Open(backend, filepath.Join(dir, backend))
		require.NoError(t, err, backend)
		require.NoError(t, s.Set("k", []byte("v")))
		require.NoError(t, closeFn())
	}

	_, _, err := Open("redis", dir)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
