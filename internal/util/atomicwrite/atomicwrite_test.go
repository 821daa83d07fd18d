package atomicwrite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ticket.json")

	require.NoError(t, AtomicWriteFile(path, []byte(`{"token":"T1"}`), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"token":"T1"}`, string(b))

	require.NoError(t, AtomicWriteFile(path, []byte(`{"token":"T2"}`), 0o600))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"token":"T2"}`, string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	if runtime.GOOS != "windows" {
		st, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	}
}

func TestAtomicWriteFile_DirIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := AtomicWriteFile(filepath.Join(blocker, "ticket.json"), []byte("x"), 0o600)
	require.Error(t, err)
}
