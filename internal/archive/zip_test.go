package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeZip builds a zip archive at path from a name-to-content map.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o600))
}

// TestExtractZip extracts nested entries and preserves their content.
func TestExtractZip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "bundle.zip")
	writeZip(t, src, map[string]string{
		"app.exe":          "binary-bits",
		"data/settings.db": "db-bits",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractZip(context.Background(), src, dest))

	got, err := os.ReadFile(filepath.Join(dest, "app.exe"))
	require.NoError(t, err)
	require.Equal(t, "binary-bits", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "data", "settings.db"))
	require.NoError(t, err)
	require.Equal(t, "db-bits", string(got))
}

// TestExtractZip_Overwrites replaces existing files of the same name.
func TestExtractZip_Overwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "app.exe"), []byte("old"), 0o644))

	src := filepath.Join(dir, "bundle.zip")
	writeZip(t, src, map[string]string{"app.exe": "new"})

	require.NoError(t, ExtractZip(context.Background(), src, dest))

	got, err := os.ReadFile(filepath.Join(dest, "app.exe"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}

// TestExtractZip_RejectsTraversal refuses entries escaping the target directory.
func TestExtractZip_RejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../escaped.txt": "nope"})

	dest := filepath.Join(dir, "out")
	err := ExtractZip(context.Background(), src, dest)
	require.ErrorIs(t, err, errEntryEscapesTarget)

	_, err = os.Stat(filepath.Join(dir, "escaped.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestExtractZip_Canceled stops between entries when the context is canceled.
func TestExtractZip_Canceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "bundle.zip")
	writeZip(t, src, map[string]string{"a.txt": "a", "b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ExtractZip(ctx, src, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, context.Canceled)
}
