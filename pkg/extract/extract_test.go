package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestArchiveTarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "sample.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"hello.txt":     "hello world",
		"sub/nested.txt": "nested content",
	})

	destDir := filepath.Join(dir, "out")
	require.NoError(t, Archive(archivePath, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))

	content, err = os.ReadFile(filepath.Join(destDir, "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(content))
}

func TestArchiveTarGzRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"../escape.txt": "pwned",
	})

	destDir := filepath.Join(dir, "out")
	err := Archive(archivePath, destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsafe path")
}

func TestArchiveZip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "sample.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("file.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("zip content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	destDir := filepath.Join(dir, "out")
	require.NoError(t, Archive(archivePath, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "zip content", string(content))
}

func TestArchiveUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "file.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("not an archive"), 0o644))

	err := Archive(archivePath, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive format")
}

func TestGetExtensionAndStem(t *testing.T) {
	assert.Equal(t, ".tar.gz", GetExtension("thing-1.0-linux-amd64.tar.gz"))
	assert.Equal(t, ".zip", GetExtension("thing.zip?token=abc"))
	assert.Equal(t, "thing-1.0", Stem("thing-1.0.tar.gz"))
	assert.True(t, IsArchive("foo.tbz2"))
	assert.False(t, IsArchive("foo.deb"))
}
