package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatSeconds(0))
	assert.Equal(t, "00:00:03.200", FormatSeconds(3.2))
	assert.Equal(t, "01:02:03.456", FormatSeconds(3723.456))
	assert.Equal(t, "00:00:00.000", FormatSeconds(-5))
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, ParseFrameRate("25/1"))
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.001)
	assert.Equal(t, 24.0, ParseFrameRate("24"))
	assert.Zero(t, ParseFrameRate("0/0"))
	assert.Zero(t, ParseFrameRate("abc"))
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 12.5, ParseSeconds(" 12.5 "))
	assert.Zero(t, ParseSeconds("N/A"))
	assert.Zero(t, ParseSeconds("-1"))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReplacePathFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.txt")
	dst := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	require.NoError(t, ReplacePath(src, dst, filepath.Join(dir, ".trash")))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, src)
}

func TestReplacePathDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged")
	dst := filepath.Join(dir, "frames")
	trash := filepath.Join(dir, ".trash")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpeg"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.jpeg"), nil, 0644))

	require.NoError(t, ReplacePath(src, dst, trash))

	assert.FileExists(t, filepath.Join(dst, "a.jpeg"))
	assert.NoFileExists(t, filepath.Join(dst, "stale.jpeg"))
	assert.NoDirExists(t, src)
	assert.NoDirExists(t, filepath.Join(trash, "frames"))
}

func TestReplacePathMissingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged")
	require.NoError(t, os.MkdirAll(src, 0755))

	dst := filepath.Join(dir, "frames")
	require.NoError(t, ReplacePath(src, dst, filepath.Join(dir, ".trash")))
	assert.DirExists(t, dst)
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir))
	assert.Equal(t, int64(5), FileSize(path))
	assert.Zero(t, FileSize(filepath.Join(dir, "missing")))

	CleanupPaths(path, filepath.Join(dir, "missing"))
	assert.False(t, FileExists(path))
}
