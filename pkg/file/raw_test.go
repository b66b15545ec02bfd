package file

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonvein/bincollect/pkg/hashes"
)

// rawFixture lays a small tree into a temp dir.
func rawFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":               "hello",
		"data/b.bin":          "binary-ish",
		"data/nested/c.wad":   "RW not really",
		"data/nested/d.morse": "....",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestRawManagerList(t *testing.T) {
	dir := rawFixture(t)
	m := NewRawManager(dir, NewLocation(nil, "root"))
	files, err := m.List()
	require.NoError(t, err)

	dict := hashes.NewDict()
	var names []string
	for _, f := range files {
		names = append(names, f.FindName(dict))
	}
	sort.Strings(names)
	require.Equal(t, []string{"a.txt", "data/b.bin", "data/nested/c.wad", "data/nested/d.morse"}, names)
}

func TestRawFileProperties(t *testing.T) {
	dir := rawFixture(t)
	m := NewRawManager(dir, nil)
	dict := hashes.NewDict()

	f := findEntry(t, m, "a.txt")
	require.Equal(t, "a.txt", f.FindName(dict))
	require.Equal(t, hashes.HashName("a.txt"), f.FindHash(dict))

	ext, err := f.FindExtension(dict)
	require.NoError(t, err)
	require.Equal(t, ".txt", ext)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, 5, size)

	require.Equal(t, "", f.ID())
	require.False(t, f.IsArchive())

	link, err := f.Link()
	require.NoError(t, err)
	require.Equal(t, "", link)

	r, err := f.Open()
	require.NoError(t, err)
	got, err := r.Read(0, r.Size())
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	// repeated opens share one reader
	r2, err := f.Open()
	require.NoError(t, err)
	require.Same(t, r, r2)
}

func TestRawFileIsArchive(t *testing.T) {
	dir := rawFixture(t)
	m := NewRawManager(dir, nil)
	require.True(t, findEntry(t, m, "data/nested/c.wad").IsArchive())
	require.False(t, findEntry(t, m, "data/b.bin").IsArchive())
}

func TestChecksums(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h.txt"), []byte("hello world"), 0o644))
	m := NewRawManager(dir, nil)

	sums, err := Checksums(findEntry(t, m, "h.txt"))
	require.NoError(t, err)
	require.Equal(t, []Checksum{
		{Alg: "md5", Value: "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{Alg: "sha1", Value: "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"},
	}, sums)
}

func TestExtractTo(t *testing.T) {
	dir := rawFixture(t)
	m := NewRawManager(dir, nil)
	out := filepath.Join(t.TempDir(), "deep", "nested", "copy.txt")
	require.NoError(t, ExtractTo(findEntry(t, m, "a.txt"), out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}
