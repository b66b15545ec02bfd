package app

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moonvein/bincollect/pkg/hashes"
)

// wadEntry is one uncompressed or redirection entry for buildWAD.
type wadEntry struct {
	name     string
	content  []byte
	redirect string
}

// buildWAD assembles a version-1 archive of uncompressed entries; a
// non-empty redirect makes the entry a redirection to that path.
func buildWAD(entries []wadEntry) []byte {
	const headerSize = 12
	const entrySize = 24
	dataStart := headerSize + entrySize*len(entries)

	blobs := make([][]byte, len(entries))
	for i, e := range entries {
		if e.redirect != "" {
			blob := make([]byte, 4+len(e.redirect))
			binary.LittleEndian.PutUint32(blob, uint32(len(e.redirect)))
			copy(blob[4:], e.redirect)
			blobs[i] = blob
		} else {
			blobs[i] = e.content
		}
	}

	var b bytes.Buffer
	b.WriteString("RW")
	b.Write([]byte{1, 0})
	binary.Write(&b, binary.LittleEndian, uint16(headerSize))
	binary.Write(&b, binary.LittleEndian, uint16(entrySize))
	binary.Write(&b, binary.LittleEndian, uint32(len(entries)))
	offset := dataStart
	for i, e := range entries {
		typ := byte(0)
		if e.redirect != "" {
			typ = 2
		}
		binary.Write(&b, binary.LittleEndian, hashes.HashName(e.name))
		binary.Write(&b, binary.LittleEndian, uint32(offset))
		binary.Write(&b, binary.LittleEndian, uint32(len(blobs[i])))
		binary.Write(&b, binary.LittleEndian, uint32(len(blobs[i])))
		b.WriteByte(typ)
		b.Write([]byte{0, 0, 0})
		offset += len(blobs[i])
	}
	for _, blob := range blobs {
		b.Write(blob)
	}
	return b.Bytes()
}

// writeHashLists writes name mappings for the given paths and returns
// the two dictionary file paths.
func writeHashLists(t *testing.T, names ...string) (namesPath, extsPath string) {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%016X %s\n", hashes.HashName(name), name)
	}
	namesPath = filepath.Join(dir, "hashes.game.txt")
	extsPath = filepath.Join(dir, "hashes.game.ext.txt")
	require.NoError(t, os.WriteFile(namesPath, []byte(b.String()), 0o644))
	return namesPath, extsPath
}

// run executes one action and returns stdout.
func run(t *testing.T, opts Options) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, New(opts, &out, zerolog.Nop()).Run())
	return out.String()
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	namesPath, extsPath := writeHashLists(t, "a.txt")

	got := run(t, Options{
		Action:      ActionList,
		Manifest:    dir,
		HashesNames: namesPath,
		HashesExts:  extsPath,
	})
	want := fmt.Sprintf("%016x,.txt,a.txt,,5\n", hashes.HashName("a.txt"))
	require.Equal(t, want, got)
}

func TestExtractSkipsRedirections(t *testing.T) {
	archive := buildWAD([]wadEntry{
		{name: "redirect.entry", redirect: "b.txt"},
		{name: "c.txt", content: []byte("kept")},
	})
	src := filepath.Join(t.TempDir(), "test.wad")
	require.NoError(t, os.WriteFile(src, archive, 0o644))
	namesPath, extsPath := writeHashLists(t, "redirect.entry", "c.txt")
	output := t.TempDir()

	run(t, Options{
		Action:      ActionExtract,
		Manifest:    src,
		Output:      output,
		HashesNames: namesPath,
		HashesExts:  extsPath,
	})

	got, err := os.ReadFile(filepath.Join(output, "c.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), got)
	_, err = os.Stat(filepath.Join(output, "b.txt"))
	require.Error(t, err, "the redirection target must not be written")
	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExtractUnknownNameFallsBackToHash(t *testing.T) {
	archive := buildWAD([]wadEntry{{name: "secret.bin", content: []byte("???")}})
	src := filepath.Join(t.TempDir(), "test.wad")
	require.NoError(t, os.WriteFile(src, archive, 0o644))
	namesPath, extsPath := writeHashLists(t) // empty dictionary
	output := t.TempDir()

	run(t, Options{
		Action:      ActionExtract,
		Manifest:    src,
		Output:      output,
		HashesNames: namesPath,
		HashesExts:  extsPath,
	})
	// name unknown, magic sniff fails: bare hash file name
	want := fmt.Sprintf("%016x", hashes.HashName("secret.bin"))
	_, err := os.Stat(filepath.Join(output, want))
	require.NoError(t, err)
}

func TestRecursionDepth(t *testing.T) {
	inner := buildWAD([]wadEntry{{name: "inner.txt", content: []byte("deep")}})
	outer := buildWAD([]wadEntry{
		{name: "nested.blob", content: inner},
		{name: "top.txt", content: []byte("shallow")},
	})
	src := filepath.Join(t.TempDir(), "outer.wad")
	require.NoError(t, os.WriteFile(src, outer, 0o644))
	namesPath, extsPath := writeHashLists(t, "inner.txt", "top.txt")

	innerRow := fmt.Sprintf("%016x", hashes.HashName("inner.txt"))

	// depth 2 reaches the nested archive's entries
	got := run(t, Options{
		Action: ActionList, Manifest: src, MaxDepth: 2,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	require.Contains(t, got, innerRow)
	require.Contains(t, got, "top.txt")
	require.NotContains(t, got, fmt.Sprintf("%016x", hashes.HashName("nested.blob")), "recursed archives are not printed by default")

	// depth 1 lists the archive itself instead of recursing
	namesPath2, extsPath2 := writeHashLists(t, "inner.txt", "top.txt")
	got = run(t, Options{
		Action: ActionList, Manifest: src, MaxDepth: 1,
		HashesNames: namesPath2, HashesExts: extsPath2,
	})
	require.NotContains(t, got, innerRow)
}

func TestShowWads(t *testing.T) {
	inner := buildWAD([]wadEntry{{name: "inner.txt", content: []byte("deep")}})
	outer := buildWAD([]wadEntry{{name: "nested.wad", content: inner}})
	src := filepath.Join(t.TempDir(), "outer.wad")
	require.NoError(t, os.WriteFile(src, outer, 0o644))
	namesPath, extsPath := writeHashLists(t, "inner.txt", "nested.wad")

	got := run(t, Options{
		Action: ActionList, Manifest: src, MaxDepth: 2, ShowWads: true,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	require.Contains(t, got, "nested.wad")
	require.Contains(t, got, "inner.txt")
}

func TestSkipRoot(t *testing.T) {
	inner := buildWAD([]wadEntry{{name: "inner.txt", content: []byte("deep")}})
	outer := buildWAD([]wadEntry{
		{name: "nested.wad", content: inner},
		{name: "top.txt", content: []byte("shallow")},
	})
	src := filepath.Join(t.TempDir(), "outer.wad")
	require.NoError(t, os.WriteFile(src, outer, 0o644))
	namesPath, extsPath := writeHashLists(t, "inner.txt", "nested.wad", "top.txt")

	got := run(t, Options{
		Action: ActionList, Manifest: src, MaxDepth: 2, SkipRoot: true,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	require.Contains(t, got, "inner.txt")
	require.NotContains(t, got, "top.txt", "skip-root omits top-level non-archive files")
}

func TestPathFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.txt"), []byte("d"), 0o644))

	testCases := []struct {
		name  string
		paths []string
	}{
		{"textual path", []string{"keep.txt"}},
		{"hash literal", []string{fmt.Sprintf("0x%016x", hashes.HashName("keep.txt"))}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			namesPath, extsPath := writeHashLists(t)
			got := run(t, Options{
				Action: ActionList, Manifest: dir, Paths: tc.paths,
				HashesNames: namesPath, HashesExts: extsPath,
			})
			require.Contains(t, got, "keep.txt")
			require.NotContains(t, got, "drop.txt")
		})
	}
}

func TestPathFilterRejectsBadLiteral(t *testing.T) {
	namesPath, extsPath := writeHashLists(t)
	app := New(Options{
		Action: ActionList, Manifest: t.TempDir(), Paths: []string{"0xnothex"},
		HashesNames: namesPath, HashesExts: extsPath,
	}, &bytes.Buffer{}, zerolog.Nop())
	require.Error(t, app.Run())
}

func TestExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("b"), 0o644))
	namesPath, extsPath := writeHashLists(t)

	got := run(t, Options{
		Action: ActionList, Manifest: dir, Exts: map[string]bool{".bin": true},
		HashesNames: namesPath, HashesExts: extsPath,
	})
	require.Contains(t, got, "b.bin")
	require.NotContains(t, got, "a.txt")
}

func TestChecksumAction(t *testing.T) {
	archive := buildWAD([]wadEntry{{name: "h.txt", content: []byte("hello world")}})
	src := filepath.Join(t.TempDir(), "test.wad")
	require.NoError(t, os.WriteFile(src, archive, 0o644))
	namesPath, extsPath := writeHashLists(t, "h.txt")

	got := run(t, Options{
		Action: ActionChecksum, Manifest: src,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	hash := hashes.HashName("h.txt")
	want := fmt.Sprintf(
		"md5:5eb63bbbe01eeed093cb22bb8f5acdc3;sha1:2aae6c35c94fcfb415dbe95f408b9ce91ee846ed,%016x.txt,h.txt,test.wad/%016x\n",
		hash, hash)
	require.Equal(t, want, got)
}

func TestChecksumActionLinks(t *testing.T) {
	archive := buildWAD([]wadEntry{{name: "alias.bin", redirect: "real.bin"}})
	src := filepath.Join(t.TempDir(), "test.wad")
	require.NoError(t, os.WriteFile(src, archive, 0o644))
	namesPath, extsPath := writeHashLists(t, "alias.bin")

	got := run(t, Options{
		Action: ActionChecksum, Manifest: src,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	require.True(t, strings.HasPrefix(got, "link:real.bin,"), "got %q", got)
}

func TestIndexAction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	namesPath, extsPath := writeHashLists(t)
	output := t.TempDir()

	got := run(t, Options{
		Action: ActionIndex, Manifest: dir, Output: output,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	// raw files have no content id: row printed, nothing written
	require.Contains(t, got, "a.txt")
	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunPersistsDictionary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seen.txt"), []byte("x"), 0o644))
	namesPath, extsPath := writeHashLists(t)

	run(t, Options{
		Action: ActionList, Manifest: dir,
		HashesNames: namesPath, HashesExts: extsPath,
	})
	saved, err := os.ReadFile(namesPath)
	require.NoError(t, err)
	require.Contains(t, string(saved), "seen.txt", "walked names are persisted")
}
