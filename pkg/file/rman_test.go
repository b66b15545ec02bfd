package file

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/rman"
)

// writeBundle lays one single-chunk bundle with its trailer into dir and
// returns the resolved chunk.
func writeBundle(t *testing.T, dir string, bundleID, chunkID uint64, payload []byte, uncompressedOffset int32) rman.FileChunk {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	blob := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	bundle := append([]byte{}, blob...)
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[:], chunkID)
	binary.LittleEndian.PutUint32(rec[8:], uint32(len(blob)))
	binary.LittleEndian.PutUint32(rec[12:], uint32(len(payload)))
	bundle = append(bundle, rec[:]...)
	var footer [16]byte
	binary.LittleEndian.PutUint64(footer[:], bundleID)
	binary.LittleEndian.PutUint32(footer[8:], 1)
	copy(footer[12:], "RBUN")
	bundle = append(bundle, footer[:]...)

	name := filepath.Join(dir, fmt.Sprintf("%016X.bundle", bundleID))
	require.NoError(t, os.WriteFile(name, bundle, 0o644))

	return rman.FileChunk{
		Chunk: rman.Chunk{
			ID:               chunkID,
			SizeCompressed:   int32(len(blob)),
			SizeUncompressed: int32(len(payload)),
		},
		BundleID:           bundleID,
		UncompressedOffset: uncompressedOffset,
	}
}

func TestRMANFileExtractSpansBundles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "bundles")
	require.NoError(t, os.MkdirAll(root, 0o755))

	first := bytes.Repeat([]byte("one-"), 64)
	second := bytes.Repeat([]byte("TWO!"), 48)
	chunks := []rman.FileChunk{
		writeBundle(t, root, 0xb1, 0xc1, first, 0),
		writeBundle(t, root, 0xb2, 0xc2, second, int32(len(first))),
	}

	cache, err := rman.NewCache(root, "", zerolog.Nop())
	require.NoError(t, err)
	defer cache.Close()

	info := rman.FileInfo{
		ID:     0xf00d,
		Size:   int32(len(first) + len(second)),
		Path:   "data/two-bundles.bin",
		Langs:  map[string]bool{"none": true},
		Chunks: chunks,
	}
	f := NewRMANFile(info, cache, NewLocation(nil, "m.manifest"))

	dict := hashes.NewDict()
	require.Equal(t, "data/two-bundles.bin", f.FindName(dict))
	require.Equal(t, "000000000000f00d.fid", f.ID())
	require.False(t, f.IsArchive())

	out := filepath.Join(t.TempDir(), "out", "two-bundles.bin")
	require.NoError(t, ExtractTo(f, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, first...), second...), got)
}

func TestRMANFileLink(t *testing.T) {
	info := rman.FileInfo{
		ID:    1,
		Path:  "alias",
		Link:  "data/target.bin",
		Langs: map[string]bool{"none": true},
	}
	f := NewRMANFile(info, nil, nil)

	link, err := f.Link()
	require.NoError(t, err)
	require.Equal(t, "data/target.bin", link)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, 0, size)

	require.Equal(t, "", f.ID())
	require.False(t, f.IsArchive())

	_, err = f.Open()
	require.Error(t, err, "links have no content")

	// extension-less links borrow the target's extension
	dict := hashes.NewDict()
	ext, err := f.FindExtension(dict)
	require.NoError(t, err)
	require.Equal(t, ".bin", ext)
}
