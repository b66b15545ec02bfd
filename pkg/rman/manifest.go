// Package rman implements the modern chunked manifest: a 28-byte header
// in front of a zstd-compressed flatbuffer-style body describing bundles,
// languages, files and directories, plus the content-addressed bundle
// and chunk machinery that reassembles file data.
package rman

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/moonvein/bincollect/pkg/trace"
)

// Chunk is one compressed blob inside a bundle.
type Chunk struct {
	ID               uint64
	SizeCompressed   int32
	SizeUncompressed int32
}

// Bundle groups chunks stored end-to-end in one remote object.
type Bundle struct {
	ID     uint64
	Chunks []Chunk
}

// Lang is one language record; file locale flags index these by id.
type Lang struct {
	ID   uint8
	Name string
}

// File is one raw file record from the body, fields by slot index.
type File struct {
	ID          uint64
	ParentDirID uint64
	Size        int32
	Name        string
	LocaleFlags uint64
	Unk5        uint8
	Unk6        uint8
	ChunkIDs    []uint64
	Unk8        uint8
	Link        string
	Unk10       uint8
	ParamsIndex uint8
	Permissions uint8
}

// Dir is one directory record.
type Dir struct {
	ID       uint64
	ParentID uint64
	Name     string
}

// FileChunk is a chunk resolved into its bundle and file positions.
type FileChunk struct {
	Chunk
	BundleID           uint64
	CompressedOffset   int32
	UncompressedOffset int32
}

// FileInfo is a file with its path, languages and chunk list resolved.
type FileInfo struct {
	ID     uint64
	Size   int32
	Path   string
	Link   string
	Langs  map[string]bool
	Chunks []FileChunk
}

// Manifest is a fully parsed modern manifest.
type Manifest struct {
	ID      uint64 // header checksum, used as the manifest identifier
	Bundles []Bundle
	Langs   []Lang
	Files   []File
	Dirs    []Dir
}

const (
	magic      = "RMAN"
	headerSize = 28
)

// decoder is reused across parses; zstd decoders are expensive to build.
var decoder, _ = zstd.NewReader(nil)

// Parse reads a modern manifest: header, zstd body, body tables.
func Parse(data []byte) (*Manifest, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("manifest shorter than header")
	}
	if string(data[:4]) != magic {
		return nil, fmt.Errorf("bad manifest magic %q", data[:4])
	}
	// data[4], data[5] are version bytes, data[6:8] flags; none gate parsing.
	offset := binary.LittleEndian.Uint32(data[8:])
	sizeCompressed := binary.LittleEndian.Uint32(data[12:])
	id := binary.LittleEndian.Uint64(data[16:])
	sizeUncompressed := binary.LittleEndian.Uint32(data[24:])
	if offset < headerSize || int(offset)+int(sizeCompressed) > len(data) {
		return nil, fmt.Errorf("manifest body range out of bounds")
	}
	body, err := decoder.DecodeAll(data[offset:offset+sizeCompressed], make([]byte, 0, sizeUncompressed))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress manifest body: %w", err)
	}
	if len(body) != int(sizeUncompressed) {
		return nil, fmt.Errorf("manifest body decompressed to %d bytes, header says %d", len(body), sizeUncompressed)
	}
	m := &Manifest{ID: id}
	if err := m.readBody(body); err != nil {
		return nil, trace.Wrap(err, "manifest: %016x", id)
	}
	return m, nil
}

// readBody walks the four root arrays.
func (m *Manifest) readBody(body []byte) error {
	w := &walker{data: body}
	root, err := w.root()
	if err != nil {
		return err
	}

	bundles, err := root.tables(0)
	if err != nil {
		return err
	}
	for _, bt := range bundles {
		var bundle Bundle
		if bundle.ID, err = bt.u64(0); err != nil {
			return err
		}
		chunks, err := bt.tables(1)
		if err != nil {
			return err
		}
		for _, ct := range chunks {
			var chunk Chunk
			if chunk.ID, err = ct.u64(0); err != nil {
				return err
			}
			if chunk.SizeCompressed, err = ct.i32f(1); err != nil {
				return err
			}
			if chunk.SizeUncompressed, err = ct.i32f(2); err != nil {
				return err
			}
			bundle.Chunks = append(bundle.Chunks, chunk)
		}
		m.Bundles = append(m.Bundles, bundle)
	}

	langs, err := root.tables(1)
	if err != nil {
		return err
	}
	for _, lt := range langs {
		var lang Lang
		if lang.ID, err = lt.u8(0); err != nil {
			return err
		}
		name, err := lt.str(1)
		if err != nil {
			return err
		}
		lang.Name = strings.ToLower(name)
		m.Langs = append(m.Langs, lang)
	}

	files, err := root.tables(2)
	if err != nil {
		return err
	}
	for _, ft := range files {
		var file File
		if file.ID, err = ft.u64(0); err != nil {
			return err
		}
		if file.ParentDirID, err = ft.u64(1); err != nil {
			return err
		}
		if file.Size, err = ft.i32f(2); err != nil {
			return err
		}
		if file.Name, err = ft.str(3); err != nil {
			return err
		}
		if file.LocaleFlags, err = ft.u64(4); err != nil {
			return err
		}
		if file.Unk5, err = ft.u8(5); err != nil {
			return err
		}
		if file.Unk6, err = ft.u8(6); err != nil {
			return err
		}
		if file.ChunkIDs, err = ft.u64s(7); err != nil {
			return err
		}
		if file.Unk8, err = ft.u8(8); err != nil {
			return err
		}
		if file.Link, err = ft.str(9); err != nil {
			return err
		}
		if file.Unk10, err = ft.u8(10); err != nil {
			return err
		}
		if file.ParamsIndex, err = ft.u8(11); err != nil {
			return err
		}
		if file.Permissions, err = ft.u8(12); err != nil {
			return err
		}
		m.Files = append(m.Files, file)
	}

	dirs, err := root.tables(3)
	if err != nil {
		return err
	}
	for _, dt := range dirs {
		var dir Dir
		if dir.ID, err = dt.u64(0); err != nil {
			return err
		}
		if dir.ParentID, err = dt.u64(1); err != nil {
			return err
		}
		if dir.Name, err = dt.str(2); err != nil {
			return err
		}
		m.Dirs = append(m.Dirs, dir)
	}
	return nil
}

// ListFiles materialises every file: full path from the directory chain,
// language set from the locale bits, and chunk list with compressed
// offsets accumulated within each bundle and uncompressed offsets
// accumulated within the file.
func (m *Manifest) ListFiles() ([]FileInfo, error) {
	dirLookup := make(map[uint64]Dir, len(m.Dirs))
	for _, dir := range m.Dirs {
		dirLookup[dir.ID] = dir
	}
	langLookup := make(map[uint8]string, len(m.Langs))
	for _, lang := range m.Langs {
		langLookup[lang.ID] = lang.Name
	}
	chunkLookup := make(map[uint64]FileChunk)
	for _, bundle := range m.Bundles {
		compressedOffset := int32(0)
		for _, chunk := range bundle.Chunks {
			chunkLookup[chunk.ID] = FileChunk{
				Chunk:            chunk,
				BundleID:         bundle.ID,
				CompressedOffset: compressedOffset,
			}
			compressedOffset += chunk.SizeCompressed
		}
	}

	result := make([]FileInfo, 0, len(m.Files))
	for _, file := range m.Files {
		info := FileInfo{
			ID:    file.ID,
			Size:  file.Size,
			Link:  file.Link,
			Langs: make(map[string]bool),
		}
		path := file.Name
		visited := make(map[uint64]bool)
		for parent := file.ParentDirID; parent != 0; {
			if visited[parent] {
				return nil, trace.Wrap(fmt.Errorf("directory cycle"), "file: %016x", file.ID)
			}
			visited[parent] = true
			dir, ok := dirLookup[parent]
			if !ok {
				return nil, trace.Wrap(fmt.Errorf("dangling directory %016x", parent), "file: %016x", file.ID)
			}
			if dir.Name != "" {
				path = dir.Name + "/" + path
			}
			parent = dir.ParentID
		}
		info.Path = path

		for i := 0; i < 64; i++ {
			if file.LocaleFlags&(1<<uint(i)) == 0 {
				continue
			}
			name, ok := langLookup[uint8(i+1)]
			if !ok {
				return nil, trace.Wrap(fmt.Errorf("unknown language id %d", i+1), "file: %016x", file.ID)
			}
			info.Langs[name] = true
		}
		if len(info.Langs) == 0 {
			info.Langs["none"] = true
		}

		uncompressedOffset := int32(0)
		info.Chunks = make([]FileChunk, 0, len(file.ChunkIDs))
		for _, chunkID := range file.ChunkIDs {
			chunk, ok := chunkLookup[chunkID]
			if !ok {
				return nil, trace.Wrap(fmt.Errorf("chunk %016x not in any bundle", chunkID), "file: %016x", file.ID)
			}
			chunk.UncompressedOffset = uncompressedOffset
			uncompressedOffset += chunk.SizeUncompressed
			info.Chunks = append(info.Chunks, chunk)
		}
		result = append(result, info)
	}
	return result, nil
}

// DefaultChunkLimit bounds a single chunk's uncompressed size.
const DefaultChunkLimit = 16 * 1024 * 1024

// compressBound mirrors the codec's worst-case compressed size for a
// given input size.
func compressBound(n int32) int32 {
	margin := int32(0)
	if n < 128*1024 {
		margin = (128*1024 - n) >> 11
	}
	return n + n>>8 + margin
}

// Sanitize validates the materialised file against structural limits:
// relative dot-free path, positive bounded size, and chunks whose
// offsets ascend without overlap inside the file. Links carry no chunks
// and are validated by the caller instead.
func (f *FileInfo) Sanitize(chunkLimit int32) error {
	if f.ID == 0 {
		return fmt.Errorf("file id missing")
	}
	if f.Link != "" {
		return fmt.Errorf("file %016x is a link", f.ID)
	}
	if f.Path == "" || len(f.Path) >= 256 {
		return trace.Wrap(fmt.Errorf("bad path length %d", len(f.Path)), "file: %016x", f.ID)
	}
	if strings.HasPrefix(f.Path, "/") || strings.Contains(f.Path, "\\") {
		return trace.Wrap(fmt.Errorf("path not relative"), "path: %s", f.Path)
	}
	for _, segment := range strings.Split(f.Path, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return trace.Wrap(fmt.Errorf("bad path segment %q", segment), "path: %s", f.Path)
		}
	}
	if f.Size <= 0 || f.Size > (1<<31-1)-chunkLimit {
		return trace.Wrap(fmt.Errorf("bad size %d", f.Size), "path: %s", f.Path)
	}
	maxCompressed := compressBound(chunkLimit)
	nextMinOffset := int32(0)
	for _, chunk := range f.Chunks {
		err := func() error {
			switch {
			case chunk.ID == 0:
				return fmt.Errorf("chunk id missing")
			case chunk.SizeCompressed < 4 || chunk.SizeCompressed > maxCompressed:
				return fmt.Errorf("bad compressed size %d", chunk.SizeCompressed)
			case chunk.CompressedOffset < 0:
				return fmt.Errorf("bad compressed offset %d", chunk.CompressedOffset)
			case chunk.BundleID == 0:
				return fmt.Errorf("bundle id missing")
			case chunk.SizeUncompressed <= 0 || chunk.SizeUncompressed > chunkLimit:
				return fmt.Errorf("bad uncompressed size %d", chunk.SizeUncompressed)
			case chunk.UncompressedOffset < nextMinOffset:
				return fmt.Errorf("chunk offset %d overlaps previous", chunk.UncompressedOffset)
			case chunk.UncompressedOffset+chunk.SizeUncompressed > f.Size:
				return fmt.Errorf("chunk end past file size")
			}
			return nil
		}()
		if err != nil {
			return trace.Wrap(trace.Wrap(err, "chunk: %016x", chunk.ID), "path: %s", f.Path)
		}
		nextMinOffset = chunk.UncompressedOffset + chunk.SizeUncompressed
	}
	return nil
}
