package file

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/trace"
	"github.com/moonvein/bincollect/pkg/wad"
)

// WADFile is one archive entry.
type WADFile struct {
	info     wad.Entry
	source   Reader
	sourceID string
	loc      *Location
	link     string
	linkDone bool
	reader   Reader
}

// NewWADFile creates an entry over the archive's source reader.
func NewWADFile(info wad.Entry, source Reader, sourceID string, parent *Location) *WADFile {
	return &WADFile{
		info:     info,
		source:   source,
		sourceID: sourceID,
		loc:      NewLocation(parent, fmt.Sprintf("%016x", info.PathHash)),
	}
}

// FindName resolves the path hash through the dictionary; unknown hashes
// yield "".
func (f *WADFile) FindName(dict *hashes.Dict) string {
	return dict.NameByHash(f.info.PathHash)
}

// FindHash returns the entry's path hash.
func (f *WADFile) FindHash(*hashes.Dict) uint64 {
	return f.info.PathHash
}

// FindExtension resolves the extension by hash, then by link target,
// then by sniffing the entry's leading bytes. A failed sniff leaves the
// extension empty; it is not an error.
func (f *WADFile) FindExtension(dict *hashes.Dict) (string, error) {
	if ext := dict.ExtensionByHash(f.info.PathHash); ext != "" {
		return ext, nil
	}
	link, err := f.Link()
	if err != nil {
		return "", err
	}
	if link != "" {
		return dict.ExtensionByName(link), nil
	}
	reader, err := f.Open()
	if err != nil {
		return "", err
	}
	headSize := f.info.SizeUncompressed
	if headSize > 32 {
		headSize = 32
	}
	head, err := reader.Read(0, int(headSize))
	if err != nil {
		return "", err
	}
	return dict.ExtensionByBytes(f.info.PathHash, head), nil
}

// Link reads the redirection target for type-2 entries: a little-endian
// 32-bit length followed by the target path, stored uncompressed.
func (f *WADFile) Link() (string, error) {
	if f.linkDone {
		return f.link, nil
	}
	if f.info.Type != wad.TypeRedirection {
		f.linkDone = true
		return "", nil
	}
	src, err := f.source.Read(int(f.info.Offset), int(f.info.SizeUncompressed))
	if err != nil {
		return "", trace.Wrap(err, "entry: %016x", f.info.PathHash)
	}
	if len(src) <= 4 {
		return "", trace.Wrap(fmt.Errorf("redirection entry too short"), "entry: %016x", f.info.PathHash)
	}
	length := binary.LittleEndian.Uint32(src)
	if int(length)+4 > len(src) {
		return "", trace.Wrap(fmt.Errorf("redirection target length %d out of range", length), "entry: %016x", f.info.PathHash)
	}
	f.link = string(src[4 : 4+length])
	f.linkDone = true
	return f.link, nil
}

// Size returns the uncompressed size; redirections report 0.
func (f *WADFile) Size() (int, error) {
	if f.info.Type == wad.TypeRedirection {
		return 0, nil
	}
	return int(f.info.SizeUncompressed), nil
}

// ID prefers the version-3 per-entry checksum, then derives from the
// owning archive's id, then gives up.
func (f *WADFile) ID() string {
	switch {
	case f.info.Type == wad.TypeRedirection:
		return ""
	case f.info.HasChecksum:
		return fmt.Sprintf("%016x.sha", f.info.Checksum)
	case f.sourceID != "":
		return fmt.Sprintf("%s.%016x.xxh", f.sourceID, f.info.PathHash)
	default:
		return ""
	}
}

// Location returns the provenance chain.
func (f *WADFile) Location() *Location {
	return f.loc
}

// Open creates the entry reader matching the entry's type, reusing one
// decompression context across calls.
func (f *WADFile) Open() (Reader, error) {
	if f.reader != nil {
		return f.reader, nil
	}
	var (
		reader Reader
		err    error
	)
	switch f.info.Type {
	case wad.TypeRedirection:
		return nil, trace.Wrap(fmt.Errorf("links have no content"), "entry: %016x", f.info.PathHash)
	case wad.TypeUncompressed:
		reader = &entryReaderRaw{info: f.info, source: f.source}
	case wad.TypeZstd, wad.TypeZstdMulti:
		reader, err = newEntryReaderZstd(f.info, f.source)
	case wad.TypeZlib:
		reader = newEntryReaderZlib(f.info, f.source)
	default:
		return nil, trace.Wrap(fmt.Errorf("unknown entry type %d", f.info.Type), "entry: %016x", f.info.PathHash)
	}
	if err != nil {
		return nil, trace.Wrap(err, "entry: %016x", f.info.PathHash)
	}
	f.reader = reader
	return f.reader, nil
}

// IsArchive is false at the entry level; nested archives are recognised
// by their resolved extension.
func (f *WADFile) IsArchive() bool {
	return false
}

// segmentReader adapts an entry's compressed region to io.Reader for the
// streaming decompressors. Reads advance monotonically.
type segmentReader struct {
	src  Reader
	base int
	size int
	pos  int
}

func (s *segmentReader) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n := len(p)
	if remaining := s.size - s.pos; n > remaining {
		n = remaining
	}
	span, err := s.src.Read(s.base+s.pos, n)
	if err != nil {
		return 0, err
	}
	copy(p, span)
	s.pos += n
	return n, nil
}

// entryReaderRaw serves an uncompressed entry as a window of the archive.
type entryReaderRaw struct {
	info   wad.Entry
	source Reader
}

func (r *entryReaderRaw) Size() int {
	return int(r.info.SizeUncompressed)
}

func (r *entryReaderRaw) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int(r.info.SizeUncompressed) {
		return nil, fmt.Errorf("read %d+%d past entry size %d", offset, size, r.info.SizeUncompressed)
	}
	return r.source.Read(int(r.info.Offset)+offset, size)
}

// entryReaderZstd streams an entry's frame(s) into a full-size buffer,
// advancing decompression only as far as each read needs; a prefix read
// (magic sniffing) costs one small decode, not the whole entry. One
// decoder handles both the single- and multi-frame entry types.
type entryReaderZstd struct {
	data []byte
	pos  int
	dec  *zstd.Decoder
}

func newEntryReaderZstd(info wad.Entry, source Reader) (*entryReaderZstd, error) {
	seg := &segmentReader{src: source, base: int(info.Offset), size: int(info.SizeCompressed)}
	dec, err := zstd.NewReader(seg, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to start frame decoder: %w", err)
	}
	return &entryReaderZstd{
		data: make([]byte, info.SizeUncompressed),
		dec:  dec,
	}, nil
}

func (r *entryReaderZstd) Size() int {
	return len(r.data)
}

func (r *entryReaderZstd) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(r.data) {
		return nil, fmt.Errorf("read %d+%d past entry size %d", offset, size, len(r.data))
	}
	for r.pos < offset+size {
		n, err := r.dec.Read(r.data[r.pos : offset+size])
		r.pos += n
		if err == io.EOF {
			if r.pos < offset+size {
				return nil, fmt.Errorf("frame stream ended %d bytes early", offset+size-r.pos)
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decompress frame stream: %w", err)
		}
	}
	return r.data[offset : offset+size], nil
}

// entryReaderZlib streams a dictionary-compressed entry the same way.
// The inflater is created on first read because opening it already
// consumes the stream header.
type entryReaderZlib struct {
	info   wad.Entry
	source Reader
	data   []byte
	pos    int
	zr     io.ReadCloser
}

func newEntryReaderZlib(info wad.Entry, source Reader) *entryReaderZlib {
	return &entryReaderZlib{
		info:   info,
		source: source,
		data:   make([]byte, info.SizeUncompressed),
	}
}

func (r *entryReaderZlib) Size() int {
	return len(r.data)
}

func (r *entryReaderZlib) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(r.data) {
		return nil, fmt.Errorf("read %d+%d past entry size %d", offset, size, len(r.data))
	}
	if r.zr == nil {
		seg := &segmentReader{src: r.source, base: int(r.info.Offset), size: int(r.info.SizeCompressed)}
		zr, err := zlib.NewReader(seg)
		if err != nil {
			return nil, fmt.Errorf("failed to start dictionary decoder: %w", err)
		}
		r.zr = zr
	}
	for r.pos < offset+size {
		n, err := r.zr.Read(r.data[r.pos : offset+size])
		r.pos += n
		if err == io.EOF {
			if r.pos < offset+size {
				return nil, fmt.Errorf("dictionary stream ended %d bytes early", offset+size-r.pos)
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decompress dictionary stream: %w", err)
		}
	}
	return r.data[offset : offset+size], nil
}

// WADManager lists the entries of one archive.
type WADManager struct {
	entries  []wad.Entry
	source   Reader
	sourceID string
	loc      *Location
}

// NewWADManager parses the archive table of contents from source.
func NewWADManager(source Reader, sourceID string, loc *Location) (*WADManager, error) {
	toc := &wad.TOC{}
	headSize := source.Size()
	if headSize > 4 {
		headSize = 4
	}
	head, err := source.Read(0, headSize)
	if err != nil {
		return nil, err
	}
	headerSize, err := toc.HeaderSize(head)
	if err != nil {
		return nil, trace.Wrap(err, "archive")
	}
	header, err := source.Read(0, headerSize)
	if err != nil {
		return nil, trace.Wrap(err, "archive")
	}
	tocSize, err := toc.TOCSize(header)
	if err != nil {
		return nil, trace.Wrap(err, "archive")
	}
	table, err := source.Read(0, tocSize)
	if err != nil {
		return nil, trace.Wrap(err, "archive")
	}
	entries, err := toc.Entries(table)
	if err != nil {
		return nil, trace.Wrap(err, "archive")
	}
	for _, entry := range entries {
		if int(entry.Offset)+int(entry.SizeCompressed) > source.Size() {
			return nil, trace.Wrap(fmt.Errorf("entry range %d+%d past archive size %d",
				entry.Offset, entry.SizeCompressed, source.Size()), "entry: %016x", entry.PathHash)
		}
	}
	return &WADManager{entries: entries, source: source, sourceID: sourceID, loc: loc}, nil
}

// NewWADManagerFromFile opens an archive nested inside another container.
func NewWADManagerFromFile(f File) (*WADManager, error) {
	source, err := f.Open()
	if err != nil {
		return nil, err
	}
	return NewWADManager(source, f.ID(), f.Location())
}

// List yields one File per entry.
func (m *WADManager) List() ([]File, error) {
	result := make([]File, 0, len(m.entries))
	for _, entry := range m.entries {
		result = append(result, NewWADFile(entry, m.source, m.sourceID, m.loc))
	}
	return result, nil
}
