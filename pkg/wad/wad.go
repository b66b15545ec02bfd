// Package wad parses the archive table of contents: magic "RW", three
// header versions and two entry layouts. Version 1 carries the entry
// range directly after the magic; version 2 inserts an 84-byte signature
// and an 8-byte checksum before it; version 3 uses a 256-byte signature,
// an 8-byte checksum, a fixed entry offset of 272 and 32-byte entries
// that append a per-entry checksum.
package wad

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidArchive indicates data that is not an archive.
var ErrInvalidArchive = errors.New("invalid archive")

// EntryType tags how an entry's payload is stored.
type EntryType uint8

const (
	// TypeUncompressed entries hold their payload verbatim.
	TypeUncompressed EntryType = iota
	// TypeZlib entries hold one deflate stream with a two-byte header.
	TypeZlib
	// TypeRedirection entries hold a length-prefixed target path instead
	// of file content.
	TypeRedirection
	// TypeZstd entries hold a single streaming frame.
	TypeZstd
	// TypeZstdMulti entries hold several concatenated frames decoded
	// through one context.
	TypeZstdMulti
)

// Entry is one table-of-contents record.
type Entry struct {
	PathHash         uint64
	Offset           uint32
	SizeCompressed   uint32
	SizeUncompressed uint32
	Type             EntryType
	Checksum         uint64 // version 3 only
	HasChecksum      bool
}

// Header sizes and entry layouts per version.
const (
	headerSizeV1 = 4 + 2 + 2 + 4
	headerSizeV2 = 4 + 84 + 8 + 2 + 2 + 4
	headerSizeV3 = 4 + 256 + 8 + 4

	entrySizeV1 = 24
	entrySizeV3 = 32

	entryOffsetV3 = 272
)

// TOC reads an archive's table of contents in three passes, each needing
// only a prefix of the archive: HeaderSize wants the 4-byte magic,
// TOCSize wants the version's header, Entries wants the whole table.
type TOC struct {
	versionMajor uint8
	versionMinor uint8
	entryOffset  uint32
	entrySize    uint32
	entryCount   uint32
}

// Version returns the archive's major and minor version bytes.
func (t *TOC) Version() (uint8, uint8) {
	return t.versionMajor, t.versionMinor
}

// EntryCount returns the number of entries, valid after TOCSize.
func (t *TOC) EntryCount() int {
	return int(t.entryCount)
}

// HeaderSize checks the magic and returns how many leading bytes the
// version's header occupies.
func (t *TOC) HeaderSize(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: short magic", ErrInvalidArchive)
	}
	if data[0] != 'R' || data[1] != 'W' {
		return 0, fmt.Errorf("%w: bad magic %q", ErrInvalidArchive, data[:2])
	}
	t.versionMajor = data[2]
	t.versionMinor = data[3]
	switch t.versionMajor {
	case 1:
		return headerSizeV1, nil
	case 2:
		return headerSizeV2, nil
	case 3:
		return headerSizeV3, nil
	default:
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, t.versionMajor)
	}
}

// TOCSize parses the header and returns the total byte length of header
// plus entry table. data must hold at least HeaderSize bytes.
func (t *TOC) TOCSize(data []byte) (int, error) {
	switch t.versionMajor {
	case 1:
		if len(data) < headerSizeV1 {
			return 0, fmt.Errorf("%w: short v1 header", ErrInvalidArchive)
		}
		t.entryOffset = uint32(binary.LittleEndian.Uint16(data[4:]))
		t.entrySize = uint32(binary.LittleEndian.Uint16(data[6:]))
		t.entryCount = binary.LittleEndian.Uint32(data[8:])
	case 2:
		if len(data) < headerSizeV2 {
			return 0, fmt.Errorf("%w: short v2 header", ErrInvalidArchive)
		}
		// 84-byte signature and 8-byte checksum sit between the version
		// bytes and the entry range.
		t.entryOffset = uint32(binary.LittleEndian.Uint16(data[96:]))
		t.entrySize = uint32(binary.LittleEndian.Uint16(data[98:]))
		t.entryCount = binary.LittleEndian.Uint32(data[100:])
	case 3:
		if len(data) < headerSizeV3 {
			return 0, fmt.Errorf("%w: short v3 header", ErrInvalidArchive)
		}
		t.entryOffset = entryOffsetV3
		t.entrySize = entrySizeV3
		t.entryCount = binary.LittleEndian.Uint32(data[268:])
	default:
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, t.versionMajor)
	}
	return int(t.entryOffset) + int(t.entryCount)*int(t.entrySize), nil
}

// Entries parses the entry table. data must hold at least TOCSize bytes.
func (t *TOC) Entries(data []byte) ([]Entry, error) {
	need := int(t.entryOffset) + int(t.entryCount)*int(t.entrySize)
	if len(data) < need {
		return nil, fmt.Errorf("%w: short entry table", ErrInvalidArchive)
	}
	minSize := uint32(entrySizeV1)
	if t.versionMajor == 3 {
		minSize = entrySizeV3
	}
	if t.entrySize < minSize {
		return nil, fmt.Errorf("%w: entry size %d below %d", ErrInvalidArchive, t.entrySize, minSize)
	}
	entries := make([]Entry, 0, t.entryCount)
	for i := uint32(0); i != t.entryCount; i++ {
		rec := data[int(t.entryOffset)+int(i)*int(t.entrySize):]
		e := Entry{
			PathHash:         binary.LittleEndian.Uint64(rec),
			Offset:           binary.LittleEndian.Uint32(rec[8:]),
			SizeCompressed:   binary.LittleEndian.Uint32(rec[12:]),
			SizeUncompressed: binary.LittleEndian.Uint32(rec[16:]),
			Type:             EntryType(rec[20]),
			// rec[21:24] is padding
		}
		if t.versionMajor == 3 {
			e.Checksum = binary.LittleEndian.Uint64(rec[24:])
			e.HasChecksum = true
		}
		if e.Type > TypeZstdMulti {
			return nil, fmt.Errorf("%w: unknown entry type %d", ErrInvalidArchive, e.Type)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
