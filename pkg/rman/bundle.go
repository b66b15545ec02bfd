package rman

import (
	"encoding/binary"
	"fmt"
)

// A freshly fetched bundle carries a trailer at its very end describing
// the chunks packed in front of it: count 16-byte records
// (chunk id, compressed size, uncompressed size) followed by a 16-byte
// footer (bundle id, chunk count, magic "RBUN"), all little-endian.

const (
	trailerMagic      = "RBUN"
	trailerFooterSize = 16
	trailerChunkSize  = 16
)

// TrailerChunk is one chunk record from a bundle trailer.
type TrailerChunk struct {
	ID               uint64
	SizeCompressed   int32
	SizeUncompressed int32
}

// Trailer is a parsed bundle trailer.
type Trailer struct {
	BundleID uint64
	Chunks   []TrailerChunk
}

// Len returns the trailer's byte length inside the bundle.
func (t *Trailer) Len() int {
	return trailerFooterSize + trailerChunkSize*len(t.Chunks)
}

// ParseTrailer reads the trailer from the tail of a whole bundle.
func ParseTrailer(bundle []byte) (*Trailer, error) {
	if len(bundle) < trailerFooterSize {
		return nil, fmt.Errorf("bundle shorter than trailer footer")
	}
	footer := bundle[len(bundle)-trailerFooterSize:]
	if string(footer[12:]) != trailerMagic {
		return nil, fmt.Errorf("bad bundle trailer magic %q", footer[12:])
	}
	t := &Trailer{BundleID: binary.LittleEndian.Uint64(footer)}
	count := binary.LittleEndian.Uint32(footer[8:])
	if trailerFooterSize+trailerChunkSize*int(count) > len(bundle) {
		return nil, fmt.Errorf("bundle trailer claims %d chunks past bundle start", count)
	}
	records := bundle[len(bundle)-trailerFooterSize-trailerChunkSize*int(count):]
	t.Chunks = make([]TrailerChunk, count)
	for i := range t.Chunks {
		rec := records[i*trailerChunkSize:]
		t.Chunks[i] = TrailerChunk{
			ID:               binary.LittleEndian.Uint64(rec),
			SizeCompressed:   int32(binary.LittleEndian.Uint32(rec[8:])),
			SizeUncompressed: int32(binary.LittleEndian.Uint32(rec[12:])),
		}
	}
	return t, nil
}
