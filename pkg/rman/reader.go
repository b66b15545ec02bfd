package rman

import (
	"fmt"
	"sort"

	"github.com/moonvein/bincollect/pkg/trace"
)

// FileReader reassembles one manifest file from its chunks on demand.
// It owns a full-size buffer and materialises chunks lazily, so partial
// reads at arbitrary offsets never re-decompress what is already there.
type FileReader struct {
	info  FileInfo
	cache *Cache
	data  []byte
	done  map[int32]bool // materialised uncompressed offsets
}

// NewFileReader creates a reader for info backed by cache.
func NewFileReader(info FileInfo, cache *Cache) *FileReader {
	return &FileReader{
		info:  info,
		cache: cache,
		data:  make([]byte, info.Size),
		done:  make(map[int32]bool, len(info.Chunks)),
	}
}

// Size returns the file's uncompressed size.
func (r *FileReader) Size() int {
	return len(r.data)
}

// chunksInRange returns the not-yet-materialised chunks whose
// uncompressed offset falls inside [offset, offset+size), sorted by
// (bundle, chunk, uncompressed offset) so the cache's one-slot reuse
// stays hot across the whole read.
func (r *FileReader) chunksInRange(offset, size int) []FileChunk {
	chunks := r.info.Chunks
	start := sort.Search(len(chunks), func(i int) bool {
		return int(chunks[i].UncompressedOffset) >= offset
	})
	end := sort.Search(len(chunks), func(i int) bool {
		return int(chunks[i].UncompressedOffset) >= offset+size
	})
	ranged := make([]FileChunk, 0, end-start)
	for _, chunk := range chunks[start:end] {
		if !r.done[chunk.UncompressedOffset] {
			ranged = append(ranged, chunk)
		}
	}
	sort.Slice(ranged, func(i, j int) bool {
		a, b := &ranged[i], &ranged[j]
		if a.BundleID != b.BundleID {
			return a.BundleID < b.BundleID
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.UncompressedOffset < b.UncompressedOffset
	})
	return ranged
}

// Read materialises every chunk whose uncompressed offset lies inside
// [offset, offset+size) and returns that window of the file buffer. A
// chunk that starts before offset is not materialised by this call. The
// same chunk id may occur at several uncompressed offsets; it is
// decompressed once and copied to each.
func (r *FileReader) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(r.data) {
		return nil, trace.Wrap(fmt.Errorf("read %d+%d past file size %d", offset, size, len(r.data)), "path: %s", r.info.Path)
	}
	chunks := r.chunksInRange(offset, size)
	for i := 0; i < len(chunks); {
		cur := chunks[i]
		src, err := r.cache.OpenChunk(cur)
		if err != nil {
			return nil, trace.Wrap(err, "path: %s", r.info.Path)
		}
		if len(src) != int(cur.SizeUncompressed) {
			return nil, trace.Wrap(fmt.Errorf("chunk %016x yielded %d bytes, manifest says %d",
				cur.ID, len(src), cur.SizeUncompressed), "path: %s", r.info.Path)
		}
		// Copy into every offset sharing this chunk id before moving on,
		// while the cache slot still holds it.
		for i < len(chunks) && chunks[i].ID == cur.ID {
			dst := chunks[i].UncompressedOffset
			copy(r.data[dst:int(dst)+len(src)], src)
			r.done[dst] = true
			i++
		}
	}
	return r.data[offset : offset+size], nil
}
