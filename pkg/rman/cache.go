package rman

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/moonvein/bincollect/pkg/fetch"
	"github.com/moonvein/bincollect/pkg/mmapio"
	"github.com/moonvein/bincollect/pkg/trace"
)

// Cache is the content-addressed store behind every chunked file of one
// manifest. Its root holds either whole bundles or individual
// decompressed chunks (decided by the root's leaf name), with a remote
// fetch fallback when data is missing locally.
//
// Reads through a chunked file arrive sorted by (bundle, chunk), so a
// single most-recent slot per kind gets nearly all the reuse a full LRU
// would: one memory buffer each for the last fetched bundle and last
// decompressed chunk, one mmap each for the last local bundle and chunk.
type Cache struct {
	root     string
	remote   string
	chunking bool
	client   *fetch.Client
	log      zerolog.Logger

	remoteBundleID uint64
	remoteBundle   []byte
	remoteChunkID  uint64
	remoteChunk    []byte

	localBundleID uint64
	localBundle   *mmapio.File
	localChunkID  uint64
	localChunk    *mmapio.File
}

// NewCache creates a cache over root. When the root's leaf is "chunks"
// the cache stores per-chunk files; when "bundles", whole bundles;
// anything else gets a "bundles" subdirectory appended. A non-empty
// remote URL prefix enables fetching and creates the root.
func NewCache(root, remote string, log zerolog.Logger) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is empty")
	}
	c := &Cache{root: root, remote: remote, log: log}
	leaf := strings.ToLower(strings.TrimRight(filepath.ToSlash(root), "/"))
	switch {
	case strings.HasSuffix(leaf, "chunks"):
		c.chunking = true
	case strings.HasSuffix(leaf, "bundles"):
	default:
		c.root = filepath.Join(root, "bundles")
	}
	if remote != "" {
		if err := os.MkdirAll(c.root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache root: %w", err)
		}
		c.client = fetch.NewClient(log)
	}
	return c, nil
}

// Close releases the mmap slots.
func (c *Cache) Close() {
	if c.localBundle != nil {
		c.localBundle.Close()
		c.localBundle = nil
		c.localBundleID = 0
	}
	if c.localChunk != nil {
		c.localChunk.Close()
		c.localChunk = nil
		c.localChunkID = 0
	}
}

func (c *Cache) chunkPath(id uint64) string {
	return filepath.Join(c.root, fmt.Sprintf("%016X.chunk", id))
}

func (c *Cache) bundlePath(id uint64) string {
	return filepath.Join(c.root, fmt.Sprintf("%016X.bundle", id))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenChunk returns exactly chunk.SizeUncompressed bytes of the chunk's
// content. The span is valid until the next cache call.
func (c *Cache) OpenChunk(chunk FileChunk) ([]byte, error) {
	if c.remoteChunkID == chunk.ID && c.remoteChunkID != 0 {
		return c.remoteChunk, nil
	}
	if c.localChunkID == chunk.ID && c.localChunkID != 0 {
		return c.localChunk.Span(), nil
	}

	if c.chunking {
		if path := c.chunkPath(chunk.ID); exists(path) {
			c.localChunkID = 0
			if c.localChunk != nil {
				c.localChunk.Close()
				c.localChunk = nil
			}
			m, err := mmapio.Open(path)
			if err != nil {
				return nil, trace.Wrap(err, "chunk: %016x", chunk.ID)
			}
			c.localChunk = m
			c.localChunkID = chunk.ID
			return m.Span(), nil
		}
		if c.client == nil {
			return nil, trace.Wrap(fmt.Errorf("chunk missing locally and no remote configured"), "chunk: %016x", chunk.ID)
		}
	}

	bundle, err := c.openBundle(chunk)
	if err != nil {
		return nil, err
	}
	end := int(chunk.CompressedOffset) + int(chunk.SizeCompressed)
	if chunk.CompressedOffset < 0 || end > len(bundle) {
		return nil, trace.Wrap(fmt.Errorf("chunk range %d+%d past bundle end %d",
			chunk.CompressedOffset, chunk.SizeCompressed, len(bundle)), "chunk: %016x", chunk.ID)
	}
	c.remoteChunkID = 0
	buf, err := decoder.DecodeAll(bundle[chunk.CompressedOffset:end], c.remoteChunk[:0])
	if err != nil {
		return nil, trace.Wrap(fmt.Errorf("failed to decompress chunk: %w", err), "chunk: %016x", chunk.ID)
	}
	if len(buf) != int(chunk.SizeUncompressed) {
		return nil, trace.Wrap(fmt.Errorf("chunk decompressed to %d bytes, manifest says %d",
			len(buf), chunk.SizeUncompressed), "chunk: %016x", chunk.ID)
	}
	c.remoteChunk = buf
	c.remoteChunkID = chunk.ID
	return c.remoteChunk, nil
}

// openBundle returns the whole bundle holding chunk, reusing the slots,
// then the local file, then the remote.
func (c *Cache) openBundle(chunk FileChunk) ([]byte, error) {
	if c.remoteBundleID == chunk.BundleID && c.remoteBundleID != 0 {
		return c.remoteBundle, nil
	}
	if c.localBundleID == chunk.BundleID && c.localBundleID != 0 {
		return c.localBundle.Span(), nil
	}

	if !c.chunking {
		if path := c.bundlePath(chunk.BundleID); exists(path) {
			c.localBundleID = 0
			if c.localBundle != nil {
				c.localBundle.Close()
				c.localBundle = nil
			}
			m, err := mmapio.Open(path)
			if err != nil {
				return nil, trace.Wrap(err, "bundle: %016x", chunk.BundleID)
			}
			c.localBundle = m
			c.localBundleID = chunk.BundleID
			return m.Span(), nil
		}
	}

	if c.client == nil {
		return nil, trace.Wrap(fmt.Errorf("bundle missing locally and no remote configured"), "bundle: %016x", chunk.BundleID)
	}
	c.remoteBundleID = 0
	url := fmt.Sprintf("%s/bundles/%016X.bundle", c.remote, chunk.BundleID)
	buf, err := c.client.Get(url, c.remoteBundle[:0])
	c.remoteBundle = buf
	if err != nil {
		return nil, trace.Wrap(err, "bundle: %016x", chunk.BundleID)
	}
	trailer, err := ParseTrailer(c.remoteBundle)
	if err != nil {
		return nil, trace.Wrap(err, "bundle: %016x", chunk.BundleID)
	}
	if trailer.BundleID != chunk.BundleID {
		return nil, trace.Wrap(fmt.Errorf("fetched bundle identifies as %016x", trailer.BundleID), "bundle: %016x", chunk.BundleID)
	}
	c.remoteBundleID = chunk.BundleID
	c.log.Debug().Str("bundle", fmt.Sprintf("%016x", chunk.BundleID)).
		Int("bytes", len(c.remoteBundle)).Int("chunks", len(trailer.Chunks)).
		Msg("fetched bundle")

	if err := c.persist(trailer); err != nil {
		return nil, trace.Wrap(err, "bundle: %016x", chunk.BundleID)
	}
	return c.remoteBundle, nil
}

// persist writes a freshly fetched bundle to the local cache: the whole
// bundle in bundle mode, or each not-yet-present chunk decompressed
// individually in chunking mode.
func (c *Cache) persist(trailer *Trailer) error {
	if !c.chunking {
		if err := os.WriteFile(c.bundlePath(trailer.BundleID), c.remoteBundle, 0o644); err != nil {
			return fmt.Errorf("failed to persist bundle: %w", err)
		}
		return nil
	}
	offset := 0
	for _, chunk := range trailer.Chunks {
		if path := c.chunkPath(chunk.ID); !exists(path) {
			end := offset + int(chunk.SizeCompressed)
			if end > len(c.remoteBundle) {
				return trace.Wrap(fmt.Errorf("chunk range past bundle end"), "chunk: %016x", chunk.ID)
			}
			c.remoteChunkID = 0
			buf, err := decoder.DecodeAll(c.remoteBundle[offset:end], c.remoteChunk[:0])
			if err != nil {
				return trace.Wrap(fmt.Errorf("failed to decompress chunk: %w", err), "chunk: %016x", chunk.ID)
			}
			if len(buf) != int(chunk.SizeUncompressed) {
				return trace.Wrap(fmt.Errorf("chunk decompressed to %d bytes, trailer says %d",
					len(buf), chunk.SizeUncompressed), "chunk: %016x", chunk.ID)
			}
			c.remoteChunk = buf
			c.remoteChunkID = chunk.ID
			if err := os.WriteFile(path, buf, 0o644); err != nil {
				return fmt.Errorf("failed to persist chunk: %w", err)
			}
		}
		offset += int(chunk.SizeCompressed)
	}
	return nil
}
