// Package file provides the uniform provider abstraction over the five
// container forms: a raw directory, a release manifest, a solution
// manifest, a modern chunked manifest, and an archive. Each form yields
// Files through a Manager; a File opens into a Reader that serves
// decompressed bytes at arbitrary offsets.
package file

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/mmapio"
	"github.com/moonvein/bincollect/pkg/trace"
)

// Reader is a sized byte source. Read returns a span of exactly size
// bytes valid until the next Read; readers are not safe for concurrent
// use.
type Reader interface {
	Size() int
	Read(offset, size int) ([]byte, error)
}

// File is one logical file inside a container.
type File interface {
	// FindName resolves the file's path, consulting (and feeding) the
	// hash dictionary.
	FindName(dict *hashes.Dict) string
	// FindHash resolves the file's 64-bit path hash.
	FindHash(dict *hashes.Dict) uint64
	// FindExtension resolves the extension, by name, by link target or
	// by magic-byte sniffing, in that order.
	FindExtension(dict *hashes.Dict) (string, error)
	// Link returns the target path when this entry is a symbolic
	// reference, else "".
	Link() (string, error)
	// Size returns the uncompressed size; links report 0.
	Size() (int, error)
	// ID returns a stable content identifier ("<hex>.md5", "<hex>.fid",
	// "<hex>.sha", "<id>.<hex>.xxh") or "".
	ID() string
	// Location returns the provenance chain for diagnostics.
	Location() *Location
	// Open returns the file's Reader. Repeated calls share one reader
	// so a walk reuses a single decompression context.
	Open() (Reader, error)
	// IsArchive reports whether the file's name marks it as a nested
	// archive.
	IsArchive() bool
}

// Manager enumerates the Files of one container.
type Manager interface {
	List() ([]File, error)
}

// Location is a provenance chain (manifest -> archive -> entry) shared
// between a Manager and every File it emits. Chains never cycle; a
// child holds its parent, nothing points back down.
type Location struct {
	parent   *Location
	fragment string
}

// NewLocation chains fragment onto parent.
func NewLocation(parent *Location, fragment string) *Location {
	return &Location{parent: parent, fragment: fragment}
}

// String joins the chain root-first with "/".
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	prefix := l.parent.String()
	if prefix == "" {
		return l.fragment
	}
	if l.fragment == "" {
		return prefix
	}
	return prefix + "/" + l.fragment
}

// archiveSuffixes mark names that contain nested archives.
var archiveSuffixes = []string{".wad", ".client", ".mobile"}

// IsArchiveName reports whether name ends in an archive suffix.
func IsArchiveName(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// IsArchiveExtension reports whether a resolved extension is an archive
// extension; this is how archives nested behind hashed names are found.
func IsArchiveExtension(ext string) bool {
	for _, suffix := range archiveSuffixes {
		if ext == suffix {
			return true
		}
	}
	return false
}

// Checksum is one named digest of a file's content.
type Checksum struct {
	Alg   string
	Value string
}

// Checksums computes the digests of f: the link target for symbolic
// entries, md5 and sha1 of the full content otherwise.
func Checksums(f File) ([]Checksum, error) {
	link, err := f.Link()
	if err != nil {
		return nil, err
	}
	if link != "" {
		return []Checksum{{Alg: "link", Value: link}}, nil
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	data, err := r.Read(0, r.Size())
	if err != nil {
		return nil, err
	}
	return []Checksum{
		{Alg: "md5", Value: fmt.Sprintf("%x", md5.Sum(data))},
		{Alg: "sha1", Value: fmt.Sprintf("%x", sha1.Sum(data))},
	}, nil
}

// ExtractTo writes f's full decompressed content to path, creating
// parent directories.
func ExtractTo(f File, path string) error {
	r, err := f.Open()
	if err != nil {
		return trace.Wrap(err, "extract: %s", path)
	}
	data, err := r.Read(0, r.Size())
	if err != nil {
		return trace.Wrap(err, "extract: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return trace.Wrap(fmt.Errorf("failed to create output directory: %w", err), "extract: %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return trace.Wrap(fmt.Errorf("failed to write output: %w", err), "extract: %s", path)
	}
	return nil
}

// mmapReader serves a memory-mapped file as a Reader.
type mmapReader struct {
	m *mmapio.File
}

// NewPathReader memory-maps path.
func NewPathReader(path string) (Reader, error) {
	m, err := mmapio.Open(path)
	if err != nil {
		return nil, trace.Wrap(err, "path: %s", path)
	}
	return &mmapReader{m: m}, nil
}

func (r *mmapReader) Size() int {
	return r.m.Size()
}

func (r *mmapReader) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > r.m.Size() {
		return nil, fmt.Errorf("read %d+%d past mapped size %d", offset, size, r.m.Size())
	}
	return r.m.Span()[offset : offset+size], nil
}

// readAll drains a Reader.
func readAll(r Reader) ([]byte, error) {
	return r.Read(0, r.Size())
}
