package file

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/trace"
)

// RawFile is one regular file under a raw directory source.
type RawFile struct {
	name   string // slash path relative to the directory root
	base   string
	loc    *Location
	reader Reader
}

// NewRawFile creates a raw file entry for name under base.
func NewRawFile(name, base string, parent *Location) *RawFile {
	return &RawFile{name: name, base: base, loc: NewLocation(parent, name)}
}

// FindName returns the relative path.
func (f *RawFile) FindName(*hashes.Dict) string {
	return f.name
}

// FindHash hashes the relative path.
func (f *RawFile) FindHash(dict *hashes.Dict) uint64 {
	return dict.HashByName(f.name)
}

// FindExtension derives the extension from the name.
func (f *RawFile) FindExtension(dict *hashes.Dict) (string, error) {
	return dict.ExtensionByName(f.name), nil
}

// Link is always empty for filesystem files.
func (f *RawFile) Link() (string, error) {
	return "", nil
}

// Size queries the filesystem.
func (f *RawFile) Size() (int, error) {
	info, err := os.Stat(filepath.Join(f.base, filepath.FromSlash(f.name)))
	if err != nil {
		return 0, trace.Wrap(fmt.Errorf("failed to stat: %w", err), "path: %s", f.name)
	}
	return int(info.Size()), nil
}

// ID is empty; raw files carry no content identifier.
func (f *RawFile) ID() string {
	return ""
}

// Location returns the provenance chain.
func (f *RawFile) Location() *Location {
	return f.loc
}

// Open memory-maps the file, reusing one reader across calls.
func (f *RawFile) Open() (Reader, error) {
	if f.reader != nil {
		return f.reader, nil
	}
	r, err := NewPathReader(filepath.Join(f.base, filepath.FromSlash(f.name)))
	if err != nil {
		return nil, err
	}
	f.reader = r
	return r, nil
}

// IsArchive checks the name's suffix.
func (f *RawFile) IsArchive() bool {
	return IsArchiveName(f.name)
}

// RawManager enumerates a directory tree.
type RawManager struct {
	base string
	loc  *Location
}

// NewRawManager creates a manager rooted at base.
func NewRawManager(base string, loc *Location) *RawManager {
	return &RawManager{base: base, loc: loc}
}

// List walks the tree and yields one File per regular entry, named by
// its forward-slash path relative to the root.
func (m *RawManager) List() ([]File, error) {
	var result []File
	err := filepath.WalkDir(m.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(m.base, path)
		if err != nil {
			return err
		}
		result = append(result, NewRawFile(filepath.ToSlash(rel), m.base, m.loc))
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(fmt.Errorf("failed to walk directory: %w", err), "path: %s", m.base)
	}
	return result, nil
}
