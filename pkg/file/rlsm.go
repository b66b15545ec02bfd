package file

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/rlsm"
	"github.com/moonvein/bincollect/pkg/trace"
)

// RLSMFile is one file of a release manifest, backed by the per-version
// files tree under the project's cdn directory.
type RLSMFile struct {
	info   rlsm.FileInfo
	path   string
	loc    *Location
	reader Reader
}

// NewRLSMFile creates an entry for info whose data lives under the
// project base directory.
func NewRLSMFile(info rlsm.FileInfo, base string, parent *Location) *RLSMFile {
	return &RLSMFile{
		info: info,
		path: filepath.Join(base, "releases", info.Version.String(), "files", filepath.FromSlash(info.Name)),
		loc:  NewLocation(parent, info.Name),
	}
}

// FindName returns the manifest path.
func (f *RLSMFile) FindName(*hashes.Dict) string {
	return f.info.Name
}

// FindHash hashes the manifest path.
func (f *RLSMFile) FindHash(dict *hashes.Dict) uint64 {
	return dict.HashByName(f.info.Name)
}

// FindExtension derives the extension from the name.
func (f *RLSMFile) FindExtension(dict *hashes.Dict) (string, error) {
	return dict.ExtensionByName(f.info.Name), nil
}

// Link is always empty; release manifests have no symbolic entries.
func (f *RLSMFile) Link() (string, error) {
	return "", nil
}

// Size returns the declared uncompressed size.
func (f *RLSMFile) Size() (int, error) {
	return int(f.info.SizeUncompressed), nil
}

// ID renders the 16-byte content hash as the conventional md5 digest
// string: both halves little-endian, then the whole hex string reversed
// end to end.
func (f *RLSMFile) ID() string {
	c0 := binary.LittleEndian.Uint64(f.info.Checksum[0:8])
	c1 := binary.LittleEndian.Uint64(f.info.Checksum[8:16])
	hex := []byte(fmt.Sprintf("%016x%016x", c1, c0))
	for i, j := 0, len(hex)-1; i < j; i, j = i+1, j-1 {
		hex[i], hex[j] = hex[j], hex[i]
	}
	return string(hex) + ".md5"
}

// Location returns the provenance chain.
func (f *RLSMFile) Location() *Location {
	return f.loc
}

// Open memory-maps the backing file under the cdn.
func (f *RLSMFile) Open() (Reader, error) {
	if f.reader != nil {
		return f.reader, nil
	}
	r, err := NewPathReader(f.path)
	if err != nil {
		return nil, trace.Wrap(err, "path: %s", f.info.Name)
	}
	f.reader = r
	return r, nil
}

// IsArchive checks the name's suffix.
func (f *RLSMFile) IsArchive() bool {
	return IsArchiveName(f.info.Name)
}

// RLSMManager lists the files of one release manifest.
type RLSMManager struct {
	files []rlsm.FileInfo
	base  string
	loc   *Location
}

// NewRLSMManager parses a release manifest from source. The project's
// backing data is expected under <cdn>/projects/<project name>.
func NewRLSMManager(source Reader, cdn string, loc *Location) (*RLSMManager, error) {
	data, err := readAll(source)
	if err != nil {
		return nil, err
	}
	manifest, err := rlsm.Parse(data)
	if err != nil {
		return nil, trace.Wrap(err, "release manifest")
	}
	files, err := manifest.ListFiles()
	if err != nil {
		return nil, trace.Wrap(err, "release manifest")
	}
	return &RLSMManager{
		files: files,
		base:  filepath.Join(cdn, "projects", manifest.ProjectName()),
		loc:   loc,
	}, nil
}

// List yields one File per manifest record.
func (m *RLSMManager) List() ([]File, error) {
	result := make([]File, 0, len(m.files))
	for _, info := range m.files {
		result = append(result, NewRLSMFile(info, m.base, m.loc))
	}
	return result, nil
}
