package file

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/rman"
	"github.com/moonvein/bincollect/pkg/trace"
)

// RMANFile is one file of a modern manifest, reassembled from chunks on
// demand through the manager's shared cache.
type RMANFile struct {
	info   rman.FileInfo
	cache  *rman.Cache
	loc    *Location
	reader Reader
}

// NewRMANFile creates an entry for info backed by cache.
func NewRMANFile(info rman.FileInfo, cache *rman.Cache, parent *Location) *RMANFile {
	return &RMANFile{
		info:  info,
		cache: cache,
		loc:   NewLocation(parent, info.Path),
	}
}

// FindName returns the manifest path.
func (f *RMANFile) FindName(*hashes.Dict) string {
	return f.info.Path
}

// FindHash hashes the manifest path.
func (f *RMANFile) FindHash(dict *hashes.Dict) uint64 {
	return dict.HashByName(f.info.Path)
}

// FindExtension derives the extension from the path, falling back to the
// link target for extension-less links.
func (f *RMANFile) FindExtension(dict *hashes.Dict) (string, error) {
	ext := dict.ExtensionByName(f.info.Path)
	if ext == "." && f.info.Link != "" {
		ext = dict.ExtensionByName(f.info.Link)
	}
	return ext, nil
}

// Link returns the symbolic target, if any.
func (f *RMANFile) Link() (string, error) {
	return f.info.Link, nil
}

// Size returns the declared size; links report 0.
func (f *RMANFile) Size() (int, error) {
	if f.info.Link != "" {
		return 0, nil
	}
	return int(f.info.Size), nil
}

// ID returns the manifest file id as "<hex>.fid"; links have none.
func (f *RMANFile) ID() string {
	if f.info.Link != "" {
		return ""
	}
	return fmt.Sprintf("%016x.fid", f.info.ID)
}

// Location returns the provenance chain.
func (f *RMANFile) Location() *Location {
	return f.loc
}

// Open creates (or reuses) the chunk-reassembly reader.
func (f *RMANFile) Open() (Reader, error) {
	if f.reader != nil {
		return f.reader, nil
	}
	if f.info.Link != "" {
		return nil, trace.Wrap(fmt.Errorf("links have no content"), "path: %s", f.info.Path)
	}
	f.reader = rman.NewFileReader(f.info, f.cache)
	return f.reader, nil
}

// IsArchive checks the path's suffix; links are never archives.
func (f *RMANFile) IsArchive() bool {
	return f.info.Link == "" && IsArchiveName(f.info.Path)
}

// RMANManager lists the files of one modern manifest. All its files
// share one bundle/chunk cache.
type RMANManager struct {
	files []rman.FileInfo
	cache *rman.Cache
	loc   *Location
}

// NewRMANManager parses a modern manifest from source, validates every
// file, applies the language filter and prepares the cache over cdn with
// the optional remote fallback.
func NewRMANManager(source Reader, cdn, remote string, langs map[string]bool, log zerolog.Logger, parent *Location) (*RMANManager, error) {
	data, err := readAll(source)
	if err != nil {
		return nil, err
	}
	manifest, err := rman.Parse(data)
	if err != nil {
		return nil, trace.Wrap(err, "modern manifest")
	}
	files, err := manifest.ListFiles()
	if err != nil {
		return nil, trace.Wrap(err, "modern manifest")
	}
	for i := range files {
		info := &files[i]
		if info.Link != "" {
			// Links carry no data; a link with chunks is malformed.
			if len(info.Chunks) != 0 {
				return nil, trace.Wrap(fmt.Errorf("link with %d chunks", len(info.Chunks)), "path: %s", info.Path)
			}
			continue
		}
		if err := info.Sanitize(rman.DefaultChunkLimit); err != nil {
			return nil, trace.Wrap(err, "modern manifest")
		}
	}
	if len(langs) != 0 {
		kept := files[:0]
		for _, info := range files {
			for lang := range langs {
				if info.Langs[lang] {
					kept = append(kept, info)
					break
				}
			}
		}
		files = kept
	}
	cache, err := rman.NewCache(cdn, remote, log)
	if err != nil {
		return nil, err
	}
	return &RMANManager{
		files: files,
		cache: cache,
		loc:   NewLocation(parent, fmt.Sprintf("%016x.manifest", manifest.ID)),
	}, nil
}

// List yields one File per manifest record.
func (m *RMANManager) List() ([]File, error) {
	result := make([]File, 0, len(m.files))
	for _, info := range m.files {
		result = append(result, NewRMANFile(info, m.cache, m.loc))
	}
	return result, nil
}

// Close releases the cache's mapped slots.
func (m *RMANManager) Close() {
	m.cache.Close()
}
