package file

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/moonvein/bincollect/pkg/sln"
	"github.com/moonvein/bincollect/pkg/trace"
)

// SLNManager composes one release-manifest manager per project the
// solution references, skipping projects outside the language filter.
type SLNManager struct {
	managers []*RLSMManager
}

// NewSLNManager parses a solution manifest from source and opens each
// matching project's release manifest under
// <cdn>/projects/<project>/releases/<version>/releasemanifest.
func NewSLNManager(source Reader, cdn string, langs map[string]bool, log zerolog.Logger, loc *Location) (*SLNManager, error) {
	data, err := readAll(source)
	if err != nil {
		return nil, err
	}
	manifest, err := sln.Parse(data)
	if err != nil {
		return nil, trace.Wrap(err, "solution manifest")
	}
	m := &SLNManager{}
	for _, project := range manifest.ListProjects() {
		if !project.HasLocale(langs) {
			continue
		}
		rel := filepath.Join("projects", project.Name, "releases", project.Version, "releasemanifest")
		log.Debug().Str("project", project.Name).Str("version", project.Version).Msg("opening project release manifest")
		reader, err := NewPathReader(filepath.Join(cdn, rel))
		if err != nil {
			return nil, trace.Wrap(err, "project: %s", project.Name)
		}
		manager, err := NewRLSMManager(reader, cdn, NewLocation(loc, filepath.ToSlash(rel)))
		if err != nil {
			return nil, trace.Wrap(err, "project: %s", project.Name)
		}
		m.managers = append(m.managers, manager)
	}
	return m, nil
}

// List concatenates every project's listing.
func (m *SLNManager) List() ([]File, error) {
	var result []File
	for _, manager := range m.managers {
		files, err := manager.List()
		if err != nil {
			return nil, err
		}
		result = append(result, files...)
	}
	return result, nil
}
