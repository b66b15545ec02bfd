package file

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/moonvein/bincollect/pkg/trace"
)

// solutionHeader is the textual magic of a solution manifest.
var solutionHeader = []byte("RADS Solution Manifest")

// ancestor climbs n directory levels above path.
func ancestor(path string, n int) string {
	for i := 0; i < n; i++ {
		path = filepath.Dir(path)
	}
	return path
}

// Make inspects source and instantiates the matching Manager: a
// directory becomes a raw provider, otherwise the leading bytes select
// the release, solution or modern manifest, or the archive provider.
// When cdn is empty it defaults from the source's ancestor directories:
// release and solution manifests sit five levels below their cdn, modern
// manifests two, archives one.
func Make(source, cdn, remote string, langs map[string]bool, log zerolog.Logger) (Manager, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, trace.Wrap(err, "path: %s", source)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, trace.Wrap(fmt.Errorf("source does not exist: %w", err), "path: %s", source)
	}
	if info.IsDir() {
		return NewRawManager(abs, NewLocation(nil, filepath.ToSlash(source))), nil
	}

	reader, err := NewPathReader(abs)
	if err != nil {
		return nil, err
	}
	if reader.Size() < 4 {
		return nil, trace.Wrap(fmt.Errorf("source too short to identify"), "path: %s", source)
	}
	headSize := len(solutionHeader)
	if headSize > reader.Size() {
		headSize = reader.Size()
	}
	head, err := reader.Read(0, headSize)
	if err != nil {
		return nil, err
	}

	loc := NewLocation(nil, filepath.ToSlash(source))
	switch {
	case bytes.HasPrefix(head, []byte("RLSM")):
		if cdn == "" {
			cdn = ancestor(abs, 5)
		}
		m, err := NewRLSMManager(reader, cdn, loc)
		if err != nil {
			return nil, trace.Wrap(err, "path: %s", source)
		}
		return m, nil

	case bytes.HasPrefix(head, solutionHeader):
		if cdn == "" {
			cdn = ancestor(abs, 5)
		}
		m, err := NewSLNManager(reader, cdn, langs, log, loc)
		if err != nil {
			return nil, trace.Wrap(err, "path: %s", source)
		}
		return m, nil

	case bytes.HasPrefix(head, []byte("RMAN")):
		if cdn == "" {
			cdn = ancestor(abs, 2)
		}
		m, err := NewRMANManager(reader, cdn, remote, langs, log, loc)
		if err != nil {
			return nil, trace.Wrap(err, "path: %s", source)
		}
		return m, nil

	case head[0] == 'R' && head[1] == 'W':
		if cdn == "" {
			cdn = ancestor(abs, 1)
		}
		// Anchor the archive's location beneath its cdn so nested entry
		// traces read <relative archive path>/<entry hash>.
		rel, err := filepath.Rel(cdn, abs)
		if err != nil {
			rel = filepath.Base(abs)
		}
		m, err := NewWADManager(reader, "", NewLocation(nil, filepath.ToSlash(rel)))
		if err != nil {
			return nil, trace.Wrap(err, "path: %s", source)
		}
		return m, nil

	default:
		return nil, trace.Wrap(fmt.Errorf("unrecognised container magic %q", head[:4]), "path: %s", source)
	}
}
