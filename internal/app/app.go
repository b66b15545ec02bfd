// Package app walks any container Manager, recurses into nested
// archives, applies the caller's filters and dispatches each file to the
// selected action.
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/moonvein/bincollect/pkg/file"
	"github.com/moonvein/bincollect/pkg/hashes"
	"github.com/moonvein/bincollect/pkg/trace"
)

// Action selects what happens to each listed file.
type Action int

const (
	// ActionList emits one CSV row per file.
	ActionList Action = iota
	// ActionExtract writes each file's content under the output directory.
	ActionExtract
	// ActionIndex emits the row and extracts under the content id.
	ActionIndex
	// ActionExeVer scans executables for their product version.
	ActionExeVer
	// ActionChecksum emits digest rows.
	ActionChecksum
)

// ParseAction maps a CLI action word.
func ParseAction(word string) (Action, error) {
	switch word {
	case "list", "ls":
		return ActionList, nil
	case "extract", "ex":
		return ActionExtract, nil
	case "index":
		return ActionIndex, nil
	case "exever":
		return ActionExeVer, nil
	case "checksum":
		return ActionChecksum, nil
	default:
		return 0, fmt.Errorf("unknown action %q", word)
	}
}

// Options configures one run.
type Options struct {
	Action      Action
	Manifest    string
	CDN         string
	Remote      string
	Output      string
	Langs       map[string]bool
	Exts        map[string]bool
	Paths       []string // "0x..." hash literals or textual paths
	HashesNames string
	HashesExts  string
	MaxDepth    int
	ShowWads    bool
	SkipRoot    bool
}

// App holds one run's state.
type App struct {
	opts   Options
	dict   *hashes.Dict
	filter map[uint64]bool
	out    io.Writer
	log    zerolog.Logger
}

// New creates an App writing rows to out.
func New(opts Options, out io.Writer, log zerolog.Logger) *App {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	if opts.Output == "" {
		opts.Output = "."
	}
	return &App{opts: opts, dict: hashes.NewDict(), out: out, log: log}
}

// ParseList splits a comma- or space-separated flag value into a
// lowercased set.
func ParseList(value string) map[string]bool {
	result := make(map[string]bool)
	for _, item := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		result[strings.ToLower(item)] = true
	}
	return result
}

// discoverHashPath picks the first dictionary path that exists: the
// explicit flag, the hashes directory next to the binary, the working
// directory.
func discoverHashPath(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	if exe, err := os.Executable(); err == nil {
		if p := filepath.Join(filepath.Dir(exe), "hashes", name); pathExists(p) {
			return p
		}
	}
	return "./" + name
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadHashes loads both dictionaries; missing files are empty.
func (a *App) loadHashes() error {
	a.opts.HashesNames = discoverHashPath(a.opts.HashesNames, "hashes.game.txt")
	a.opts.HashesExts = discoverHashPath(a.opts.HashesExts, "hashes.game.ext.txt")
	loaded, err := a.dict.LoadNames(a.opts.HashesNames)
	if err != nil {
		return trace.Wrap(err, "hashes: %s", a.opts.HashesNames)
	}
	a.log.Debug().Str("path", a.opts.HashesNames).Bool("found", loaded).Msg("loaded name hashes")
	loaded, err = a.dict.LoadExtensions(a.opts.HashesExts)
	if err != nil {
		return trace.Wrap(err, "hashes: %s", a.opts.HashesExts)
	}
	a.log.Debug().Str("path", a.opts.HashesExts).Bool("found", loaded).Msg("loaded extension hashes")
	return nil
}

// saveHashes writes both dictionaries back, sorted.
func (a *App) saveHashes() error {
	if err := a.dict.SaveNames(a.opts.HashesNames); err != nil {
		return trace.Wrap(err, "hashes: %s", a.opts.HashesNames)
	}
	if err := a.dict.SaveExtensions(a.opts.HashesExts); err != nil {
		return trace.Wrap(err, "hashes: %s", a.opts.HashesExts)
	}
	return nil
}

// buildFilter turns the path filter list into a hash set. Entries with a
// 0x prefix are 64-bit hex literals; anything else is hashed as a path.
func (a *App) buildFilter() error {
	if len(a.opts.Paths) == 0 {
		return nil
	}
	a.filter = make(map[uint64]bool, len(a.opts.Paths))
	for _, item := range a.opts.Paths {
		if rest, ok := strings.CutPrefix(item, "0x"); ok {
			hash, err := strconv.ParseUint(rest, 16, 64)
			if err != nil {
				return trace.Wrap(fmt.Errorf("bad hash literal: %w", err), "path filter: %s", item)
			}
			a.filter[hash] = true
			continue
		}
		a.filter[a.dict.HashByName(item)] = true
	}
	return nil
}

// Run executes the configured action over the manifest source.
func (a *App) Run() error {
	if err := a.loadHashes(); err != nil {
		return err
	}
	if err := a.buildFilter(); err != nil {
		return err
	}
	manager, err := file.Make(a.opts.Manifest, a.opts.CDN, a.opts.Remote, a.opts.Langs, a.log)
	if err != nil {
		return err
	}
	if err := a.walk(manager, 1); err != nil {
		return err
	}
	return a.saveHashes()
}

// walk lists one Manager, recursing into archive files while depth
// allows. Filter order: hash filter, then extension filter, then the
// per-action link handling.
func (a *App) walk(manager file.Manager, depth int) error {
	files, err := manager.List()
	if err != nil {
		return err
	}
	for _, entry := range files {
		hash := entry.FindHash(a.dict)
		if a.filter != nil && !a.filter[hash] {
			continue
		}
		ext, err := entry.FindExtension(a.dict)
		if err != nil {
			return trace.Wrap(err, "location: %s", entry.Location())
		}
		isArchive := entry.IsArchive() || file.IsArchiveExtension(ext)
		if isArchive && depth < a.opts.MaxDepth {
			a.log.Debug().Str("archive", entry.FindName(a.dict)).Int("depth", depth).Msg("recursing")
			nested, err := file.NewWADManagerFromFile(entry)
			if err != nil {
				return trace.Wrap(err, "location: %s", entry.Location())
			}
			if err := a.walk(nested, depth+1); err != nil {
				return err
			}
			if !a.opts.ShowWads {
				continue
			}
		} else if !isArchive && depth == 1 && a.opts.SkipRoot {
			continue
		}
		if len(a.opts.Exts) != 0 && !a.opts.Exts[strings.ToLower(ext)] {
			continue
		}
		if err := a.dispatch(entry, hash, ext); err != nil {
			return trace.Wrap(err, "location: %s", entry.Location())
		}
	}
	return nil
}

// dispatch applies the selected action to one file.
func (a *App) dispatch(entry file.File, hash uint64, ext string) error {
	switch a.opts.Action {
	case ActionList:
		return a.doList(entry, hash, ext)
	case ActionExtract:
		return a.doExtract(entry, hash, ext)
	case ActionIndex:
		return a.doIndex(entry, hash, ext)
	case ActionExeVer:
		return a.doExeVer(entry, ext)
	case ActionChecksum:
		return a.doChecksum(entry, hash, ext)
	default:
		return fmt.Errorf("unhandled action %d", a.opts.Action)
	}
}

func (a *App) doList(entry file.File, hash uint64, ext string) error {
	size, err := entry.Size()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%016x,%s,%s,%s,%d\n", hash, ext, entry.FindName(a.dict), entry.ID(), size)
	return err
}

// outputName picks the extraction file name: the resolved name, or the
// hash with extension when the name is unknown or unreasonably long.
func outputName(name string, hash uint64, ext string) string {
	if name == "" || len(name) > 127 {
		return fmt.Sprintf("%016x%s", hash, ext)
	}
	return name
}

func (a *App) doExtract(entry file.File, hash uint64, ext string) error {
	link, err := entry.Link()
	if err != nil {
		return err
	}
	if link != "" {
		return nil
	}
	name := outputName(entry.FindName(a.dict), hash, ext)
	return file.ExtractTo(entry, filepath.Join(a.opts.Output, filepath.FromSlash(name)))
}

func (a *App) doIndex(entry file.File, hash uint64, ext string) error {
	link, err := entry.Link()
	if err != nil {
		return err
	}
	if link != "" {
		return nil
	}
	if err := a.doList(entry, hash, ext); err != nil {
		return err
	}
	id := entry.ID()
	if id == "" {
		return nil
	}
	out := filepath.Join(a.opts.Output, id)
	if pathExists(out) {
		return nil
	}
	return file.ExtractTo(entry, out)
}

func (a *App) doExeVer(entry file.File, ext string) error {
	name := entry.FindName(a.dict)
	if ext != ".exe" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return nil
	}
	reader, err := entry.Open()
	if err != nil {
		return err
	}
	data, err := reader.Read(0, reader.Size())
	if err != nil {
		return err
	}
	version := scanProductVersion(data)
	if version == "" {
		return nil
	}
	_, err = fmt.Fprintf(a.out, "%s,%s\n", name, version)
	return err
}

func (a *App) doChecksum(entry file.File, hash uint64, ext string) error {
	sums, err := file.Checksums(entry)
	if err != nil {
		return err
	}
	parts := make([]string, 0, len(sums))
	for _, sum := range sums {
		parts = append(parts, sum.Alg+":"+sum.Value)
	}
	_, err = fmt.Fprintf(a.out, "%s,%016x%s,%s,%s\n",
		strings.Join(parts, ";"), hash, ext, entry.FindName(a.dict), entry.Location())
	return err
}
