// Package sln parses the plain-text solution manifest, a line-oriented
// index of projects and the locales that include them.
package sln

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ProjectEntry is one project record.
type ProjectEntry struct {
	Version  string
	Unknown1 uint64
	Unknown2 uint64
}

// LocaleEntry is one locale record with the projects it pulls in.
type LocaleEntry struct {
	Projects []string
	Unknown1 uint64
}

// EntryInfo is a project joined with the set of locales containing it.
type EntryInfo struct {
	Name    string
	Version string
	Locales map[string]bool
}

// HasLocale reports whether the entry matches the language filter. An
// empty filter matches everything.
func (e *EntryInfo) HasLocale(langs map[string]bool) bool {
	if len(langs) == 0 {
		return true
	}
	for lang := range langs {
		if e.Locales[lang] {
			return true
		}
	}
	return false
}

// Manifest is a fully parsed solution manifest.
type Manifest struct {
	ManifestVersion string
	SolutionName    string
	SolutionVersion string
	Projects        map[string]ProjectEntry
	Locales         map[string]LocaleEntry
}

const headerLine = "RADS Solution Manifest"

// lineCursor yields trimmed lines one at a time.
type lineCursor struct {
	lines []string
	pos   int
}

func (c *lineCursor) next() (string, error) {
	if c.pos >= len(c.lines) {
		return "", fmt.Errorf("solution manifest truncated at line %d", c.pos+1)
	}
	line := strings.TrimRight(c.lines[c.pos], "\r")
	c.pos++
	return line, nil
}

func (c *lineCursor) str() (string, error) {
	line, err := c.next()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("empty record at line %d", c.pos)
	}
	return line, nil
}

func (c *lineCursor) num() (uint64, error) {
	line, err := c.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad count at line %d: %w", c.pos, err)
	}
	return n, nil
}

// Parse reads a solution manifest from data.
func Parse(data []byte) (*Manifest, error) {
	c := &lineCursor{lines: strings.Split(string(data), "\n")}
	header, err := c.next()
	if err != nil {
		return nil, err
	}
	if header != headerLine {
		return nil, fmt.Errorf("bad solution manifest header %q", header)
	}
	m := &Manifest{
		Projects: make(map[string]ProjectEntry),
		Locales:  make(map[string]LocaleEntry),
	}
	if m.ManifestVersion, err = c.str(); err != nil {
		return nil, err
	}
	if m.SolutionName, err = c.str(); err != nil {
		return nil, err
	}
	if m.SolutionVersion, err = c.str(); err != nil {
		return nil, err
	}

	projectCount, err := c.num()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i != projectCount; i++ {
		name, err := c.str()
		if err != nil {
			return nil, err
		}
		var entry ProjectEntry
		if entry.Version, err = c.str(); err != nil {
			return nil, err
		}
		if entry.Unknown1, err = c.num(); err != nil {
			return nil, err
		}
		if entry.Unknown2, err = c.num(); err != nil {
			return nil, err
		}
		m.Projects[name] = entry
	}

	localeCount, err := c.num()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i != localeCount; i++ {
		name, err := c.str()
		if err != nil {
			return nil, err
		}
		var entry LocaleEntry
		if entry.Unknown1, err = c.num(); err != nil {
			return nil, err
		}
		count, err := c.num()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j != count; j++ {
			project, err := c.str()
			if err != nil {
				return nil, err
			}
			entry.Projects = append(entry.Projects, project)
		}
		m.Locales[strings.ToLower(name)] = entry
	}
	return m, nil
}

// ListProjects joins projects with their locale sets, sorted by name.
// A project in no locale, or in every locale, is language-neutral and
// reports the single locale "none".
func (m *Manifest) ListProjects() []EntryInfo {
	projectLocales := make(map[string]map[string]bool)
	for localeName, locale := range m.Locales {
		for _, projectName := range locale.Projects {
			if projectLocales[projectName] == nil {
				projectLocales[projectName] = make(map[string]bool)
			}
			projectLocales[projectName][localeName] = true
		}
	}
	names := make([]string, 0, len(m.Projects))
	for name := range m.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]EntryInfo, 0, len(names))
	for _, name := range names {
		entry := EntryInfo{
			Name:    name,
			Version: m.Projects[name].Version,
			Locales: projectLocales[name],
		}
		if len(entry.Locales) == 0 || len(entry.Locales) == len(m.Locales) {
			entry.Locales = map[string]bool{"none": true}
		}
		result = append(result, entry)
	}
	return result
}
