// Package hashes implements the hash dictionary: a bidirectional mapping
// between 64-bit path hashes and human-readable names, plus a hash to
// extension mapping, persisted as sorted text files. Every container
// format keys files by XXH64 of the lowercased path, so this dictionary
// is the single place names and extensions live.
package hashes

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/moonvein/bincollect/pkg/mmapio"
)

// HashName computes the 64-bit XXH64 (seed 0) of the lowercased name.
func HashName(name string) uint64 {
	return xxhash.Sum64String(strings.ToLower(name))
}

// Dict maps hashes to names and extensions. Lookups by name insert the
// derived entries, so the dictionary accretes everything it sees and the
// saved lists grow across runs.
type Dict struct {
	names map[uint64]string
	exts  map[uint64]string
}

// NewDict creates an empty dictionary.
func NewDict() *Dict {
	return &Dict{
		names: make(map[uint64]string),
		exts:  make(map[uint64]string),
	}
}

// extensionOf returns the dotted suffix of the path's last segment, or "."
// when the segment has none.
func extensionOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return "."
}

// insertName records name (and its derived extension) under its hash if
// either is absent.
func (d *Dict) insertName(hash uint64, name string) {
	if _, ok := d.names[hash]; !ok {
		d.names[hash] = name
	}
	if _, ok := d.exts[hash]; !ok {
		d.exts[hash] = extensionOf(name)
	}
}

// HashByName hashes name, inserting it and its derived extension.
func (d *Dict) HashByName(name string) uint64 {
	hash := HashName(name)
	d.insertName(hash, name)
	return hash
}

// NameByHash returns the known name for hash, or "".
func (d *Dict) NameByHash(hash uint64) string {
	return d.names[hash]
}

// ExtensionByName returns the extension for name, inserting name first.
func (d *Dict) ExtensionByName(name string) string {
	hash := HashName(name)
	d.insertName(hash, name)
	return d.exts[hash]
}

// ExtensionByHash returns the known extension for hash, or "".
func (d *Dict) ExtensionByHash(hash uint64) string {
	return d.exts[hash]
}

// ExtensionByBytes sniffs an extension from the leading bytes of the
// file's content and caches the first match under hash. A failed sniff is
// not an error; the extension just stays empty.
func (d *Dict) ExtensionByBytes(hash uint64, leading []byte) string {
	if ext, ok := d.exts[hash]; ok {
		return ext
	}
	ext := sniff(leading)
	if ext != "" {
		d.exts[hash] = ext
	}
	return ext
}

// loadList reads one "16-hex SP value" record per line into list.
// A missing file is not an error and reports false.
func loadList(list map[uint64]string, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	m, err := mmapio.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open hash list: %w", err)
	}
	defer m.Close()
	for _, line := range bytes.Split(m.Span(), []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		sep := bytes.IndexByte(line, ' ')
		if sep <= 0 || sep+1 >= len(line) {
			return false, fmt.Errorf("malformed hash list line in %s: %q", path, line)
		}
		hash, err := strconv.ParseUint(string(line[:sep]), 16, 64)
		if err != nil {
			return false, fmt.Errorf("malformed hash in %s: %w", path, err)
		}
		list[hash] = string(line[sep+1:])
	}
	return true, nil
}

// saveList writes list sorted by value then hash, the diff-friendly order
// the files are kept under source control in.
func saveList(list map[uint64]string, path string) error {
	type pair struct {
		hash  uint64
		value string
	}
	sorted := make([]pair, 0, len(list))
	for hash, value := range list {
		sorted = append(sorted, pair{hash, value})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].value != sorted[j].value {
			return sorted[i].value < sorted[j].value
		}
		return sorted[i].hash < sorted[j].hash
	})
	var b bytes.Buffer
	for _, p := range sorted {
		fmt.Fprintf(&b, "%016X %s\n", p.hash, p.value)
	}
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write hash list: %w", err)
	}
	return nil
}

// LoadNames loads the name list and derives extensions for every loaded
// name that has none yet.
func (d *Dict) LoadNames(path string) (bool, error) {
	ok, err := loadList(d.names, path)
	if err != nil {
		return false, err
	}
	for hash, name := range d.names {
		if _, have := d.exts[hash]; !have {
			d.exts[hash] = extensionOf(name)
		}
	}
	return ok, nil
}

// LoadExtensions loads the extension list.
func (d *Dict) LoadExtensions(path string) (bool, error) {
	return loadList(d.exts, path)
}

// SaveNames writes the name list.
func (d *Dict) SaveNames(path string) error {
	return saveList(d.names, path)
}

// SaveExtensions writes the extension list.
func (d *Dict) SaveExtensions(path string) error {
	return saveList(d.exts, path)
}
