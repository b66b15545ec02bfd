// Package rlsm parses the legacy release manifest: a fixed little-endian
// layout of folder and file records over a shared string table, magic
// "RLSM". Folders form a forest where each folder names a contiguous
// sub-range of the folder array as its children and a contiguous
// sub-range of the file array as its files.
package rlsm

import (
	"encoding/binary"
	"fmt"

	"github.com/moonvein/bincollect/pkg/trace"
)

// Version is the packed 4-byte version tuple. It renders most-significant
// byte first, the order release directories are named in.
type Version [4]byte

// String formats the tuple as "d.c.b.a".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[3], v[2], v[1], v[0])
}

// Header is the fixed manifest prelude.
type Header struct {
	VersionMajor   uint16
	VersionMinor   uint16
	ProjectName    uint32 // string table index
	ReleaseVersion Version
}

// Folder is one folder record. Name indexes the string table; the two
// ranges index the folder and file arrays.
type Folder struct {
	Name         uint32
	FoldersStart uint32
	FoldersCount uint32
	FilesStart   uint32
	FilesCount   uint32
}

// File is one file record.
type File struct {
	Name             uint32 // string table index
	Version          Version
	Checksum         [16]byte
	DeployMode       uint32
	SizeUncompressed uint32
	SizeCompressed   uint32
	DateLow          uint32
	DateHi           uint32
}

// FileInfo is a file record with its path assembled from the folder chain.
type FileInfo struct {
	File
	Name string
}

// Manifest is a fully parsed release manifest.
type Manifest struct {
	Header  Header
	Folders []Folder
	Files   []File
	Names   []string
}

// cursor is a little-endian decode position over the manifest bytes.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) take(n int) ([]byte, error) {
	if len(c.data)-c.pos < n {
		return nil, fmt.Errorf("manifest truncated at offset %d", c.pos)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

const magic = "RLSM"

// Parse reads a release manifest from data.
func Parse(data []byte) (*Manifest, error) {
	c := &cursor{data: data}
	head, err := c.take(4)
	if err != nil {
		return nil, err
	}
	if string(head) != magic {
		return nil, fmt.Errorf("bad release manifest magic %q", head)
	}
	m := &Manifest{}
	if m.Header.VersionMajor, err = c.u16(); err != nil {
		return nil, err
	}
	if m.Header.VersionMinor, err = c.u16(); err != nil {
		return nil, err
	}
	if m.Header.ProjectName, err = c.u32(); err != nil {
		return nil, err
	}
	ver, err := c.take(4)
	if err != nil {
		return nil, err
	}
	copy(m.Header.ReleaseVersion[:], ver)

	if m.Folders, err = parseFolders(c); err != nil {
		return nil, trace.Wrap(err, "folders")
	}
	if m.Files, err = parseFiles(c); err != nil {
		return nil, trace.Wrap(err, "files")
	}
	if m.Names, err = parseNames(c); err != nil {
		return nil, trace.Wrap(err, "string table")
	}
	if int(m.Header.ProjectName) >= len(m.Names) {
		return nil, fmt.Errorf("project name index %d out of range", m.Header.ProjectName)
	}
	return m, nil
}

func parseFolders(c *cursor) ([]Folder, error) {
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	folders := make([]Folder, count)
	for i := range folders {
		f := &folders[i]
		for _, field := range []*uint32{&f.Name, &f.FoldersStart, &f.FoldersCount, &f.FilesStart, &f.FilesCount} {
			if *field, err = c.u32(); err != nil {
				return nil, err
			}
		}
	}
	return folders, nil
}

func parseFiles(c *cursor) ([]File, error) {
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	files := make([]File, count)
	for i := range files {
		f := &files[i]
		if f.Name, err = c.u32(); err != nil {
			return nil, err
		}
		ver, err := c.take(4)
		if err != nil {
			return nil, err
		}
		copy(f.Version[:], ver)
		sum, err := c.take(16)
		if err != nil {
			return nil, err
		}
		copy(f.Checksum[:], sum)
		for _, field := range []*uint32{&f.DeployMode, &f.SizeUncompressed, &f.SizeCompressed, &f.DateLow, &f.DateHi} {
			if *field, err = c.u32(); err != nil {
				return nil, err
			}
		}
	}
	return files, nil
}

// parseNames reads the (count, byte size) pair and the concatenated
// null-terminated string table that follows.
func parseNames(c *cursor) ([]string, error) {
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	size, err := c.u32()
	if err != nil {
		return nil, err
	}
	blob, err := c.take(int(size))
	if err != nil {
		return nil, err
	}
	if size == 0 || blob[size-1] != 0 {
		return nil, fmt.Errorf("string table not null-terminated")
	}
	names := make([]string, 0, count)
	for start := 0; start < len(blob); {
		end := start
		for blob[end] != 0 {
			end++
		}
		if len(names) == int(count) {
			return nil, fmt.Errorf("string table holds more than %d names", count)
		}
		names = append(names, string(blob[start:end]))
		start = end + 1
	}
	return names, nil
}

// ProjectName returns the manifest's project name.
func (m *Manifest) ProjectName() string {
	return m.Names[m.Header.ProjectName]
}

// ListFiles assembles the full path of every file by walking its folder
// parent chain. A repeated folder id on one chain means the manifest
// describes a cycle and is rejected.
func (m *Manifest) ListFiles() ([]FileInfo, error) {
	folderParents := make(map[uint32]uint32)
	fileParents := make(map[uint32]uint32)
	for p := range m.Folders {
		parent := &m.Folders[p]
		if int(parent.Name) >= len(m.Names) {
			return nil, fmt.Errorf("folder %d name index out of range", p)
		}
		if int(parent.FoldersStart)+int(parent.FoldersCount) > len(m.Folders) {
			return nil, fmt.Errorf("folder %d child range out of bounds", p)
		}
		if int(parent.FilesStart)+int(parent.FilesCount) > len(m.Files) {
			return nil, fmt.Errorf("folder %d file range out of bounds", p)
		}
		for c := parent.FoldersStart; c != parent.FoldersStart+parent.FoldersCount; c++ {
			folderParents[c] = uint32(p)
		}
		for c := parent.FilesStart; c != parent.FilesStart+parent.FilesCount; c++ {
			fileParents[c] = uint32(p)
		}
	}
	result := make([]FileInfo, 0, len(m.Files))
	for i := range m.Files {
		file := &m.Files[i]
		if int(file.Name) >= len(m.Names) {
			return nil, fmt.Errorf("file %d name index out of range", i)
		}
		info := FileInfo{File: *file, Name: m.Names[file.Name]}
		visited := make(map[uint32]bool)
		p, ok := fileParents[uint32(i)]
		for ok && p != 0 {
			if visited[p] {
				return nil, trace.Wrap(fmt.Errorf("folder cycle"), "path: %s", info.Name)
			}
			visited[p] = true
			if name := m.Names[m.Folders[p].Name]; name != "" {
				info.Name = name + "/" + info.Name
			}
			p, ok = folderParents[p]
		}
		result = append(result, info)
	}
	return result, nil
}
