// Package mmapio wraps memory-mapped files behind a small fallible
// open/create/span/close surface. Zero-length files are handled without
// mapping, since mapping an empty region fails on most platforms.
package mmapio

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// File is a memory-mapped file. The span stays valid until Close.
type File struct {
	f *os.File
	m mmap.MMap
}

// Open maps an existing file read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return &File{f: f}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return &File{f: f, m: m}, nil
}

// Create creates (or truncates) a file of the given size and maps it
// read-write.
func Create(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if size == 0 {
		return &File{f: f}, nil
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return &File{f: f, m: m}, nil
}

// Span returns the mapped bytes. Empty files yield an empty span.
func (f *File) Span() []byte {
	return f.m
}

// Size returns the mapped length in bytes.
func (f *File) Size() int {
	return len(f.m)
}

// Close flushes (for writable mappings), unmaps and closes the file.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	var first error
	if f.m != nil {
		if err := f.m.Flush(); err != nil && first == nil {
			first = err
		}
		if err := f.m.Unmap(); err != nil && first == nil {
			first = err
		}
		f.m = nil
	}
	if f.f != nil {
		if err := f.f.Close(); err != nil && first == nil {
			first = err
		}
		f.f = nil
	}
	return first
}
