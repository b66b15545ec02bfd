package rman

import (
	"encoding/binary"
	"fmt"
)

// The manifest body is a flatbuffer-style buffer read positionally: a
// root offset, tables behind vtables, and vectors of offsets or scalars.
// Fields are addressed by slot index with zero-value defaults for absent
// slots, so the walker needs no schema. Every dereference is
// bounds-checked against the decompressed body.

// walker wraps the decompressed body.
type walker struct {
	data []byte
}

// table is one table position inside the body.
type table struct {
	w   *walker
	pos int
}

func (w *walker) check(pos, size int) error {
	if pos < 0 || size < 0 || pos+size > len(w.data) {
		return fmt.Errorf("manifest body offset %d+%d out of range", pos, size)
	}
	return nil
}

func (w *walker) i32(pos int) (int32, error) {
	if err := w.check(pos, 4); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(w.data[pos:])), nil
}

func (w *walker) u16(pos int) (uint16, error) {
	if err := w.check(pos, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(w.data[pos:]), nil
}

// indirect follows the i32 relative offset stored at pos.
func (w *walker) indirect(pos int) (int, error) {
	rel, err := w.i32(pos)
	if err != nil {
		return 0, err
	}
	target := pos + int(rel)
	if err := w.check(target, 0); err != nil {
		return 0, err
	}
	return target, nil
}

// root returns the body's root table.
func (w *walker) root() (table, error) {
	pos, err := w.indirect(0)
	if err != nil {
		return table{}, err
	}
	return table{w: w, pos: pos}, nil
}

// field resolves slot i to the absolute position of its data, or reports
// it absent.
func (t table) field(i int) (int, bool, error) {
	soffset, err := t.w.i32(t.pos)
	if err != nil {
		return 0, false, err
	}
	vtable := t.pos - int(soffset)
	vtableSize, err := t.w.u16(vtable)
	if err != nil {
		return 0, false, err
	}
	slot := 4 + 2*i
	if slot+2 > int(vtableSize) {
		return 0, false, nil
	}
	fieldOffset, err := t.w.u16(vtable + slot)
	if err != nil {
		return 0, false, err
	}
	if fieldOffset == 0 {
		return 0, false, nil
	}
	return t.pos + int(fieldOffset), true, nil
}

// scalar readers default to zero for absent slots.

func (t table) u8(i int) (uint8, error) {
	pos, ok, err := t.field(i)
	if err != nil || !ok {
		return 0, err
	}
	if err := t.w.check(pos, 1); err != nil {
		return 0, err
	}
	return t.w.data[pos], nil
}

func (t table) i32f(i int) (int32, error) {
	pos, ok, err := t.field(i)
	if err != nil || !ok {
		return 0, err
	}
	return t.w.i32(pos)
}

func (t table) u64(i int) (uint64, error) {
	pos, ok, err := t.field(i)
	if err != nil || !ok {
		return 0, err
	}
	if err := t.w.check(pos, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(t.w.data[pos:]), nil
}

// vector resolves slot i to the element base and count of its vector.
func (t table) vector(i int) (int, int, error) {
	pos, ok, err := t.field(i)
	if err != nil || !ok {
		return 0, 0, err
	}
	vec, err := t.w.indirect(pos)
	if err != nil {
		return 0, 0, err
	}
	count, err := t.w.i32(vec)
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		return 0, 0, fmt.Errorf("negative vector length %d", count)
	}
	return vec + 4, int(count), nil
}

// str reads slot i as a byte vector.
func (t table) str(i int) (string, error) {
	base, count, err := t.vector(i)
	if err != nil || count == 0 {
		return "", err
	}
	if err := t.w.check(base, count); err != nil {
		return "", err
	}
	return string(t.w.data[base : base+count]), nil
}

// tables reads slot i as a vector of table offsets.
func (t table) tables(i int) ([]table, error) {
	base, count, err := t.vector(i)
	if err != nil {
		return nil, err
	}
	result := make([]table, 0, count)
	for j := 0; j < count; j++ {
		pos, err := t.w.indirect(base + 4*j)
		if err != nil {
			return nil, err
		}
		result = append(result, table{w: t.w, pos: pos})
	}
	return result, nil
}

// u64s reads slot i as a vector of 64-bit scalars.
func (t table) u64s(i int) ([]uint64, error) {
	base, count, err := t.vector(i)
	if err != nil {
		return nil, err
	}
	if err := t.w.check(base, count*8); err != nil {
		return nil, err
	}
	result := make([]uint64, count)
	for j := range result {
		result[j] = binary.LittleEndian.Uint64(t.w.data[base+8*j:])
	}
	return result, nil
}
