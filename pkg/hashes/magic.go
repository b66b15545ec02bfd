package hashes

import "bytes"

// magicEntry matches a byte pattern at a fixed position in a file's head.
type magicEntry struct {
	pattern []byte
	offset  int
	ext     string
}

// magicTable is ordered; the first matching entry wins, so longer or more
// specific patterns come before shorter ones sharing a prefix.
var magicTable = []magicEntry{
	{[]byte("r3d2Mesh"), 0, ".scb"},
	{[]byte("r3d2anmd"), 0, ".anm"},
	{[]byte("r3d2canm"), 0, ".anm"},
	{[]byte("r3d2sklt"), 0, ".skl"},
	{[]byte("r3d2ammd"), 0, ".scb"},
	{[]byte("[ObjectBegin]"), 0, ".sco"},
	{[]byte("[MaterialBegin]"), 0, ".mat"},
	{[]byte("PreLoadBuildingBlocks = {"), 0, ".preload"},
	{[]byte("\x1bLuaQ\x00\x01\x04\x04"), 0, ".luabin"},
	{[]byte("\x1bLuaQ\x00\x01\x04\x08"), 0, ".luabin64"},
	{[]byte("OPAM"), 0, ".mob"},
	{[]byte("PROP"), 0, ".bin"},
	{[]byte("PTCH"), 0, ".bin"},
	{[]byte("BKHD"), 0, ".bnk"},
	{[]byte("WPK\x00"), 0, ".wpk"},
	{[]byte("OggS"), 0, ".ogg"},
	{[]byte("\x00\x01\x00\x00"), 0, ".ttf"},
	{[]byte("OTTO\x00"), 0, ".otf"},
	{[]byte("DDS "), 0, ".dds"},
	{[]byte("TEX\x00"), 0, ".tex"},
	{[]byte("\x89PNG\r\n\x1a\n"), 0, ".png"},
	{[]byte("\xff\xd8\xff"), 0, ".jpg"},
	{[]byte("WGEO"), 0, ".wgeo"},
	{[]byte("MGEO"), 0, ".mapgeo"},
	{[]byte("OEGM"), 0, ".mapgeo"},
	{[]byte("NVR\x00"), 0, ".nvr"},
	{[]byte("RST"), 0, ".stringtable"},
	{[]byte("\x33\x22\x11\x00"), 0, ".skn"},
	{[]byte("ftyp"), 4, ".mp4"},
	{[]byte("\x1a\x45\xdf\xa3"), 0, ".webm"},
	{[]byte("RW"), 0, ".wad"},
}

// sniff returns the extension of the first matching magic entry, or "".
func sniff(data []byte) string {
	for _, m := range magicTable {
		end := m.offset + len(m.pattern)
		if end <= len(data) && bytes.Equal(data[m.offset:end], m.pattern) {
			return m.ext
		}
	}
	return ""
}
