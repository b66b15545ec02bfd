package hashes

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestHashNameDeterminism(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want uint64
	}{
		{"empty string", "", 0xef46db3751d8e999},
		{"lowercase path", "data/characters/annie/annie.bin", HashName("DATA/Characters/Annie/Annie.bin")},
		{"case folding", "A.TXT", HashName("a.txt")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HashName(tc.in); got != tc.want {
				t.Errorf("HashName(%q) = %016x, want %016x", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtensionDerivation(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want string
	}{
		{"plain extension", "data/a.txt", ".txt"},
		{"no extension", "data/readme", "."},
		{"dotted directory segment", "data.v2/readme", "."},
		{"double extension", "ui/icons.bin.bak", ".bak"},
	}
	d := NewDict()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.ExtensionByName(tc.path); got != tc.want {
				t.Errorf("ExtensionByName(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestLookupInsertsBothMappings(t *testing.T) {
	d := NewDict()
	hash := d.HashByName("DATA/a.txt")
	if got := d.NameByHash(hash); got != "DATA/a.txt" {
		t.Errorf("NameByHash = %q, want the looked-up name", got)
	}
	if got := d.ExtensionByHash(hash); got != ".txt" {
		t.Errorf("ExtensionByHash = %q, want .txt", got)
	}
	if d.NameByHash(0xdeadbeef) != "" {
		t.Error("NameByHash of unknown hash should be empty")
	}
}

func TestExtensionByBytes(t *testing.T) {
	d := NewDict()
	if got := d.ExtensionByBytes(1, []byte("OggS rest of header")); got != ".ogg" {
		t.Errorf("sniffed %q, want .ogg", got)
	}
	// first match is cached
	if got := d.ExtensionByBytes(1, []byte("DDS something else")); got != ".ogg" {
		t.Errorf("cached sniff = %q, want .ogg", got)
	}
	// offset patterns match away from position zero
	if got := d.ExtensionByBytes(2, []byte("\x00\x00\x00\x18ftypisom")); got != ".mp4" {
		t.Errorf("offset sniff = %q, want .mp4", got)
	}
	// a failed sniff resolves to empty and is not cached
	if got := d.ExtensionByBytes(3, []byte("unknowable")); got != "" {
		t.Errorf("failed sniff = %q, want empty", got)
	}
	if got := d.ExtensionByBytes(3, []byte("OggS")); got != ".ogg" {
		t.Errorf("retried sniff = %q, want .ogg", got)
	}
}

func TestDictRoundTrip(t *testing.T) {
	dir := t.TempDir()
	namesPath := filepath.Join(dir, "hashes.game.txt")
	extsPath := filepath.Join(dir, "hashes.game.ext.txt")

	d := NewDict()
	inputs := []string{"data/a.txt", "data/b.bin", "assets/ui/cursor.dds", "plain"}
	for _, name := range inputs {
		d.HashByName(name)
	}
	if err := d.SaveNames(namesPath); err != nil {
		t.Fatalf("SaveNames failed: %v", err)
	}
	if err := d.SaveExtensions(extsPath); err != nil {
		t.Fatalf("SaveExtensions failed: %v", err)
	}

	reread := NewDict()
	if ok, err := reread.LoadNames(namesPath); err != nil || !ok {
		t.Fatalf("LoadNames = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := reread.LoadExtensions(extsPath); err != nil || !ok {
		t.Fatalf("LoadExtensions = (%v, %v), want (true, nil)", ok, err)
	}
	if !reflect.DeepEqual(d.names, reread.names) {
		t.Errorf("names differ after round trip: %v vs %v", d.names, reread.names)
	}
	if !reflect.DeepEqual(d.exts, reread.exts) {
		t.Errorf("extensions differ after round trip: %v vs %v", d.exts, reread.exts)
	}
}

func TestSaveOrderIsSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	d := NewDict()
	d.HashByName("zzz/last.txt")
	d.HashByName("aaa/first.txt")
	if err := d.SaveNames(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	first := string(data[:17+len("aaa/first.txt")])
	if first[17:] != "aaa/first.txt" {
		t.Errorf("first record = %q, want aaa/first.txt after the hash", first)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	d := NewDict()
	ok, err := d.LoadNames(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("LoadNames of missing file errored: %v", err)
	}
	if ok {
		t.Error("LoadNames of missing file reported found")
	}
}

func TestLoadMalformedLineFails(t *testing.T) {
	testCases := []struct {
		name string
		line string
	}{
		{"no separator", "0123456789abcdef"},
		{"bad hex", "zzzz f.txt"},
		{"missing value", "0123456789ABCDEF "},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.txt")
			if err := os.WriteFile(path, []byte(tc.line+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewDict().LoadNames(path); err == nil {
				t.Errorf("LoadNames accepted malformed line %q", tc.line)
			}
		})
	}
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	content := "\n0000000000000001 a.txt\n\r\n0000000000000002 b.txt\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	d := NewDict()
	if _, err := d.LoadNames(path); err != nil {
		t.Fatalf("LoadNames failed: %v", err)
	}
	if d.NameByHash(1) != "a.txt" || d.NameByHash(2) != "b.txt" {
		t.Errorf("loaded names wrong: %v", d.names)
	}
}
