package app

import "encoding/binary"

// productVersionMarker precedes the version string inside an
// executable's version resource, stored as UTF-16LE code units.
var productVersionMarker = []uint16{
	0x0001, 'P', 'r', 'o', 'd', 'u', 'c', 't',
	'V', 'e', 'r', 's', 'i', 'o', 'n',
}

// scanProductVersion interprets data as little-endian 16-bit code units
// and looks for the version marker followed by a null-terminated ASCII
// dotted-numeric string, skipping alignment nulls in between. Returns ""
// when no version is present.
func scanProductVersion(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
search:
	for i := 0; i+len(productVersionMarker) <= len(units); i++ {
		for j, m := range productVersionMarker {
			if units[i+j] != m {
				continue search
			}
		}
		pos := i + len(productVersionMarker)
		for pos < len(units) && units[pos] == 0 {
			pos++
		}
		var version []byte
		for pos < len(units) {
			u := units[pos]
			if u == 0 {
				break
			}
			if u != '.' && (u < '0' || u > '9') {
				continue search
			}
			version = append(version, byte(u))
			pos++
		}
		if len(version) > 0 {
			return string(version)
		}
	}
	return ""
}
