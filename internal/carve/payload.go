package carve

import (
	"encoding/binary"
	"errors"
)

// ErrExtentUnrecoverable is returned when a carved payload's length cannot
// be safely determined from the bytes at its offset (truncated image or
// corrupt header).
var ErrExtentUnrecoverable = errors.New("carve: payload extent could not be determined")

const (
	stfsNameOff      = 0x411
	stfsNameMaxUnits = 0x208
	stfsContentSize  = 0x34C
	stfsScanStart    = 0x37E
)

// StfsExtent resolves an STFS container's display name and byte extent
// starting at offset p in image, per the carve contract in spec section
// 4.6. It returns ErrExtentUnrecoverable if image is too short to contain
// the fields it needs, or if the declared content runs past the end of
// image.
func StfsExtent(image []byte, p uint64) (name string, end uint64, err error) {
	name = decodeStfsName(image, p)

	if p+stfsContentSize+8 > uint64(len(image)) {
		return name, 0, ErrExtentUnrecoverable
	}
	contentSize := binary.BigEndian.Uint64(image[p+stfsContentSize:])

	contentStart, ok := findStfsContentStart(image, p)
	if !ok {
		return name, 0, ErrExtentUnrecoverable
	}

	end = contentStart + contentSize
	if end > uint64(len(image)) || end < p {
		return name, 0, ErrExtentUnrecoverable
	}
	return name, end, nil
}

// decodeStfsName reads the UTF-16BE display name at p+stfsNameOff,
// terminated by a 0x0000 code unit or stfsNameMaxUnits units, whichever
// comes first. An absent name yields ""; unpaired surrogates decode to
// U+FFFD.
func decodeStfsName(image []byte, p uint64) string {
	base := p + stfsNameOff
	units := make([]uint16, 0, stfsNameMaxUnits)
	for i := 0; i < stfsNameMaxUnits; i++ {
		off := base + uint64(i)*2
		if off+2 > uint64(len(image)) {
			break
		}
		u := binary.BigEndian.Uint16(image[off:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return ""
	}
	return string(utf16Decode(units))
}

func utf16Decode(units []uint16) []rune {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		r := units[i]
		if r >= 0xD800 && r <= 0xDBFF && i+1 < len(units) {
			r2 := units[i+1]
			if r2 >= 0xDC00 && r2 <= 0xDFFF {
				combined := (rune(r)-0xD800)<<10 + (rune(r2) - 0xDC00) + 0x10000
				runes = append(runes, combined)
				i++
				continue
			}
		}
		runes = append(runes, rune(r))
	}
	return runes
}

// findStfsContentStart scans forward from p+stfsScanStart in 4-byte
// big-endian steps until a non-zero word is observed, then returns the
// byte offset of that word minus 4 (content begins four bytes before the
// word, and the word itself is part of the content).
func findStfsContentStart(image []byte, p uint64) (uint64, bool) {
	off := p + stfsScanStart
	for off+4 <= uint64(len(image)) {
		if binary.BigEndian.Uint32(image[off:]) != 0 {
			return off - 4, true
		}
		off += 4
	}
	return 0, false
}

// BinkExtent resolves a Bink video's byte extent starting at offset p:
// the body length is a little-endian u32 at p+4, and the full extent also
// accounts for the 4-byte "BIKi" tag and the 4-byte length word itself.
func BinkExtent(image []byte, p uint64) (end uint64, err error) {
	if p+8 > uint64(len(image)) {
		return 0, ErrExtentUnrecoverable
	}
	bodyLen := binary.LittleEndian.Uint32(image[p+4:])
	end = p + 4 + uint64(bodyLen) + 4
	if end > uint64(len(image)) || end < p {
		return 0, ErrExtentUnrecoverable
	}
	return end, nil
}
