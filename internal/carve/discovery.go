// Package carve implements the forensic signature-carving scanner: a
// parallel sweep over a partition's byte range that recognizes resurrectable
// FATX directory entries and well-known container magics, independent of
// the directory tree.
package carve

import "github.com/sscafiti/xtafrec/internal/xtaf"

// Kind tags the flavor of a Discovery.
type Kind int

const (
	KindFatxEntry Kind = iota
	KindStfs
	KindXex
	KindBink
)

func (k Kind) String() string {
	switch k {
	case KindFatxEntry:
		return "fatx_entry"
	case KindStfs:
		return "stfs"
	case KindXex:
		return "xex"
	case KindBink:
		return "bink"
	default:
		return "unknown"
	}
}

// Discovery is one carved artifact: a recovered FATX directory entry, or
// the offset of a recognized container magic. Only FatxEntry carries a
// resolved cluster chain; the container kinds carry just their starting
// offset, with extent resolution left to the downstream materializer.
type Discovery struct {
	Kind   Kind
	Offset uint64
	Entry  xtaf.Entry // valid only when Kind == KindFatxEntry
}
