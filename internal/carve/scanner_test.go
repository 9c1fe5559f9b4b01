package carve

import (
	"encoding/binary"
	"testing"

	"github.com/sscafiti/xtafrec/internal/xtaf"
	"github.com/stretchr/testify/require"
)

func testPartition() *xtaf.Partition {
	return &xtaf.Partition{
		Name:              "Data",
		StartOffset:       0x10000,
		Length:            0x10000,
		SectorsPerCluster: 1,
		ClusterSize:       512,
		RootCluster:       1,
		EntryWidth:        2,
		DataRegionOffset:  0x12000,
	}
}

func TestScan_FindsDeletedEntryAndContainerMagic(t *testing.T) {
	p := testPartition()
	image := make([]byte, 0x20000)

	// a plausible deleted FATX record at an arbitrary offset within the
	// partition's byte range.
	entryOff := uint64(0x12100)
	image[entryOff] = 0xE5
	image[entryOff+1] = byte(xtaf.AttrNone)
	copy(image[entryOff+2:], []byte("a.txt"))
	for i := 5; i < 0x2A; i++ {
		image[entryOff+2+uint64(i)] = 0xFF
	}
	binary.BigEndian.PutUint32(image[entryOff+0x2C:], 5)
	binary.BigEndian.PutUint32(image[entryOff+0x30:], 512)

	// a BIKi magic elsewhere in the same range.
	binkOff := uint64(0x13000)
	copy(image[binkOff:], sigBink[:])
	binary.LittleEndian.PutUint32(image[binkOff+4:], 0x40)

	s := NewScanner(p, 4)
	found := s.Scan(image, p.StartOffset, p.StartOffset+p.Length, nil)

	var sawEntry, sawBink bool
	for _, d := range found {
		switch d.Kind {
		case KindFatxEntry:
			sawEntry = true
			require.Equal(t, entryOff, d.Offset)
			require.Equal(t, "a.txt", d.Entry.Name)
		case KindBink:
			sawBink = true
			require.Equal(t, binkOff, d.Offset)
		}
	}
	require.True(t, sawEntry)
	require.True(t, sawBink)
}

func TestScan_ExcludesKnownLiveOffset(t *testing.T) {
	p := testPartition()
	image := make([]byte, 0x20000)

	binkOff := uint64(0x13000)
	copy(image[binkOff:], sigBink[:])
	binary.LittleEndian.PutUint32(image[binkOff+4:], 0x40)

	s := NewScanner(p, 2)
	live := map[uint64]struct{}{binkOff: {}}
	found := s.Scan(image, p.StartOffset, p.StartOffset+p.Length, live)

	for _, d := range found {
		require.NotEqual(t, binkOff, d.Offset)
	}
}

func TestScan_RejectsBinkWithDisallowedTrailingByte(t *testing.T) {
	p := testPartition()
	image := make([]byte, 0x20000)

	binkOff := uint64(0x13000)
	copy(image[binkOff:], sigBink[:])
	image[binkOff+5] = 0x20

	s := NewScanner(p, 2)
	found := s.Scan(image, p.StartOffset, p.StartOffset+p.Length, nil)
	for _, d := range found {
		require.NotEqual(t, KindBink, d.Kind)
	}
}

func TestScan_EmptyRangeYieldsNoDiscoveries(t *testing.T) {
	p := testPartition()
	image := make([]byte, 0x20000)

	s := NewScanner(p, 8)
	found := s.Scan(image, 100, 100, nil)
	require.Empty(t, found)
}
