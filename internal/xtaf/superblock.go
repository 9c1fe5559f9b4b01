package xtaf

import "math/bits"

const (
	sectorSize      = 512
	xtafMagic       = 0x58544146 // "XTAF"
	fatTableOffset  = 0x1000
	entryWidthSmall = 2
	entryWidthLarge = 4
	fat16EntryCap   = 0xFFF0
	minHddHeaderLen = 0x18
)

// HddHeader is the devkit HDD header at image offset 0.
type HddHeader struct {
	Major, Minor, Revision, Patch uint16
	Partitions                    [2]PartitionDesc
}

// PartitionDesc is one of the two fixed partition descriptors in the devkit
// header: a start-sector/sector-count pair, named by convention.
type PartitionDesc struct {
	Name        string
	StartOffset uint64 // bytes
	Length      uint64 // bytes
}

// DecodeHddHeader reads the devkit header and both partition superblocks
// from the image, returning a fully derived Partition for each.
func DecodeHddHeader(image []byte) (*HddHeader, []*Partition, error) {
	cur := NewCursor(image)

	if uint64(len(image)) < minHddHeaderLen {
		return nil, nil, &InvalidDiskLengthError{Expected: minHddHeaderLen, Actual: uint64(len(image))}
	}

	major, err := cur.U16(0x00)
	if err != nil {
		return nil, nil, err
	}
	minor, err := cur.U16(0x02)
	if err != nil {
		return nil, nil, err
	}
	revision, err := cur.U16(0x04)
	if err != nil {
		return nil, nil, err
	}
	patch, err := cur.U16(0x06)
	if err != nil {
		return nil, nil, err
	}

	dataStartSector, err := cur.U32(0x08)
	if err != nil {
		return nil, nil, err
	}
	dataSectorCount, err := cur.U32(0x0C)
	if err != nil {
		return nil, nil, err
	}
	sysStartSector, err := cur.U32(0x10)
	if err != nil {
		return nil, nil, err
	}
	sysSectorCount, err := cur.U32(0x14)
	if err != nil {
		return nil, nil, err
	}

	hdr := &HddHeader{
		Major: major, Minor: minor, Revision: revision, Patch: patch,
		Partitions: [2]PartitionDesc{
			{Name: "Data", StartOffset: uint64(dataStartSector) * sectorSize, Length: uint64(dataSectorCount) * sectorSize},
			{Name: "System", StartOffset: uint64(sysStartSector) * sectorSize, Length: uint64(sysSectorCount) * sectorSize},
		},
	}

	partitions := make([]*Partition, 0, 2)
	for _, desc := range hdr.Partitions {
		p, err := decodePartition(cur, desc)
		if err != nil {
			return nil, nil, err
		}
		partitions = append(partitions, p)
	}
	return hdr, partitions, nil
}

// Partition is a partition descriptor merged with its decoded XTAF
// superblock: cluster geometry, FAT entry width, and the data region's
// base offset.
type Partition struct {
	Name              string
	StartOffset       uint64
	Length            uint64
	SectorsPerCluster uint32
	ClusterSize       uint32
	RootCluster       uint32
	EntryWidth        uint8 // 2 or 4 bytes
	DataRegionOffset  uint64
}

func decodePartition(cur Cursor, desc PartitionDesc) (*Partition, error) {
	if desc.StartOffset+desc.Length > uint64(cur.Len()) {
		return nil, &InvalidDiskLengthError{Expected: desc.StartOffset + desc.Length, Actual: uint64(cur.Len())}
	}

	magic, err := cur.U32(desc.StartOffset)
	if err != nil {
		return nil, err
	}
	if magic != xtafMagic {
		return nil, &InvalidFilesystemMagicError{Offset: desc.StartOffset, Magic: magic}
	}

	sectorsPerCluster, err := cur.U32(desc.StartOffset + 0x8)
	if err != nil {
		return nil, err
	}
	rootCluster, err := cur.U32(desc.StartOffset + 0xC)
	if err != nil {
		return nil, err
	}

	clusterSize := sectorsPerCluster * sectorSize
	shiftFactor := 31 - bits.LeadingZeros32(clusterSize)

	entryCountGuess := (desc.Length >> uint(shiftFactor)) + 1

	entryWidth := uint8(entryWidthSmall)
	if entryCountGuess >= fat16EntryCap {
		entryWidth = entryWidthLarge
	}

	allocTableSize := entryCountGuess * uint64(entryWidth)
	allocTableSize = alignUp(allocTableSize, fatTableOffset) & 0xFFFFFFFF

	return &Partition{
		Name:              desc.Name,
		StartOffset:       desc.StartOffset,
		Length:            desc.Length,
		SectorsPerCluster: sectorsPerCluster,
		ClusterSize:       clusterSize,
		RootCluster:       rootCluster,
		EntryWidth:        entryWidth,
		DataRegionOffset:  desc.StartOffset + fatTableOffset + allocTableSize,
	}, nil
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// ClusterOffset returns the absolute byte offset of the first byte of
// cluster index i (i >= 1; index 0 is reserved/null).
func (p *Partition) ClusterOffset(i uint32) uint64 {
	return p.DataRegionOffset + uint64(i-1)*uint64(p.ClusterSize)
}

// withinImage reports whether the whole of cluster i lies within the given
// image length.
func (p *Partition) withinImage(i uint32, imageLen uint64) bool {
	if i == 0 {
		return false
	}
	off := p.ClusterOffset(i)
	return off+uint64(p.ClusterSize) <= imageLen
}
