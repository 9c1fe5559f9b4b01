package xtaf

// Allocation table (FAT) geometry and chain walking. Entries are big-endian,
// 2 or 4 bytes wide depending on Partition.EntryWidth, stored starting at
// StartOffset+0x1000.

const (
	fat16Terminator0 = 0x0000
	fat16Terminator1 = 0xFFF8
	fat16Terminator2 = 0xFFFF

	fat32Terminator0 = 0x00000000
	fat32Terminator1 = 0xFFFFFFF8
	fat32Terminator2 = 0xFFFFFFFF
)

// fatEntryOffset returns the absolute image offset of the FAT entry for
// cluster index.
func (p *Partition) fatEntryOffset(index uint32) uint64 {
	return p.StartOffset + fatTableOffset + uint64(index)*uint64(p.EntryWidth)
}

// readFatEntry reads the raw FAT entry for cluster index, as a 32-bit value
// regardless of on-disk width.
func (p *Partition) readFatEntry(cur Cursor, index uint32) (uint32, error) {
	off := p.fatEntryOffset(index)
	if p.EntryWidth == entryWidthSmall {
		v, err := cur.U16(off)
		if err != nil {
			return 0, &IoError{Offset: off, Err: err}
		}
		return uint32(v), nil
	}
	v, err := cur.U32(off)
	if err != nil {
		return 0, &IoError{Offset: off, Err: err}
	}
	return v, nil
}

func (p *Partition) isTerminator(entry uint32) bool {
	if p.EntryWidth == entryWidthSmall {
		switch entry {
		case fat16Terminator0, fat16Terminator1, fat16Terminator2:
			return true
		}
		return false
	}
	switch entry {
	case fat32Terminator0, fat32Terminator1, fat32Terminator2:
		return true
	}
	return false
}

// clusterCapacity returns an upper bound on the number of clusters the
// partition's data region can hold, used to cap chain walks against
// corrupt/cyclic FAT tables.
func (p *Partition) clusterCapacity() uint32 {
	if p.Length <= uint64(p.DataRegionOffset-p.StartOffset) || p.ClusterSize == 0 {
		return 0
	}
	dataLen := p.Length - (p.DataRegionOffset - p.StartOffset)
	cap64 := dataLen/uint64(p.ClusterSize) + 1
	if cap64 > 0xFFFFFFFF {
		cap64 = 0xFFFFFFFF
	}
	return uint32(cap64)
}

// ClusterChain walks the FAT starting at root, returning the ordered list
// of cluster indices making up the chain. The walk truncates (rather than
// failing) once it reaches the partition's cluster capacity, to tolerate a
// cyclic or corrupt table while still returning a best-effort chain. A
// root of 0 (the null cluster) yields an empty chain.
func (p *Partition) ClusterChain(image []byte, root uint32) ([]uint32, error) {
	if root == 0 {
		return nil, nil
	}

	cur := NewCursor(image)
	cap := p.clusterCapacity()

	chain := make([]uint32, 0, 16)
	cur32 := root
	for {
		chain = append(chain, cur32)
		if uint32(len(chain)) >= cap {
			break
		}

		next, err := p.readFatEntry(cur, cur32)
		if err != nil {
			return chain, err
		}
		if p.isTerminator(next) {
			break
		}
		cur32 = next
	}
	return chain, nil
}
