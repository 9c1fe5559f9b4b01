package xtaf

// Directory is a materialized directory listing: a name and its ordered
// child entries.
type Directory struct {
	Name    string
	Entries []Entry
}

// Root returns the partition's synthetic root directory entry: a
// directory Entry with no on-disk record of its own, whose cluster chain
// starts at p.RootCluster.
func (p *Partition) Root(image []byte) (Entry, error) {
	chain, err := p.ClusterChain(image, p.RootCluster)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		OffsetInImage: p.DataRegionOffset,
		Name:          "",
		Size:          0,
		FirstCluster:  p.RootCluster,
		Attributes:    AttrDir,
		IsDeleted:     false,
		ClusterChain:  chain,
	}, nil
}

// ReadDirectory parses the directory whose contents live in parent's
// cluster chain. An empty chain yields an empty directory. Iteration stops
// at the first terminator record encountered, even mid-cluster; no
// further clusters in the chain are examined once that happens.
func (p *Partition) ReadDirectory(image []byte, parent *Entry) (*Directory, error) {
	dir := &Directory{Name: parent.Name}

	if len(parent.ClusterChain) == 0 {
		return dir, nil
	}

outer:
	for _, cluster := range parent.ClusterChain {
		base := p.ClusterOffset(cluster)
		if base+uint64(p.ClusterSize) > uint64(len(image)) {
			break
		}

		for recOff := base; recOff < base+uint64(p.ClusterSize); recOff += EntrySize {
			outcome, entry, err := parseEntry(image, recOff, p)
			if err != nil {
				return nil, err
			}
			switch outcome {
			case outcomeTerminator:
				break outer
			case outcomeNoEntry:
				continue
			case outcomeEntry:
				dir.Entries = append(dir.Entries, entry)
			}
		}
	}
	return dir, nil
}
