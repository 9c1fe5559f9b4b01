package xtaf

// ClusterData returns the raw bytes of cluster index i within image, or
// false if the cluster's byte range lies beyond the image (or partition)
// extent.
func (p *Partition) ClusterData(image []byte, i uint32) ([]byte, bool) {
	if i == 0 {
		return nil, false
	}
	off := p.ClusterOffset(i)
	end := off + uint64(p.ClusterSize)
	if end > p.StartOffset+p.Length || end > uint64(len(image)) {
		return nil, false
	}
	return image[off:end], true
}
