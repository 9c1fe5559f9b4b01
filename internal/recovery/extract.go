package recovery

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/sscafiti/xtafrec/internal/xtaf"
	"github.com/sscafiti/xtafrec/pkg/reader"
	"github.com/sscafiti/xtafrec/pkg/report"
	ioutil "github.com/sscafiti/xtafrec/pkg/util/io"
)

// walkDirectory recursively mirrors parent's live children under hostDir,
// recording every live entry's image offset in liveOffsets so the forensic
// scanner can exclude them, and accumulating per-entry failures into merr
// rather than aborting the walk.
func (d *Driver) walkDirectory(p *xtaf.Partition, parent *xtaf.Entry, hostDir string, liveOffsets map[uint64]struct{}, pr *report.PartitionReport, merr **multierror.Error) {
	dir, err := p.ReadDirectory(d.Image, parent)
	if err != nil {
		*merr = multierror.Append(*merr, fmt.Errorf("reading directory %q: %w", hostDir, err))
		return
	}

	for i := range dir.Entries {
		e := &dir.Entries[i]
		if e.IsDeleted {
			continue // live tree only; the carve scanner recovers deleted entries separately
		}
		liveOffsets[e.OffsetInImage] = struct{}{}

		childPath := filepath.Join(hostDir, e.Name)

		if e.IsDir() {
			if err := os.MkdirAll(childPath, 0755); err != nil {
				*merr = multierror.Append(*merr, fmt.Errorf("creating directory %q: %w", childPath, err))
				continue
			}
			d.walkDirectory(p, e, childPath, liveOffsets, pr, merr)
			continue
		}

		if err := d.materializeEntry(p, e, childPath); err != nil {
			*merr = multierror.Append(*merr, fmt.Errorf("materializing %q: %w", childPath, err))
			continue
		}
		pr.LiveFiles++
		d.rows = append(d.rows, report.NewManifestRow(p.Name, report.KindLive, e.Name, e.OffsetInImage, uint64(e.Size)))
	}
}

// materializeEntry writes E's content to hostPath: the concatenation of
// P.ClusterData(c) for each live cluster in E's chain, truncated to
// E.Size. It stops concatenating (rather than failing) at the first
// cluster whose byte range falls outside the image, per spec.md §4.5 --
// an entry whose very first cluster is out of range yields an empty file
// rather than no file at all. A pre-existing hostPath is left untouched.
func (d *Driver) materializeEntry(p *xtaf.Partition, e *xtaf.Entry, hostPath string) error {
	if _, err := os.Stat(hostPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
		return err
	}

	readers := make([]io.ReadSeeker, 0, len(e.ClusterChain))
	sizes := make([]int64, 0, len(e.ClusterChain))
	for _, c := range e.ClusterChain {
		if c == 0 {
			continue
		}
		data, ok := p.ClusterData(d.Image, c)
		if !ok {
			break
		}
		readers = append(readers, bytes.NewReader(data))
		sizes = append(sizes, int64(len(data)))
	}

	var body io.Reader = bytes.NewReader(nil)
	if len(readers) > 0 {
		body = io.LimitReader(reader.NewMultiReadSeeker(readers, sizes), int64(e.Size))
	}
	return ioutil.CopyFile(hostPath, body)
}
