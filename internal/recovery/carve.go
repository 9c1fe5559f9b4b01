package recovery

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sscafiti/xtafrec/internal/carve"
	"github.com/sscafiti/xtafrec/internal/xtaf"
	"github.com/sscafiti/xtafrec/pkg/report"
	ioutil "github.com/sscafiti/xtafrec/pkg/util/io"
)

const deletedFilesDirName = "deleted_files"

// materializeDiscoveries writes every Discovery the scanner found to
// <OutDir>/deleted_files, using each kind's carve contract (spec.md §4.6)
// to bound its extent. A discovery whose extent cannot be determined is
// logged and skipped; it never aborts the partition's carve pass.
func (d *Driver) materializeDiscoveries(p *xtaf.Partition, discoveries []carve.Discovery, pr *report.PartitionReport) {
	deletedDir := filepath.Join(d.OutDir, deletedFilesDirName)

	unnamedStfs := 0
	binkCount := 0

	for _, disc := range discoveries {
		switch disc.Kind {
		case carve.KindFatxEntry:
			d.materializeDeletedEntry(p, disc, deletedDir, pr)

		case carve.KindStfs:
			name, end, err := carve.StfsExtent(d.Image, disc.Offset)
			if err != nil {
				d.Logger.Warnf("stfs container at 0x%X: %s", disc.Offset, err)
				continue
			}
			if name == "" {
				name = fmt.Sprintf("unnamed_stfs_package_%d", unnamedStfs)
				unnamedStfs++
			}
			d.writeCarvedRange(deletedDir, sanitizeCarvedName(name), disc.Offset, end, p.Name, report.KindStfs, pr)

		case carve.KindBink:
			end, err := carve.BinkExtent(d.Image, disc.Offset)
			if err != nil {
				d.Logger.Warnf("bink video at 0x%X: %s", disc.Offset, err)
				continue
			}
			name := fmt.Sprintf("video_file_%d.bik", binkCount)
			binkCount++
			d.writeCarvedRange(deletedDir, name, disc.Offset, end, p.Name, report.KindBink, pr)

		case carve.KindXex:
			// Xex extent recovery is an open question (spec.md §9): no length
			// field is decoded from the XEX2 header, so the payload is
			// reported but never materialized.
			d.Logger.Warnf("xex executable at 0x%X: extent unknown, not recovered", disc.Offset)
		}
	}
}

func (d *Driver) materializeDeletedEntry(p *xtaf.Partition, disc carve.Discovery, deletedDir string, pr *report.PartitionReport) {
	pr.DeletedEntries++

	hostPath := filepath.Join(deletedDir, sanitizeCarvedName(disc.Entry.Name))
	if err := d.materializeEntry(p, &disc.Entry, hostPath); err != nil {
		d.Logger.Warnf("unable to recover deleted entry %q at 0x%X: %s", disc.Entry.Name, disc.Offset, err)
		return
	}
	pr.Discoveries++
	d.rows = append(d.rows, report.NewManifestRow(p.Name, report.KindDeleted, disc.Entry.Name, disc.Offset, uint64(disc.Entry.Size)))
}

// writeCarvedRange writes image[lo:hi) to <dir>/<name> and records a
// manifest row for it.
func (d *Driver) writeCarvedRange(dir, name string, lo, hi uint64, partition string, kind report.Kind, pr *report.PartitionReport) {
	if hi < lo || hi > uint64(len(d.Image)) {
		d.Logger.Warnf("carved range [0x%X, 0x%X) for %q runs past the image, skipping", lo, hi, name)
		return
	}

	hostPath := filepath.Join(dir, name)
	if err := ioutil.CopyFile(hostPath, bytes.NewReader(d.Image[lo:hi])); err != nil {
		d.Logger.Warnf("unable to write carved artifact %q: %s", name, err)
		return
	}
	pr.Discoveries++
	d.rows = append(d.rows, report.NewManifestRow(partition, kind, name, lo, hi-lo))
}

// sanitizeCarvedName strips path separators from a name recovered from
// carved (untrusted) image bytes, so it can never escape the output
// directory it is joined against.
func sanitizeCarvedName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, `\`, "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
