// Package recovery is the external driver: it owns the image byte range
// and an output directory, and sequences the core components (the XTAF
// parser and the forensic scanner) into one run over an already-opened
// image — walk and materialize each partition's live tree, then carve its
// region for deleted entries and orphaned containers. None of the format
// knowledge lives here; this package is glue, argument parsing's sibling.
package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"

	"github.com/sscafiti/xtafrec/internal/carve"
	"github.com/sscafiti/xtafrec/internal/logger"
	"github.com/sscafiti/xtafrec/internal/xtaf"
	"github.com/sscafiti/xtafrec/pkg/report"
	"github.com/sscafiti/xtafrec/pkg/util/format"
	osutils "github.com/sscafiti/xtafrec/pkg/util/os"
)

// Options collects the run's tunables; spec.md leaves shard/worker count
// and the report/manifest paths as "configured" rather than fixed.
type Options struct {
	Shards       int
	Workers      int // reserved: spec.md names worker pool and shard count as independently configurable; shard count alone drives concurrency today.
	SkipDeleted  bool
	ReportPath   string
	ManifestPath string
	Progress     bool
}

// DefaultOptions returns the spec's defaults: 8 shards, 8 workers, carving
// enabled, no report/manifest, progress on.
func DefaultOptions() Options {
	return Options{Shards: 8, Workers: 8, Progress: true}
}

// Driver runs one extraction+carve pass over an image. Image is shared by
// value reference with every Partition/Entry/Discovery it produces; the
// Driver is the only thing that owns it for writing.
type Driver struct {
	Image     []byte
	ImagePath string
	OutDir    string
	Opts      Options
	Logger    *logger.Logger

	rows []report.ManifestRow
}

// NewDriver builds a Driver around an already-opened image and a
// caller-supplied logger.
func NewDriver(image []byte, imagePath, outDir string, opts Options, log *logger.Logger) *Driver {
	return &Driver{
		Image:     image,
		ImagePath: imagePath,
		OutDir:    outDir,
		Opts:      opts,
		Logger:    log,
	}
}

// Run decodes the devkit header, extracts every partition's live tree,
// carves its unallocated region for deleted artifacts (unless
// Opts.SkipDeleted), and writes the optional DFXML report and CSV
// manifest. Superblock decoding failures are fatal and abort the run, per
// spec.md §7. A partition whose root directory chain cannot be read, or
// whose output directory cannot be created, also aborts the run, as does a
// failure to write the report or manifest. Per-entry failures are
// collected and logged and never abort the run.
func (d *Driver) Run() error {
	if _, err := osutils.EnsureDir(d.OutDir, false); err != nil {
		return err
	}

	_, partitions, err := xtaf.DecodeHddHeader(d.Image)
	if err != nil {
		return err
	}
	d.Logger.Infof("image %s: %s, %d partition(s)", d.ImagePath, format.FormatBytes(int64(len(d.Image))), len(partitions))

	run := report.RunReport{
		SessionID: uuid.New(),
		ImagePath: d.ImagePath,
		OutputDir: d.OutDir,
	}

	for _, p := range partitions {
		pr, err := d.extractPartition(p)
		if err != nil {
			return fmt.Errorf("partition %s: %w", p.Name, err)
		}
		run.Partitions = append(run.Partitions, pr)
		d.Logger.Infof("partition %s: %d live files, %d deleted entries, %d carved artifacts",
			pr.Name, pr.LiveFiles, pr.DeletedEntries, pr.Discoveries)
	}

	if d.Opts.ReportPath != "" {
		if err := report.WriteDFXML(d.Opts.ReportPath, run, d.rows, uint64(len(d.Image)), "xtafrec", "1.0.0"); err != nil {
			return err
		}
		d.Logger.Infof("report written to %s", d.Opts.ReportPath)
	}
	if d.Opts.ManifestPath != "" {
		if err := report.WriteManifestCSV(d.Opts.ManifestPath, d.rows); err != nil {
			return err
		}
		d.Logger.Infof("manifest written to %s", d.Opts.ManifestPath)
	}
	return nil
}

// extractPartition materializes p's live tree, then (unless skipped)
// carves its byte range for deleted FATX entries and orphaned containers.
// Per-entry and per-cluster failures are aggregated into a multierror and
// logged at Warn once the partition finishes; they never fail the run.
func (d *Driver) extractPartition(p *xtaf.Partition) (report.PartitionReport, error) {
	pr := report.PartitionReport{Name: p.Name}
	d.Logger.Infof("partition %s: %s at offset 0x%X", p.Name, format.FormatBytes(int64(p.Length)), p.StartOffset)

	root, err := p.Root(d.Image)
	if err != nil {
		return pr, err
	}

	partDir := filepath.Join(d.OutDir, p.Name)
	if err := os.MkdirAll(partDir, 0755); err != nil {
		return pr, err
	}
	liveOffsets := make(map[uint64]struct{})

	var merr *multierror.Error
	d.walkDirectory(p, &root, partDir, liveOffsets, &pr, &merr)
	if merr != nil && len(merr.Errors) > 0 {
		d.Logger.Warnf("partition %s: %d extraction error(s): %s", p.Name, len(merr.Errors), merr.Error())
	}

	if d.Opts.SkipDeleted {
		return pr, nil
	}

	scanner := carve.NewScanner(p, d.Opts.Shards)
	if d.Opts.Progress {
		scanner.Progress = progressbar.DefaultBytes(int64(p.Length), fmt.Sprintf("carving %s", p.Name))
	}

	discoveries := scanner.Scan(d.Image, p.StartOffset, p.StartOffset+p.Length, liveOffsets)
	d.materializeDiscoveries(p, discoveries, &pr)

	return pr, nil
}
