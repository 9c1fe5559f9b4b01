// Package report assembles the ambient run-report artifacts a recovery run
// can optionally emit: a DFXML-style file describing the run and every
// recovered object, and a flat CSV manifest of the same objects for
// spreadsheet consumption.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/sscafiti/xtafrec/pkg/dfxml"
)

// RunReport is the root object for one recovery run: which image was read,
// where output landed, and a per-partition breakdown of what was found.
type RunReport struct {
	SessionID  uuid.UUID
	ImagePath  string
	OutputDir  string
	Partitions []PartitionReport
}

// PartitionReport summarizes one partition's extraction and carve pass.
type PartitionReport struct {
	Name           string
	LiveFiles      int
	DeletedEntries int
	Discoveries    int
}

// Kind tags one ManifestRow's provenance.
type Kind string

const (
	KindLive    Kind = "live"
	KindDeleted Kind = "deleted"
	KindStfs    Kind = "stfs"
	KindXex     Kind = "xex"
	KindBink    Kind = "bink"
)

// ManifestRow is one CSV record: a live file, a recovered deleted entry, or
// a carved container. Offset is rendered in hex, per spec.md's "messages
// identify file offsets in hexadecimal" convention.
type ManifestRow struct {
	Partition string `csv:"partition"`
	Kind      Kind   `csv:"kind"`
	Name      string `csv:"name"`
	Offset    string `csv:"offset"`
	Size      uint64 `csv:"size"`
}

// NewManifestRow builds a ManifestRow, formatting offset as "0x%x"
// (lowercase hex digits).
func NewManifestRow(partition string, kind Kind, name string, offset uint64, size uint64) ManifestRow {
	return ManifestRow{
		Partition: partition,
		Kind:      kind,
		Name:      name,
		Offset:    "0x" + strconv.FormatUint(offset, 16),
		Size:      size,
	}
}

// WriteManifestCSV writes rows to path as a gocsv-encoded CSV manifest.
func WriteManifestCSV(path string, rows []ManifestRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest %q: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("failed to write manifest %q: %w", path, err)
	}
	return nil
}

// WriteDFXML writes run to path as a DFXML document, with one <fileobject>
// per manifest row.
func WriteDFXML(path string, run RunReport, rows []ManifestRow, imageSize uint64, appName, appVersion string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %q: %w", path, err)
	}
	defer f.Close()

	return writeDFXML(f, run, rows, imageSize, appName, appVersion)
}

func writeDFXML(w io.Writer, run RunReport, rows []ManifestRow, imageSize uint64, appName, appVersion string) error {
	enc := dfxml.NewDFXMLWriter(w)

	err := enc.WriteHeader(dfxml.DFXMLHeader{
		XmlOutput: dfxml.XmlOutputVersion,
		Metadata:  dfxml.DefaultMetadata,
		Creator: dfxml.Creator{
			Package:              appName,
			Version:              appVersion,
			ExecutionEnvironment: dfxml.GetExecEnv(),
		},
		Source: dfxml.Source{
			ImageFilename: run.ImagePath,
			SectorSize:    512,
			ImageSize:     imageSize,
		},
	})
	if err != nil {
		return err
	}

	for _, row := range rows {
		offset, _ := strconv.ParseUint(row.Offset[2:], 16, 64)
		err := enc.WriteFileObject(dfxml.FileObject{
			Filename: filepath.Join(row.Partition, row.Name),
			FileSize: row.Size,
			ByteRuns: dfxml.ByteRuns{
				Runs: []dfxml.ByteRun{{
					Offset:    0,
					ImgOffset: offset,
					Length:    row.Size,
				}},
			},
		})
		if err != nil {
			return err
		}
	}
	return enc.Close()
}
