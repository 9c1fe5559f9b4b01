package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sscafiti/xtafrec/internal/fs"
	"github.com/sscafiti/xtafrec/internal/logger"
	"github.com/sscafiti/xtafrec/internal/mmap"
	"github.com/sscafiti/xtafrec/internal/recovery"
)

const AppName = "xtafrec"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName + " <image-path> <output-dir>",
		Short: AppName + " - XTAF/FATX devkit image recovery tool",
		Long: `xtafrec extracts the live directory tree of an Xbox devkit HDD image
(XTAF/FATX filesystem) to a host directory, then sweeps each partition's
unallocated region for deleted directory entries and orphaned STFS/XEX/Bink
containers.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runExtract,
	}

	rootCmd.Flags().Int("shards", 8, "number of parallel shards for the forensic scan")
	rootCmd.Flags().Int("workers", 8, "reserved; currently unused (scan concurrency follows --shards)")
	rootCmd.Flags().String("log-level", "info", "minimum log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().String("report", "", "write a DFXML report to this path")
	rootCmd.Flags().String("manifest", "", "write a CSV manifest to this path")
	rootCmd.Flags().Bool("skip-deleted", false, "skip the forensic scan phase; extract live files only")
	rootCmd.Flags().Bool("no-progress", false, "disable the carve-phase progress bar")

	return rootCmd.Execute()
}

func runExtract(cmd *cobra.Command, args []string) error {
	imagePath, outDir := fs.NormalizeVolumePath(args[0]), args[1]

	shards, _ := cmd.Flags().GetInt("shards")
	workers, _ := cmd.Flags().GetInt("workers")
	logLevel, _ := cmd.Flags().GetString("log-level")
	reportPath, _ := cmd.Flags().GetString("report")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	skipDeleted, _ := cmd.Flags().GetBool("skip-deleted")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	img, err := mmap.NewMmapFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image %q: %w", imagePath, err)
	}
	defer img.Close()

	log := logger.New(os.Stdout, logger.ParseLevel(logLevel))
	log.Infof("opened %s (%d bytes)", imagePath, img.FileSize)

	d := recovery.NewDriver(img.Data, imagePath, outDir, recovery.Options{
		Shards:       shards,
		Workers:      workers,
		SkipDeleted:  skipDeleted,
		ReportPath:   reportPath,
		ManifestPath: manifestPath,
		Progress:     !noProgress,
	}, log)

	if err := d.Run(); err != nil {
		return err
	}

	log.Infof("extraction complete: %s", outDir)
	return nil
}
