package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"niftislice/pkg/config"
	"niftislice/pkg/nifti"
	"niftislice/pkg/visualization"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "niftislice",
		Short:         "Inspect NIfTI volumes and export slices, projections and statistics",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			return configureLogging(cfg)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "niftislice.yaml", "YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(
		newInfoCommand(),
		newStatsCommand(),
		newSliceCommand(),
		newSlicesCommand(),
		newMIPCommand(),
		newBatchCommand(),
		newConfigCommand(),
	)
	return root
}

func configureLogging(c *config.Config) error {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func openImage(path string) (*nifti.Image, error) {
	return nifti.Read(path, nifti.WithMmapThreshold(cfg.Loader.MmapThresholdBytes))
}

// exportOptions returns the exporter options derived from the config.
func exportOptions() []visualization.Option {
	return []visualization.Option{
		visualization.WithFormat(cfg.ExportFormat()),
		visualization.WithJPEGQuality(cfg.Export.JPEGQuality),
	}
}

// volumeBaseName strips the NIfTI extensions from a path's file name.
func volumeBaseName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".nii.gz", ".hdr.gz", ".nii", ".hdr"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printStatistics(img *nifti.Image) {
	st := img.Statistics()
	fmt.Printf("%s\n", img)
	fmt.Printf("  Load strategy: %s\n", img.LoadStrategy())
	fmt.Printf("  Finite voxels: %d\n", st.Count)
	fmt.Printf("  Min:           %g\n", st.Min)
	fmt.Printf("  Max:           %g\n", st.Max)
	fmt.Printf("  Mean:          %g\n", st.Mean)
	fmt.Printf("  Std dev:       %g\n", st.StdDev)
}
